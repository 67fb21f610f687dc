package service

import "mindbridge-go/internal/model"

// Actor 是发起操作的已认证用户。
type Actor struct {
	UserID uint
	Role   model.Role
}

func (a Actor) IsAdmin() bool     { return a.Role == model.RoleAdmin }
func (a Actor) IsCounselor() bool { return a.Role == model.RoleCounselor }
func (a Actor) IsStudent() bool   { return a.Role == model.RoleStudent }

// IsStaff 咨询师和管理员。
func (a Actor) IsStaff() bool { return a.IsCounselor() || a.IsAdmin() }

// canAccessAppointment 学生只能访问自己的预约，咨询师只能访问分配给自己的，管理员不受限。
func (a Actor) canAccessAppointment(appt *model.Appointment) bool {
	switch a.Role {
	case model.RoleAdmin:
		return true
	case model.RoleCounselor:
		return appt.CounselorID == a.UserID
	case model.RoleStudent:
		return appt.StudentID == a.UserID
	}
	return false
}

// canAccessSession 会话属于学生本人；咨询师和管理员可以查看所有会话以便干预。
func (a Actor) canAccessSession(s *model.ChatSession) bool {
	return a.IsStaff() || s.UserID == a.UserID
}
