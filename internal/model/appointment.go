package model

import (
	"fmt"
	"time"
)

// AppointmentStatus 是预约的生命周期状态。
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in-progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
	AppointmentNoShow     AppointmentStatus = "no-show"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentScheduled:  {AppointmentConfirmed, AppointmentCancelled, AppointmentNoShow},
	AppointmentConfirmed:  {AppointmentInProgress, AppointmentCancelled},
	AppointmentInProgress: {AppointmentCompleted},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentInProgress,
		AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	}
	return false
}

// CanTransitionTo 报告 s -> next 是否是合法的状态迁移。
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal 完成、取消、爽约为终态。
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled || s == AppointmentNoShow
}

// HoldsSlot 取消和爽约的预约不占用时段。
func (s AppointmentStatus) HoldsSlot() bool {
	return s != AppointmentCancelled && s != AppointmentNoShow
}

// AppointmentType 预约类型。
type AppointmentType string

const (
	TypeIndividual AppointmentType = "individual"
	TypeGroup      AppointmentType = "group"
	TypeEmergency  AppointmentType = "emergency"
	TypeFollowUp   AppointmentType = "follow-up"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeIndividual, TypeGroup, TypeEmergency, TypeFollowUp:
		return true
	}
	return false
}

// AppointmentMode 咨询方式。
type AppointmentMode string

const (
	ModeInPerson AppointmentMode = "in-person"
	ModeOnline   AppointmentMode = "online"
	ModePhone    AppointmentMode = "phone"
)

func (m AppointmentMode) Valid() bool {
	switch m {
	case ModeInPerson, ModeOnline, ModePhone:
		return true
	}
	return false
}

// Priority 预约优先级。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Appointment 对应 appointments 表。
//
// SlotKey 在预约占用时段时为 "counselorID:unix秒"，取消或爽约后置为 NULL。
// MySQL 唯一索引允许多个 NULL，以此实现"同一咨询师同一时刻最多一个有效预约"。
type Appointment struct {
	ID              uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID       uint              `gorm:"index;not null" json:"studentId"`
	CounselorID     uint              `gorm:"index;not null" json:"counselorId"`
	AppointmentDate time.Time         `gorm:"index;not null" json:"appointmentDate"`
	Duration        int               `gorm:"not null;default:60" json:"duration"` // 分钟
	Status          AppointmentStatus `gorm:"type:varchar(16);index;not null;default:'scheduled'" json:"status"`
	Type            AppointmentType   `gorm:"type:varchar(16);not null;default:'individual'" json:"type"`
	Mode            AppointmentMode   `gorm:"type:varchar(16);not null;default:'in-person'" json:"mode"`
	Priority        Priority          `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`
	Reason          string            `gorm:"type:text;not null" json:"reason"`
	Location        string            `gorm:"type:varchar(255)" json:"location,omitempty"`
	MeetingLink     string            `gorm:"type:varchar(255)" json:"meetingLink,omitempty"`
	Notes           string            `gorm:"type:text" json:"notes,omitempty"`
	StudentNotes    string            `gorm:"type:text" json:"studentNotes,omitempty"`
	CounselorNotes  string            `gorm:"type:text" json:"counselorNotes,omitempty"`

	SlotKey *string `gorm:"type:varchar(64);uniqueIndex:uk_appointment_active_slot" json:"-"`

	CancellationReason string     `gorm:"type:text" json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	RescheduleReason   string     `gorm:"type:text" json:"rescheduleReason,omitempty"`
	RescheduledFrom    *time.Time `json:"rescheduledFrom,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	FollowUpRequired   bool       `gorm:"not null;default:false" json:"followUpRequired"`
	FollowUpDate       *time.Time `json:"followUpDate,omitempty"`

	Feedback *Feedback `gorm:"type:json;serializer:json" json:"feedback,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Appointment) TableName() string {
	return "appointments"
}

// Feedback 是学生对已完成预约的评价。
type Feedback struct {
	Rating      int       `json:"rating"`
	Comments    string    `json:"comments"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// SlotKeyFor 生成占用时段的唯一键。
func SlotKeyFor(counselorID uint, at time.Time) string {
	return fmt.Sprintf("%d:%d", counselorID, at.Unix())
}

// SyncSlotKey 根据当前状态刷新 SlotKey。
func (a *Appointment) SyncSlotKey() {
	if a.Status.HoldsSlot() {
		key := SlotKeyFor(a.CounselorID, a.AppointmentDate)
		a.SlotKey = &key
		return
	}
	a.SlotKey = nil
}
