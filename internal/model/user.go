// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Role 是用户角色。
type Role string

const (
	RoleStudent   Role = "student"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleCounselor, RoleAdmin:
		return true
	}
	return false
}

// User 对应 users 表，学生、咨询师和管理员共用。
type User struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username       string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Password       string     `gorm:"type:varchar(255);not null" json:"-"`
	Email          string     `gorm:"type:varchar(128)" json:"email"`
	FullName       string     `gorm:"type:varchar(128)" json:"fullName"`
	Role           Role       `gorm:"type:varchar(16);index;not null;default:'student'" json:"role"`
	StudentID      string     `gorm:"type:varchar(32)" json:"studentId,omitempty"`
	University     string     `gorm:"type:varchar(128)" json:"university,omitempty"`
	Specialization string     `gorm:"type:varchar(128)" json:"specialization,omitempty"` // 仅咨询师
	IsActive       bool       `gorm:"not null" json:"isActive"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsActiveCounselor 判断用户是否是可预约的咨询师。
func (u *User) IsActiveCounselor() bool {
	return u != nil && u.Role == RoleCounselor && u.IsActive
}
