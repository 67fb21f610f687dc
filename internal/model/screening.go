package model

import (
	"time"

	"gorm.io/datatypes"
)

// ScreeningAnswer 是持久化的单题作答。
type ScreeningAnswer struct {
	QuestionID string `json:"questionId"`
	Response   int    `json:"response"`
}

// ScreeningResult 对应 screening_results 表。创建后只允许修改 CounselorNotified。
type ScreeningResult struct {
	ID                uint                                 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            uint                                 `gorm:"index:idx_screening_user_completed,priority:1;not null" json:"userId"`
	ScreeningType     string                               `gorm:"type:varchar(16);index;not null" json:"screeningType"`
	Responses         datatypes.JSONSlice[ScreeningAnswer] `gorm:"type:json" json:"responses,omitempty"`
	TotalScore        int                                  `gorm:"not null" json:"totalScore"`
	Severity          string                               `gorm:"type:varchar(32);index;not null" json:"severity"`
	Interpretation    string                               `gorm:"type:varchar(255);not null" json:"interpretation"`
	Recommendations   datatypes.JSONSlice[string]          `gorm:"type:json" json:"recommendations"`
	FollowUpRequired  bool                                 `gorm:"not null;default:false" json:"followUpRequired"`
	FollowUpDate      *time.Time                           `json:"followUpDate,omitempty"`
	CounselorNotified bool                                 `gorm:"not null;default:false" json:"counselorNotified"`
	CounselorID       *uint                                `json:"counselorId,omitempty"`
	CompletedAt       time.Time                            `gorm:"index:idx_screening_user_completed,priority:2;not null" json:"completedAt"`
	CreatedAt         time.Time                            `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ScreeningResult) TableName() string {
	return "screening_results"
}
