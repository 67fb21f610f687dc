package model

import (
	"time"

	"gorm.io/datatypes"
)

// ResourceType 资源形式。
type ResourceType string

const (
	ResourceVideo      ResourceType = "video"
	ResourceAudio      ResourceType = "audio"
	ResourceArticle    ResourceType = "article"
	ResourceGuide      ResourceType = "guide"
	ResourceExercise   ResourceType = "exercise"
	ResourceMeditation ResourceType = "meditation"
	ResourceWorksheet  ResourceType = "worksheet"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceVideo, ResourceAudio, ResourceArticle, ResourceGuide,
		ResourceExercise, ResourceMeditation, ResourceWorksheet:
		return true
	}
	return false
}

// ResourceCategory 资源主题。
type ResourceCategory string

const (
	CategoryAnxiety       ResourceCategory = "anxiety"
	CategoryDepression    ResourceCategory = "depression"
	CategoryStress        ResourceCategory = "stress"
	CategorySleep         ResourceCategory = "sleep"
	CategoryRelationships ResourceCategory = "relationships"
	CategoryAcademic      ResourceCategory = "academic"
	CategoryGeneral       ResourceCategory = "general"
)

func (c ResourceCategory) Valid() bool {
	switch c {
	case CategoryAnxiety, CategoryDepression, CategoryStress, CategorySleep,
		CategoryRelationships, CategoryAcademic, CategoryGeneral:
		return true
	}
	return false
}

// Resource 对应 resources 表，心理健康资源库中的一条资源。
type Resource struct {
	ID          uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string                      `gorm:"type:varchar(255);not null" json:"title"`
	Description string                      `gorm:"type:text;not null" json:"description"`
	Type        ResourceType                `gorm:"type:varchar(16);index;not null" json:"type"`
	Category    ResourceCategory            `gorm:"type:varchar(16);index;not null" json:"category"`
	Language    string                      `gorm:"type:varchar(8);not null;default:'en'" json:"language"`
	ContentURL  string                      `gorm:"type:varchar(512)" json:"contentUrl,omitempty"`
	ContentText string                      `gorm:"type:text" json:"contentText,omitempty"`
	Duration    int                         `json:"duration,omitempty"` // 音视频时长（分钟）
	Tags        datatypes.JSONSlice[string] `gorm:"type:json" json:"tags"`
	Difficulty  string                      `gorm:"type:varchar(16);not null;default:'beginner'" json:"difficulty"`
	IsActive    bool                        `gorm:"not null;default:true" json:"isActive"`
	Views       int                         `gorm:"not null;default:0" json:"views"`
	Likes       int                         `gorm:"not null;default:0" json:"likes"`
	// 评分为 1-5 分的算术平均
	RatingAverage float64 `gorm:"not null;default:0" json:"ratingAverage"`
	RatingCount   int     `gorm:"not null;default:0" json:"ratingCount"`
	// 附件存储在 MinIO 中的对象名
	ObjectKey string    `gorm:"type:varchar(255)" json:"-"`
	FileName  string    `gorm:"type:varchar(255)" json:"fileName,omitempty"`
	CreatedBy uint      `gorm:"index;not null" json:"createdBy"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Resource) TableName() string {
	return "resources"
}
