package model

import (
	"time"

	"gorm.io/datatypes"
)

// PostCategory 互助帖子的主题。
type PostCategory string

const (
	PostGeneral        PostCategory = "general"
	PostAcademicStress PostCategory = "academic-stress"
	PostRelationships  PostCategory = "relationships"
	PostAnxiety        PostCategory = "anxiety"
	PostDepression     PostCategory = "depression"
	PostSleep          PostCategory = "sleep"
	PostMotivation     PostCategory = "motivation"
	PostSuccessStory   PostCategory = "success-story"
)

func (c PostCategory) Valid() bool {
	switch c {
	case PostGeneral, PostAcademicStress, PostRelationships, PostAnxiety,
		PostDepression, PostSleep, PostMotivation, PostSuccessStory:
		return true
	}
	return false
}

// ModerationStatus 帖子和评论的审核状态。评论不使用 archived。
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
	ModerationArchived ModerationStatus = "archived"
)

func (s ModerationStatus) Valid() bool {
	switch s {
	case ModerationPending, ModerationApproved, ModerationRejected, ModerationArchived:
		return true
	}
	return false
}

// Post 对应 peer_posts 表。新帖默认待审核。
type Post struct {
	ID          uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID    uint                        `gorm:"index;not null" json:"authorId,omitempty"`
	Title       string                      `gorm:"type:varchar(255);not null" json:"title"`
	Content     string                      `gorm:"type:text;not null" json:"content"`
	Category    PostCategory                `gorm:"type:varchar(32);index;not null" json:"category"`
	Tags        datatypes.JSONSlice[string] `gorm:"type:json" json:"tags"`
	IsAnonymous bool                        `gorm:"not null;default:false" json:"isAnonymous"`
	Status      ModerationStatus            `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	// 危机关键词命中时置位，审核列表优先展示
	Flagged         bool          `gorm:"index;not null;default:false" json:"flagged"`
	ModeratedBy     *uint         `json:"moderatedBy,omitempty"`
	ModeratedAt     *time.Time    `json:"moderatedAt,omitempty"`
	ModerationNotes string        `gorm:"type:text" json:"moderationNotes,omitempty"`
	Views           int           `gorm:"not null;default:0" json:"views"`
	LikeCount       int           `gorm:"not null;default:0" json:"likes"`
	IsPinned        bool          `gorm:"not null;default:false" json:"isPinned"`
	Comments        []PostComment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Post) TableName() string {
	return "peer_posts"
}

// PostComment 对应 peer_comments 表。
type PostComment struct {
	ID          uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID      uint             `gorm:"index;not null" json:"postId"`
	AuthorID    uint             `gorm:"index;not null" json:"authorId,omitempty"`
	Content     string           `gorm:"type:text;not null" json:"content"`
	IsAnonymous bool             `gorm:"not null;default:false" json:"isAnonymous"`
	Status      ModerationStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Flagged     bool             `gorm:"not null;default:false" json:"flagged"`
	ModeratedBy *uint            `json:"moderatedBy,omitempty"`
	ModeratedAt *time.Time       `json:"moderatedAt,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"createdAt"`
}

func (PostComment) TableName() string {
	return "peer_comments"
}

// PostLike 对应 peer_post_likes 表，联合主键保证每人只能点赞一次。
type PostLike struct {
	PostID  uint      `gorm:"primaryKey" json:"postId"`
	UserID  uint      `gorm:"primaryKey" json:"userId"`
	LikedAt time.Time `gorm:"autoCreateTime" json:"likedAt"`
}

func (PostLike) TableName() string {
	return "peer_post_likes"
}

// GroupCategory 互助小组的类别。
type GroupCategory string

const (
	GroupGeneral       GroupCategory = "general"
	GroupAcademic      GroupCategory = "academic"
	GroupAnxiety       GroupCategory = "anxiety"
	GroupDepression    GroupCategory = "depression"
	GroupLGBTQ         GroupCategory = "lgbtq+"
	GroupInternational GroupCategory = "international-students"
	GroupFirstYear     GroupCategory = "first-year"
)

func (c GroupCategory) Valid() bool {
	switch c {
	case GroupGeneral, GroupAcademic, GroupAnxiety, GroupDepression,
		GroupLGBTQ, GroupInternational, GroupFirstYear:
		return true
	}
	return false
}

// GroupRole 小组内的角色。
type GroupRole string

const (
	GroupRoleMember    GroupRole = "member"
	GroupRoleModerator GroupRole = "moderator"
	GroupRoleAdmin     GroupRole = "admin"
)

// SupportGroup 对应 support_groups 表。
type SupportGroup struct {
	ID          uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string                      `gorm:"type:varchar(128);not null" json:"name"`
	Description string                      `gorm:"type:text;not null" json:"description"`
	Category    GroupCategory               `gorm:"type:varchar(32);index;not null" json:"category"`
	IsPrivate   bool                        `gorm:"not null;default:false" json:"isPrivate"`
	MaxMembers  int                         `gorm:"not null;default:50" json:"maxMembers"`
	MemberCount int                         `gorm:"not null;default:0" json:"memberCount"`
	Rules       datatypes.JSONSlice[string] `gorm:"type:json" json:"rules"`
	IsActive    bool                        `gorm:"not null;default:true" json:"isActive"`
	CreatedBy   uint                        `gorm:"index;not null" json:"createdBy"`
	CreatedAt   time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SupportGroup) TableName() string {
	return "support_groups"
}

// GroupMember 对应 support_group_members 表。
type GroupMember struct {
	GroupID  uint      `gorm:"primaryKey" json:"groupId"`
	UserID   uint      `gorm:"primaryKey;index" json:"userId"`
	Role     GroupRole `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

func (GroupMember) TableName() string {
	return "support_group_members"
}
