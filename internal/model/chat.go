package model

import (
	"time"

	"gorm.io/datatypes"
)

// RiskLevel 是会话风险等级，按 low < medium < high < critical 排序。
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank 返回等级的序号，未知等级返回 -1。
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return -1
}

func (r RiskLevel) Valid() bool { return r.Rank() >= 0 }

// MaxRisk 返回两者中更高的等级。
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SessionStatus 是聊天会话状态。
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEscalated SessionStatus = "escalated"
	SessionResolved  SessionStatus = "resolved"
	SessionArchived  SessionStatus = "archived"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionActive:    {SessionEscalated, SessionResolved},
	SessionEscalated: {SessionResolved, SessionArchived},
	SessionResolved:  {SessionArchived},
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionEscalated, SessionResolved, SessionArchived:
		return true
	}
	return false
}

// CanTransitionTo 报告 s -> next 是否合法。
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsMessages 已解决或已归档的会话不再接收消息。
func (s SessionStatus) AcceptsMessages() bool {
	return s == SessionActive || s == SessionEscalated
}

// Sender 是消息发送方。
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAI        Sender = "ai"
	SenderCounselor Sender = "counselor"
)

// MessageType 是消息类型。
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageSuggestion MessageType = "suggestion"
	MessageResource   MessageType = "resource"
	MessageEmergency  MessageType = "emergency"
)

// MessageMetadata 是 AI 回复附带的元数据。
type MessageMetadata struct {
	Confidence       float64  `json:"confidence,omitempty"`
	Topic            string   `json:"topic,omitempty"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`
	CrisisKeywords   []string `json:"crisisKeywords,omitempty"`
}

// ChatSession 对应 chat_sessions 表。SessionID 是对外暴露的会话标识。
type ChatSession struct {
	ID          uint          `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID   string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"sessionId"`
	UserID      uint          `gorm:"index;not null" json:"userId"`
	Status      SessionStatus `gorm:"type:varchar(16);index;not null;default:'active'" json:"status"`
	RiskLevel   RiskLevel     `gorm:"type:varchar(16);index;not null;default:'low'" json:"riskLevel"`
	EscalatedTo *uint         `json:"escalatedTo,omitempty"`
	// 消息序号，追加消息时自增
	LastSeq          int                         `gorm:"not null;default:0" json:"messageCount"`
	Tags             datatypes.JSONSlice[string] `gorm:"type:json" json:"tags,omitempty"`
	EscalationReason string                      `gorm:"type:text" json:"escalationReason,omitempty"`
	EscalatedAt      *time.Time                  `json:"escalatedAt,omitempty"`
	Resolution       string                      `gorm:"type:text" json:"resolution,omitempty"`
	ResolvedAt       *time.Time                  `json:"resolvedAt,omitempty"`
	ArchivedAt       *time.Time                  `json:"archivedAt,omitempty"`
	FollowUpRequired bool                        `gorm:"not null;default:false" json:"followUpRequired"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 对应 chat_messages 表，(session_id, seq) 唯一，保证追加顺序。
type ChatMessage struct {
	ID        uint                                `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string                              `gorm:"type:varchar(64);not null;uniqueIndex:uk_chat_message_seq,priority:1" json:"sessionId"`
	Seq       int                                 `gorm:"not null;uniqueIndex:uk_chat_message_seq,priority:2" json:"seq"`
	Sender    Sender                              `gorm:"type:varchar(16);not null" json:"sender"`
	Content   string                              `gorm:"type:text;not null" json:"content"`
	Type      MessageType                         `gorm:"type:varchar(16);not null;default:'text'" json:"messageType"`
	Metadata  datatypes.JSONType[MessageMetadata] `gorm:"type:json" json:"metadata"`
	Timestamp time.Time                           `gorm:"not null" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_messages"
}
