package repository

import (
	"context"

	"gorm.io/gorm"

	"mindbridge-go/internal/model"
)

// ChatRepository 定义了聊天会话和消息的持久化操作。
type ChatRepository interface {
	CreateSession(ctx context.Context, session *model.ChatSession) error
	FindSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	UpdateSession(ctx context.Context, session *model.ChatSession) error
	// AppendMessages 在同一事务中写入消息并保存会话（序号、状态、风险等级）。
	AppendMessages(ctx context.Context, session *model.ChatSession, messages []model.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	ListSessionsByUser(ctx context.Context, userID uint, limit int) ([]model.ChatSession, error)
	CountSessions(ctx context.Context) (int64, error)
	CountByRiskLevel(ctx context.Context) (map[model.RiskLevel]int64, error)
}

type chatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	return wrap(r.db.WithContext(ctx).Create(session).Error, "create chat session %s", session.SessionID)
}

func (r *chatRepository) FindSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	var s model.ChatSession
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		return nil, wrap(err, "find chat session %s", sessionID)
	}
	return &s, nil
}

func (r *chatRepository) UpdateSession(ctx context.Context, session *model.ChatSession) error {
	return wrap(r.db.WithContext(ctx).Save(session).Error, "update chat session %s", session.SessionID)
}

func (r *chatRepository) AppendMessages(ctx context.Context, session *model.ChatSession, messages []model.ChatMessage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&messages).Error; err != nil {
			return err
		}
		return tx.Save(session).Error
	})
	return wrap(err, "append messages to session %s", session.SessionID)
}

func (r *chatRepository) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var msgs []model.ChatMessage
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("seq").Find(&msgs).Error
	return msgs, wrap(err, "list messages of session %s", sessionID)
}

func (r *chatRepository) ListSessionsByUser(ctx context.Context, userID uint, limit int) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, wrap(err, "list chat sessions of user %d", userID)
}

func (r *chatRepository) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).Count(&n).Error
	return n, wrap(err, "count chat sessions")
}

func (r *chatRepository) CountByRiskLevel(ctx context.Context) (map[model.RiskLevel]int64, error) {
	var rows []struct {
		RiskLevel model.RiskLevel
		Count     int64
	}
	err := r.db.WithContext(ctx).Model(&model.ChatSession{}).
		Select("risk_level, COUNT(*) AS count").Group("risk_level").Scan(&rows).Error
	if err != nil {
		return nil, wrap(err, "count chat sessions by risk level")
	}
	out := make(map[model.RiskLevel]int64, len(rows))
	for _, row := range rows {
		out[row.RiskLevel] = row.Count
	}
	return out, nil
}
