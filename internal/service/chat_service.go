// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/risk"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/lock"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

const (
	maxMessageLength = 2000
	sessionListLimit = 20
)

// Exchange 是一次发消息的结果。咨询师介入时没有 AI 回复。
type Exchange struct {
	UserMessage model.ChatMessage   `json:"userMessage"`
	AIMessage   *model.ChatMessage  `json:"aiMessage,omitempty"`
	RiskLevel   model.RiskLevel     `json:"riskLevel"`
	Status      model.SessionStatus `json:"status"`
	SessionID   string              `json:"sessionId"`
}

// ChatService 定义了支持聊天会话的接口。
type ChatService interface {
	Start(ctx context.Context, actor Actor) (*model.ChatSession, error)
	SendMessage(ctx context.Context, actor Actor, sessionID, text string) (*Exchange, error)
	History(ctx context.Context, actor Actor, sessionID string) ([]model.ChatMessage, error)
	ListSessions(ctx context.Context, actor Actor, userID uint) ([]model.ChatSession, error)
	Escalate(ctx context.Context, actor Actor, sessionID string, counselorID uint, reason string) (*model.ChatSession, error)
	Resolve(ctx context.Context, actor Actor, sessionID, resolution string) (*model.ChatSession, error)
	Archive(ctx context.Context, actor Actor, sessionID string) (*model.ChatSession, error)
}

type chatService struct {
	chats      repository.ChatRepository
	users      repository.UserRepository
	cache      repository.ChatHistoryCache
	locker     lock.Locker
	classifier risk.Classifier
	responder  risk.Responder
	publisher  TaskPublisher
	now        func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。cache 和 publisher 可以为 nil。
func NewChatService(
	chats repository.ChatRepository,
	users repository.UserRepository,
	cache repository.ChatHistoryCache,
	locker lock.Locker,
	classifier risk.Classifier,
	responder risk.Responder,
	publisher TaskPublisher,
) ChatService {
	return newChatService(chats, users, cache, locker, classifier, responder, publisher)
}

func newChatService(
	chats repository.ChatRepository,
	users repository.UserRepository,
	cache repository.ChatHistoryCache,
	locker lock.Locker,
	classifier risk.Classifier,
	responder risk.Responder,
	publisher TaskPublisher,
) *chatService {
	if classifier == nil {
		classifier = risk.NewKeywordClassifier(nil)
	}
	if responder == nil {
		responder = risk.NewCannedResponder(nil, nil)
	}
	return &chatService{
		chats:      chats,
		users:      users,
		cache:      cache,
		locker:     locker,
		classifier: classifier,
		responder:  responder,
		publisher:  publisher,
		now:        time.Now,
	}
}

func sessionLockKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}

// Start 为当前用户开启新会话。
func (s *chatService) Start(ctx context.Context, actor Actor) (*model.ChatSession, error) {
	session := &model.ChatSession{
		SessionID: "session_" + uuid.NewString(),
		UserID:    actor.UserID,
		Status:    model.SessionActive,
		RiskLevel: model.RiskLow,
		Tags:      datatypes.JSONSlice[string]{},
	}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	log.Infow("chat session started", "sessionId", session.SessionID, "userId", actor.UserID)
	return session, nil
}

func (s *chatService) load(ctx context.Context, actor Actor, sessionID string) (*model.ChatSession, error) {
	session, err := s.chats.FindSession(ctx, sessionID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !actor.canAccessSession(session) {
		return nil, ErrNotOwner
	}
	return session, nil
}

// locked 在会话锁内重新读取会话后执行 fn。
func (s *chatService) locked(ctx context.Context, actor Actor, sessionID string, fn func(session *model.ChatSession) error) (*model.ChatSession, error) {
	if _, err := s.load(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, sessionLockKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer unlock()

	session, err := s.load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	return session, nil
}

// SendMessage 追加用户消息并生成 AI 回复。同一会话的消息串行写入，序号严格递增。
// 咨询师或管理员向他人的会话发消息视为人工介入，不做风险评估也不自动回复。
func (s *chatService) SendMessage(ctx context.Context, actor Actor, sessionID, text string) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid("message", "is required")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, apperr.Invalid("message", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}

	var (
		out           Exchange
		written       []model.ChatMessage
		newlyEscalate bool
		assessment    risk.Assessment
	)
	session, err := s.locked(ctx, actor, sessionID, func(session *model.ChatSession) error {
		if !session.Status.AcceptsMessages() {
			return fmt.Errorf("session %s is %s: %w", session.SessionID, session.Status, ErrSessionClosed)
		}
		now := s.now()

		if actor.IsStaff() && actor.UserID != session.UserID {
			msg := model.ChatMessage{
				SessionID: session.SessionID,
				Seq:       session.LastSeq + 1,
				Sender:    model.SenderCounselor,
				Content:   text,
				Type:      model.MessageText,
				Timestamp: now,
			}
			session.LastSeq = msg.Seq
			written = []model.ChatMessage{msg}
			return s.appendMessages(ctx, session, written)
		}

		assessment = s.classifier.Classify(text)
		newlyEscalate = risk.Apply(session, assessment)
		if newlyEscalate && session.EscalatedAt == nil {
			session.EscalatedAt = &now
			session.EscalationReason = "crisis keywords detected"
		}
		if assessment.Crisis {
			session.FollowUpRequired = true
		}

		reply := s.responder.Respond(text, assessment)
		userMsg := model.ChatMessage{
			SessionID: session.SessionID,
			Seq:       session.LastSeq + 1,
			Sender:    model.SenderUser,
			Content:   text,
			Type:      model.MessageText,
			Metadata:  datatypes.NewJSONType(model.MessageMetadata{CrisisKeywords: assessment.Matched}),
			Timestamp: now,
		}
		aiMsg := model.ChatMessage{
			SessionID: session.SessionID,
			Seq:       session.LastSeq + 2,
			Sender:    model.SenderAI,
			Content:   reply.Content,
			Type:      reply.Type,
			Metadata: datatypes.NewJSONType(model.MessageMetadata{
				Confidence:       reply.Confidence,
				Topic:            reply.Topic,
				SuggestedActions: reply.SuggestedActions,
			}),
			Timestamp: now,
		}
		if reply.Topic != "" && !containsTag(session.Tags, reply.Topic) {
			session.Tags = append(session.Tags, reply.Topic)
		}
		session.LastSeq = aiMsg.Seq
		written = []model.ChatMessage{userMsg, aiMsg}
		return s.appendMessages(ctx, session, written)
	})
	if err != nil {
		return nil, err
	}

	out.UserMessage = written[0]
	if len(written) > 1 {
		out.AIMessage = &written[1]
	}
	out.RiskLevel = session.RiskLevel
	out.Status = session.Status
	out.SessionID = session.SessionID

	if newlyEscalate {
		log.Warnw("chat session escalated by crisis detection", "sessionId", session.SessionID,
			"userId", session.UserID, "keywords", assessment.Matched)
		publish(ctx, s.publisher, tasks.NotificationTask{
			Kind:      tasks.KindChatEscalated,
			SessionID: session.SessionID,
			UserID:    session.UserID,
			RiskLevel: string(session.RiskLevel),
			Status:    string(session.Status),
			Reason:    session.EscalationReason,
		}, s.now())
	}
	return &out, nil
}

// appendMessages 持久化后在锁内写缓存，保证缓存中的顺序与序号一致。
func (s *chatService) appendMessages(ctx context.Context, session *model.ChatSession, msgs []model.ChatMessage) error {
	if err := s.chats.AppendMessages(ctx, session, msgs); err != nil {
		return err
	}
	s.cacheAppend(ctx, session.SessionID, msgs...)
	return nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *chatService) cacheAppend(ctx context.Context, sessionID string, msgs ...model.ChatMessage) {
	if s.cache == nil || len(msgs) == 0 {
		return
	}
	if err := s.cache.Append(ctx, sessionID, msgs...); err != nil {
		log.Errorf("写入聊天历史缓存失败: session=%s, error: %v", sessionID, err)
	}
}

// History 返回会话的全部消息。缓存只保存最近的若干条，
// 仅当缓存条数与会话消息数一致时才直接使用缓存。
func (s *chatService) History(ctx context.Context, actor Actor, sessionID string) ([]model.ChatMessage, error) {
	session, err := s.load(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			log.Errorf("读取聊天历史缓存失败: session=%s, error: %v", sessionID, err)
		} else if ok && len(cached) == session.LastSeq {
			return cached, nil
		}
	}

	msgs, err := s.chats.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, sessionID); err != nil {
			log.Errorf("清理聊天历史缓存失败: session=%s, error: %v", sessionID, err)
		} else {
			s.cacheAppend(ctx, sessionID, msgs...)
		}
	}
	return msgs, nil
}

// ListSessions 返回用户最近的会话。
func (s *chatService) ListSessions(ctx context.Context, actor Actor, userID uint) ([]model.ChatSession, error) {
	if !actor.IsStaff() && actor.UserID != userID {
		return nil, ErrNotOwner
	}
	return s.chats.ListSessionsByUser(ctx, userID, sessionListLimit)
}

// Escalate 把会话转交给咨询师，风险至少提升到 high。
func (s *chatService) Escalate(ctx context.Context, actor Actor, sessionID string, counselorID uint, reason string) (*model.ChatSession, error) {
	c, err := s.users.FindByID(ctx, counselorID)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && !c.IsActiveCounselor()) {
		return nil, fmt.Errorf("counselor %d: %w", counselorID, ErrCounselorNotFound)
	}
	if err != nil {
		return nil, err
	}

	session, err := s.locked(ctx, actor, sessionID, func(session *model.ChatSession) error {
		if !session.Status.AcceptsMessages() {
			return fmt.Errorf("escalate from %s: %w", session.Status, ErrInvalidTransition)
		}
		now := s.now()
		session.Status = model.SessionEscalated
		session.RiskLevel = model.MaxRisk(session.RiskLevel, model.RiskHigh)
		session.EscalatedTo = &counselorID
		session.EscalatedAt = &now
		session.FollowUpRequired = true
		if reason = strings.TrimSpace(reason); reason != "" {
			session.EscalationReason = reason
		}
		return s.chats.UpdateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	log.Infow("chat session escalated", "sessionId", session.SessionID, "counselorId", counselorID, "by", actor.UserID)
	publish(ctx, s.publisher, tasks.NotificationTask{
		Kind:        tasks.KindChatEscalated,
		SessionID:   session.SessionID,
		UserID:      session.UserID,
		CounselorID: counselorID,
		RiskLevel:   string(session.RiskLevel),
		Status:      string(session.Status),
		Reason:      session.EscalationReason,
	}, s.now())
	return session, nil
}

// Resolve 结束会话。风险等级保持不变，critical 会话也允许结束。
func (s *chatService) Resolve(ctx context.Context, actor Actor, sessionID, resolution string) (*model.ChatSession, error) {
	session, err := s.locked(ctx, actor, sessionID, func(session *model.ChatSession) error {
		if !session.Status.CanTransitionTo(model.SessionResolved) {
			return fmt.Errorf("resolve from %s: %w", session.Status, ErrInvalidTransition)
		}
		now := s.now()
		session.Status = model.SessionResolved
		session.ResolvedAt = &now
		session.Resolution = strings.TrimSpace(resolution)
		return s.chats.UpdateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	if session.RiskLevel == model.RiskCritical {
		log.Warnw("critical chat session resolved", "sessionId", session.SessionID, "userId", session.UserID, "by", actor.UserID)
	} else {
		log.Infow("chat session resolved", "sessionId", session.SessionID, "by", actor.UserID)
	}
	return session, nil
}

// Archive 归档会话，仅咨询师和管理员可操作。
func (s *chatService) Archive(ctx context.Context, actor Actor, sessionID string) (*model.ChatSession, error) {
	if !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	session, err := s.locked(ctx, actor, sessionID, func(session *model.ChatSession) error {
		if !session.Status.CanTransitionTo(model.SessionArchived) {
			return fmt.Errorf("archive from %s: %w", session.Status, ErrInvalidTransition)
		}
		now := s.now()
		session.Status = model.SessionArchived
		session.ArchivedAt = &now
		return s.chats.UpdateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	log.Infow("chat session archived", "sessionId", session.SessionID, "by", actor.UserID)
	return session, nil
}
