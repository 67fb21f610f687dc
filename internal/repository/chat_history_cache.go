package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"mindbridge-go/internal/model"
)

// ChatHistoryCache 在 Redis 中缓存会话最近的消息，供 WebSocket 和历史接口快速读取。
type ChatHistoryCache interface {
	// Get 返回缓存的消息，未命中时 ok 为 false。
	Get(ctx context.Context, sessionID string) (messages []model.ChatMessage, ok bool, err error)
	Append(ctx context.Context, sessionID string, messages ...model.ChatMessage) error
	Invalidate(ctx context.Context, sessionID string) error
}

type redisChatHistoryCache struct {
	redisClient *redis.Client
	size        int
	ttl         time.Duration
}

// NewChatHistoryCache 创建缓存，最多保留 size 条，过期时间 ttl。
func NewChatHistoryCache(redisClient *redis.Client, size int, ttl time.Duration) ChatHistoryCache {
	if size <= 0 {
		size = 20
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisChatHistoryCache{redisClient: redisClient, size: size, ttl: ttl}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("chat:history:%s", sessionID)
}

func (r *redisChatHistoryCache) Get(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get chat history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal chat history: %w", err)
	}
	return messages, true, nil
}

// Append 追加消息。调用方需持有会话锁，这里的读改写不是原子的。
func (r *redisChatHistoryCache) Append(ctx context.Context, sessionID string, messages ...model.ChatMessage) error {
	existing, _, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	existing = append(existing, messages...)
	// 只保留最近 size 条
	if len(existing) > r.size {
		existing = existing[len(existing)-r.size:]
	}
	jsonData, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal chat history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(sessionID), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set chat history: %w", err)
	}
	return nil
}

func (r *redisChatHistoryCache) Invalidate(ctx context.Context, sessionID string) error {
	return r.redisClient.Del(ctx, historyKey(sessionID)).Err()
}
