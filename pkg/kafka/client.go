// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"mindbridge-go/internal/config"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

// maxAttempts 同一任务失败达到该次数后提交 offset，不再重试。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.NotificationTask) error
}

// Producer 把通知任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
	log.Info("Kafka 生产者初始化成功")
	return p
}

// Publish 发送一个通知任务，同一会话/预约的消息按 key 落到同一分区以保持顺序。
func (p *Producer) Publish(ctx context.Context, task tasks.NotificationTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(partitionKey(task)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func partitionKey(task tasks.NotificationTask) string {
	switch {
	case task.SessionID != "":
		return "session:" + task.SessionID
	case task.AppointmentID != 0:
		return fmt.Sprintf("appointment:%d", task.AppointmentID)
	case task.ScreeningID != 0:
		return fmt.Sprintf("screening:%d", task.ScreeningID)
	case task.PostID != 0:
		return fmt.Sprintf("post:%d", task.PostID)
	}
	return task.ID
}

// AttemptTracker 记录任务失败次数。
type AttemptTracker interface {
	Incr(ctx context.Context, taskID string) (int64, error)
	Reset(ctx context.Context, taskID string)
}

type redisAttempts struct {
	rdb *redis.Client
}

// NewRedisAttemptTracker 使用 Redis 计数，计数 24 小时后过期。
func NewRedisAttemptTracker(rdb *redis.Client) AttemptTracker {
	return &redisAttempts{rdb: rdb}
}

func attemptsKey(taskID string) string {
	return fmt.Sprintf("kafka:attempts:%s", taskID)
}

func (r *redisAttempts) Incr(ctx context.Context, taskID string) (int64, error) {
	n, err := r.rdb.Incr(ctx, attemptsKey(taskID)).Result()
	if err == nil {
		_ = r.rdb.Expire(ctx, attemptsKey(taskID), 24*time.Hour).Err()
	}
	return n, err
}

func (r *redisAttempts) Reset(ctx context.Context, taskID string) {
	_ = r.rdb.Del(ctx, attemptsKey(taskID)).Err()
}

// handleMessage 处理一条消息并返回是否应提交 offset。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, attempts AttemptTracker) bool {
	var task tasks.NotificationTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infow("开始处理通知任务", "id", task.ID, "kind", task.Kind)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理通知任务失败: id=%s, kind=%s, error: %v", task.ID, task.Kind, err)
		n, incErr := attempts.Incr(ctx, task.ID)
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if n >= maxAttempts {
			log.Errorf("通知任务多次失败(>=%d)，提交 offset 终止重试: id=%s", maxAttempts, task.ID)
			return true
		}
		return false
	}

	log.Infow("通知任务处理成功", "id", task.ID, "kind", task.Kind)
	attempts.Reset(ctx, task.ID)
	return true
}

// retryBackoff 是同一条消息两次处理之间的基础等待时间，按尝试次数线性增长。
const retryBackoff = 2 * time.Second

// messageReader 是消费循环用到的 kafka.Reader 方法。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer 启动一个 Kafka 消费者来处理通知任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptTracker) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, attempts, retryBackoff)
}

func consume(ctx context.Context, r messageReader, processor TaskProcessor, attempts AttemptTracker, backoff time.Duration) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		// 同组内后续 offset 的提交会隐式提交当前消息，所以失败的消息必须在这里重试完
		if !processWithRetry(ctx, m.Value, processor, attempts, backoff) {
			break
		}
		// 使用独立 ctx，关闭过程中也要提交已处理的消息
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// processWithRetry 对同一条消息重试，直到成功或本地尝试满 maxAttempts 次。
// 返回 false 表示 ctx 已取消，消息不提交，重启后会重新投递。
func processWithRetry(ctx context.Context, value []byte, processor TaskProcessor, attempts AttemptTracker, backoff time.Duration) bool {
	for attempt := 1; ; attempt++ {
		if handleMessage(ctx, value, processor, attempts) {
			return true
		}
		if attempt >= maxAttempts {
			log.Errorf("通知任务本地重试 %d 次仍失败，提交 offset", attempt)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
}
