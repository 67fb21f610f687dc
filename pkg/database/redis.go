package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"mindbridge-go/pkg/log"
)

// RDB 承载会话锁、聊天历史缓存、token 黑名单和 Kafka 重试计数。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接，连接失败直接退出。
func InitRedis(addr, password string, db int) {
	RDB = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Infof("Redis client connected, addr: %s, db: %d", addr, db)
}

// CloseRedis 关闭连接池。
func CloseRedis() {
	if RDB == nil {
		return
	}
	if err := RDB.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}
}
