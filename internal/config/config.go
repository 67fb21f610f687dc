// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Scheduling    SchedulingConfig    `mapstructure:"scheduling"`
	Screening     ScreeningConfig     `mapstructure:"screening"`
	Chat          ChatConfig          `mapstructure:"chat"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// SchedulingConfig 预约排班策略：工作时间窗口、时段粒度以及完成后的回访间隔。
type SchedulingConfig struct {
	Timezone               string `mapstructure:"timezone"`
	StartHour              int    `mapstructure:"start_hour"`
	EndHour                int    `mapstructure:"end_hour"`
	SlotMinutes            int    `mapstructure:"slot_minutes"`
	CompletionFollowUpDays int    `mapstructure:"completion_follow_up_days"`
	LockTTLSeconds         int    `mapstructure:"lock_ttl_seconds"`
}

// Location 解析时区，失败时退回 UTC。
func (s SchedulingConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LockTTL 返回分布式锁的过期时间。
func (s SchedulingConfig) LockTTL() time.Duration {
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// CompletionFollowUp 返回预约完成后的回访间隔。
func (s SchedulingConfig) CompletionFollowUp() time.Duration {
	return time.Duration(s.CompletionFollowUpDays) * 24 * time.Hour
}

// ScreeningConfig 存储心理量表相关的配置。
type ScreeningConfig struct {
	FollowUpDays int `mapstructure:"follow_up_days"`
}

// FollowUpAfter 返回量表提交后的回访间隔。
func (s ScreeningConfig) FollowUpAfter() time.Duration {
	return time.Duration(s.FollowUpDays) * 24 * time.Hour
}

// ChatConfig 存储聊天会话相关的配置。
type ChatConfig struct {
	HistoryCacheSize int `mapstructure:"history_cache_size"`
	HistoryTTLHours  int `mapstructure:"history_ttl_hours"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("kafka.topic", "mindbridge-notifications")
	v.SetDefault("kafka.group_id", "mindbridge-go-consumer")
	v.SetDefault("elasticsearch.index_name", "mindbridge_resources")
	v.SetDefault("minio.bucket_name", "mindbridge-resources")
	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.start_hour", 9)
	v.SetDefault("scheduling.end_hour", 17)
	v.SetDefault("scheduling.slot_minutes", 60)
	v.SetDefault("scheduling.completion_follow_up_days", 7)
	v.SetDefault("scheduling.lock_ttl_seconds", 10)
	v.SetDefault("screening.follow_up_days", 7)
	v.SetDefault("chat.history_cache_size", 20)
	v.SetDefault("chat.history_ttl_hours", 168)
}

// Load 从指定路径读取 YAML 配置，环境变量 MINDBRIDGE_* 可覆盖文件中的值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MINDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
