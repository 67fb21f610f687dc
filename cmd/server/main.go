// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/availability"
	"mindbridge-go/internal/config"
	"mindbridge-go/internal/handler"
	"mindbridge-go/internal/middleware"
	"mindbridge-go/internal/model"
	"mindbridge-go/internal/pipeline"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/risk"
	"mindbridge-go/internal/screening"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/database"
	"mindbridge-go/pkg/es"
	"mindbridge-go/pkg/kafka"
	"mindbridge-go/pkg/lock"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/storage"
	"mindbridge-go/pkg/token"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("MINDBRIDGE_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	policy := availability.Policy{
		Location:  cfg.Scheduling.Location(),
		StartHour: cfg.Scheduling.StartHour,
		EndHour:   cfg.Scheduling.EndHour,
		Slot:      time.Duration(cfg.Scheduling.SlotMinutes) * time.Minute,
	}
	if err := policy.Validate(); err != nil {
		log.Fatal("排班配置无效", err)
	}

	// 3. 初始化数据库、Redis 和对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if cfg.Database.MySQL.AutoMigrate {
		database.AutoMigrate(
			&model.User{},
			&model.Appointment{},
			&model.ChatSession{},
			&model.ChatMessage{},
			&model.ScreeningResult{},
			&model.Resource{},
			&model.Post{},
			&model.PostComment{},
			&model.PostLike{},
			&model.SupportGroup{},
			&model.GroupMember{},
		)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	defer database.CloseRedis()
	storage.InitMinIO(cfg.MinIO)

	// Elasticsearch 不可用时资源搜索降级为数据库查询
	var resourceIndex service.ResourceIndexer
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败，资源搜索将使用数据库: %v", err)
	} else {
		resourceIndex = es.NewResourceIndex(es.ESClient, cfg.Elasticsearch.IndexName)
	}

	producer := kafka.InitProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	appointmentRepo := repository.NewAppointmentRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	screeningRepo := repository.NewScreeningRepository(database.DB)
	resourceRepo := repository.NewResourceRepository(database.DB)
	peerRepo := repository.NewPeerSupportRepository(database.DB)
	historyCache := repository.NewChatHistoryCache(database.RDB, cfg.Chat.HistoryCacheSize, time.Duration(cfg.Chat.HistoryTTLHours)*time.Hour)
	blacklist := repository.NewTokenBlacklist(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	locker := lock.NewRedisLocker(database.RDB, cfg.Scheduling.LockTTL())
	classifier := risk.NewKeywordClassifier(nil)
	services := handler.Services{
		User:        service.NewUserService(userRepo, blacklist, jwtManager),
		Appointment: service.NewAppointmentService(appointmentRepo, userRepo, locker, producer, policy, cfg.Scheduling.CompletionFollowUp()),
		Chat: service.NewChatService(chatRepo, userRepo, historyCache, locker,
			classifier, risk.NewCannedResponder(nil, nil), producer),
		Screening:   service.NewScreeningService(screeningRepo, screening.NewScorer(cfg.Screening.FollowUpAfter()), producer),
		Resource:    service.NewResourceService(resourceRepo, resourceIndex, storage.NewBucket(storage.MinioClient, cfg.MinIO.BucketName)),
		Admin:       service.NewAdminService(userRepo, appointmentRepo, chatRepo, screeningRepo, resourceRepo),
		PeerSupport: service.NewPeerSupportService(peerRepo, classifier, locker, producer),
		JWT:         jwtManager,
		Blacklist:   blacklist,
	}

	// 6. 启动后台 Kafka 消费者，处理通知任务
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	processor := pipeline.NewProcessor(userRepo, screeningRepo, pipeline.LogNotifier{})
	go func() {
		defer close(consumerDone)
		kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, kafka.NewRedisAttemptTracker(database.RDB))
	}()

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, services)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("Kafka 消费者未能在超时前退出")
	}
	log.Info("服务已优雅关闭")
}
