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

	"heartalk-go/internal/config"
	"heartalk-go/internal/handler"
	"heartalk-go/internal/hub"
	"heartalk-go/internal/middleware"
	"heartalk-go/internal/model"
	"heartalk-go/internal/repository"
	"heartalk-go/internal/service"
	"heartalk-go/pkg/database"
	"heartalk-go/pkg/es"
	"heartalk-go/pkg/kafka"
	"heartalk-go/pkg/llm"
	"heartalk-go/pkg/log"
	"heartalk-go/pkg/storage"
	"heartalk-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储：注册表走 MySQL，消息日志走 Badger，Redis 承担票据与扇出桥
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Room{},
		&model.RoomMember{},
		&model.ChatSession{},
		&model.UnreadCounter{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	database.InitBadger(cfg.Database.Badger.Path)
	defer database.CloseBadger()

	esIndex := ""
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Fatalf("es 初始化失败: %v", err)
		}
		esIndex = cfg.Elasticsearch.IndexName
	}
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
	}
	if cfg.AI.Async {
		kafka.InitProducer(cfg.Kafka)
	}

	// 4. 启动连接中心；配置了扇出桥时事件经由 Redis Pub/Sub 跨实例广播
	var bridgeRDB *redis.Client
	if cfg.Database.Redis.FanoutBridge {
		bridgeRDB = database.RDB
	}
	chatHub := hub.NewHub(bridgeRDB)
	go chatHub.Run()
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if bridgeRDB != nil {
		go chatHub.RunBridge(rootCtx)
	}

	// 5. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	roomRepo := repository.NewRoomRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.DB)
	unreadRepo := repository.NewUnreadRepository(database.DB)
	msgRepo := repository.NewMessageRepository(database.MsgDB)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.AI)
	userService := service.NewUserService(userRepo, jwtManager)
	chatService := service.NewChatService(roomRepo, msgRepo, unreadRepo, chatHub, esIndex)
	sessionService := service.NewSessionService(
		sessionRepo, msgRepo, llmClient, chatHub,
		cfg.AI.Async, cfg.AI.Prompt.System, cfg.AI.Prompt.HistoryLimit, esIndex,
	)
	historyService := service.NewHistoryService(roomRepo, sessionRepo, msgRepo, unreadRepo, esIndex)

	// 7. 异步回复模式下启动后台 Kafka 消费者
	if cfg.AI.Async {
		go kafka.StartConsumer(cfg.Kafka, sessionService)
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	wsHandler := handler.NewChatWSHandler(chatService, sessionService, historyService, chatHub, database.RDB)
	conversationHandler := handler.NewConversationHandler(historyService, chatService, sessionService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).Me)
			}
		}

		// 会话总览与历史消息，需要认证
		authed := apiV1.Group("/")
		authed.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			authed.GET("/conversations", conversationHandler.Conversations)

			authed.POST("/rooms", conversationHandler.CreateRoom)
			authed.DELETE("/rooms/:roomId", conversationHandler.DeleteRoom)
			authed.GET("/rooms/:roomId/messages", conversationHandler.RoomMessages)
			authed.POST("/rooms/:roomId/read", conversationHandler.MarkRead)

			authed.GET("/sessions/:sessionId/messages", conversationHandler.SessionMessages)
			authed.PUT("/sessions/:sessionId/title", conversationHandler.RenameSession)
			authed.DELETE("/sessions/:sessionId", conversationHandler.DeleteSession)

			authed.GET("/search/messages", handler.NewSearchHandler(historyService).SearchMessages)

			if cfg.MinIO.Enabled {
				authed.GET("/upload/presign", handler.NewUploadHandler(cfg.MinIO.BucketName).Presign)
			}

			authed.GET("/chat/ws-ticket", wsHandler.GetWSTicket)
		}
	}

	// WebSocket 升级入口：票据在 URL 中，不经过鉴权中间件
	r.GET("/chat/:ticket", wsHandler.Handle)

	// 10. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("收到退出信号，开始优雅停机...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("服务停机失败: %v", err)
	}
	log.Info("服务已退出")
}
