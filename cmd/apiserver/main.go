package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"social-go/internal/config"
	"social-go/internal/handlers/apiserver"
	appKafka "social-go/internal/kafka"
	"social-go/internal/middleware"
	appRedis "social-go/internal/redis"
	"social-go/internal/services"
	"social-go/internal/storage"
	ws "social-go/internal/websocket"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	// 3. 初始化 Redis Client（令牌黑名单 + 限流器共用）
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)
	limiter := appRedis.NewRedisLimiter(redisClient, cfg.RateLimit)

	// 4. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	friendReqRepo := storage.NewGormFriendRequestRepository(db)
	notifRepo := storage.NewGormNotificationRepository(db)

	// 5. 初始化 Kafka Producer（好友请求生命周期事件）
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()

	// 6. 初始化通知 Hub
	hub := ws.NewHub()
	go hub.Run()

	// 7. 初始化 Services
	authService := services.NewAuthService(userRepo, cfg)
	userService := services.NewUserService(userRepo)
	friendReqService := services.NewFriendRequestService(userRepo, friendReqRepo, limiter, kfkProducer, cfg.Kafka)
	graphService := services.NewFriendGraphService(userRepo, friendReqRepo)
	notifService := services.NewNotificationService(notifRepo, hub)

	// 7.1 初始化头像存储
	var fileStorage storage.FileStorage
	avatarBaseURL := "/uploads"
	switch cfg.Storage.Type {
	case "local":
		fileStorage, err = storage.NewLocalFileStorage(cfg.Storage, avatarBaseURL)
		if err != nil {
			log.Fatalf("无法初始化本地存储服务: %v", err)
		}
	default:
		log.Fatalf("不支持的存储类型: %s", cfg.Storage.Type)
	}

	// 8. 初始化 Handlers
	authHandler := apiserver.NewAuthHandler(authService, tokenBlacklist)
	userHandler := apiserver.NewUserHandler(userService)
	friendReqHandler := apiserver.NewFriendRequestHandler(friendReqService, graphService)
	notifHandler := apiserver.NewNotificationHandler(notifService)
	uploadHandler := apiserver.NewUploadHandler(fileStorage, cfg.Storage)
	wsHandler := apiserver.NewWebSocketHandler(hub, tokenBlacklist, cfg)

	// 9. 设置 HTTP 路由
	r := mux.NewRouter()

	// 9.1 认证路由（公开）
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklist)

	// 9.2 API 子路由（需要认证）
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", authHandler.LogoutHandler).Methods(http.MethodPost)

	// 用户路由
	apiRouter.HandleFunc("/users/me", userHandler.GetMyProfileHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/me", userHandler.UpdateMyProfileHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/users/search", userHandler.SearchUsersHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/upload", uploadHandler.UploadFileHandler).Methods(http.MethodPost)

	// 好友与好友请求路由
	apiRouter.HandleFunc("/friends", friendReqHandler.ListFriendsHandler).Methods(http.MethodGet)

	friendRequestRouter := apiRouter.PathPrefix("/friend-requests").Subrouter()
	friendRequestRouter.HandleFunc("", friendReqHandler.SendFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("", friendReqHandler.ListFriendRequestsHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/pending", friendReqHandler.ListPendingRequestsHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/{requestID:[0-9]+}", friendReqHandler.GetFriendRequestHandler).Methods(http.MethodGet)
	friendRequestRouter.HandleFunc("/{requestID:[0-9]+}", friendReqHandler.DeleteFriendRequestHandler).Methods(http.MethodDelete)
	friendRequestRouter.HandleFunc("/{requestID:[0-9]+}/accept", friendReqHandler.AcceptFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{requestID:[0-9]+}/reject", friendReqHandler.RejectFriendRequestHandler).Methods(http.MethodPost)

	// 通知路由
	apiRouter.HandleFunc("/notifications", notifHandler.ListNotificationsHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/read", notifHandler.MarkNotificationsReadHandler).Methods(http.MethodPost)

	// 9.3 公开路由
	r.HandleFunc("/users/{userID:[0-9]+}", userHandler.GetUserProfileHandler).Methods(http.MethodGet)

	// 9.4 WebSocket 通知推送（令牌在查询参数中校验）
	r.HandleFunc("/ws/notifications", wsHandler.ServeWS)

	// 9.5 静态文件服务（头像）
	if cfg.Storage.Type == "local" {
		staticPath := strings.TrimSuffix(avatarBaseURL, "/") + "/"
		localDir := http.Dir(cfg.Storage.LocalPath)
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(localDir)))
	}

	// 10. 初始化并启动 Kafka 消费者（好友事件 → 通知）
	friendEventConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建好友事件 Kafka 消费者: %v", err)
	}
	defer friendEventConsumer.Close()

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.FriendEventTopic}
		err := friendEventConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, notifService.ProcessFriendEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 好友事件消费者错误: %v", err)
		}
		log.Println("Kafka 好友事件消费者 goroutine 已停止。")
	}()

	// 11. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        corsHandler,
		ReadTimeout:    cfg.APIServer.ReadTimeout,
		WriteTimeout:   cfg.APIServer.WriteTimeout,
		IdleTimeout:    time.Second * 60,
		MaxHeaderBytes: cfg.APIServer.MaxHeaderBytes,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	cancelConsumers()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
