package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"project-chat/internal/attachments"
	"project-chat/internal/auth"
	"project-chat/internal/cache"
	"project-chat/internal/config"
	"project-chat/internal/db"
	"project-chat/internal/handlers"
	"project-chat/internal/logging"
	"project-chat/internal/middleware"
	"project-chat/internal/observability"
	"project-chat/internal/rabbitmq"
	"project-chat/internal/repositories"
	"project-chat/internal/telemetry"
	"project-chat/internal/ws"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log, "project-chat")

	database, err := db.Connect(cfg.DB.DSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	ctx := context.Background()
	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracer(ctx, cfg.Tracing.Endpoint, "project-chat")
		if err != nil {
			logger.Warn().Err(err).Msg("tracing disabled, exporter init failed")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if cfg.AMQP.URL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Warn().Err(err).Msg("event publishing disabled, amqp unavailable")
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	defer auditPublisher.Close()
	environment := "production"
	if cfg.Debug {
		environment = "dev"
	}
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.chat", "project-chat", environment, logger)
	logger.Info().Str("publisher", rabbitmq.PublisherMode(auditPublisher)).Msg("audit publisher ready")

	var msgCache handlers.MessageCache
	var idem handlers.IdempotencyStore
	redisCache, err := cache.NewMessageCache(cfg.Redis, cfg.Cache)
	if err != nil {
		logger.Warn().Err(err).Msg("message cache disabled, redis unavailable")
	} else {
		defer redisCache.Close()
		msgCache = redisCache
		idem = cache.NewIdempotencyStore(redisCache.Client(), cfg.Cache.Prefix)
	}

	var files attachments.Store
	var localStore *attachments.LocalStore
	switch cfg.Storage.Backend {
	case "s3":
		files, err = attachments.NewS3Store(ctx, cfg.Storage.S3)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init s3 storage")
		}
	default:
		localStore, err = attachments.NewLocalStore(cfg.Storage.Local.Dir, cfg.Storage.Local.BaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init local storage")
		}
		files = localStore
	}

	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	notifier := handlers.NewDirectoryNotifier(groupRepo, hub, logger)

	groupHandler := handlers.NewGroupHandler(groupRepo, notifier, audit)
	messageHandler := handlers.NewMessageHandler(messageRepo, groupRepo, msgCache, idem, files, notifier, audit)
	directoryWS := ws.NewDirectoryWebSocketHandler(hub, groupRepo, tokens)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("project-chat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.POST("/api/groups", authMiddleware, groupHandler.CreateGroup)
	router.GET("/api/groups", authMiddleware, groupHandler.ListGroups)
	router.POST("/api/groups/:group_id/members", authMiddleware, groupHandler.AddMember)
	router.DELETE("/api/groups/:group_id/members/:user_id", authMiddleware, groupHandler.RemoveMember)

	router.GET("/api/groups/:group_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/api/groups/:group_id/messages", authMiddleware, messageHandler.PostMessage)
	router.POST("/api/groups/:group_id/messages/:message_id/reaction", authMiddleware, messageHandler.PostReaction)
	router.POST("/api/groups/:group_id/messages/read", authMiddleware, messageHandler.MarkRead)
	router.POST("/api/groups/:group_id/upload", authMiddleware, messageHandler.Upload)

	router.GET("/ws/directory", directoryWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if localStore != nil {
		router.Static(cfg.Storage.Local.BaseURL, localStore.Dir())
	}
	handlers.RegisterDebugRoutes(router, audit, cfg.Debug)

	logger.Info().Str("port", cfg.Server.Port).Msg("chat service listening")
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
