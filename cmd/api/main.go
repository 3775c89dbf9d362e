package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/linguaschool/chat-backend/internal/config"
	"github.com/linguaschool/chat-backend/internal/handler"
	"github.com/linguaschool/chat-backend/internal/middleware"
	"github.com/linguaschool/chat-backend/internal/migration"
	"github.com/linguaschool/chat-backend/internal/ratelimit"
	"github.com/linguaschool/chat-backend/internal/repository"
	"github.com/linguaschool/chat-backend/internal/routes"
	"github.com/linguaschool/chat-backend/internal/service"
	"github.com/linguaschool/chat-backend/internal/ws"
	pkgcache "github.com/linguaschool/chat-backend/pkg/cache"
	"github.com/linguaschool/chat-backend/pkg/jwt"
	pkglogger "github.com/linguaschool/chat-backend/pkg/logger"
	pkgredis "github.com/linguaschool/chat-backend/pkg/redis"
	pkgstorage "github.com/linguaschool/chat-backend/pkg/storage"
)

// @title           LinguaSchool Chat API
// @version         1.0
// @description     Real-time conversations, messages, read receipts and reactions
//
// @host            localhost:8090
// @BasePath        /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env, os.Getenv("LOG_LEVEL"))
	log := pkglogger.GetLogger()
	log.Info().Str("env", env).Strs("env_files", dotenvFiles).Msg("starting chat-backend")

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	pkglogger.InitStructured(cfg.Env, cfg.LogLevel)
	config.LogResolved(cfg)

	db, err := initDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := migration.Run(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	if cfg.IsDevelopment() {
		if err := migration.RunLocalProfiles(db); err != nil {
			log.Warn().Err(err).Msg("local profile seed failed")
		}
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing single-instance without profile cache")
			redisClient = nil
		}
	}

	// a nil *S3Client must not reach the service as a non-nil interface
	var fileStore service.FileStore
	if cfg.Storage.Enabled {
		s3Client, err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			CDNURL:          cfg.Storage.CDNURL,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			log.Warn().Err(err).Msg("attachment storage init failed, uploads will return 502")
		} else {
			fileStore = s3Client
		}
	}

	hub := ws.NewHub(redisClient, ws.Options{
		HeartbeatInterval: cfg.WS.HeartbeatInterval,
		DisconnectGrace:   cfg.WS.DisconnectGrace,
		WriteWait:         cfg.WS.WriteWait,
		SendBuffer:        cfg.WS.SendBuffer,
		MaxFrameBytes:     cfg.WS.MaxFrameBytes,
		RelayChannel:      cfg.WS.RelayChannel,
	})
	go hub.Run()

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
		MaxBuckets:        cfg.RateLimit.MaxBuckets,
		IdleTTL:           cfg.RateLimit.IdleTTL,
	})

	// Repositories
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	if redisClient != nil {
		profileRepo = repository.NewCachedProfileRepository(profileRepo, pkgcache.NewService(redisClient))
	}

	// Services
	conversationService := service.NewConversationService(conversationRepo, receiptRepo, profileRepo, hub, cfg.Chat.MaxGroupSize)
	messageService := service.NewMessageService(messageRepo, conversationRepo, limiter, hub, service.MessageOptions{
		MaxContentLength: cfg.Chat.MaxContentLength,
		DefaultPageSize:  cfg.Chat.DefaultPageSize,
		MaxPageSize:      cfg.Chat.MaxPageSize,
	})
	receiptService := service.NewReceiptService(receiptRepo, conversationRepo, messageRepo, hub)
	reactionService := service.NewReactionService(reactionRepo, messageRepo, conversationRepo, hub)
	attachmentService := service.NewAttachmentService(fileStore, conversationRepo, cfg.Storage.MaxUploadBytes)

	verifier := middleware.NewJWTVerifier(jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiresIn))

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.CORS.AllowOrigins)))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics("/api/v1/ws"))
	router.Use(middleware.RequestLogger())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, dbStatus = http.StatusServiceUnavailable, "down"
		}
		c.JSON(status, gin.H{
			"status":  dbStatus,
			"service": "chat-backend",
			"redis":   redisClient != nil,
			"storage": fileStore != nil,
			"time":    time.Now().Unix(),
		})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.Setup(router, routes.Handlers{
		Conversation: handler.NewConversationHandler(conversationService, receiptService),
		Message:      handler.NewMessageHandler(messageService),
		Reaction:     handler.NewReactionHandler(reactionService),
		Attachment:   handler.NewAttachmentHandler(attachmentService),
		WS:           handler.NewWSHandler(hub, conversationService, messageService, receiptService, cfg.WS.AllowedOrigins),
	}, verifier, middleware.RequestThrottle(redisClient, cfg.RateLimit.RequestsPerMinute))

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: it would cut socket sessions
	}

	stopStats := make(chan struct{})
	go reportDBStats(db, stopStats)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown incomplete")
	}
	hub.Stop()
	close(stopStats)
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

// initDB opens MySQL with UTC timestamps and translated constraint errors
func initDB(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.Database.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}

func corsConfig(allowOrigins string) cors.Config {
	origins := splitAndTrim(allowOrigins)
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		MaxAge:           12 * time.Hour,
	}
}

func splitAndTrim(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func reportDBStats(db *gorm.DB, stop <-chan struct{}) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			middleware.ObserveDBStats(sqlDB.Stats())
		case <-stop:
			return
		}
	}
}
