package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/qualitech/esgqm/internal/config"
	"github.com/qualitech/esgqm/internal/middleware"
	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/gateway"
	"github.com/qualitech/esgqm/internal/qms/handler"
	"github.com/qualitech/esgqm/internal/qms/mirror"
	"github.com/qualitech/esgqm/internal/qms/repository"
	"github.com/qualitech/esgqm/internal/qms/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const mirrorTTL = 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting esgqm service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.NonConformity{},
		&entity.EffectivenessRecord{},
		&entity.Task{},
		&entity.User{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	repos := repository.NewRepositories(db)

	// Mirror store is best effort: a dead Redis only degrades reads.
	var mirrorStore mirror.Store
	if cfg.Sync.MirrorEnabled {
		rdb := initRedis(cfg.Redis)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Mirror store unreachable at startup, continuing on primary only", zap.Error(err))
		}
		mirrorStore = mirror.NewRedisStore(rdb, mirrorTTL)
	}

	strategy := gateway.DefaultStrategy()
	strategy.MirrorEnabled = cfg.Sync.MirrorEnabled
	if cfg.Sync.BackfillLimit > 0 {
		strategy.BackfillLimit = cfg.Sync.BackfillLimit
	}
	gw := gateway.NewSyncGateway(repos.NC, mirrorStore, repos.User, strategy, zapLogger)

	services := service.NewServices(repos, gw, cfg, zapLogger)
	handlers := handler.NewHandlers(services, zapLogger)

	if err := services.Reminder.Start(); err != nil {
		zapLogger.Warn("Reminder scheduler failed to start", zap.Error(err))
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	services.Reminder.Stop()
	gw.Drain()

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		ncs := v1.Group("/non-conformities")
		{
			ncs.GET("", h.NC.List)
			ncs.POST("", h.NC.Create)
			ncs.GET("/:id", h.NC.Get)
			ncs.PUT("/:id", h.NC.Update)
			ncs.DELETE("/:id", h.NC.Delete)
			ncs.POST("/:id/approve", h.NC.Approve)
			ncs.POST("/:id/close", h.NC.Close)
			ncs.POST("/:id/advance", h.NC.AdvanceStage)
			ncs.GET("/:id/effectiveness", h.NC.EffectivenessHistory)
			ncs.POST("/:id/effectiveness", h.NC.Evaluate)
			ncs.POST("/:id/effectiveness/postpone", h.NC.Postpone)
			ncs.POST("/:id/evidence", h.NC.UploadEvidence)
			ncs.GET("/:id/tasks", h.Task.ListByNC)
		}

		my := v1.Group("/my")
		{
			my.GET("/tasks", h.Task.ListMine)
			my.POST("/tasks/:taskId/complete", h.Task.Complete)
		}

		users := v1.Group("/users")
		{
			users.GET("", h.User.List)
			users.GET("/:id", h.User.Get)
		}
	}
}
