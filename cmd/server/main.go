package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/capture/internal/auth/jwt"
	"tempmail/capture/internal/config"
	"tempmail/capture/internal/crypto"
	"tempmail/capture/internal/events"
	"tempmail/capture/internal/health"
	"tempmail/capture/internal/logger"
	"tempmail/capture/internal/middleware"
	"tempmail/capture/internal/monitoring"
	"tempmail/capture/internal/retry"
	"tempmail/capture/internal/security"
	"tempmail/capture/internal/service"
	"tempmail/capture/internal/storage"
	"tempmail/capture/internal/storage/filesystem"
	"tempmail/capture/internal/storage/memory"
	"tempmail/capture/internal/storage/postgres"
	"tempmail/capture/internal/storage/redis"
	httptransport "tempmail/capture/internal/transport/http"
)

// main 启动入站捕获与邮箱校验服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     "tempmail-capture",
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting tempmail capture service",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("database", cfg.Database.Type),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)
	healthChecker := health.NewHealthChecker(log)

	// 关系存储
	store, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()
	healthChecker.AddDependency("database", store)

	// 附件对象存储
	var blobs storage.BlobStore
	if cfg.Storage.BasePath != "" {
		fsStore, err := filesystem.NewStore(cfg.Storage.BasePath)
		if err != nil {
			return fmt.Errorf("initialize blob storage: %w", err)
		}
		blobs = fsStore
		healthChecker.AddDependency("blob-storage", fsStore)
		log.Info("filesystem blob storage initialized", zap.String("path", cfg.Storage.BasePath))
	} else {
		blobs = memory.NewBlobStore()
		log.Warn("using in-memory blob storage, attachments are lost on restart")
	}

	// 字段加密
	key, err := crypto.DeriveKey(cfg.Crypto.Secret)
	if errors.Is(err, crypto.ErrMissingSecret) {
		log.Warn("crypto.secret is not set, using the insecure fallback key")
	} else if err != nil {
		return fmt.Errorf("derive field key: %w", err)
	}
	encryptor, err := crypto.NewFieldEncryptor(key)
	if err != nil {
		return fmt.Errorf("initialize field encryptor: %w", err)
	}

	directory := service.NewDirectory(store)
	captureOpts := []service.CaptureOption{
		service.WithCaptureMetrics(metrics),
		service.WithAttachmentPolicy(security.NewAttachmentPolicy(cfg.Capture.MaxAttachmentBytes)),
	}

	// 去重（可选）
	if cfg.Redis.Enabled {
		rdb, err := redis.New(&cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("initialize redis: %w", err)
		}
		defer rdb.Close()
		healthChecker.AddDependency("redis", rdb)
		captureOpts = append(captureOpts, service.WithDeduper(redis.NewDedupFilter(rdb.Client(), cfg.Capture.DedupTTL)))
	}

	// 捕获事件（可选）
	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, cfg.Events.RoutingKey, log)
		if err != nil {
			return fmt.Errorf("initialize event publisher: %w", err)
		}
		defer publisher.Close()
		healthChecker.AddDependency("amqp", publisher)
		captureOpts = append(captureOpts, service.WithPublisher(publisher))
		log.Info("capture events enabled", zap.String("exchange", cfg.Events.Exchange))
	}

	capture := service.NewCaptureService(directory, store, blobs, encryptor, log, captureOpts...)

	policy := retry.DefaultPolicy(storage.IsTransient)
	policy.MaxAttempts = cfg.Validation.MaxAttempts
	policy.BaseDelay = cfg.Validation.BaseDelay
	policy.MaxDelay = cfg.Validation.MaxDelay
	policy.AttemptTimeout = cfg.Validation.AttemptTimeout
	policy.Deadline = cfg.Validation.Deadline
	validation := service.NewValidationService(directory, log,
		service.WithRetryPolicy(policy),
		service.WithValidationMetrics(metrics),
	)

	var tokens *jwt.Manager
	if cfg.InternalAuth.Secret != "" {
		tokens = jwt.NewManager(cfg.InternalAuth.Secret, cfg.InternalAuth.Issuer, cfg.InternalAuth.Audience)
		log.Info("internal service authentication enabled", zap.String("audience", cfg.InternalAuth.Audience))
	}

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:      cfg,
		Capture:     capture,
		Validation:  validation,
		ServiceAuth: middleware.NewServiceAuth(tokens, log),
		Metrics:     metrics,
		Health:      healthChecker,
		Logger:      log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore 根据配置选择存储实现
func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	pool := postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	var (
		store *postgres.Store
		err   error
	)
	switch cfg.Database.Type {
	case "postgres", "postgresql":
		store, err = postgres.NewStore(cfg.Database.DSN, pool, cfg.Database.AutoMigrate)
	case "mysql":
		store, err = postgres.NewMySQLStore(cfg.Database.DSN, pool, cfg.Database.AutoMigrate)
	default:
		log.Warn("using memory storage (development mode)")
		return memory.NewStore(), nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}
