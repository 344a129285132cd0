package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gridshield/gatekeeper/internal/config"
	"github.com/gridshield/gatekeeper/internal/database"
	"github.com/gridshield/gatekeeper/internal/guard"
	"github.com/gridshield/gatekeeper/internal/ratelimit"
	"github.com/gridshield/gatekeeper/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Counter store: Redis in production, in-process fallback for
	// single-node development.
	var store ratelimit.CounterStore
	if cfg.Redis.Addr != "" {
		redisStore := ratelimit.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer redisStore.Close()
		store = redisStore

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(ctx); err != nil {
			zapLogger.Warn("redis unreachable at startup, checks will fail open until it returns",
				zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
	} else {
		zapLogger.Warn("no redis configured, using in-process counter store (single node only)")
		store = ratelimit.NewMemoryStore()
	}

	// Audit store: PostgreSQL in production, local sqlite for development.
	var db *gorm.DB
	if cfg.Database.DSN != "" {
		db, err = database.NewPostgresDB(cfg.Database.DSN,
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
	} else {
		zapLogger.Warn("no database configured, using local sqlite audit store")
		db, err = gorm.Open(sqlite.Open("gatekeeper.db"), &gorm.Config{})
		if err != nil {
			zapLogger.Fatal("Failed to open sqlite audit store", zap.Error(err))
		}
	}
	if err := guard.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate audit schema", zap.Error(err))
	}

	// Limit-type table with optional live reload
	registry := ratelimit.NewConfigRegistry(zapLogger)
	if cfg.Limits.File != "" {
		if err := registry.LoadFromFile(cfg.Limits.File); err != nil {
			zapLogger.Fatal("Failed to load limits file", zap.Error(err))
		}
		if cfg.Limits.Watch {
			if err := registry.Watch(cfg.Limits.File); err != nil {
				zapLogger.Warn("limits file watch disabled", zap.Error(err))
			}
		}
	}
	defer registry.Close()

	// Alerting: always log, optionally publish to Kafka
	notifiers := []guard.Notifier{guard.NewLogNotifier(zapLogger)}
	if len(cfg.Alerting.KafkaBrokers) > 0 {
		kafkaNotifier := guard.NewKafkaNotifier(cfg.Alerting.KafkaBrokers, cfg.Alerting.KafkaTopic)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
	}
	dispatcher := guard.NewDispatcher(zapLogger, cfg.Alerting.QueueSize, notifiers...)
	defer dispatcher.Close()

	lists := guard.NewListStore(db, zapLogger)
	audit := guard.NewAuditStore(db, zapLogger)
	detector := guard.NewDetector(guard.DetectorConfig{
		ViolationThreshold: cfg.Detector.ViolationThreshold,
		ViolationWindow:    cfg.Detector.ViolationWindow,
		BanDuration:        cfg.Detector.BanDuration,
		DDoSWindow:         cfg.Detector.DDoSWindow,
		DDoSThreshold:      cfg.Detector.DDoSThreshold,
	}, store, lists, audit, dispatcher, zapLogger)
	limiter := guard.NewLimiter(registry, store, lists, audit, detector, zapLogger)

	stopMaintenance := limiter.StartMaintenance(cfg.Maintenance.Interval)
	defer stopMaintenance()

	// Admin server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(zapLogger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zapLogger, true))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	adminAPI := guard.NewAdminAPI(limiter, lists, registry, store, zapLogger)
	adminAPI.RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.Server.AdminAddr,
		Handler: router,
	}
	go func() {
		zapLogger.Info("admin server listening", zap.String("addr", cfg.Server.AdminAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("admin server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("admin server shutdown failed", zap.Error(err))
	}
}
