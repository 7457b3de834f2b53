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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stronghold-io/bastion/audit"
	"github.com/stronghold-io/bastion/config"
	"github.com/stronghold-io/bastion/controller"
	"github.com/stronghold-io/bastion/db"
	"github.com/stronghold-io/bastion/decision"
	"github.com/stronghold-io/bastion/devicetrust"
	"github.com/stronghold-io/bastion/evaluator"
	"github.com/stronghold-io/bastion/firewall"
	"github.com/stronghold-io/bastion/keymanager"
	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/metrics"
	"github.com/stronghold-io/bastion/router"
	"github.com/stronghold-io/bastion/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Initialize Neo4j (permission graph, read-only for the core)
	if err := db.InitNeo4j(); err != nil {
		logger.Fatal("Failed to initialize Neo4j", zap.Error(err))
	}
	defer db.CloseNeo4j()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize the local security store
	if err := db.InitSQLite(); err != nil {
		logger.Fatal("Failed to initialize security store", zap.Error(err))
	}

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// Initialize services and utilities
	notificationService := util.NewNotificationService(config.GetStringSlice("notifier.urls"))
	auditRepository, err := audit.NewElasticsearchRepository(config.GetString("elasticsearch.url"))
	if err != nil {
		logger.Fatal("Failed to initialize audit repository", zap.Error(err))
	}
	auditService := audit.NewService(auditRepository)

	// Decision cache: in-memory for single-instance, redis for shared
	var cache decision.Cache
	switch config.GetString("decision.cacheBackend") {
	case "redis":
		cache = decision.NewRedisCache(db.RedisClient, config.GetDuration("decision.cacheTTL"))
	default:
		cache = decision.NewMemoryCache(config.GetInt("decision.cacheSize"), config.GetDuration("decision.cacheTTL"))
	}

	permissionEvaluator := evaluator.NewNeo4jEvaluator(db.Neo4jDriver)
	decisionEngine := decision.NewEngine(cache, permissionEvaluator, auditService, eventBus, config.GetDuration("decision.evaluatorTimeout"))

	firewallEngine := firewall.NewEngine()
	firewallStore, err := firewall.NewStore(db.SQLite, firewallEngine)
	if err != nil {
		logger.Fatal("Failed to initialize firewall store", zap.Error(err))
	}

	deviceManager := devicetrust.NewManager(
		db.SQLite,
		decisionEngine,
		notificationService,
		eventBus,
		[]byte(config.GetString("sessions.jwtSecret")),
		config.GetDuration("trust.sessionTTL"),
		devicetrust.Thresholds{
			Full:       config.GetInt("trust.fullThreshold"),
			Restricted: config.GetInt("trust.restrictedThreshold"),
		},
		config.GetInt("trust.initialScore"),
	)

	keyManager := keymanager.NewManager(
		db.SQLite,
		config.GetString("keys.masterSecret"),
		config.GetString("keys.defaultAlgorithm"),
		db.RedisLocker{},
		notificationService,
		eventBus,
	)

	// Apply trust threshold changes without a restart
	config.Watch(func() {
		deviceManager.SetThresholds(devicetrust.Thresholds{
			Full:       config.GetInt("trust.fullThreshold"),
			Restricted: config.GetInt("trust.restrictedThreshold"),
		})
	})

	// Background sweeps: lazy expiry already guarantees correctness, the
	// sweeps just reclaim memory and rows early.
	scheduler := cron.New()
	if sweeper, ok := cache.(decision.Sweeper); ok {
		scheduler.AddFunc("@every 1m", func() {
			if removed := sweeper.EvictExpired(ctx); removed > 0 {
				logger.Debug("Swept expired decisions", zap.Int("removed", removed))
			}
		})
	}
	scheduler.AddFunc("@every 5m", func() {
		deviceManager.ExpireSessions(ctx)
	})
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize controllers
	controllers := controller.InitializeControllers(decisionEngine, firewallEngine, firewallStore, deviceManager, keyManager)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engine := router.SetupRouter(controllers, deviceManager, registry, 100, time.Minute)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engine,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
