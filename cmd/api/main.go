package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botfleet-api/internal/cache"
	"botfleet-api/internal/config"
	"botfleet-api/internal/events"
	"botfleet-api/internal/handler"
	"botfleet-api/internal/logging"
	"botfleet-api/internal/metrics"
	"botfleet-api/internal/middleware"
	"botfleet-api/internal/orchestrator"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/platform/fake"
	"botfleet-api/internal/platform/gateway"
	"botfleet-api/internal/realtime"
	"botfleet-api/internal/repository"
	"botfleet-api/internal/router"
	"botfleet-api/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	logger := logging.New(os.Stderr, cfg.App.LogLevel)
	logger.Info("Starting botfleet API", "version", cfg.App.Version, "env", cfg.App.Environment)

	// Initialize persistent store based on config
	driver, dsn := cfg.Store.DSN()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := repository.Open(ctx, repository.Options{
		Driver:     driver,
		DSN:        dsn,
		SessionTTL: cfg.Orchestrator.SessionTTL,
		Logger:     logger,
	})
	cancel()
	if err != nil {
		logger.Fatal("Failed to open store", "driver", driver, "err", err)
	}
	defer store.Close()
	logger.Info("Store initialized", "driver", driver)

	m := metrics.New()
	bus := events.NewBus(logger)
	bus.OnDrop(m.EventDropped)

	// Initialize platform client
	var client platform.Client
	switch cfg.Platform.Type {
	case "fake":
		client = fake.NewClient()
		logger.Warn("Using the in-memory fake platform")
	default:
		gw, err := gateway.NewClient(gateway.Config{
			URL:            cfg.Platform.GatewayURL,
			Token:          cfg.Platform.GatewayToken,
			RequestTimeout: cfg.Platform.RequestTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize platform gateway", "err", err)
		}
		client = gw
		logger.Info("Platform gateway client initialized", "url", cfg.Platform.GatewayURL)
	}

	// Initialize shared cache (exchange guards) and the optional Redis event relay
	var sharedCache cache.Cache
	var relay *realtime.RedisRelay
	switch cfg.Cache.Type {
	case "redis":
		redisCfg := cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var redisClient *redis.Client
		redisClient, err = cache.NewRedisClient(ctx, redisCfg)
		cancel()
		if err != nil {
			logger.Fatal("Redis connection failed", "addr", redisCfg.Addr, "err", err)
		}
		defer redisClient.Close()
		sharedCache = cache.NewRedisCache(redisClient, redisCfg, logger)
		if cfg.Cache.EventChannel != "" {
			relay = realtime.NewRedisRelay(bus, redisClient, cfg.Cache.EventChannel, cfg.Realtime.BusBuffer, logger)
		}
		logger.Info("Redis cache initialized", "addr", redisCfg.Addr)
	default:
		sharedCache = cache.NewMemoryCache()
	}
	defer sharedCache.Close()

	// Initialize services
	invConfig := service.InventoryConfig{
		AppID:              cfg.Inventory.AppID,
		ContextID:          cfg.Inventory.ContextID,
		ProtectedContextID: cfg.Inventory.ProtectedContextID,
		TTL:                cfg.Inventory.TTL,
		ImageBaseURL:       cfg.Inventory.ImageBaseURL,
		FetchTimeout:       cfg.Inventory.FetchTimeout,
	}
	inventoryService := service.NewInventoryService(store, bus, m, invConfig, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Store:     store,
		Client:    client,
		Inventory: inventoryService,
		Bus:       bus,
		Metrics:   m,
		Logger:    logger,
	}, orchestrator.Config{
		AuthTimeout:          cfg.Orchestrator.AuthTimeout,
		MaxAttempts:          cfg.Orchestrator.MaxAttempts,
		RateLimitCooldown:    cfg.Orchestrator.RateLimitCooldown,
		BackoffStep:          cfg.Orchestrator.BackoffStep,
		CredentialRetryDelay: cfg.Orchestrator.CredentialRetryDelay,
		SettleDelay:          cfg.Orchestrator.SettleDelay,
		NewItemsDelay:        cfg.Orchestrator.NewItemsDelay,
		ReconnectPolicy:      orchestrator.ReconnectPolicy(cfg.Orchestrator.ReconnectPolicy),
		StopTimeout:          cfg.Orchestrator.StopTimeout,
	})

	exchangeService := service.NewExchangeService(store, orch, m, invConfig, logger)
	scheduler := service.NewLoginScheduler(store, store, orch, service.LoginConfig{
		Mode:  cfg.Login.Mode,
		Delay: cfg.Login.Delay,
	}, logger)

	cleanup := service.NewCleanupScheduler(store, service.CleanupConfig{
		Retention: cfg.Inventory.Retention,
		Interval:  cfg.Inventory.CleanupInterval,
	}, logger)
	cleanup.Start()

	hub := realtime.NewHub(bus, realtime.Config{
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		ClientBuffer:      cfg.Realtime.ClientBuffer,
		BusBuffer:         cfg.Realtime.BusBuffer,
	}, logger)

	// baseCtx outlives requests; it is cancelled on shutdown
	baseCtx, stopBase := context.WithCancel(context.Background())
	defer stopBase()

	// Initialize handlers
	r := router.New(router.Config{
		Handler:          handler.New(store),
		AccountHandler:   handler.NewAccountHandler(store, orch, logger),
		BotHandler:       handler.NewBotHandler(baseCtx, orch, scheduler, logger),
		InventoryHandler: handler.NewInventoryHandler(inventoryService, orch, logger),
		TradeHandler:     handler.NewTradeHandler(exchangeService, store, sharedCache, logger),
		SettingsHandler:  handler.NewSettingsHandler(store, logger),
		AdminHandler:     handler.NewAdminHandler(store, orch, hub, driver, cfg.Cache.Type),
		Realtime:         hub,
		Metrics:          m,
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys:     cfg.App.APIKeys,
			PublicPaths: router.PublicPaths,
		}),
		Logger: logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", "addr", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", "err", err)
		}
	}()

	if cfg.Login.AutoStart {
		go func() {
			n, err := scheduler.StartAll(baseCtx)
			if err != nil {
				logger.Warn("Automatic start interrupted", "started", n, "err", err)
				return
			}
			logger.Info("Automatic start finished", "started", n)
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopBase()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "err", err)
	}

	// Stop instances before the store closes so their last writes land
	orch.StopAll()
	cleanup.Stop()
	hub.Close()
	if relay != nil {
		relay.Close()
	}

	logger.Info("Server stopped")
	fmt.Println("Goodbye!")
}
