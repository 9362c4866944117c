package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dealradar/backend/internal/auth/clientstate"
	"dealradar/backend/internal/classify"
	"dealradar/backend/internal/config"
	"dealradar/backend/internal/credential"
	"dealradar/backend/internal/crypto"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/logger"
	"dealradar/backend/internal/monitoring"
	"dealradar/backend/internal/pool"
	"dealradar/backend/internal/provider"
	"dealradar/backend/internal/provider/crm"
	"dealradar/backend/internal/provider/graph"
	"dealradar/backend/internal/ratelimit"
	"dealradar/backend/internal/service"
	"dealradar/backend/internal/storage"
	"dealradar/backend/internal/storage/hybrid"
	"dealradar/backend/internal/storage/memory"
	sqlstore "dealradar/backend/internal/storage/sql"
	httptransport "dealradar/backend/internal/transport/http"
)

const version = "1.2.0"

// main 启动邮件分析与 CRM 联动服务。
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

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting dealradar server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = initializeDatabaseStorage(cfg, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using hybrid storage", zap.String("type", cfg.Database.Type))
	} else {
		// 内存存储（开发环境）
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// 令牌加密与凭证管理
	encryptor, err := crypto.NewEncryptor(cfg.Crypto.Secret)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize encryptor: %v", err))
	}

	credentials := credential.NewManager(store, encryptor, map[domain.Provider]credential.OAuthEndpoint{
		domain.ProviderMicrosoft: {
			TokenURL:     cfg.Microsoft.TokenURL,
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			Scope:        cfg.Microsoft.Scope,
		},
		domain.ProviderPipedrive: {
			TokenURL:     cfg.Pipedrive.TokenURL,
			ClientID:     cfg.Pipedrive.ClientID,
			ClientSecret: cfg.Pipedrive.ClientSecret,
			Scope:        cfg.Pipedrive.Scope,
		},
	}, log)

	// 提供方客户端
	graphCaller := provider.NewCaller(domain.ProviderMicrosoft, credentials, 30*time.Second, log)
	graphClient := graph.NewClient("", graphCaller, log)

	crmCaller := provider.NewCaller(domain.ProviderPipedrive, credentials, 30*time.Second, log)
	crmClient := crm.NewClient("", crmCaller, log)

	// AI 分类客户端
	classifier := classify.NewClient(classify.Config{
		BaseURL:       cfg.AI.BaseURL,
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		RatePerMinute: cfg.AI.RatePerMinute,
	}, log)

	// 业务服务
	limiter := ratelimit.NewLimiter(store, nil, log)
	activity := service.NewActivityService(store, log)
	resolver := service.NewResolutionService(crmClient, classifier, log)
	orchestrator := service.NewOrchestrator(classifier, resolver, limiter, store, activity, log)

	signer := clientstate.NewSigner(cfg.Subscription.StateSecret, cfg.Subscription.StateIssuer, 0)
	subscriptions := service.NewSubscriptionService(store, graphClient, signer, activity, cfg.Subscription.NotificationURL, log)

	// 通知处理工作池
	workers := pool.NewWorkerPool(cfg.Pool.MaxWorkers, cfg.Pool.QueueSize, log)
	ingest := service.NewIngestService(store, signer, graphClient, orchestrator, limiter, workers, activity, log)

	// 健康检查
	environment := "production"
	if cfg.Log.Development {
		environment = "development"
	}
	healthChecker := monitoring.NewHealthChecker(store, log, version, environment)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:              cfg,
		IngestService:       ingest,
		SubscriptionService: subscriptions,
		CredentialManager:   credentials,
		HealthChecker:       healthChecker,
		Store:               store,
		Logger:              log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 订阅后台续期 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Subscription.RenewInterval)
		defer ticker.Stop()

		log.Info("starting subscription renewal task",
			zap.Duration("interval", cfg.Subscription.RenewInterval),
			zap.Duration("window", cfg.Subscription.RenewWindow),
		)

		for {
			select {
			case <-groupCtx.Done():
				log.Info("subscription renewal task stopped")
				return nil
			case <-ticker.C:
				subscriptions.RenewExpiring(groupCtx, cfg.Subscription.RenewWindow)
			}
		}
	})

	// 周期健康检查 goroutine
	group.Go(func() error {
		healthChecker.StartPeriodicHealthCheck(groupCtx, 30*time.Second)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 等待队列中的通知处理完
		workers.Stop()

		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeDatabaseStorage 初始化混合存储（SQL + Redis）
func initializeDatabaseStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	log.Info("initializing database storage",
		zap.String("database_type", cfg.Database.Type),
		zap.String("redis_address", cfg.Redis.Address),
	)

	store, err := hybrid.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		sqlstore.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hybrid store: %w", err)
	}

	return store, nil
}
