package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ezac101/chainmail/internal/auth"
	jwtpkg "github.com/ezac101/chainmail/internal/auth/jwt"
	"github.com/ezac101/chainmail/internal/config"
	"github.com/ezac101/chainmail/internal/content"
	contentfs "github.com/ezac101/chainmail/internal/content/filesystem"
	contents3 "github.com/ezac101/chainmail/internal/content/s3"
	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/health"
	"github.com/ezac101/chainmail/internal/logger"
	"github.com/ezac101/chainmail/internal/monitoring"
	"github.com/ezac101/chainmail/internal/pool"
	"github.com/ezac101/chainmail/internal/service"
	"github.com/ezac101/chainmail/internal/smtp"
	"github.com/ezac101/chainmail/internal/storage"
	"github.com/ezac101/chainmail/internal/storage/hybrid"
	"github.com/ezac101/chainmail/internal/storage/memory"
	"github.com/ezac101/chainmail/internal/storage/postgres"
	httptransport "github.com/ezac101/chainmail/internal/transport/http"
	"github.com/ezac101/chainmail/internal/websocket"
)

// main 启动中继节点：HTTP API、WebSocket 推送与可选的 SMTP 桥接。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting chainmail relay node",
		zap.String("owner", cfg.Ledger.OwnerAddress.String()),
		zap.String("relay", cfg.Ledger.RelayAddress.String()),
		zap.String("log_level", cfg.Log.Level),
	)

	// 初始化账本存储层
	store, storageBackend, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 初始化内容存储后端
	objects, err := initializeContentStore(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize content store: %v", err))
	}
	log.Info("content store initialized", zap.String("backend", cfg.Content.Backend))

	// 初始化监控系统
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, objects, log)

	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0))
	alertManager.AddRule(monitoring.StorageConnectionRule(store))
	alertManager.AddRule(monitoring.LowRelayBalanceRule(store, cfg.Relay.MinBalance))

	log.Info("monitoring system initialized")

	// 初始化服务层
	ledgerService, err := service.NewLedgerService(store, cfg.Ledger.OwnerAddress, cfg.Ledger.RelayAddress)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize ledger: %v", err))
	}

	relayService := service.NewRelayService(ledgerService, store, cfg.Relay, log)
	if err := relayService.Bootstrap(); err != nil {
		panic(fmt.Sprintf("failed to bootstrap relay balance: %v", err))
	}

	contentService := service.NewContentService(objects)
	adminService := service.NewAdminService(ledgerService, relayService, store,
		storageBackend, cfg.Content.Backend)

	// 初始化认证服务
	authService := auth.NewService(store)
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// 创建 WebSocket Hub 与事件分发
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 进程内回调只做指标计数，推送统一走轮询器，
	// 本节点与其他节点写入的事件走同一条路径
	ledgerService.Subscribe(func(event *domain.Event) {
		metrics.RecordEvent(string(event.Type))
	})
	workers := pool.NewWorkerPool(4, 256)
	watcher := service.NewEventWatcher(ledgerService, workers, 2*time.Second, log, wsHub.NotifyEvent)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		LedgerService:  ledgerService,
		RelayService:   relayService,
		ContentService: contentService,
		AdminService:   adminService,
		AuthService:    authService,
		JWTManager:     jwtManager,
		WebSocketHub:   wsHub,
		Store:          store,
		Metrics:        metrics,
		AlertManager:   alertManager,
		Logger:         log,
	})

	// 健康检查处理器（用于 Kubernetes 等）
	router.GET("/health/live", gin.WrapH(healthChecker.Handler()))
	router.GET("/health/ready", gin.WrapH(healthChecker.Handler()))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

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

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 桥接 goroutine（可选）
	var smtpServer *gosmtp.Server
	if cfg.Bridge.Enabled {
		limiter := smtp.NewConnectionLimiter(cfg.Bridge.MaxConnections, cfg.Bridge.ConnRate)
		smtpBackend := smtp.NewBackend(
			relayService,
			ledgerService,
			contentService,
			limiter,
			cfg.Bridge.AccountAddress,
			cfg.Bridge.Domain,
			cfg.Bridge.MaxMessageBytes,
			log,
		)
		smtpServer = gosmtp.NewServer(smtpBackend)
		smtpServer.Addr = cfg.Bridge.BindAddr
		smtpServer.Domain = cfg.Bridge.Domain
		smtpServer.ReadTimeout = 10 * time.Second
		smtpServer.WriteTimeout = 10 * time.Second
		smtpServer.MaxMessageBytes = cfg.Bridge.MaxMessageBytes
		smtpServer.MaxRecipients = 50

		group.Go(func() error {
			log.Info("starting SMTP bridge",
				zap.String("address", cfg.Bridge.BindAddr),
				zap.String("domain", cfg.Bridge.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil {
				log.Error("SMTP bridge error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 事件轮询 goroutine
	group.Go(func() error {
		return watcher.Run(groupCtx)
	})

	// 告警监控 goroutine
	group.Go(func() error {
		log.Info("starting alert monitoring")
		alertManager.StartMonitoring(groupCtx, 1*time.Minute)
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

		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP bridge close warning", zap.Error(err))
			}
		}

		workers.Stop()

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择账本存储后端
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, string, error) {
	if cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), "memory", nil
	}

	if cfg.Redis.Address != "" {
		store, err := hybrid.NewStore(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create hybrid store: %w", err)
		}
		log.Info("using hybrid storage (postgres + redis)",
			zap.String("redis_address", cfg.Redis.Address))
		return store, "hybrid", nil
	}

	store, err := postgres.NewStore(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create postgres store: %w", err)
	}
	log.Info("using postgres storage")
	return store, "postgres", nil
}

// initializeContentStore 根据配置选择内容存储后端
func initializeContentStore(cfg *config.Config) (content.Store, error) {
	switch cfg.Content.Backend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return contents3.NewStore(ctx, contents3.Config{
			Endpoint:  cfg.Content.S3Endpoint,
			Region:    cfg.Content.S3Region,
			Bucket:    cfg.Content.S3Bucket,
			AccessKey: cfg.Content.S3AccessKey,
			SecretKey: cfg.Content.S3SecretKey,
			MaxSize:   cfg.Content.MaxObjectSize,
		})
	default:
		return contentfs.NewStore(cfg.Content.Path, cfg.Content.MaxObjectSize)
	}
}
