package httptransport

import (
	"strconv"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezac101/chainmail/internal/auth"
	jwtpkg "github.com/ezac101/chainmail/internal/auth/jwt"
	"github.com/ezac101/chainmail/internal/config"
	"github.com/ezac101/chainmail/internal/middleware"
	"github.com/ezac101/chainmail/internal/monitoring"
	"github.com/ezac101/chainmail/internal/service"
	"github.com/ezac101/chainmail/internal/storage"
	"github.com/ezac101/chainmail/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	LedgerService  *service.LedgerService
	RelayService   *service.RelayService
	ContentService *service.ContentService
	AdminService   *service.AdminService
	AuthService    *auth.Service
	JWTManager     *jwtpkg.Manager
	WebSocketHub   *websocket.Hub
	Store          storage.Store
	Metrics        *monitoring.Metrics
	AlertManager   *monitoring.AlertManager
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(metricsMiddleware(deps.Metrics))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	relayHandler := NewRelayHandler(deps.RelayService, deps.Metrics, deps.Logger)
	ledgerHandler := NewLedgerHandler(deps.LedgerService, deps.Logger)
	contentHandler := NewContentHandler(deps.ContentService, deps.Metrics, deps.Logger)
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, deps.Logger)
	adminHandler := NewAdminHandler(deps.AdminService, deps.AlertManager, deps.Logger)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	rateLimiter := middleware.NewRateLimiter(deps.Store, deps.Logger)

	// 健康检查端点
	router.GET("/health", func(c *gin.Context) {
		Success(c, gin.H{"status": "ok"})
	})

	// WebSocket 事件推送
	router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))

	v1 := router.Group("/v1")
	{
		// 中继代付入口
		relay := v1.Group("/relay")
		relay.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
		relay.Use(rateLimiter.ByIP("relay", 60, time.Minute))
		{
			relay.POST("/send", relayHandler.SendEmail)
			relay.POST("/keys", relayHandler.RegisterKey)
			relay.GET("/balance", relayHandler.Balance)
		}

		// 账本只读查询
		v1.GET("/emails/count", ledgerHandler.GetEmailCount)
		v1.GET("/emails/:id", ledgerHandler.GetEmail)
		v1.GET("/accounts/:address/inbox", ledgerHandler.GetInbox)
		v1.GET("/accounts/:address/outbox", ledgerHandler.GetOutbox)
		v1.GET("/keys/:address", ledgerHandler.GetPublicKey)
		v1.GET("/events", ledgerHandler.ListEvents)
		v1.GET("/roles", ledgerHandler.GetRoles)

		// 密文内容
		contents := v1.Group("/content")
		contents.Use(rateLimiter.ByIP("content", 120, time.Minute))
		{
			contents.POST("", middleware.BodySizeLimit(middleware.ContentBodyLimit), contentHandler.Upload)
			contents.GET("/:cid", contentHandler.Download)
			contents.HEAD("/:cid", contentHandler.Head)
		}

		// 运营认证
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
		authGroup.Use(rateLimiter.ByIP("auth", 10, time.Minute))
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		// 管理接口（需要登录）
		admin := v1.Group("/admin")
		admin.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))
		admin.Use(jwtAuth.RequireAuth())
		{
			admin.GET("/statistics", adminHandler.Statistics)
			admin.GET("/alerts", adminHandler.Alerts)
			admin.POST("/relay/credit", adminHandler.CreditRelay)

			// 角色变更与账户管理需要超级运营者
			super := admin.Group("")
			super.Use(jwtAuth.RequireSuper())
			{
				super.PUT("/relay-address", adminHandler.SetRelayAddress)
				super.PUT("/ownership", adminHandler.TransferOwnership)
				super.POST("/operators", authHandler.CreateOperator)
			}
		}
	}

	return router
}

// metricsMiddleware 记录每个请求的 Prometheus 指标
func metricsMiddleware(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
