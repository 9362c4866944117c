package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealradar/backend/internal/config"
	"dealradar/backend/internal/credential"
	"dealradar/backend/internal/middleware"
	"dealradar/backend/internal/monitoring"
	"dealradar/backend/internal/service"
	"dealradar/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config              *config.Config
	IngestService       *service.IngestService
	SubscriptionService *service.SubscriptionService
	CredentialManager   *credential.Manager
	HealthChecker       *monitoring.HealthChecker
	Store               storage.Store
	Logger              *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.PanicRecovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics())

	// 请求体限制：Webhook 批量通知允许更大的载荷
	router.Use(middleware.DynamicBodySizeLimit(map[string]int64{
		"/api/webhooks/mail": middleware.WebhookBodyLimit,
	}, middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.UserIDHeader},
		ExposeHeaders:    []string{"Content-Length"},
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
	webhookHandler := NewWebhookHandler(deps.IngestService, deps.Logger)
	integrationHandler := NewIntegrationHandler(deps.CredentialManager, deps.Store, deps.Logger)
	subscriptionHandler := NewSubscriptionHandler(deps.SubscriptionService, deps.Logger)
	auditHandler := NewAuditHandler(deps.Store, deps.Store)

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		report := deps.HealthChecker.CheckHealth()
		status := http.StatusOK
		if report.Status == monitoring.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})
	router.GET("/metrics", gin.WrapH(monitoring.HTTPHandler()))

	// ========== Webhook Routes（提供方回调，无用户上下文） ==========
	// 订阅握手走 GET/POST 同一端点
	router.GET("/api/webhooks/mail", webhookHandler.HandleNotification)
	router.POST("/api/webhooks/mail", webhookHandler.HandleNotification)

	// V1 API
	v1 := router.Group("/v1")
	v1.Use(middleware.RequireUserID())
	v1.Use(middleware.Timeout(30 * time.Second))
	{
		// ========== Integration Routes ==========
		integrationRoutes := v1.Group("/integrations")
		{
			integrationRoutes.POST("/:provider", integrationHandler.Connect)      // 接入集成
			integrationRoutes.GET("/:provider", integrationHandler.Get)           // 查看集成状态
			integrationRoutes.DELETE("/:provider", integrationHandler.Disconnect) // 断开集成
		}

		// ========== Subscription Routes ==========
		subscriptionRoutes := v1.Group("/subscriptions")
		{
			subscriptionRoutes.POST("", subscriptionHandler.Create)          // 创建订阅
			subscriptionRoutes.GET("", subscriptionHandler.List)             // 列出订阅
			subscriptionRoutes.POST("/:id/renew", subscriptionHandler.Renew) // 订阅续期
			subscriptionRoutes.DELETE("/:id", subscriptionHandler.Delete)    // 删除订阅
		}

		// ========== Audit Routes ==========
		v1.GET("/outcomes", auditHandler.ListOutcomes)     // 处理结果列表
		v1.GET("/activities", auditHandler.ListActivities) // 活动日志列表
	}

	return router
}
