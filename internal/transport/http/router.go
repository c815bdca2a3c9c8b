package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/capture/internal/config"
	"tempmail/capture/internal/health"
	"tempmail/capture/internal/inbound"
	"tempmail/capture/internal/middleware"
	"tempmail/capture/internal/monitoring"
	"tempmail/capture/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config      *config.Config
	Capture     *service.CaptureService
	Validation  *service.ValidationService
	ServiceAuth *middleware.ServiceAuth // 为 nil 时校验接口不做认证
	Metrics     *monitoring.Metrics
	Health      *health.HealthChecker
	Logger      *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics(nil)
	}
	serviceAuth := deps.ServiceAuth
	if serviceAuth == nil {
		serviceAuth = middleware.NewServiceAuth(nil, logger)
	}
	cfg := deps.Config

	router := gin.New()
	router.Use(middleware.RecoveryHandler(logger, metrics))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.HTTPMetrics(metrics))
	router.Use(middleware.SecurityHeaders())

	// 运维端点
	if deps.Health != nil {
		router.GET("/health", gin.WrapF(deps.Health.ReadyEndpoint))
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	v1 := router.Group("/v1")

	// 邮件中继推送：无 CORS，限流 + 大请求体
	limiter := middleware.NewIPRateLimiter(cfg.Capture.RateLimit, cfg.Capture.RateBurst)
	inboundHandler := NewInboundHandler(deps.Capture, inbound.DefaultMaxMemory, logger)
	inboundGroup := v1.Group("/inbound",
		middleware.RateLimitByIP(limiter, "inbound", metrics),
		middleware.BodySizeLimit(cfg.Capture.MaxBodyBytes),
	)
	inboundGroup.POST("", inboundHandler.Receive)
	inboundGroup.POST("/:provider", inboundHandler.Receive)

	// 邮箱校验：供前端或内部服务调用
	validationHandler := NewValidationHandler(deps.Validation, logger)
	mailboxes := v1.Group("/mailboxes",
		corsMiddleware(cfg.CORS.AllowedOrigins),
		middleware.BodySizeLimit(middleware.DefaultBodyLimit),
	)
	mailboxes.OPTIONS("/validate", func(c *gin.Context) { c.Status(204) })
	mailboxes.POST("/validate", serviceAuth.RequireService(), validationHandler.Validate)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsConfig := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", MailboxTokenHeader},
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
	return gincors.New(corsConfig)
}
