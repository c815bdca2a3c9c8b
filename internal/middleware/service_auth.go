package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/capture/internal/auth/jwt"
)

// ContextServiceKey 认证通过后调用方服务名在 gin.Context 中的键
const ContextServiceKey = "service"

// ServiceAuth 内部服务认证中间件
type ServiceAuth struct {
	manager *jwt.Manager
	log     *zap.Logger
}

// NewServiceAuth 创建内部服务认证中间件，manager 为 nil 时不做认证
func NewServiceAuth(manager *jwt.Manager, log *zap.Logger) *ServiceAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServiceAuth{manager: manager, log: log}
}

// Enabled 是否启用了认证
func (sa *ServiceAuth) Enabled() bool {
	return sa.manager != nil
}

// RequireService 要求合法的服务令牌
func (sa *ServiceAuth) RequireService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sa.manager == nil {
			c.Next()
			return
		}

		token := extractBearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		claims, err := sa.manager.ValidateToken(token)
		if err != nil {
			sa.log.Warn("invalid service token",
				zap.Bool("expired", errors.Is(err, jwt.ErrExpiredToken)),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextServiceKey, claims.Service)
		c.Next()
	}
}

// extractBearer 从 Authorization 头提取 Bearer 令牌
func extractBearer(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
