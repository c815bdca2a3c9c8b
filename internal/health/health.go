package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// checkTimeout 单个依赖检查的超时
const checkTimeout = 3 * time.Second

// Pinger 可探测连通性的依赖（数据库、Redis、对象存储、消息队列）
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 将函数适配为 Pinger
type PingFunc func(ctx context.Context) error

// Ping 调用函数本身
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthChecker 健康检查器
//
// 存活检查只关心进程本身；就绪检查覆盖所有外部依赖。
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return hc
}

// AddDependency 注册一个就绪检查
func (hc *HealthChecker) AddDependency(name string, dep Pinger) {
	hc.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		if err := dep.Ping(ctx); err != nil {
			hc.logger.Warn("dependency health check failed", zap.String("dependency", name), zap.Error(err))
			return err
		}
		return nil
	}, checkTimeout))
}

// Handler 返回完整的健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查（包含存活检查）
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}
