package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有指标注册在独立的 Registry 上，测试中可以反复创建而不会重复注册。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 捕获指标
	CaptureOutcomes    *prometheus.CounterVec // outcome: stored / ignored_unknown / ignored_inactive / duplicate / rejected / failed
	CaptureDuration    prometheus.Histogram
	AttachmentOutcomes *prometheus.CounterVec // outcome: saved / rejected / upload_failed / record_failed / skipped
	AttachmentSize     prometheus.Histogram

	// 校验指标
	ValidationOutcomes *prometheus.CounterVec // mode: single / batch; result: valid / reason code
	StorageRetries     *prometheus.CounterVec // operation

	// 错误指标
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec // result: ok / error
}

// NewMetrics 创建监控指标，registry 为 nil 时新建一个
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		CaptureOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_capture_total",
				Help: "Inbound capture requests by outcome",
			},
			[]string{"outcome"},
		),
		CaptureDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tempmail_capture_duration_seconds",
				Help:    "Time spent capturing one inbound message",
				Buckets: prometheus.DefBuckets,
			},
		),
		AttachmentOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_capture_attachments_total",
				Help: "Inbound attachments by outcome",
			},
			[]string{"outcome"},
		),
		AttachmentSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tempmail_capture_attachment_size_bytes",
				Help:    "Size of stored attachments in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),

		ValidationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_validation_total",
				Help: "Mailbox validation results",
			},
			[]string{"mode", "result"},
		),
		StorageRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_storage_retries_total",
				Help: "Storage call retries after transient errors",
			},
			[]string{"operation"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_panics_total",
				Help: "Total number of recovered panics",
			},
		),
		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_rate_limit_blocks_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"endpoint"},
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_events_published_total",
				Help: "Captured-message events by publish result",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCapture 记录一次捕获结果
func (m *Metrics) RecordCapture(outcome string, duration time.Duration) {
	m.CaptureOutcomes.WithLabelValues(outcome).Inc()
	m.CaptureDuration.Observe(duration.Seconds())
}

// RecordAttachment 记录单个附件结果，size 只在保存成功时有意义
func (m *Metrics) RecordAttachment(outcome string, size int64) {
	m.AttachmentOutcomes.WithLabelValues(outcome).Inc()
	if outcome == "saved" {
		m.AttachmentSize.Observe(float64(size))
	}
}

// RecordValidation 记录一次校验结果
func (m *Metrics) RecordValidation(mode, result string) {
	m.ValidationOutcomes.WithLabelValues(mode, result).Inc()
}

// RecordStorageRetry 记录一次存储重试
func (m *Metrics) RecordStorageRetry(operation string) {
	m.StorageRetries.WithLabelValues(operation).Inc()
}

// RecordPanic 记录一次被恢复的 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录一次限流拒绝
func (m *Metrics) RecordRateLimitBlock(endpoint string) {
	m.RateLimitBlocks.WithLabelValues(endpoint).Inc()
}

// RecordEventPublished 记录事件发布结果
func (m *Metrics) RecordEventPublished(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(result).Inc()
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 /metrics 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
