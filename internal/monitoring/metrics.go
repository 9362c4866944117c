package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 处理链路的监控指标，promauto 注册到默认注册表
var (
	// HTTP 请求指标
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealradar_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// 邮件处理指标，按结局标签分桶
	emailsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_emails_processed_total",
			Help: "Total number of processed emails by outcome",
		},
		[]string{"outcome"},
	)

	emailProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealradar_email_processing_duration_seconds",
			Help:    "End to end email processing duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// Webhook 指标
	webhookNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_webhook_notifications_total",
			Help: "Total number of webhook notifications by result",
		},
		[]string{"result"},
	)

	// 上游调用指标
	aiCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_ai_calls_total",
			Help: "Total number of AI classification calls",
		},
		[]string{"status"},
	)

	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_token_refreshes_total",
			Help: "Total number of OAuth token refreshes",
		},
		[]string{"provider", "status"},
	)

	dealsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealradar_deals_created_total",
			Help: "Total number of CRM deals created",
		},
	)

	// 限流指标
	rateLimitBlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_rate_limit_blocks_total",
			Help: "Total number of rate limited operations",
		},
		[]string{"operation"},
	)

	// 错误指标
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealradar_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"type", "component"},
	)

	panicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dealradar_panics_total",
			Help: "Total number of recovered panics",
		},
	)
)

// RecordHTTPRequest 记录 HTTP 请求指标
func RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEmailProcessed 记录一次邮件处理结局
func RecordEmailProcessed(outcome string) {
	emailsProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordEmailProcessingDuration 记录端到端处理耗时
func RecordEmailProcessingDuration(duration time.Duration) {
	emailProcessingDuration.Observe(duration.Seconds())
}

// RecordWebhookNotification 记录 Webhook 通知处理结果
// result 取值 accepted、rejected、duplicate
func RecordWebhookNotification(result string) {
	webhookNotificationsTotal.WithLabelValues(result).Inc()
}

// RecordAICall 记录一次 AI 调用，status 取值 ok、error
func RecordAICall(status string) {
	aiCallsTotal.WithLabelValues(status).Inc()
}

// RecordTokenRefresh 记录一次令牌刷新
func RecordTokenRefresh(provider, status string) {
	tokenRefreshesTotal.WithLabelValues(provider, status).Inc()
}

// RecordDealCreated 记录一次交易创建
func RecordDealCreated() {
	dealsCreatedTotal.Inc()
}

// RecordRateLimitBlock 记录一次限流阻止
func RecordRateLimitBlock(operation string) {
	rateLimitBlocksTotal.WithLabelValues(operation).Inc()
}

// RecordError 记录错误
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func RecordPanic() {
	panicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
