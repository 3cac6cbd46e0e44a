package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 账本指标
	EmailsLogged   prometheus.Counter
	KeysRegistered prometheus.Counter
	EventsEmitted  *prometheus.CounterVec
	LedgerRejects  *prometheus.CounterVec

	// 中继指标
	RelayBalance  prometheus.Gauge
	GasUsed       prometheus.Histogram
	RelaySubmits  *prometheus.CounterVec
	BridgeIngress prometheus.Counter

	// 内容指标
	ContentUploads    prometheus.Counter
	ContentUploadSize prometheus.Histogram

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		EmailsLogged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainmail_emails_logged_total",
				Help: "Total number of email records appended to the ledger",
			},
		),

		KeysRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainmail_keys_registered_total",
				Help: "Total number of public key registrations",
			},
		),

		EventsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainmail_events_emitted_total",
				Help: "Total number of ledger events emitted",
			},
			[]string{"type"},
		),

		LedgerRejects: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainmail_ledger_rejects_total",
				Help: "Total number of ledger submissions rejected",
			},
			[]string{"reason"},
		),

		RelayBalance: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "chainmail_relay_balance",
				Help: "Current relay account balance",
			},
		),

		GasUsed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chainmail_relay_gas_used",
				Help:    "Gas consumed per relayed submission",
				Buckets: prometheus.ExponentialBuckets(21000, 2, 10),
			},
		),

		RelaySubmits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainmail_relay_submits_total",
				Help: "Total number of relayed submissions",
			},
			[]string{"kind", "outcome"},
		),

		BridgeIngress: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainmail_bridge_messages_total",
				Help: "Total number of messages accepted by the SMTP bridge",
			},
		),

		ContentUploads: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainmail_content_uploads_total",
				Help: "Total number of ciphertext objects stored",
			},
		),

		ContentUploadSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chainmail_content_upload_size_bytes",
				Help:    "Ciphertext object size in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 10),
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainmail_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "chainmail_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEmailLogged 记录账本新增邮件
func (m *Metrics) RecordEmailLogged() {
	m.EmailsLogged.Inc()
}

// RecordKeyRegistered 记录公钥注册
func (m *Metrics) RecordKeyRegistered() {
	m.KeysRegistered.Inc()
}

// RecordEvent 记录账本事件
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordLedgerReject 记录账本拒绝
func (m *Metrics) RecordLedgerReject(reason string) {
	m.LedgerRejects.WithLabelValues(reason).Inc()
}

// RecordRelaySubmit 记录中继提交结果
func (m *Metrics) RecordRelaySubmit(kind, outcome string, gasUsed uint64) {
	m.RelaySubmits.WithLabelValues(kind, outcome).Inc()
	if outcome == "ok" {
		m.GasUsed.Observe(float64(gasUsed))
	}
}

// UpdateRelayBalance 更新中继余额
func (m *Metrics) UpdateRelayBalance(balance uint64) {
	m.RelayBalance.Set(float64(balance))
}

// RecordBridgeMessage 记录 SMTP 桥接收件
func (m *Metrics) RecordBridgeMessage() {
	m.BridgeIngress.Inc()
}

// RecordContentUpload 记录密文上传
func (m *Metrics) RecordContentUpload(size int) {
	m.ContentUploads.Inc()
	m.ContentUploadSize.Observe(float64(size))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}
