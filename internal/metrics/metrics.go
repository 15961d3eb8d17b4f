// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordTransition(operation string, errKind string)
	RecordActiveEntryConflict()
	RecordAlertCreated(notificationType string)
	RecordMonitorLatency(duration time.Duration)
	RecordReportGenerated(reportType string, duration time.Duration)
	RecordReportFailure(reportType string, errKind string)
	RecordNotificationsCleaned(count int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	transitions          *prometheus.CounterVec
	conflicts            prometheus.Counter
	alertsCreated        *prometheus.CounterVec
	monitorLatency       prometheus.Histogram
	reportLatency        *prometheus.HistogramVec
	reportFailures       *prometheus.CounterVec
	notificationsCleaned prometheus.Counter
	httpStatus           *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_time_entry_transitions_total",
			Help: "時間計測エントリの操作数（操作種別・結果別）",
		}, []string{"operation", "result"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetrack_active_entry_conflicts_total",
			Help: "進行中エントリ重複により拒否された開始要求の合計数",
		}),
		alertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_notifications_created_total",
			Help: "作成された通知の合計数（種別別）",
		}, []string{"type"}),
		monitorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetrack_monitor_run_seconds",
			Help:    "長時間タスク監視1回分の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reportLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetrack_report_generation_seconds",
			Help:    "レポート生成のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		reportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_report_generation_failures_total",
			Help: "レポート生成失敗の合計数",
		}, []string{"type", "reason"}),
		notificationsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetrack_notifications_cleaned_total",
			Help: "期限切れにより削除された通知の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetrack_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.transitions,
		c.conflicts,
		c.alertsCreated,
		c.monitorLatency,
		c.reportLatency,
		c.reportFailures,
		c.notificationsCleaned,
		c.httpStatus,
	)

	return c
}

// RecordTransition はライフサイクル操作の結果を記録する。
// errKindが空の場合は成功として扱う。
func (c *Collector) RecordTransition(operation string, errKind string) {
	result := errKind
	if result == "" {
		result = "ok"
	}
	c.transitions.WithLabelValues(operation, result).Inc()
}

// RecordActiveEntryConflict は進行中エントリ重複による開始拒否を記録する。
func (c *Collector) RecordActiveEntryConflict() {
	c.conflicts.Inc()
}

// RecordAlertCreated は通知の作成を記録する。
func (c *Collector) RecordAlertCreated(notificationType string) {
	c.alertsCreated.WithLabelValues(notificationType).Inc()
}

// RecordMonitorLatency は監視1回分の処理時間を記録する。
func (c *Collector) RecordMonitorLatency(duration time.Duration) {
	c.monitorLatency.Observe(duration.Seconds())
}

// RecordReportGenerated はレポート生成成功とそのレイテンシを記録する。
func (c *Collector) RecordReportGenerated(reportType string, duration time.Duration) {
	c.reportLatency.WithLabelValues(reportType).Observe(duration.Seconds())
}

// RecordReportFailure はレポート生成失敗を記録する。
func (c *Collector) RecordReportFailure(reportType string, errKind string) {
	c.reportFailures.WithLabelValues(reportType, errKind).Inc()
}

// RecordNotificationsCleaned は削除された通知数を記録する。
func (c *Collector) RecordNotificationsCleaned(count int64) {
	c.notificationsCleaned.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// Acceptヘッダーで要求された場合はOpenMetrics形式で応答する。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
