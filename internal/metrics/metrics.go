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
// ジョブランナー、記録サービス、文章生成、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordJobSubmitted(kind, jobType string)
	RecordJobFinished(kind, status string, duration time.Duration)
	RecordJobRetried(kind string)
	RecordQuotaRejected(resource string)
	RecordNarrative(success bool, latency time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	jobsSubmitted    *prometheus.CounterVec
	jobsFinished     *prometheus.CounterVec
	jobsRetried      *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	quotaRejected    *prometheus.CounterVec
	narrativeTotal   *prometheus.CounterVec
	narrativeLatency prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beetlebase_jobs_submitted_total",
			Help: "投入されたジョブの合計数",
		}, []string{"kind", "type"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beetlebase_jobs_finished_total",
			Help: "終端状態に到達したジョブの合計数",
		}, []string{"kind", "status"}),
		jobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beetlebase_jobs_retried_total",
			Help: "リトライされたジョブの合計数",
		}, []string{"kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beetlebase_job_duration_seconds",
			Help:    "ジョブ処理の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		quotaRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beetlebase_quota_rejected_total",
			Help: "プラン上限により拒否された操作の合計数",
		}, []string{"resource"}),
		narrativeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beetlebase_narrative_requests_total",
			Help: "文章生成リクエストの結果別合計数",
		}, []string{"result"}),
		narrativeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beetlebase_narrative_latency_seconds",
			Help:    "文章生成APIのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beetlebase_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.jobsSubmitted,
		c.jobsFinished,
		c.jobsRetried,
		c.jobDuration,
		c.quotaRejected,
		c.narrativeTotal,
		c.narrativeLatency,
		c.httpStatus,
	)

	return c
}

// RecordJobSubmitted はジョブの投入を記録する。
func (c *Collector) RecordJobSubmitted(kind, jobType string) {
	c.jobsSubmitted.WithLabelValues(kind, jobType).Inc()
}

// RecordJobFinished はジョブの終端状態への到達と処理時間を記録する。
func (c *Collector) RecordJobFinished(kind, status string, duration time.Duration) {
	c.jobsFinished.WithLabelValues(kind, status).Inc()
	c.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordJobRetried はジョブのリトライを記録する。
func (c *Collector) RecordJobRetried(kind string) {
	c.jobsRetried.WithLabelValues(kind).Inc()
}

// RecordQuotaRejected はプラン上限による拒否を記録する。
func (c *Collector) RecordQuotaRejected(resource string) {
	c.quotaRejected.WithLabelValues(resource).Inc()
}

// RecordNarrative は文章生成の結果とレイテンシを記録する。
func (c *Collector) RecordNarrative(success bool, latency time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.narrativeTotal.WithLabelValues(result).Inc()
	c.narrativeLatency.Observe(latency.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordJobSubmitted(kind, jobType string)                       {}
func (Nop) RecordJobFinished(kind, status string, duration time.Duration) {}
func (Nop) RecordJobRetried(kind string)                                  {}
func (Nop) RecordQuotaRejected(resource string)                           {}
func (Nop) RecordNarrative(success bool, latency time.Duration)           {}
func (Nop) RecordHTTPStatus(statusCode int)                               {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
