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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordAuthEvent(kind string)
	RecordSnapshotDelivered(collection string)
	RecordUploadSuccess()
	RecordUploadFailure()
	RecordUploadLatency(duration time.Duration)
	RecordRemoveBGCall(success bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents    *prometheus.CounterVec
	snapshots     *prometheus.CounterVec
	uploadSuccess prometheus.Counter
	uploadFail    prometheus.Counter
	uploadLatency prometheus.Histogram
	removeBGCalls *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallxpress_auth_events_total",
			Help: "認証イベントの種別ごとの合計数",
		}, []string{"kind"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallxpress_snapshots_delivered_total",
			Help: "購読者へ配信されたスナップショットの合計数",
		}, []string{"collection"}),
		uploadSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallxpress_upload_success_total",
			Help: "画像アップロード成功の合計数",
		}),
		uploadFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallxpress_upload_fail_total",
			Help: "画像アップロード失敗の合計数",
		}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallxpress_upload_latency_seconds",
			Help:    "画像アップロードのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		removeBGCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallxpress_removebg_calls_total",
			Help: "背景除去API呼び出しの結果別合計数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallxpress_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authEvents,
		c.snapshots,
		c.uploadSuccess,
		c.uploadFail,
		c.uploadLatency,
		c.removeBGCalls,
		c.httpStatus,
	)

	return c
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(kind string) {
	c.authEvents.WithLabelValues(kind).Inc()
}

// RecordSnapshotDelivered はスナップショット配信を記録する。
func (c *Collector) RecordSnapshotDelivered(collection string) {
	c.snapshots.WithLabelValues(collection).Inc()
}

// RecordUploadSuccess はアップロード成功を記録する。
func (c *Collector) RecordUploadSuccess() {
	c.uploadSuccess.Inc()
}

// RecordUploadFailure はアップロード失敗を記録する。
func (c *Collector) RecordUploadFailure() {
	c.uploadFail.Inc()
}

// RecordUploadLatency はアップロードのレイテンシを記録する。
func (c *Collector) RecordUploadLatency(duration time.Duration) {
	c.uploadLatency.Observe(duration.Seconds())
}

// RecordRemoveBGCall は背景除去API呼び出しの結果を記録する。
func (c *Collector) RecordRemoveBGCall(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.removeBGCalls.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
