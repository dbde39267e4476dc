// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、パイプライン、ワーカーの各層から利用する。
type MetricsCollector interface {
	RecordWebhookEvent(eventType, result string)
	RecordCascadePatch(success bool)
	RecordRepairedRows(count int64)
	RecordPipelineFailure(stage string)
	RecordUploadBytes(n int)
	RecordHTTPStatus(statusCode int)
	RecordViewIncrement()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookEvents  *prometheus.CounterVec
	cascadePatches *prometheus.CounterVec
	repairedRows   prometheus.Counter
	pipelineFail   *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	httpStatus     *prometheus.CounterVec
	viewIncrements prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castman_webhook_events_total",
			Help: "受信したWebhookイベントのタイプ・結果別の合計数",
		}, []string{"event_type", "result"}),
		cascadePatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castman_cascade_patches_total",
			Help: "著者画像カスケードパッチの結果別の合計数",
		}, []string{"result"}),
		repairedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castman_repaired_rows_total",
			Help: "修復ジョブが収束させた非正規化行の合計数",
		}),
		pipelineFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castman_pipeline_failures_total",
			Help: "メディアパイプラインの段階別失敗の合計数",
		}, []string{"stage"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castman_upload_bytes_total",
			Help: "耐久ストアへアップロードしたバイト数の合計",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castman_upstream_http_responses_total",
			Help: "外部コラボレータからのHTTPレスポンスのステータスコード別合計数",
		}, []string{"code"}),
		viewIncrements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castman_view_increments_total",
			Help: "再生カウンタ加算の合計数",
		}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.cascadePatches,
		c.repairedRows,
		c.pipelineFail,
		c.uploadBytes,
		c.httpStatus,
		c.viewIncrements,
	)

	return c
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
// resultは applied / rejected / ignored / conflict のいずれか。
func (c *Collector) RecordWebhookEvent(eventType, result string) {
	c.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordCascadePatch はカスケードパッチの成否を記録する。
func (c *Collector) RecordCascadePatch(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.cascadePatches.WithLabelValues(result).Inc()
}

// RecordRepairedRows は修復ジョブが更新した行数を記録する。
func (c *Collector) RecordRepairedRows(count int64) {
	c.repairedRows.Add(float64(count))
}

// RecordPipelineFailure はパイプラインの段階別失敗を記録する。
func (c *Collector) RecordPipelineFailure(stage string) {
	c.pipelineFail.WithLabelValues(stage).Inc()
}

// RecordUploadBytes は耐久ストアへアップロードしたバイト数を記録する。
func (c *Collector) RecordUploadBytes(n int) {
	c.uploadBytes.Add(float64(n))
}

// RecordHTTPStatus は外部コラボレータからのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordViewIncrement は再生カウンタ加算を記録する。
func (c *Collector) RecordViewIncrement() {
	c.viewIncrements.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
