// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// チャットのコーディネーター層から利用する。
type MetricsCollector interface {
	RecordTurn()
	RecordCompletionFailure()
	RecordCompletionLatency(duration time.Duration)
	RecordStreamStarted()
	RecordStreamChunk()
	RecordStreamFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	turns             prometheus.Counter
	completionFail    prometheus.Counter
	completionLatency prometheus.Histogram
	streamsStarted    prometheus.Counter
	streamChunks      prometheus.Counter
	streamsFailed     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_turns_total",
			Help: "完了したチャットターンの合計数",
		}),
		completionFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_completion_fail_total",
			Help: "補完エンジン呼び出し失敗の合計数",
		}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatman_completion_latency_seconds",
			Help:    "補完エンジン呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		streamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_streams_started_total",
			Help: "開始されたストリーミングターンの合計数",
		}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_stream_chunks_total",
			Help: "ストリーミングで送出されたチャンクの合計数",
		}),
		streamsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatman_streams_failed_total",
			Help: "上流エラーで終了したストリーミングターンの合計数",
		}),
	}

	reg.MustRegister(
		c.turns,
		c.completionFail,
		c.completionLatency,
		c.streamsStarted,
		c.streamChunks,
		c.streamsFailed,
	)

	return c
}

// RecordTurn はチャットターンの完了を記録する。
func (c *Collector) RecordTurn() {
	c.turns.Inc()
}

// RecordCompletionFailure は補完エンジン呼び出し失敗を記録する。
func (c *Collector) RecordCompletionFailure() {
	c.completionFail.Inc()
}

// RecordCompletionLatency は補完エンジン呼び出しのレイテンシを記録する。
func (c *Collector) RecordCompletionLatency(duration time.Duration) {
	c.completionLatency.Observe(duration.Seconds())
}

// RecordStreamStarted はストリーミングターンの開始を記録する。
func (c *Collector) RecordStreamStarted() {
	c.streamsStarted.Inc()
}

// RecordStreamChunk はチャンク送出を記録する。
func (c *Collector) RecordStreamChunk() {
	c.streamChunks.Inc()
}

// RecordStreamFailure はストリーミングターンの上流エラー終了を記録する。
func (c *Collector) RecordStreamFailure() {
	c.streamsFailed.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
