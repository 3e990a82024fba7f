// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアント、セッションマネージャー、認証情報ストアから利用する。
type MetricsCollector interface {
	RecordAPIRequest(endpoint string, outcome string, duration time.Duration)
	RecordSessionTransition(from string, to string)
	SetAuthenticated(authenticated bool)
	RecordCredentialStoreError(op string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests        *prometheus.CounterVec
	apiLatency         prometheus.Histogram
	sessionTransitions *prometheus.CounterVec
	authenticated      prometheus.Gauge
	storeErrors        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobly_api_requests_total",
			Help: "Jobly APIへのリクエスト数（エンドポイント・結果別）",
		}, []string{"endpoint", "outcome"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobly_api_request_duration_seconds",
			Help:    "Jobly APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobly_session_transitions_total",
			Help: "セッション状態遷移の合計数",
		}, []string{"from", "to"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobly_session_authenticated",
			Help: "ログイン中であれば1、それ以外は0",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobly_credential_store_errors_total",
			Help: "認証情報ストアの操作失敗数",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.sessionTransitions,
		c.authenticated,
		c.storeErrors,
	)

	return c
}

// RecordAPIRequest はAPIリクエストの結果とレイテンシを記録する。
func (c *Collector) RecordAPIRequest(endpoint string, outcome string, duration time.Duration) {
	c.apiRequests.WithLabelValues(endpoint, outcome).Inc()
	c.apiLatency.Observe(duration.Seconds())
}

// RecordSessionTransition はセッション状態の遷移を記録する。
func (c *Collector) RecordSessionTransition(from string, to string) {
	c.sessionTransitions.WithLabelValues(from, to).Inc()
}

// SetAuthenticated はログイン状態ゲージを更新する。
func (c *Collector) SetAuthenticated(authenticated bool) {
	if authenticated {
		c.authenticated.Set(1)
		return
	}
	c.authenticated.Set(0)
}

// RecordCredentialStoreError は認証情報ストアの失敗を記録する。
func (c *Collector) RecordCredentialStoreError(op string) {
	c.storeErrors.WithLabelValues(op).Inc()
}

// Noop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Noop struct{}

func (Noop) RecordAPIRequest(string, string, time.Duration) {}
func (Noop) RecordSessionTransition(string, string)         {}
func (Noop) SetAuthenticated(bool)                          {}
func (Noop) RecordCredentialStoreError(string)              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
