// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスとミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginSuccess(slug string)
	RecordLoginFailure(slug string, reason string)
	RecordSessionVerify(result string)
	RecordUserUpserted()
	RecordWebhookDelivery(success bool)
	ObserveOAuthRequest(operation string, seconds float64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    *prometheus.CounterVec
	loginFail       *prometheus.CounterVec
	sessionVerify   *prometheus.CounterVec
	usersUpserted   prometheus.Counter
	webhookDelivery *prometheus.CounterVec
	oauthDuration   *prometheus.HistogramVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_login_success_total",
			Help: "テナント別ログイン成功の合計数",
		}, []string{"tenant_slug"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_login_fail_total",
			Help: "テナント別・理由別ログイン失敗の合計数",
		}, []string{"tenant_slug", "reason"}),
		sessionVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_session_verify_total",
			Help: "セッション検証の結果別合計数",
		}, []string{"result"}),
		usersUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildgate_users_upserted_total",
			Help: "アップサートされたユーザーレコードの合計数",
		}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_webhook_delivery_total",
			Help: "Webhookログイン通知の配信結果別合計数",
		}, []string{"result"}),
		oauthDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildgate_oauth_request_duration_seconds",
			Help:    "Discord API呼び出しの所要時間(秒)",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.sessionVerify,
		c.usersUpserted,
		c.webhookDelivery,
		c.oauthDuration,
	)

	return c
}

// RecordLoginSuccess はテナントログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(slug string) {
	c.loginSuccess.WithLabelValues(slug).Inc()
}

// RecordLoginFailure はテナントログイン失敗を理由コード付きで記録する。
func (c *Collector) RecordLoginFailure(slug string, reason string) {
	c.loginFail.WithLabelValues(slug, reason).Inc()
}

// RecordSessionVerify はセッション検証の結果を記録する。
// resultは "ok" / "invalid" / "expired" のいずれか。
func (c *Collector) RecordSessionVerify(result string) {
	c.sessionVerify.WithLabelValues(result).Inc()
}

// RecordUserUpserted はユーザーレコードのアップサートを記録する。
func (c *Collector) RecordUserUpserted() {
	c.usersUpserted.Inc()
}

// RecordWebhookDelivery はWebhook通知の配信結果を記録する。
func (c *Collector) RecordWebhookDelivery(success bool) {
	result := "ok"
	if !success {
		result = "fail"
	}
	c.webhookDelivery.WithLabelValues(result).Inc()
}

// ObserveOAuthRequest はDiscord API呼び出しの所要時間を記録する。
// operationは "exchange" / "user" / "member" のいずれか。
func (c *Collector) ObserveOAuthRequest(operation string, seconds float64) {
	c.oauthDuration.WithLabelValues(operation).Observe(seconds)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
