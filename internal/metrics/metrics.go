// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventRecorder はメトリクス収集のインターフェース。
// 認証サービスや変更パイプラインから利用する。
type EventRecorder interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordTokenRejected()
	RecordMutation(action string, table string)
	RecordMutationRejected(reason string)
	RecordAuditWritten(action string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess     prometheus.Counter
	loginFail        prometheus.Counter
	tokenRejected    prometheus.Counter
	mutations        *prometheus.CounterVec
	mutationRejected *prometheus.CounterVec
	auditWritten     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerbook_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerbook_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		tokenRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerbook_token_rejected_total",
			Help: "検証で拒否されたトークンの合計数",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_mutations_total",
			Help: "コミットされた変更操作の合計数",
		}, []string{"action", "table"}),
		mutationRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_mutations_rejected_total",
			Help: "拒否された変更操作の合計数",
		}, []string{"reason"}),
		auditWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_audit_records_total",
			Help: "書き込まれた監査レコードの合計数",
		}, []string{"action"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerbook_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerbook_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.tokenRejected,
		c.mutations,
		c.mutationRejected,
		c.auditWritten,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordTokenRejected はトークン検証の拒否を記録する。
func (c *Collector) RecordTokenRejected() {
	c.tokenRejected.Inc()
}

// RecordMutation はコミットされた変更操作を記録する。
func (c *Collector) RecordMutation(action string, table string) {
	c.mutations.WithLabelValues(action, table).Inc()
}

// RecordMutationRejected は拒否された変更操作を記録する。
func (c *Collector) RecordMutationRejected(reason string) {
	c.mutationRejected.WithLabelValues(reason).Inc()
}

// RecordAuditWritten は監査レコードの書き込みを記録する。
func (c *Collector) RecordAuditWritten(action string) {
	c.auditWritten.WithLabelValues(action).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないEventRecorder。テスト用。
type Nop struct{}

func (Nop) RecordLoginSuccess()                  {}
func (Nop) RecordLoginFailure()                  {}
func (Nop) RecordTokenRejected()                 {}
func (Nop) RecordMutation(action, table string)  {}
func (Nop) RecordMutationRejected(reason string) {}
func (Nop) RecordAuditWritten(action string)     {}
func (Nop) RecordHTTPStatus(statusCode int)      {}
func (Nop) RecordRequestLatency(d time.Duration) {}

var _ EventRecorder = (*Collector)(nil)
var _ EventRecorder = Nop{}
