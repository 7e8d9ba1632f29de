// metrics — Prometheus-метрики шлюза сессий.
//
// Все методы безопасны для nil-получателя: сервисы и тесты могут работать
// без метрик.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "session_gateway"

// Metrics — набор коллекторов шлюза.
type Metrics struct {
	logins           *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	logouts          *prometheus.CounterVec
	cacheFailures    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	httpDuration     *prometheus.HistogramVec
}

// New создаёт коллекторы и регистрирует их в reg.
// Ошибка регистрации (дубликат) паникует, как prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by upstream status code.",
		}, []string{"code"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Logouts by upstream outcome.",
		}, []string{"upstream"}),
		cacheFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_failures_total",
			Help:      "Absorbed session cache failures by operation.",
		}, []string{"op"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Issuer call latency by operation and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Lifecycle route latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		m.logins,
		m.refreshes,
		m.logouts,
		m.cacheFailures,
		m.upstreamDuration,
		m.httpDuration,
	)

	return m
}

// Login учитывает попытку логина по статусу issuer'а (0 — issuer недоступен).
func (m *Metrics) Login(status int) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Refresh учитывает исход refresh: "ok" или код ошибки (NO_REFRESH_TOKEN и т.п.).
func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// Logout учитывает logout по исходу вызова issuer'а ("ok" / "failed").
func (m *Metrics) Logout(upstream string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(upstream).Inc()
}

// CacheFailure учитывает поглощённую ошибку кэша.
func (m *Metrics) CacheFailure(op string) {
	if m == nil {
		return
	}
	m.cacheFailures.WithLabelValues(op).Inc()
}

// Upstream фиксирует длительность вызова issuer'а.
func (m *Metrics) Upstream(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(op, strconv.Itoa(status)).Observe(d.Seconds())
}

// HTTP фиксирует длительность обработки маршрута.
func (m *Metrics) HTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}
