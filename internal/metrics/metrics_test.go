package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Login(200)
	m.Login(401)
	m.Refresh("ok")
	m.Refresh("ok")
	m.Refresh("NO_REFRESH_TOKEN")
	m.Logout("failed")
	m.CacheFailure("set")

	require.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("200")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.refreshes.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("NO_REFRESH_TOKEN")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.logouts.WithLabelValues("failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cacheFailures.WithLabelValues("set")))
}

func TestMetrics_Histograms(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Upstream("refresh", 200, 20*time.Millisecond)
	m.HTTP("/refresh", 200, 25*time.Millisecond)

	n, err := testutil.GatherAndCount(reg,
		"session_gateway_upstream_request_duration_seconds",
		"session_gateway_http_request_duration_seconds",
	)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.Login(200)
		m.Refresh("ok")
		m.Logout("ok")
		m.CacheFailure("get")
		m.Upstream("login", 200, time.Millisecond)
		m.HTTP("/login", 200, time.Millisecond)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
