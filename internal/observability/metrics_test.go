package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Independent(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()

	a.UpstreamCallsTotal.WithLabelValues("run", "piston", "ok").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.UpstreamCallsTotal.WithLabelValues("run", "piston", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.UpstreamCallsTotal.WithLabelValues("run", "piston", "ok")))
}

func TestNewMetrics_Gathers(t *testing.T) {
	m := NewMetrics()
	m.HTTPRequestsTotal.WithLabelValues("/run", "POST", "200").Inc()
	m.UpstreamLatency.WithLabelValues("ask", "some/model").Observe(1.5)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["relay_http_requests_total"])
	assert.True(t, names["relay_upstream_latency_seconds"])
	assert.True(t, names["go_goroutines"])
}
