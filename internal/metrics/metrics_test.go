package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("client", reg)

	m.ObserveRequest("POST", "/login", 200, 10*time.Millisecond)
	m.ObserveRequest("POST", "/login", 0, time.Millisecond)
	m.Renewal("success")
	m.Transition("authenticated")
	m.IdempotentReplay()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/login", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/login", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenewalsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("authenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdempotentReplaysTotal))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", "/profile", 200, time.Millisecond)
		m.Renewal("failure")
		m.Transition("anonymous")
		m.IdempotentReplay()
	})
}
