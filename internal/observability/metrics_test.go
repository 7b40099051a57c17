package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reading("synced")
		m.Drained("synced")
		m.Frame("gas")
		m.SetSessionState("FAILED")
		m.CloudPush("influx", time.Millisecond, nil)
		m.SetBreakerState("cloud", 2)
		m.SetPending(3)
	})
}

func TestSessionStateIsOneHot(t *testing.T) {
	t.Parallel()
	m := NewMetrics(prometheus.NewRegistry())

	m.SetSessionState("AUTHENTICATED")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionState.WithLabelValues("AUTHENTICATED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionState.WithLabelValues("DISCONNECTED")))

	m.SetSessionState("FAILED")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionState.WithLabelValues("AUTHENTICATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionState.WithLabelValues("FAILED")))
}

func TestCountersAndHandler(t *testing.T) {
	t.Parallel()
	m := NewMetrics(nil)
	m.Reading("buffered")
	m.Reading("buffered")
	m.CloudPush("kafka", 10*time.Millisecond, errors.New("down"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsTotal.WithLabelValues("buffered")))

	h := m.WrapHandler("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sensorlink_readings_total{outcome="buffered"} 2`)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/metrics", "200")))
}
