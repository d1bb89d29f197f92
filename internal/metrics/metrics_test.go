package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSizing(false, true)
	m.ObserveExecution("FILLED")
	m.ObserveTransition("STOP_HIT", -10)
	m.SetOpenPositions(3)
}

func TestObserveSizing(t *testing.T) {
	m := New()
	m.ObserveSizing(true, false)
	m.ObserveSizing(false, true)
	m.ObserveSizing(false, false)
	m.ObserveSizing(false, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SizingDecisions.WithLabelValues("disabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SizingDecisions.WithLabelValues("insufficient")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SizingDecisions.WithLabelValues("sized")))
}

func TestObserveTransitionCountsOnlyProfit(t *testing.T) {
	m := New()
	m.ObserveTransition("TARGET_HIT", 1200)
	m.ObserveTransition("STOP_HIT", -600)

	assert.Equal(t, 1200.0, testutil.ToFloat64(m.RealizedPnL))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("STOP_HIT")))
}

func TestRouter(t *testing.T) {
	m := New()
	m.ObserveExecution("FILLED")
	router := m.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "signaltrader_executions_total"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
