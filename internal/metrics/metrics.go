// Package metrics exposes Prometheus metrics for the engine, dispatcher and
// ledger. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	Registry *prometheus.Registry

	// Engine
	SizingDecisions *prometheus.CounterVec // labels: outcome=sized|insufficient|disabled
	Unavailable     *prometheus.CounterVec // labels: reason=plan|instrument|confidence
	Instruments     *prometheus.CounterVec // labels: mode

	// Dispatcher
	Executions       *prometheus.CounterVec // labels: state
	DispatchDuration prometheus.Histogram
	StaleRetries     prometheus.Counter
	BreakerState     prometheus.Gauge // 0=closed, 1=half-open, 2=open

	// Ledger
	Transitions   *prometheus.CounterVec // labels: reason
	OpenPositions prometheus.Gauge
	RealizedPnL   prometheus.Counter
	CreditedTotal prometheus.Counter
}

// New builds the metric set on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		SizingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_sizing_decisions_total",
			Help: "Sizing decisions by outcome",
		}, []string{"outcome"}),
		Unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_unavailable_actions_total",
			Help: "Signals whose trade action was disabled, by reason",
		}, []string{"reason"}),
		Instruments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_instrument_selections_total",
			Help: "Instrument selections by mode",
		}, []string{"mode"}),

		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_executions_total",
			Help: "Execution state transitions",
		}, []string{"state"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signaltrader_dispatch_duration_seconds",
			Help:    "Ledger submission latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		StaleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_stale_capital_retries_total",
			Help: "Orders re-sized after the wallet moved under them",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaltrader_ledger_breaker_state",
			Help: "Ledger circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),

		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_position_transitions_total",
			Help: "Position lifecycle transitions by reason",
		}, []string{"reason"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaltrader_open_positions",
			Help: "Open positions across wallets",
		}),
		RealizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_realized_profit_total",
			Help: "Sum of positive realized P&L legs in rupees",
		}),
		CreditedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_paper_credit_total",
			Help: "Paper capital credited to cover insufficient funds",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SizingDecisions,
		m.Unavailable,
		m.Instruments,
		m.Executions,
		m.DispatchDuration,
		m.StaleRetries,
		m.BreakerState,
		m.Transitions,
		m.OpenPositions,
		m.RealizedPnL,
		m.CreditedTotal,
	)
	return m
}

// ObserveSizing records a sizing outcome.
func (m *Metrics) ObserveSizing(disabled, insufficient bool) {
	if m == nil {
		return
	}
	switch {
	case disabled:
		m.SizingDecisions.WithLabelValues("disabled").Inc()
	case insufficient:
		m.SizingDecisions.WithLabelValues("insufficient").Inc()
	default:
		m.SizingDecisions.WithLabelValues("sized").Inc()
	}
}

// ObserveUnavailable records a disabled trade action.
func (m *Metrics) ObserveUnavailable(reason string) {
	if m == nil {
		return
	}
	m.Unavailable.WithLabelValues(reason).Inc()
}

// ObserveInstrument records an instrument selection.
func (m *Metrics) ObserveInstrument(mode string) {
	if m == nil {
		return
	}
	m.Instruments.WithLabelValues(mode).Inc()
}

// ObserveExecution records an execution entering state.
func (m *Metrics) ObserveExecution(state string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(state).Inc()
}

// ObserveDispatch records ledger submission latency.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}

// ObserveStaleRetry counts a re-size after a stale capital read.
func (m *Metrics) ObserveStaleRetry() {
	if m == nil {
		return
	}
	m.StaleRetries.Inc()
}

// SetBreakerState publishes the ledger breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// ObserveTransition records a position transition and its realized P&L.
func (m *Metrics) ObserveTransition(reason string, pnl float64) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(reason).Inc()
	if pnl > 0 {
		m.RealizedPnL.Add(pnl)
	}
}

// SetOpenPositions publishes the open position count.
func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

// ObserveCredit records paper capital credited to a wallet.
func (m *Metrics) ObserveCredit(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.CreditedTotal.Add(amount)
}

// Handler returns the promhttp handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Router returns the HTTP routes served next to the trader: /metrics and
// a /healthz liveness probe.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve exposes Router on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: m.Router(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
