// Package dispatch submits engine tickets to the ledger and tracks each
// submission through SENDING, FILLED, ERROR and DISMISSED.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-trader/internal/audit"
	"signal-trader/internal/capital"
	"signal-trader/internal/engine"
	"signal-trader/internal/errors"
	"signal-trader/internal/logging"
	"signal-trader/internal/metrics"
	"signal-trader/internal/models"
	"signal-trader/pkg/utils"
)

// Opener is the ledger boundary.
type Opener interface {
	Open(ctx context.Context, order *models.OrderRequest) (*models.Fill, error)
}

// Config holds dispatcher configuration.
type Config struct {
	WalletID     string        `mapstructure:"wallet_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DismissAfter time.Duration `mapstructure:"dismiss_after"`
	// StaleAttempts bounds re-sizing after the wallet moved under a ticket.
	StaleAttempts int           `mapstructure:"stale_attempts"`
	StaleBackoff  time.Duration `mapstructure:"stale_backoff"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		WalletID:      "paper",
		Timeout:       5 * time.Second,
		DismissAfter:  3 * time.Second,
		StaleAttempts: 3,
		StaleBackoff:  10 * time.Millisecond,
		Breaker:       DefaultBreakerConfig(),
	}
}

// Dispatcher runs signals through the engine and submits the resulting
// orders to the ledger.
type Dispatcher struct {
	engine      *engine.Engine
	ledger      Opener
	capital     capital.Source
	invalidator capital.Invalidator
	breaker     *CircuitBreaker
	cfg         Config
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	audit       *audit.Logger
	observer    func(ExecutionStatus)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records dispatch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAudit writes order events to a.
func WithAudit(a *audit.Logger) Option {
	return func(d *Dispatcher) { d.audit = a }
}

// WithInvalidator drops a cached snapshot before re-reading capital.
func WithInvalidator(inv capital.Invalidator) Option {
	return func(d *Dispatcher) { d.invalidator = inv }
}

// WithObserver is called on every execution state change.
func WithObserver(fn func(ExecutionStatus)) Option {
	return func(d *Dispatcher) { d.observer = fn }
}

// New creates a Dispatcher.
func New(eng *engine.Engine, led Opener, src capital.Source, cfg Config, logger zerolog.Logger, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.WalletID == "" {
		cfg.WalletID = def.WalletID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.StaleAttempts <= 0 {
		cfg.StaleAttempts = def.StaleAttempts
	}

	d := &Dispatcher{
		engine:  eng,
		ledger:  led,
		capital: src,
		cfg:     cfg,
		logger:  logging.WithComponent(logger, "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.breaker = NewCircuitBreaker("ledger", cfg.Breaker, isRejection, func(s CircuitState) {
		d.metrics.SetBreakerState(s.Gauge())
		d.logger.Warn().Str("breaker", d.breaker.Name()).Str("state", string(s)).Msg("Circuit breaker changed state")
	})
	return d
}

// Breaker exposes the ledger circuit breaker.
func (d *Dispatcher) Breaker() *CircuitBreaker {
	return d.breaker
}

// Evaluate reads capital and evaluates sig without submitting anything.
func (d *Dispatcher) Evaluate(ctx context.Context, sig models.Signal) (engine.Ticket, error) {
	snap, err := d.capital.Snapshot(ctx, d.cfg.WalletID)
	if err != nil {
		return engine.Ticket{Signal: sig}, errors.Wrap(err, "reading capital")
	}
	return d.engine.Evaluate(sig, snap), nil
}

// Trade evaluates sig against fresh capital and dispatches the order. When
// the action is unavailable the ticket carries the reason, the returned
// execution is nil and so is the error.
func (d *Dispatcher) Trade(ctx context.Context, sig models.Signal) (*Execution, engine.Ticket, error) {
	ticket, err := d.Evaluate(ctx, sig)
	if err != nil {
		return nil, ticket, err
	}
	if !ticket.Available() {
		return nil, ticket, nil
	}
	exec, err := d.Dispatch(ctx, ticket)
	return exec, ticket, err
}

// Dispatch submits an available ticket. The returned execution is FILLED
// or ERROR; on ERROR the error is a *errors.DispatchError and no ledger
// mutation was applied. Failures are not retried. A stale capital read is
// resolved inside SENDING by re-reading capital and re-sizing.
func (d *Dispatcher) Dispatch(ctx context.Context, ticket engine.Ticket) (*Execution, error) {
	if !ticket.Available() {
		return nil, errors.Wrap(errors.ErrActionDisabled, "ticket has no order")
	}

	id := uuid.NewString()
	ctx = logging.WithExecutionID(ctx, id)
	log := logging.WithSignal(d.logger, ticket.Signal.ID, ticket.Order.ScripCode).With().Str("execution_id", id).Logger()

	exec := newExecution(id, ticket.Signal.ID, d.observer)
	d.metrics.ObserveExecution(string(StateSending))
	logging.LogExecution(log, id, ticket.Signal.ID, string(StateSending), nil)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	fill, order, err := d.submit(ctx, exec, ticket, log)
	d.metrics.ObserveDispatch(time.Since(start))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(errors.ErrTimeout, "ledger did not answer within %s: %v", d.cfg.Timeout, err)
		}
		derr := errors.NewDispatchError(id, ticket.Signal.ID, "order not accepted", err)
		exec.failed(derr)
		d.metrics.ObserveExecution(string(StateError))
		d.audit.LogOrder(ctx, audit.EventOrderFailed, order, nil, derr)
		logging.LogExecution(log, id, ticket.Signal.ID, string(StateError), derr)
		return exec, derr
	}

	eventType := audit.EventOrderFilled
	if fill.Duplicate {
		eventType = audit.EventOrderDuplicate
	}
	d.audit.LogOrder(ctx, eventType, order, fill, nil)

	exec.filled(fill, d.cfg.DismissAfter)
	d.metrics.ObserveExecution(string(StateFilled))
	logging.LogExecution(log.With().Str("trade_id", fill.TradeID).Bool("duplicate", fill.Duplicate).Logger(),
		id, ticket.Signal.ID, string(StateFilled), nil)
	return exec, nil
}

// submit opens the order, re-sizing against fresh capital while the ledger
// reports the snapshot as stale.
func (d *Dispatcher) submit(ctx context.Context, exec *Execution, ticket engine.Ticket, log zerolog.Logger) (*models.Fill, *models.OrderRequest, error) {
	order := ticket.Order
	attempt := 0

	retry := utils.RetryConfig{
		MaxAttempts:   d.cfg.StaleAttempts,
		InitialDelay:  d.cfg.StaleBackoff,
		MaxDelay:      d.cfg.StaleBackoff * 10,
		BackoffFactor: 2,
		ShouldRetry:   func(err error) bool { return errors.Is(err, errors.ErrStaleCapital) },
	}

	fill, err := utils.RetryWithResult(ctx, retry, func() (*models.Fill, error) {
		attempt++
		if attempt > 1 {
			d.metrics.ObserveStaleRetry()
			resized, err := d.resize(ctx, ticket)
			if err != nil {
				return nil, err
			}
			order = resized
			log.Info().Int("attempt", attempt).Int64("capital_version", order.CapitalVersion).
				Int("lots", order.Lots).Msg("Re-sized after stale capital read")
		}
		exec.setAttempt(order, attempt)
		d.audit.LogOrder(ctx, audit.EventOrderSubmitted, order, nil, nil)

		var fill *models.Fill
		err := d.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			fill, err = d.ledger.Open(ctx, order)
			return err
		})
		return fill, err
	})
	return fill, order, err
}

// resize re-reads capital and re-evaluates the ticket's signal. A signal
// that is no longer tradable at the new capital stops the retry loop.
func (d *Dispatcher) resize(ctx context.Context, ticket engine.Ticket) (*models.OrderRequest, error) {
	walletID := ticket.Capital.WalletID
	if walletID == "" {
		walletID = d.cfg.WalletID
	}
	if d.invalidator != nil {
		if err := d.invalidator.Invalidate(ctx, walletID); err != nil {
			d.logger.Warn().Err(err).Str("wallet_id", walletID).Msg("Failed to invalidate capital cache")
		}
	}
	snap, err := d.capital.Snapshot(ctx, walletID)
	if err != nil {
		return nil, errors.Wrap(err, "re-reading capital")
	}
	next := d.engine.Evaluate(ticket.Signal, snap)
	if !next.Available() {
		return nil, errors.Wrap(next.Err, "re-sizing")
	}
	return next.Order, nil
}

// isRejection reports business rejections that say nothing about ledger
// health.
func isRejection(err error) bool {
	return errors.Is(err, errors.ErrStaleCapital) ||
		errors.Is(err, errors.ErrInsufficientFunds) ||
		errors.Is(err, errors.ErrInputValidation) ||
		errors.Is(err, errors.ErrInvariantViolation) ||
		errors.IsUnavailable(err)
}
