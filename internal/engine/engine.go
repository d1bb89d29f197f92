// Package engine turns a scored equity signal into a sized, level-mapped
// derivative order. Everything here is pure: the capital snapshot is passed
// in and no state survives between evaluations.
package engine

import (
	"github.com/rs/zerolog"

	"signal-trader/internal/capital"
	"signal-trader/internal/errors"
	"signal-trader/internal/logging"
	"signal-trader/internal/metrics"
	"signal-trader/internal/models"
)

// Config groups the engine's tunables.
type Config struct {
	Sizing   SizingPolicy
	Resolver ResolverConfig
	Profiles map[string]Profile
}

// DefaultConfig returns the built-in engine configuration.
func DefaultConfig() Config {
	return Config{
		Sizing:   DefaultSizingPolicy(),
		Resolver: DefaultResolverConfig(),
		Profiles: DefaultProfiles(),
	}
}

// Ticket is the result of evaluating one signal. When Err is set the trade
// action is unavailable and Order is nil.
type Ticket struct {
	Signal    models.Signal              `json:"signal"`
	Profile   Profile                    `json:"profile"`
	Plan      models.TradePlan           `json:"plan"`
	Selection models.InstrumentSelection `json:"selection"`
	Levels    MappedLevels               `json:"levels"`
	Sizing    models.PositionSizing      `json:"sizing"`
	Capital   capital.Snapshot           `json:"capital"`
	Order     *models.OrderRequest       `json:"order,omitempty"`
	Err       error                      `json:"-"`
}

// Available reports whether the ticket carries a submittable order.
func (t *Ticket) Available() bool {
	return t.Err == nil && t.Order != nil
}

// Engine evaluates signals against a capital snapshot.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records engine decisions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = DefaultProfiles()
	}
	e := &Engine{cfg: cfg, logger: logging.WithComponent(logger, "engine")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns the profile used for a strategy tag.
func (e *Engine) Profile(tag string) Profile {
	return ProfileFor(e.cfg.Profiles, tag)
}

// Evaluate runs plan, instrument, mapping and sizing for one signal.
func (e *Engine) Evaluate(sig models.Signal, snap capital.Snapshot) Ticket {
	log := logging.WithSignal(e.logger, sig.ID, sig.ScripCode)
	t := Ticket{Signal: sig, Profile: e.Profile(sig.Strategy), Capital: snap}

	plan, err := BuildPlan(&sig, t.Profile)
	if err != nil {
		return e.unavailable(log, t, "plan", err)
	}
	t.Plan = plan

	sel := ResolveInstrument(&sig, plan, e.cfg.Resolver)
	t.Selection = sel
	e.metrics.ObserveInstrument(string(sel.Mode))
	if !sel.Tradable() {
		return e.unavailable(log, t, "instrument", errors.Wrap(errors.ErrNoInstrument, sel.Reason))
	}

	switch sel.Mode {
	case models.ModeOption:
		t.Plan.Strike = sel.Strike
		t.Plan.StrikeInterval = StrikeInterval(plan.Entry)
		delta := ApproxDelta(plan.Entry, sel.Strike, sel.OptionType)
		t.Levels, err = MapLevels(plan, sel.Premium, delta)
	case models.ModeFutures:
		t.Levels, err = MapFuturesLevels(plan, sel.Premium)
	}
	if err != nil {
		return e.unavailable(log, t, "plan", err)
	}

	confidence := t.Profile.NormalizeConfidence(sig.Confidence)
	t.Sizing = SizePosition(SizingInput{
		Confidence: confidence,
		Capital:    snap.Available,
		Premium:    sel.Premium,
		LotSize:    sel.LotSize,
		Multiplier: sel.Multiplier,
	}, e.cfg.Sizing)
	e.metrics.ObserveSizing(t.Sizing.Disabled, t.Sizing.InsufficientFunds)
	logging.LogSizing(log, sig.ID, confidence, snap.Available, t.Sizing.CostPerLot, t.Sizing.Lots, t.Sizing.InsufficientFunds)
	if t.Sizing.Disabled {
		return e.unavailable(log, t, "confidence", errors.Wrapf(errors.ErrBelowConfidence, "confidence %.1f", confidence))
	}
	if t.Sizing.InsufficientFunds {
		log.Warn().
			Float64("credit_amount", t.Sizing.CreditAmount).
			Float64("cost_per_lot", t.Sizing.CostPerLot).
			Msg("Insufficient funds, sizing one lot")
	}

	t.Order = buildOrder(&sig, t, snap, confidence)
	return t
}

func (e *Engine) unavailable(log zerolog.Logger, t Ticket, reason string, err error) Ticket {
	e.metrics.ObserveUnavailable(reason)
	log.Debug().Err(err).Str("reason", reason).Msg("Trade action unavailable")
	t.Err = err
	return t
}

func buildOrder(sig *models.Signal, t Ticket, snap capital.Snapshot, confidence float64) *models.OrderRequest {
	side := models.OrderSideBuy
	if t.Selection.Mode == models.ModeFutures && t.Plan.Direction == models.Bearish {
		side = models.OrderSideSell
	}
	return &models.OrderRequest{
		SignalID:        sig.ID,
		WalletID:        snap.WalletID,
		ScripCode:       t.Selection.ScripCode,
		Symbol:          sig.Symbol,
		Exchange:        t.Selection.Exchange,
		Mode:            t.Selection.Mode,
		Strike:          t.Selection.Strike,
		OptionType:      t.Selection.OptionType,
		Side:            side,
		Quantity:        t.Sizing.Quantity,
		Lots:            t.Sizing.Lots,
		LotSize:         t.Selection.LotSize,
		Multiplier:      t.Selection.Multiplier,
		Entry:           t.Levels.Entry,
		StopLoss:        t.Levels.StopLoss,
		Targets:         append([]float64(nil), t.Levels.Targets...),
		EquityEntry:     t.Plan.Entry,
		EquityStopLoss:  t.Plan.StopLoss,
		EquityTargets:   append([]float64(nil), t.Plan.Targets...),
		Delta:           t.Levels.Delta,
		Strategy:        t.Profile.Name,
		Direction:       t.Plan.Direction,
		Confidence:      confidence,
		CreditAmount:    t.Sizing.CreditAmount,
		CapitalVersion:  snap.Version,
		PartialClosePct: t.Profile.PartialClosePct,
		TrailPercent:    t.Profile.TrailPercent,
	}
}
