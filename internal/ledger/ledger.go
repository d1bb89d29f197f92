// Package ledger is the virtual position and wallet ledger. Every mutation
// runs in one store transaction so a position transition and its wallet
// effects are applied together or not at all.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-trader/internal/audit"
	"signal-trader/internal/capital"
	"signal-trader/internal/errors"
	"signal-trader/internal/logging"
	"signal-trader/internal/metrics"
	"signal-trader/internal/models"
	"signal-trader/internal/money"
	"signal-trader/internal/store"
	"signal-trader/pkg/utils"
)

// Config holds ledger configuration.
type Config struct {
	WalletID       string  `mapstructure:"wallet_id"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	// CreditShortfall tops up the wallet when a forced single-lot order
	// costs more than the available margin. When false such orders are
	// rejected with ErrInsufficientFunds.
	CreditShortfall bool `mapstructure:"credit_shortfall"`
}

// DefaultConfig returns the default ledger configuration.
func DefaultConfig() Config {
	return Config{
		WalletID:        "paper",
		InitialCapital:  1000000, // 10 lakhs
		CreditShortfall: true,
	}
}

// Ledger owns wallets, positions and the trade journal.
type Ledger struct {
	store       store.LedgerStore
	cfg         Config
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	audit       *audit.Logger
	invalidator capital.Invalidator
	now         func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics records ledger transitions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithAudit writes ledger events to a.
func WithAudit(a *audit.Logger) Option {
	return func(l *Ledger) { l.audit = a }
}

// WithInvalidator drops cached capital snapshots after wallet changes.
func WithInvalidator(inv capital.Invalidator) Option {
	return func(l *Ledger) { l.invalidator = inv }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger on st.
func New(st store.LedgerStore, cfg Config, logger zerolog.Logger, opts ...Option) *Ledger {
	if cfg.WalletID == "" {
		cfg.WalletID = DefaultConfig().WalletID
	}
	l := &Ledger{
		store:  st,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "ledger"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WalletID returns the configured default wallet.
func (l *Ledger) WalletID() string {
	return l.cfg.WalletID
}

// EnsureWallet creates the default wallet with the initial capital if it
// does not exist yet.
func (l *Ledger) EnsureWallet(ctx context.Context) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWallet(ctx, l.cfg.WalletID)
		if err == nil {
			wallet = w
			return nil
		}
		if !errors.Is(err, errors.ErrWalletNotFound) {
			return err
		}

		now := l.now()
		wallet = &models.Wallet{
			ID:              l.cfg.WalletID,
			Capital:         l.cfg.InitialCapital,
			AvailableMargin: l.cfg.InitialCapital,
			DayPnLDate:      utils.TradingDay(now),
			CreatedAt:       now,
			LastUpdated:     now,
			Version:         1,
		}
		if err := tx.CreateWallet(ctx, wallet); err != nil {
			return err
		}
		l.logger.Info().Str("wallet_id", wallet.ID).Float64("capital", wallet.Capital).Msg("Created paper wallet")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// Snapshot implements capital.Source. The default wallet is created on
// first read.
func (l *Ledger) Snapshot(ctx context.Context, walletID string) (capital.Snapshot, error) {
	if walletID == "" {
		walletID = l.cfg.WalletID
	}
	w, err := l.store.GetWallet(ctx, walletID)
	if errors.Is(err, errors.ErrWalletNotFound) && walletID == l.cfg.WalletID {
		w, err = l.EnsureWallet(ctx)
	}
	if err != nil {
		return capital.Snapshot{}, err
	}
	return capital.Snapshot{
		WalletID:  w.ID,
		Available: w.AvailableMargin,
		Capital:   w.Capital,
		Version:   w.Version,
		ReadAt:    l.now(),
	}, nil
}

// Open books an order as a new position. It is idempotent by signal: a
// second order for a signal that already has a position in the wallet
// returns that position with Fill.Duplicate set and changes nothing.
func (l *Ledger) Open(ctx context.Context, order *models.OrderRequest) (*models.Fill, error) {
	if order.WalletID == "" {
		order.WalletID = l.cfg.WalletID
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	log := logging.WithSignal(l.logger, order.SignalID, order.ScripCode)
	var (
		fill     *models.Fill
		pos      *models.Position
		wallet   *models.Wallet
		credited float64
	)

	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetPositionBySignal(ctx, order.WalletID, order.SignalID)
		if err == nil {
			fill = duplicateFill(existing)
			return nil
		}
		if !errors.Is(err, errors.ErrPositionNotFound) {
			return err
		}

		w, err := tx.GetWallet(ctx, order.WalletID)
		if err != nil {
			return err
		}
		if order.CapitalVersion != 0 && order.CapitalVersion != w.Version {
			return errors.Wrapf(errors.ErrStaleCapital, "sized at version %d, wallet at %d", order.CapitalVersion, w.Version)
		}

		now := l.now()
		rollDay(w, now)

		cost := money.Round2(order.Cost())
		if cost > w.AvailableMargin {
			if !l.cfg.CreditShortfall {
				return errors.NewOrderError(order.SignalID, order.ScripCode, string(order.Side),
					fmt.Sprintf("cost %.2f exceeds available %.2f", cost, w.AvailableMargin), errors.ErrInsufficientFunds)
			}
			credited = money.Add(cost, -w.AvailableMargin)
			w.Capital = money.Add(w.Capital, credited)
			w.AvailableMargin = money.Add(w.AvailableMargin, credited)
			w.CreditedCapital = money.Add(w.CreditedCapital, credited)
		}

		w.AvailableMargin = money.Add(w.AvailableMargin, -cost)
		w.OpenTrades++
		w.TotalTrades++
		w.LastUpdated = now

		p := newPosition(order, now)
		if err := tx.InsertPosition(ctx, p); err != nil {
			return err
		}
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}

		pos, wallet = p, w
		fill = &models.Fill{
			TradeID:    tradeID(p.ID),
			PositionID: p.ID,
			FillPrice:  p.AvgEntry,
			Quantity:   p.Quantity,
			FilledAt:   now,
		}
		return nil
	})

	if errors.Is(err, errors.ErrDuplicateSignal) {
		return l.duplicateAfterRace(ctx, order)
	}
	if err != nil {
		return nil, err
	}

	if fill.Duplicate {
		log.Info().Str("position_id", fill.PositionID).Msg("Signal already has a position")
		return fill, nil
	}

	if credited > 0 {
		log.Warn().Float64("credited", credited).Msg("Credited paper capital to cover order cost")
		l.metrics.ObserveCredit(credited)
		l.audit.LogPosition(ctx, audit.EventCapitalCredited, pos, map[string]interface{}{"amount": credited})
	}
	l.afterWalletChange(ctx, wallet)
	l.metrics.ObserveTransition("OPENED", 0)
	l.audit.LogPosition(ctx, audit.EventPositionOpened, pos, map[string]interface{}{
		"side":      pos.Side,
		"quantity":  pos.Quantity,
		"avg_entry": pos.AvgEntry,
		"stop_loss": pos.StopLoss,
		"targets":   pos.Targets,
	})
	logging.LogPositionEvent(log, pos.ID, pos.ScripCode, "OPENED", pos.Quantity, pos.AvgEntry, 0)
	return fill, nil
}

// duplicateAfterRace handles a concurrent open that won the unique index.
func (l *Ledger) duplicateAfterRace(ctx context.Context, order *models.OrderRequest) (*models.Fill, error) {
	positions, err := l.store.ListPositions(ctx, store.PositionFilter{WalletID: order.WalletID, SignalID: order.SignalID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, errors.Wrapf(errors.ErrPositionNotFound, "signal %s", order.SignalID)
	}
	return duplicateFill(&positions[0]), nil
}

// MarkPrice applies a new price to a position: stops, the first target's
// partial exit, the final target and the auto trail are evaluated in that
// order.
func (l *Ledger) MarkPrice(ctx context.Context, positionID string, price float64) (*models.Position, error) {
	if price <= 0 {
		return nil, errors.NewValidationError("price", price, "must be positive")
	}
	return l.mutate(ctx, positionID, "mark", func(p *models.Position, w *models.Wallet, now time.Time) ([]models.Trade, error) {
		return applyPrice(p, w, price, now), nil
	})
}

// MarkScrip marks every open position in the wallet on scrip.
func (l *Ledger) MarkScrip(ctx context.Context, walletID, scrip string, price float64) ([]models.Position, error) {
	if walletID == "" {
		walletID = l.cfg.WalletID
	}
	open, err := l.store.ListPositions(ctx, store.PositionFilter{WalletID: walletID, OpenOnly: true})
	if err != nil {
		return nil, err
	}

	var updated []models.Position
	for _, p := range open {
		if p.ScripCode != scrip {
			continue
		}
		np, err := l.MarkPrice(ctx, p.ID, price)
		if err != nil {
			return updated, err
		}
		updated = append(updated, *np)
	}
	return updated, nil
}

// UpdateTrailingStop moves a position's trailing stop. The stop may only
// tighten: up for LONG, down for SHORT. It may not cross the current price.
func (l *Ledger) UpdateTrailingStop(ctx context.Context, positionID string, stop float64) (*models.Position, error) {
	if stop <= 0 {
		return nil, errors.NewValidationError("stop", stop, "must be positive")
	}
	return l.mutate(ctx, positionID, "trail", func(p *models.Position, w *models.Wallet, now time.Time) ([]models.Trade, error) {
		effective, _ := p.EffectiveStop()
		if (stop-effective)*p.Side.Sign() < 0 {
			return nil, errors.NewInvariantViolation(p.ID, "trail",
				fmt.Sprintf("%.2f would loosen the stop from %.2f", stop, effective))
		}
		if p.CurrentPrice > 0 && (p.CurrentPrice-stop)*p.Side.Sign() <= 0 {
			return nil, errors.NewInvariantViolation(p.ID, "trail",
				fmt.Sprintf("%.2f is through the current price %.2f", stop, p.CurrentPrice))
		}
		ratchet(p, stop)
		return nil, nil
	})
}

// ClosePosition closes the remaining quantity at price, or at the last
// marked price when price is zero.
func (l *Ledger) ClosePosition(ctx context.Context, positionID string, price float64) (*models.Position, error) {
	if price < 0 {
		return nil, errors.NewValidationError("price", price, "must not be negative")
	}
	return l.mutate(ctx, positionID, "close", func(p *models.Position, w *models.Wallet, now time.Time) ([]models.Trade, error) {
		exitPrice := price
		if exitPrice == 0 {
			exitPrice = p.CurrentPrice
		}
		p.CurrentPrice = exitPrice
		return []models.Trade{exit(p, w, p.Quantity, exitPrice, models.ExitManual, now)}, nil
	})
}

type mutation func(p *models.Position, w *models.Wallet, now time.Time) ([]models.Trade, error)

// mutate loads a position and its wallet in one transaction, applies fn and
// writes back whatever changed. Closed positions are immutable.
func (l *Ledger) mutate(ctx context.Context, positionID, op string, fn mutation) (*models.Position, error) {
	var (
		pos    *models.Position
		wallet *models.Wallet
		trades []models.Trade
		moved  bool
	)

	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPosition(ctx, positionID)
		if err != nil {
			return err
		}
		if !p.Status.IsOpen() {
			return errors.NewInvariantViolation(p.ID, op, "position is closed")
		}
		w, err := tx.GetWallet(ctx, p.WalletID)
		if err != nil {
			return err
		}

		now := l.now()
		prevTrail := p.TrailingStop
		walletVersion := w.Version

		legs, err := fn(p, w, now)
		if err != nil {
			return err
		}
		moved = trailChanged(prevTrail, p.TrailingStop)

		p.LastUpdated = now
		if err := tx.UpdatePosition(ctx, p); err != nil {
			return err
		}
		for i := range legs {
			if err := tx.LogTrade(ctx, &legs[i]); err != nil {
				return err
			}
		}
		if len(legs) > 0 {
			w.LastUpdated = now
			if err := tx.UpdateWallet(ctx, w); err != nil {
				return err
			}
		}
		if w.Version == walletVersion {
			wallet = nil
		} else {
			wallet = w
		}
		pos, trades = p, legs
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvariantViolation) {
			l.logger.Warn().Err(err).Str("position_id", positionID).Str("op", op).Msg("Rejected ledger mutation")
			l.audit.LogRejected(ctx, positionID, op, err)
		}
		return nil, err
	}

	log := logging.WithPosition(l.logger, pos.ID)
	for _, t := range trades {
		l.metrics.ObserveTransition(string(t.ExitReason), t.PnL)
		logging.LogPositionEvent(log, pos.ID, pos.ScripCode, string(t.ExitReason), t.Quantity, t.ExitPrice, t.PnL)
		eventType := audit.EventPositionClosed
		if t.ExitReason == models.ExitPartialTarget {
			eventType = audit.EventPositionPartial
		}
		l.audit.LogPosition(ctx, eventType, pos, map[string]interface{}{
			"reason":     t.ExitReason,
			"quantity":   t.Quantity,
			"exit_price": t.ExitPrice,
			"pnl":        t.PnL,
			"trade_id":   t.ID,
		})
	}
	if moved {
		l.audit.LogPosition(ctx, audit.EventTrailingMoved, pos, map[string]interface{}{"trailing_stop": *pos.TrailingStop})
		log.Debug().Float64("trailing_stop", *pos.TrailingStop).Msg("Trailing stop moved")
	}
	if wallet != nil {
		l.afterWalletChange(ctx, wallet)
	}

	pos.ComputeUnrealized()
	return pos, nil
}

func (l *Ledger) afterWalletChange(ctx context.Context, w *models.Wallet) {
	l.metrics.SetOpenPositions(w.OpenTrades)
	if l.invalidator == nil {
		return
	}
	if err := l.invalidator.Invalidate(ctx, w.ID); err != nil {
		l.logger.Warn().Err(err).Str("wallet_id", w.ID).Msg("Failed to invalidate capital cache")
	}
}

// Wallet returns the wallet with its open positions and unrealized P&L
// computed from their last marked prices.
func (l *Ledger) Wallet(ctx context.Context, walletID string) (*models.Wallet, error) {
	if walletID == "" {
		walletID = l.cfg.WalletID
	}
	w, err := l.store.GetWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	open, err := l.store.ListPositions(ctx, store.PositionFilter{WalletID: walletID, OpenOnly: true})
	if err != nil {
		return nil, err
	}

	w.UnrealizedPnL = 0
	for i := range open {
		w.UnrealizedPnL += open[i].ComputeUnrealized()
	}
	w.UnrealizedPnL = money.Round2(w.UnrealizedPnL)
	w.Positions = open
	if w.DayPnLDate != utils.TradingDay(l.now()) {
		w.DayPnL = 0
	}
	return w, nil
}

// Position returns one position with unrealized P&L computed.
func (l *Ledger) Position(ctx context.Context, positionID string) (*models.Position, error) {
	p, err := l.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	p.ComputeUnrealized()
	return p, nil
}

// Positions lists a wallet's positions, newest first.
func (l *Ledger) Positions(ctx context.Context, walletID string, openOnly bool) ([]models.Position, error) {
	if walletID == "" {
		walletID = l.cfg.WalletID
	}
	positions, err := l.store.ListPositions(ctx, store.PositionFilter{WalletID: walletID, OpenOnly: openOnly})
	if err != nil {
		return nil, err
	}
	for i := range positions {
		positions[i].ComputeUnrealized()
	}
	return positions, nil
}

// Trades returns the wallet's journal, newest first.
func (l *Ledger) Trades(ctx context.Context, walletID string, limit int) ([]models.Trade, error) {
	if walletID == "" {
		walletID = l.cfg.WalletID
	}
	return l.store.GetTrades(ctx, store.TradeFilter{WalletID: walletID, Limit: limit})
}

func validateOrder(o *models.OrderRequest) error {
	switch {
	case o.SignalID == "":
		return errors.NewValidationError("signal_id", o.SignalID, "required")
	case o.Quantity <= 0:
		return errors.NewValidationError("quantity", o.Quantity, "must be positive")
	case o.Entry <= 0:
		return errors.NewValidationError("entry", o.Entry, "must be positive")
	case o.StopLoss <= 0:
		return errors.NewValidationError("stop_loss", o.StopLoss, "must be positive")
	case len(o.Targets) == 0:
		return errors.NewValidationError("targets", o.Targets, "at least one target required")
	}

	sign := o.PositionSide().Sign()
	if (o.Entry-o.StopLoss)*sign <= 0 {
		return errors.NewValidationError("stop_loss", o.StopLoss, "on the wrong side of entry")
	}
	prev := o.Entry
	for _, t := range o.Targets {
		if (t-prev)*sign <= 0 {
			return errors.NewValidationError("targets", o.Targets, "not ordered in the direction of profit")
		}
		prev = t
	}
	return nil
}

func newPosition(o *models.OrderRequest, now time.Time) *models.Position {
	return &models.Position{
		ID:              uuid.NewString(),
		WalletID:        o.WalletID,
		SignalID:        o.SignalID,
		ScripCode:       o.ScripCode,
		Symbol:          o.Symbol,
		Exchange:        o.Exchange,
		Mode:            o.Mode,
		Strike:          o.Strike,
		OptionType:      o.OptionType,
		Strategy:        o.Strategy,
		Side:            o.PositionSide(),
		Quantity:        o.Quantity,
		InitialQuantity: o.Quantity,
		LotSize:         o.LotSize,
		Multiplier:      o.Multiplier,
		AvgEntry:        o.Entry,
		CurrentPrice:    o.Entry,
		StopLoss:        o.StopLoss,
		Targets:         append([]float64(nil), o.Targets...),
		PartialClosePct: o.PartialClosePct,
		TrailPercent:    o.TrailPercent,
		Status:          models.StatusActive,
		OpenedAt:        now,
		LastUpdated:     now,
		Version:         1,
	}
}

func duplicateFill(p *models.Position) *models.Fill {
	return &models.Fill{
		TradeID:    tradeID(p.ID),
		PositionID: p.ID,
		FillPrice:  p.AvgEntry,
		Quantity:   p.InitialQuantity,
		Duplicate:  true,
		FilledAt:   p.OpenedAt,
	}
}

func tradeID(positionID string) string {
	if len(positionID) > 8 {
		positionID = positionID[:8]
	}
	return "PAPER_" + positionID
}

func trailChanged(before, after *float64) bool {
	if after == nil {
		return false
	}
	return before == nil || *before != *after
}
