package ledger

import (
	"math"
	"time"

	"github.com/google/uuid"

	"signal-trader/internal/models"
	"signal-trader/internal/money"
	"signal-trader/pkg/utils"
)

// applyPrice marks p at price and books whatever exits the price triggers.
func applyPrice(p *models.Position, w *models.Wallet, price float64, now time.Time) []models.Trade {
	p.CurrentPrice = price
	if p.TP1Hit {
		autoTrail(p, price)
	}

	if stop, trailing := p.EffectiveStop(); stopReached(p.Side, price, stop) {
		reason := models.ExitStopHit
		if trailing {
			reason = models.ExitTrailingStopHit
		}
		return []models.Trade{exit(p, w, p.Quantity, stop, reason, now)}
	}

	var legs []models.Trade
	if !p.TP1Hit && len(p.Targets) > 0 && targetReached(p.Side, price, p.Targets[0]) {
		t1 := p.Targets[0]
		closeQty := partialQuantity(p)
		if closeQty == 0 || len(p.Targets) == 1 {
			return []models.Trade{exit(p, w, p.Quantity, bestTarget(p, price), models.ExitTargetHit, now)}
		}

		legs = append(legs, exit(p, w, closeQty, t1, models.ExitPartialTarget, now))
		p.TP1Hit = true
		ratchet(p, p.AvgEntry)
		autoTrail(p, price)
	}

	if p.TP1Hit && len(p.Targets) > 1 && targetReached(p.Side, price, p.FinalTarget()) {
		legs = append(legs, exit(p, w, p.Quantity, p.FinalTarget(), models.ExitTargetHit, now))
	}
	return legs
}

// bestTarget returns the furthest target price has reached. Targets are
// ordered away from entry, so the first one missed ends the scan.
func bestTarget(p *models.Position, price float64) float64 {
	best := p.Targets[0]
	for _, t := range p.Targets[1:] {
		if !targetReached(p.Side, price, t) {
			break
		}
		best = t
	}
	return best
}

// partialQuantity returns the whole-lot quantity to close at the first
// target, or 0 when the position should close in full instead.
func partialQuantity(p *models.Position) int {
	if p.PartialClosePct <= 0 || p.PartialClosePct >= 100 {
		return 0
	}
	lot := p.LotSize
	if lot <= 0 {
		lot = 1
	}
	lots := int(math.Floor(float64(p.Quantity) * p.PartialClosePct / 100 / float64(lot)))
	qty := lots * lot
	if qty <= 0 || qty >= p.Quantity {
		return 0
	}
	return qty
}

// autoTrail follows price by TrailPercent once the first target is in.
func autoTrail(p *models.Position, price float64) {
	if p.TrailPercent <= 0 {
		return
	}
	ratchet(p, price*(1-p.Side.Sign()*p.TrailPercent/100))
}

// ratchet sets the trailing stop to candidate only if that tightens it:
// up for LONG, down for SHORT.
func ratchet(p *models.Position, candidate float64) bool {
	if candidate <= 0 {
		return false
	}
	if p.TrailingStop != nil && (candidate-*p.TrailingStop)*p.Side.Sign() <= 0 {
		return false
	}
	v := candidate
	p.TrailingStop = &v
	return true
}

func stopReached(side models.PositionSide, price, stop float64) bool {
	if side == models.SideShort {
		return price >= stop
	}
	return price <= stop
}

func targetReached(side models.PositionSide, price, target float64) bool {
	if side == models.SideShort {
		return price <= target
	}
	return price >= target
}

// exit removes qty from p at price and applies the wallet effects: the
// blocked margin comes back with the leg's P&L, capital and day P&L move by
// the P&L, and a full close settles the win/loss counters.
func exit(p *models.Position, w *models.Wallet, qty int, price float64, reason models.ExitReason, now time.Time) models.Trade {
	unit := p.UnitMultiple()
	pnl := money.Round2(money.PnL(p.AvgEntry, price, qty, p.Side.Sign()) * unit)
	released := money.Round2(money.Notional(p.AvgEntry, qty) * unit)

	p.Quantity -= qty
	p.RealizedPnL = money.Add(p.RealizedPnL, pnl)

	rollDay(w, now)
	w.Capital = money.Add(w.Capital, pnl)
	w.AvailableMargin = money.Add(w.AvailableMargin, released, pnl)
	w.RealizedPnL = money.Add(w.RealizedPnL, pnl)
	w.DayPnL = money.Add(w.DayPnL, pnl)

	if p.Quantity == 0 {
		closed := now
		p.Status = models.StatusClosed
		p.ExitReason = reason
		p.ClosedAt = &closed
		w.OpenTrades--
		switch {
		case p.RealizedPnL > 0:
			w.Wins++
		case p.RealizedPnL < 0:
			w.Losses++
		}
	} else {
		p.Status = models.StatusPartialExit
	}

	return models.Trade{
		ID:           uuid.NewString(),
		PositionID:   p.ID,
		WalletID:     p.WalletID,
		SignalID:     p.SignalID,
		Timestamp:    now,
		Symbol:       p.ScripCode,
		Exchange:     p.Exchange,
		Side:         p.Side,
		Quantity:     qty,
		EntryPrice:   p.AvgEntry,
		ExitPrice:    price,
		PnL:          pnl,
		PnLPercent:   money.Percent(pnl, released),
		Strategy:     p.Strategy,
		ExitReason:   reason,
		IsPaper:      true,
		HoldDuration: now.Sub(p.OpenedAt),
	}
}

// rollDay resets day P&L when the IST trading day changes.
func rollDay(w *models.Wallet, now time.Time) {
	day := utils.TradingDay(now)
	if w.DayPnLDate != day {
		w.DayPnLDate = day
		w.DayPnL = 0
	}
}
