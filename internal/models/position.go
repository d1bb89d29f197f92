package models

import "time"

// Position is a virtual derivative position held in the ledger.
type Position struct {
	ID              string
	WalletID        string
	SignalID        string
	ScripCode       string
	Symbol          string
	Exchange        Exchange
	Mode            InstrumentMode
	Strike          float64
	OptionType      OptionType
	Strategy        string
	Side            PositionSide
	Quantity        int
	InitialQuantity int
	LotSize         int
	Multiplier      float64 // contract multiplier, 1 when quoted per unit
	AvgEntry        float64
	CurrentPrice    float64
	StopLoss        float64
	Targets         []float64
	TrailingStop    *float64
	TP1Hit          bool
	PartialClosePct float64 // share of quantity closed at target1
	TrailPercent    float64 // auto trail distance once target1 is hit
	Status          PositionStatus
	ExitReason      ExitReason
	RealizedPnL     float64
	UnrealizedPnL   float64 // computed on read, never persisted
	OpenedAt        time.Time
	ClosedAt        *time.Time
	LastUpdated     time.Time
	Version         int64
}

// ComputeUnrealized refreshes UnrealizedPnL from CurrentPrice.
func (p *Position) ComputeUnrealized() float64 {
	if !p.Status.IsOpen() || p.CurrentPrice <= 0 {
		p.UnrealizedPnL = 0
		return 0
	}
	p.UnrealizedPnL = (p.CurrentPrice - p.AvgEntry) * float64(p.Quantity) * p.Side.Sign() * p.UnitMultiple()
	return p.UnrealizedPnL
}

// UnitMultiple returns the position's rupee value per unit of price and quantity.
func (p *Position) UnitMultiple() float64 {
	return UnitMultiple(p.LotSize, p.Multiplier)
}

// EffectiveStop returns the tighter of the hard stop and the trailing stop.
func (p *Position) EffectiveStop() (float64, bool) {
	if p.TrailingStop == nil {
		return p.StopLoss, false
	}
	ts := *p.TrailingStop
	if p.Side == SideShort {
		if ts < p.StopLoss {
			return ts, true
		}
		return p.StopLoss, false
	}
	if ts > p.StopLoss {
		return ts, true
	}
	return p.StopLoss, false
}

// FinalTarget returns the last configured target, or 0 when none.
func (p *Position) FinalTarget() float64 {
	if len(p.Targets) == 0 {
		return 0
	}
	return p.Targets[len(p.Targets)-1]
}

// Wallet is the paper account that funds positions.
type Wallet struct {
	ID              string
	Capital         float64
	AvailableMargin float64
	RealizedPnL     float64
	UnrealizedPnL   float64 // computed on read
	DayPnL          float64
	DayPnLDate      string // YYYY-MM-DD in IST
	OpenTrades      int
	TotalTrades     int
	Wins            int
	Losses          int
	CreditedCapital float64
	Positions       []Position
	CreatedAt       time.Time
	LastUpdated     time.Time
	Version         int64
}

// WinRate returns the percentage of closed positions that made money.
func (w *Wallet) WinRate() float64 {
	closed := w.Wins + w.Losses
	if closed == 0 {
		return 0
	}
	return float64(w.Wins) / float64(closed) * 100
}
