package models

import "time"

// PlanSource records where a trade plan's levels came from.
type PlanSource string

const (
	PlanEnriched PlanSource = "ENRICHED"
	PlanFallback PlanSource = "FALLBACK"
)

// TradePlan is the normalised equity-level plan derived once per signal.
type TradePlan struct {
	Direction      Direction  `json:"direction"`
	Entry          float64    `json:"entry"`
	StopLoss       float64    `json:"stopLoss"`
	Targets        []float64  `json:"targets"`
	RiskReward     float64    `json:"riskReward"`
	ATR            float64    `json:"atr"`
	Source         PlanSource `json:"source"`
	Strike         float64    `json:"strike,omitempty"`
	StrikeInterval float64    `json:"strikeInterval,omitempty"`
}

// RiskPerUnit returns the absolute distance between entry and stop.
func (p TradePlan) RiskPerUnit() float64 {
	d := p.Entry - p.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// Trade is one exit leg (partial or full) booked against a position.
type Trade struct {
	ID           string
	PositionID   string
	WalletID     string
	SignalID     string
	Timestamp    time.Time
	Symbol       string
	Exchange     Exchange
	Side         PositionSide
	Quantity     int
	EntryPrice   float64
	ExitPrice    float64
	PnL          float64
	PnLPercent   float64
	Strategy     string
	ExitReason   ExitReason
	IsPaper      bool
	HoldDuration time.Duration
}
