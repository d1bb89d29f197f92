package models

import "time"

// PositionSizing is the outcome of the capital allocation policy.
type PositionSizing struct {
	Lots              int     `json:"lots"`
	Quantity          int     `json:"quantity"`
	Disabled          bool    `json:"disabled"`
	InsufficientFunds bool    `json:"insufficientFunds"`
	CreditAmount      float64 `json:"creditAmount"`
	AllocPct          float64 `json:"allocPct"`
	AllocatedCapital  float64 `json:"allocatedCapital"`
	CostPerLot        float64 `json:"costPerLot"`
}

// OrderRequest is the unit submitted atomically to the ledger.
type OrderRequest struct {
	SignalID   string         `json:"signalId"`
	WalletID   string         `json:"walletId"`
	ScripCode  string         `json:"scripCode"`
	Symbol     string         `json:"symbol,omitempty"`
	Exchange   Exchange       `json:"exchange"`
	Mode       InstrumentMode `json:"mode"`
	Strike     float64        `json:"strike,omitempty"`
	OptionType OptionType     `json:"optionType,omitempty"`
	Side       OrderSide      `json:"side"`
	Quantity   int            `json:"quantity"`
	Lots       int            `json:"lots"`
	LotSize    int            `json:"lotSize"`
	Multiplier float64        `json:"multiplier"`

	// Derivative levels.
	Entry    float64   `json:"entry"`
	StopLoss float64   `json:"stopLoss"`
	Targets  []float64 `json:"targets"`

	// Equity levels kept for audit and display.
	EquityEntry    float64   `json:"equityEntry"`
	EquityStopLoss float64   `json:"equityStopLoss"`
	EquityTargets  []float64 `json:"equityTargets"`

	Delta          float64   `json:"delta"`
	Strategy       string    `json:"strategy"`
	Direction      Direction `json:"direction"`
	Confidence     float64   `json:"confidence"`
	CreditAmount   float64   `json:"creditAmount,omitempty"`
	CapitalVersion int64     `json:"capitalVersion"`

	// Exit management carried onto the position.
	PartialClosePct float64 `json:"partialClosePct"`
	TrailPercent    float64 `json:"trailPercent,omitempty"`
}

// LotCost returns the capital one lot ties up: premium times the contract
// multiplier, or times the lot size when the multiplier is not above 1.
func LotCost(premium float64, lotSize int, multiplier float64) float64 {
	if multiplier > 1 {
		return premium * multiplier
	}
	return premium * float64(lotSize)
}

// UnitMultiple converts a price move on one unit of quantity into rupees.
// It is 1 unless the contract carries a multiplier above 1, in which case a
// lot is worth multiplier units of premium.
func UnitMultiple(lotSize int, multiplier float64) float64 {
	if multiplier <= 1 || lotSize <= 0 {
		return 1
	}
	return multiplier / float64(lotSize)
}

// UnitMultiple returns the order's rupee value per unit of price and quantity.
func (o *OrderRequest) UnitMultiple() float64 {
	return UnitMultiple(o.LotSize, o.Multiplier)
}

// Cost returns the capital the order blocks. It agrees with LotCost for
// whole lots, so sizing and the ledger price an order the same way.
func (o *OrderRequest) Cost() float64 {
	return o.Entry * float64(o.Quantity) * o.UnitMultiple()
}

// PositionSide returns the ledger side implied by the order side.
func (o *OrderRequest) PositionSide() PositionSide {
	if o.Side == OrderSideSell {
		return SideShort
	}
	return SideLong
}

// Fill is the ledger's acceptance of an order.
type Fill struct {
	TradeID    string    `json:"tradeId"`
	PositionID string    `json:"positionId"`
	FillPrice  float64   `json:"fillPrice"`
	Quantity   int       `json:"quantity"`
	Duplicate  bool      `json:"duplicate"` // signal already had a position
	FilledAt   time.Time `json:"filledAt"`
}
