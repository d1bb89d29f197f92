package engine

import (
	"math"

	"signal-trader/internal/models"
	"signal-trader/internal/money"
)

// SizingPolicy is the confidence-tiered allocation policy.
type SizingPolicy struct {
	MinConfidence    float64 `mapstructure:"min_confidence"`
	HighConfidence   float64 `mapstructure:"high_confidence"`
	HighAllocPct     float64 `mapstructure:"high_alloc_pct"`
	StandardAllocPct float64 `mapstructure:"standard_alloc_pct"`
}

// DefaultSizingPolicy returns the default policy: nothing below 60, 75% of
// capital above 75 and 50% in between.
func DefaultSizingPolicy() SizingPolicy {
	return SizingPolicy{
		MinConfidence:    60,
		HighConfidence:   75,
		HighAllocPct:     0.75,
		StandardAllocPct: 0.50,
	}
}

// SizingInput is everything a sizing decision depends on.
type SizingInput struct {
	Confidence float64 // 0-100
	Capital    float64
	Premium    float64
	LotSize    int
	Multiplier float64
}

// CostPerLot returns the capital one lot ties up, priced the same way the
// ledger prices the order.
func (in SizingInput) CostPerLot() float64 {
	return models.LotCost(in.Premium, in.LotSize, in.Multiplier)
}

// SizePosition converts confidence and capital into a lot count. A
// qualifying signal is never sized to zero on capital alone: it falls back
// to one lot and reports the shortfall.
func SizePosition(in SizingInput, policy SizingPolicy) models.PositionSizing {
	if in.Confidence < policy.MinConfidence {
		return models.PositionSizing{Disabled: true}
	}

	cost := in.CostPerLot()
	if cost <= 0 || in.LotSize <= 0 {
		return models.PositionSizing{Disabled: true, CostPerLot: cost}
	}

	allocPct := policy.StandardAllocPct
	if in.Confidence > policy.HighConfidence {
		allocPct = policy.HighAllocPct
	}
	capital := math.Max(0, in.Capital)
	allocated := allocPct * capital

	sizing := models.PositionSizing{
		AllocPct:         allocPct,
		AllocatedCapital: allocated,
		CostPerLot:       cost,
		Lots:             int(math.Floor(allocated / cost)),
	}
	if sizing.Lots < 1 {
		sizing.Lots = 1
		sizing.InsufficientFunds = true
		sizing.CreditAmount = money.Round2(math.Max(0, cost-capital))
	}
	sizing.Quantity = sizing.Lots * in.LotSize
	return sizing
}
