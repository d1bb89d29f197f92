package engine

import (
	"math"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
	"signal-trader/internal/money"
)

const (
	// DeltaFloor and DeltaCap bound the approximated |delta|.
	DeltaFloor = 0.15
	DeltaCap   = 0.95
	// TickFloor is the lowest premium a mapped stop may take.
	TickFloor = 0.05

	// deltaSteepness sets how fast |delta| decays with moneyness. At 17 a
	// strike 5% out of the money sits near 0.30.
	deltaSteepness = 17.0
)

// MappedLevels are a plan's levels re-expressed in the traded instrument.
type MappedLevels struct {
	Entry    float64   `json:"entry"`
	StopLoss float64   `json:"stopLoss"`
	Targets  []float64 `json:"targets"`
	Delta    float64   `json:"delta"`
}

// ApproxDelta returns the unsigned delta of an option from its moneyness.
// It is 0.5 at the money, rises toward the cap in the money and decays to
// the floor out of the money.
func ApproxDelta(spot, strike float64, optType models.OptionType) float64 {
	if spot <= 0 || strike <= 0 {
		return DeltaFloor
	}
	m := (spot - strike) / spot
	if optType == models.OptionPut {
		m = (strike - spot) / spot
	}
	d := 1 / (1 + math.Exp(-deltaSteepness*m))
	return math.Min(DeltaCap, math.Max(DeltaFloor, d))
}

// PremiumMove converts an equity move into a premium move.
func PremiumMove(move, delta float64) float64 {
	return math.Abs(move) * math.Abs(delta)
}

// MapLevels re-expresses equity stop and targets as premium levels for a
// long option. The stop is floored to the exchange tick and clamped to
// TickFloor; a premium too small to sit above that floor cannot form a valid
// plan.
func MapLevels(plan models.TradePlan, premium, delta float64) (MappedLevels, error) {
	if premium <= TickFloor {
		return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "premium %.2f at or below tick floor", premium)
	}
	if delta <= 0 || delta > 1 {
		return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "delta %.3f out of range", delta)
	}

	levels := MappedLevels{
		Entry:    premium,
		StopLoss: math.Max(TickFloor, money.FloorToTick(premium-PremiumMove(plan.Entry-plan.StopLoss, delta))),
		Targets:  make([]float64, len(plan.Targets)),
		Delta:    delta,
	}
	for i, t := range plan.Targets {
		levels.Targets[i] = premium + PremiumMove(t-plan.Entry, delta)
	}

	if levels.StopLoss >= premium {
		return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "mapped stop %.2f not below premium %.2f", levels.StopLoss, premium)
	}
	if len(levels.Targets) > 0 && levels.Targets[0] <= premium {
		return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "mapped target %.2f not above premium %.2f", levels.Targets[0], premium)
	}
	return levels, nil
}

// MapFuturesLevels carries equity levels onto a futures price with delta 1.
// When the futures price equals the equity entry the levels are unchanged.
func MapFuturesLevels(plan models.TradePlan, price float64) (MappedLevels, error) {
	if price <= 0 {
		return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "futures price %.2f", price)
	}
	sign := plan.Direction.Sign()
	levels := MappedLevels{
		Entry:    price,
		StopLoss: price - sign*math.Abs(plan.Entry-plan.StopLoss),
		Targets:  make([]float64, len(plan.Targets)),
		Delta:    1,
	}
	for i, t := range plan.Targets {
		levels.Targets[i] = price + sign*math.Abs(t-plan.Entry)
	}
	if levels.StopLoss <= 0 {
		return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "futures stop %.2f not positive", levels.StopLoss)
	}
	for _, t := range levels.Targets {
		if t <= 0 {
			return MappedLevels{}, errors.Wrapf(errors.ErrPlanInvalid, "futures target %.2f not positive", t)
		}
	}
	return levels, nil
}
