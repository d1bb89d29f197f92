package engine

import (
	"fmt"
	"math"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

const (
	// fallbackVolPct is the volatility proxy used when a signal carries
	// neither ATR nor band width.
	fallbackVolPct = 0.004
	// bandWidthDivisor turns a band's full width into an ATR-like distance.
	bandWidthDivisor = 4
)

// BuildPlan normalises a signal into entry, stop and targets. Enriched
// stop/target1 from the signal are authoritative. Otherwise levels are laid
// out from a volatility proxy using the profile's multiples.
func BuildPlan(sig *models.Signal, profile Profile) (models.TradePlan, error) {
	if !sig.Direction.IsValid() {
		return models.TradePlan{}, errors.NewPlanError(sig.ID, fmt.Sprintf("unknown direction %q", sig.Direction))
	}
	if sig.Entry <= 0 || math.IsNaN(sig.Entry) || math.IsInf(sig.Entry, 0) {
		return models.TradePlan{}, errors.NewPlanError(sig.ID, "entry must be positive")
	}

	plan := models.TradePlan{
		Direction: sig.Direction,
		Entry:     sig.Entry,
		ATR:       volatilityProxy(sig),
	}

	if sig.StopLoss > 0 && sig.Target1 > 0 {
		plan.Source = models.PlanEnriched
		plan.StopLoss = sig.StopLoss
		plan.Targets = sig.Targets()
	} else {
		plan.Source = models.PlanFallback
		fallbackLevels(&plan, profile)
	}

	if err := validateLevels(sig.ID, plan); err != nil {
		return models.TradePlan{}, err
	}

	if plan.Source == models.PlanEnriched && sig.RiskReward != nil && *sig.RiskReward > 0 {
		plan.RiskReward = *sig.RiskReward
	} else {
		plan.RiskReward = riskReward(plan)
	}
	return plan, nil
}

// volatilityProxy prefers ATR, then a quarter of the band width, then a
// fixed fraction of entry.
func volatilityProxy(sig *models.Signal) float64 {
	if sig.ATR > 0 {
		return sig.ATR
	}
	if width := sig.BandUpper - sig.BandLower; sig.BandLower > 0 && width > 0 {
		return width / bandWidthDivisor
	}
	return sig.Entry * fallbackVolPct
}

func fallbackLevels(plan *models.TradePlan, profile Profile) {
	mult := profile.StopMultiple
	if mult <= 0 {
		mult = 1.5
	}
	multiples := profile.TargetMultiples
	if len(multiples) == 0 {
		multiples = []float64{2, 3}
	}
	if len(multiples) > 4 {
		multiples = multiples[:4]
	}

	sign := plan.Direction.Sign()
	risk := plan.ATR * mult
	plan.StopLoss = plan.Entry - sign*risk

	plan.Targets = make([]float64, 0, len(multiples))
	for _, m := range multiples {
		t := plan.Entry + sign*risk*m
		if t <= 0 {
			break
		}
		plan.Targets = append(plan.Targets, t)
	}
}

// validateLevels enforces stop < entry < t1 < t2 ... for bullish plans and
// the mirror ordering for bearish ones.
func validateLevels(signalID string, plan models.TradePlan) error {
	if plan.StopLoss <= 0 {
		return errors.NewPlanError(signalID, "stop loss must be positive")
	}
	if len(plan.Targets) == 0 {
		return errors.NewPlanError(signalID, "no targets")
	}

	sign := plan.Direction.Sign()
	if (plan.Entry-plan.StopLoss)*sign <= 0 {
		return errors.NewPlanError(signalID, fmt.Sprintf("stop %.2f on wrong side of entry %.2f", plan.StopLoss, plan.Entry))
	}
	prev := plan.Entry
	for i, t := range plan.Targets {
		if (t-prev)*sign <= 0 {
			return errors.NewPlanError(signalID, fmt.Sprintf("target%d %.2f out of order", i+1, t))
		}
		prev = t
	}
	return nil
}

func riskReward(plan models.TradePlan) float64 {
	risk := plan.RiskPerUnit()
	if risk == 0 || len(plan.Targets) == 0 {
		return 0
	}
	return math.Abs(plan.Targets[0]-plan.Entry) / risk
}
