package engine

import (
	"fmt"
	"math"
	"strings"

	"signal-trader/internal/models"
)

// ResolverConfig tunes instrument selection.
type ResolverConfig struct {
	// CurrencyPairs are scrips that are themselves the futures contract.
	CurrencyPairs   []string `mapstructure:"currency_pairs"`
	CurrencyLotSize int      `mapstructure:"currency_lot_size"`
	// TimeValuePct is the time value added to intrinsic value when a
	// premium has to be estimated.
	TimeValuePct float64 `mapstructure:"time_value_pct"`
	// SyntheticLotSize sizes legacy signals that carry no lot size.
	SyntheticLotSize int `mapstructure:"synthetic_lot_size"`
}

// DefaultResolverConfig returns the default resolver settings.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CurrencyPairs:    []string{"USDINR", "EURINR", "GBPINR", "JPYINR"},
		CurrencyLotSize:  1000,
		TimeValuePct:     0.01,
		SyntheticLotSize: 1,
	}
}

type strikeBucket struct {
	below    float64
	interval float64
}

var strikeBuckets = []strikeBucket{
	{100, 2.5},
	{250, 5},
	{500, 10},
	{1000, 20},
	{2500, 50},
}

// StrikeInterval returns the listed strike spacing for an underlying price.
func StrikeInterval(price float64) float64 {
	for _, b := range strikeBuckets {
		if price < b.below {
			return b.interval
		}
	}
	return 100
}

// OTMStrike returns the strike one interval out of the money from the
// nearest listed at-the-money strike.
func OTMStrike(price float64, optType models.OptionType) (strike, interval float64) {
	interval = StrikeInterval(price)
	atm := math.Round(price/interval) * interval
	if optType == models.OptionPut {
		return atm - interval, interval
	}
	return atm + interval, interval
}

// SyntheticPremium estimates a premium as intrinsic value plus a fixed share
// of spot as time value, never below one tick.
func SyntheticPremium(spot, strike float64, optType models.OptionType, timeValuePct float64) float64 {
	intrinsic := spot - strike
	if optType == models.OptionPut {
		intrinsic = strike - spot
	}
	if intrinsic < 0 {
		intrinsic = 0
	}
	p := intrinsic + spot*timeValuePct
	if p < TickFloor {
		return TickFloor
	}
	return p
}

// ResolveInstrument picks the tradable derivative for a plan. The first
// matching rule wins: live option quote, live futures quote, currency pair,
// explicit unavailability, then a synthetic option for legacy signals.
func ResolveInstrument(sig *models.Signal, plan models.TradePlan, cfg ResolverConfig) models.InstrumentSelection {
	optType := models.OptionTypeFor(plan.Direction)
	derivExchange := derivativeExchange(sig.Exchange)

	if sig.HasOptionQuote() {
		if t := models.OptionType(strings.ToUpper(sig.OptionType)); t == models.OptionCall || t == models.OptionPut {
			optType = t
		}
		strike := sig.OptionStrike
		if strike <= 0 {
			strike, _ = OTMStrike(plan.Entry, optType)
		}
		return models.InstrumentSelection{
			Mode:       models.ModeOption,
			ScripCode:  firstNonEmpty(sig.OptionScripCode, optionScrip(sig, strike, optType)),
			Exchange:   derivExchange,
			Strike:     strike,
			OptionType: optType,
			LotSize:    positiveOr(sig.OptionLotSize, 1),
			Multiplier: multiplierOr(sig.OptionMultiplier),
			Premium:    sig.OptionLTP,
			Reason:     "live option quote",
		}
	}

	if sig.HasFuturesQuote() {
		return models.InstrumentSelection{
			Mode:       models.ModeFutures,
			ScripCode:  firstNonEmpty(sig.FuturesScripCode, sig.ScripCode+"FUT"),
			Exchange:   derivExchange,
			LotSize:    positiveOr(sig.FuturesLotSize, 1),
			Multiplier: 1,
			Premium:    sig.FuturesLTP,
			Reason:     "live futures quote",
		}
	}

	if isCurrencyPair(sig, cfg.CurrencyPairs) {
		return models.InstrumentSelection{
			Mode:       models.ModeFutures,
			ScripCode:  sig.ScripCode,
			Exchange:   models.CDS,
			LotSize:    positiveOr(sig.FuturesLotSize, positiveOr(cfg.CurrencyLotSize, 1)),
			Multiplier: 1,
			Premium:    plan.Entry,
			Reason:     "currency pair trades as its own future",
		}
	}

	if sig.HasDerivativeFlags() {
		return models.InstrumentSelection{
			Mode:   models.ModeNone,
			Reason: "no derivative available",
		}
	}

	strike, _ := OTMStrike(plan.Entry, optType)
	return models.InstrumentSelection{
		Mode:       models.ModeOption,
		ScripCode:  optionScrip(sig, strike, optType),
		Exchange:   derivExchange,
		Strike:     strike,
		OptionType: optType,
		LotSize:    positiveOr(sig.OptionLotSize, positiveOr(cfg.SyntheticLotSize, 1)),
		Multiplier: multiplierOr(sig.OptionMultiplier),
		Premium:    SyntheticPremium(plan.Entry, strike, optType, cfg.TimeValuePct),
		Synthetic:  true,
		Reason:     "estimated premium for legacy signal",
	}
}

func isCurrencyPair(sig *models.Signal, pairs []string) bool {
	if sig.Exchange == models.CDS {
		return true
	}
	for _, p := range pairs {
		if strings.EqualFold(p, sig.ScripCode) || strings.EqualFold(p, sig.Symbol) {
			return true
		}
	}
	return false
}

func derivativeExchange(ex models.Exchange) models.Exchange {
	switch ex {
	case models.MCX, models.CDS:
		return ex
	}
	return models.NFO
}

func optionScrip(sig *models.Signal, strike float64, optType models.OptionType) string {
	name := firstNonEmpty(sig.Symbol, sig.ScripCode)
	return fmt.Sprintf("%s%s%s", name, formatStrike(strike), optType)
}

func formatStrike(strike float64) string {
	if strike == math.Trunc(strike) {
		return fmt.Sprintf("%.0f", strike)
	}
	return fmt.Sprintf("%g", strike)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func multiplierOr(m float64) float64 {
	if m > 0 {
		return m
	}
	return 1
}
