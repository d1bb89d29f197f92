// Package money rounds ledger amounts to paise and premiums to exchange ticks.
package money

import (
	"github.com/shopspring/decimal"
)

// tick is the minimum price increment for NSE derivatives.
var tick = decimal.RequireFromString("0.05")

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// PnL returns (exit - entry) * qty * sign rounded to paise. The product is
// taken in decimal so repeated partial exits do not drift.
func PnL(entry, exit float64, qty int, sign float64) float64 {
	d := decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(int64(qty))).
		Mul(decimal.NewFromFloat(sign)).
		Round(2)
	f, _ := d.Float64()
	return f
}

// Notional returns price * qty rounded to paise.
func Notional(price float64, qty int) float64 {
	f, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).Round(2).Float64()
	return f
}

// Add sums amounts in decimal and rounds the result to paise.
func Add(vals ...float64) float64 {
	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	f, _ := sum.Round(2).Float64()
	return f
}

// FloorToTick rounds a price down to the nearest tick, never below one tick.
// Float noise below a micro-rupee is dropped first so 1.7999999999999998
// stays on the 1.80 tick.
func FloorToTick(price float64) float64 {
	p := decimal.NewFromFloat(price).Round(6)
	ticks := p.Div(tick).Floor()
	if ticks.LessThan(decimal.NewFromInt(1)) {
		ticks = decimal.NewFromInt(1)
	}
	f, _ := ticks.Mul(tick).Float64()
	return f
}

// Percent returns part/whole*100 rounded to two places, or 0 when whole is 0.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	f, _ := decimal.NewFromFloat(part).
		Div(decimal.NewFromFloat(whole)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return f
}
