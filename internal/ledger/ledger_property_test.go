package ledger

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"signal-trader/internal/models"
)

func propertyPosition(side models.PositionSide, trail float64) (*models.Position, *models.Wallet) {
	p := &models.Position{
		ID:              "prop",
		WalletID:        "paper",
		Side:            side,
		Quantity:        400,
		InitialQuantity: 400,
		LotSize:         50,
		AvgEntry:        100,
		CurrentPrice:    100,
		PartialClosePct: 50,
		TrailPercent:    trail,
		Status:          models.StatusActive,
		OpenedAt:        testNow,
	}
	if side == models.SideShort {
		p.StopLoss = 110
		p.Targets = []float64{90, 60}
	} else {
		p.StopLoss = 90
		p.Targets = []float64{110, 140}
	}
	w := &models.Wallet{ID: "paper", Capital: 1000000, AvailableMargin: 960000, OpenTrades: 1}
	return p, w
}

// Property: along any price path the trailing stop only tightens, and the
// quantity never grows.
func TestProperty_TrailingStopIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	pathGen := gen.SliceOfN(30, gen.Float64Range(80, 150))

	properties.Property("LONG trailing stop never decreases", prop.ForAll(
		func(path []float64, trail float64) bool {
			p, w := propertyPosition(models.SideLong, trail)
			prevStop, _ := p.EffectiveStop()
			prevQty := p.Quantity
			for i, price := range path {
				if !p.Status.IsOpen() {
					break
				}
				applyPrice(p, w, price, testNow.Add(time.Duration(i)*time.Minute))
				stop, _ := p.EffectiveStop()
				if stop < prevStop || p.Quantity > prevQty {
					return false
				}
				prevStop, prevQty = stop, p.Quantity
			}
			return true
		},
		pathGen,
		gen.Float64Range(0, 5),
	))

	properties.Property("SHORT trailing stop never increases", prop.ForAll(
		func(path []float64, trail float64) bool {
			p, w := propertyPosition(models.SideShort, trail)
			prevStop, _ := p.EffectiveStop()
			prevQty := p.Quantity
			for i, price := range path {
				if !p.Status.IsOpen() {
					break
				}
				applyPrice(p, w, price, testNow.Add(time.Duration(i)*time.Minute))
				stop, _ := p.EffectiveStop()
				if stop > prevStop || p.Quantity > prevQty {
					return false
				}
				prevStop, prevQty = stop, p.Quantity
			}
			return true
		},
		gen.SliceOfN(30, gen.Float64Range(50, 120)),
		gen.Float64Range(0, 5),
	))

	properties.Property("ratchet rejects loosening candidates", prop.ForAll(
		func(first, second float64) bool {
			p, _ := propertyPosition(models.SideLong, 0)
			ratchet(p, first)
			moved := ratchet(p, second)
			return moved == (second > first) && *p.TrailingStop == maxFloat(first, second)
		},
		gen.Float64Range(1, 200),
		gen.Float64Range(1, 200),
	))

	properties.TestingRun(t)
}

// Property: the wallet's blocked margin plus available margin stays equal
// to capital across any sequence of marks on a single position.
func TestProperty_MarginConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("capital = available + blocked", prop.ForAll(
		func(path []float64) bool {
			p, w := propertyPosition(models.SideLong, 1)
			for i, price := range path {
				if !p.Status.IsOpen() {
					break
				}
				applyPrice(p, w, price, testNow.Add(time.Duration(i)*time.Minute))
				blocked := p.AvgEntry * float64(p.Quantity)
				if diff := w.Capital - (w.AvailableMargin + blocked); diff > 0.01 || diff < -0.01 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.Float64Range(80, 150)),
	))

	properties.TestingRun(t)
}

// Property: a position with one target closes in full at that target
// whatever its partial-close percentage.
func TestProperty_SingleTargetClosesInFull(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("first target reached closes the whole position", prop.ForAll(
		func(pct, overshoot float64) bool {
			p, w := propertyPosition(models.SideLong, 0)
			p.Targets = []float64{110}
			p.PartialClosePct = pct
			legs := applyPrice(p, w, 110+overshoot, testNow)
			return len(legs) == 1 &&
				legs[0].ExitReason == models.ExitTargetHit &&
				legs[0].ExitPrice == 110 &&
				p.Status == models.StatusClosed &&
				p.Quantity == 0 &&
				w.OpenTrades == 0
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 500),
	))

	properties.TestingRun(t)
}

func TestBestTarget(t *testing.T) {
	long := &models.Position{Side: models.SideLong, Targets: []float64{110, 140, 170}}
	short := &models.Position{Side: models.SideShort, Targets: []float64{90, 60}}

	assert.Equal(t, 110.0, bestTarget(long, 112))
	assert.Equal(t, 140.0, bestTarget(long, 150))
	assert.Equal(t, 170.0, bestTarget(long, 400))
	assert.Equal(t, 90.0, bestTarget(short, 75))
	assert.Equal(t, 60.0, bestTarget(short, 40))
}

func TestPartialQuantity(t *testing.T) {
	cases := []struct {
		qty, lot int
		pct      float64
		want     int
	}{
		{500, 50, 50, 250},
		{150, 50, 50, 50},
		{50, 50, 50, 0},
		{500, 50, 0, 0},
		{500, 50, 100, 0},
		{10, 0, 33, 3},
	}
	for _, c := range cases {
		p := &models.Position{Quantity: c.qty, LotSize: c.lot, PartialClosePct: c.pct}
		if got := partialQuantity(p); got != c.want {
			t.Errorf("partialQuantity(qty=%d lot=%d pct=%v) = %d, want %d", c.qty, c.lot, c.pct, got, c.want)
		}
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
