package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/capital"
	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

func newTestEngine() *Engine {
	return New(DefaultConfig(), zerolog.Nop())
}

func snapshot(available float64) capital.Snapshot {
	return capital.Snapshot{WalletID: "paper", Available: available, Capital: available, Version: 7}
}

func TestSizePosition_StandardTier(t *testing.T) {
	s := SizePosition(SizingInput{
		Confidence: 80,
		Capital:    100000,
		Premium:    150,
		LotSize:    50,
		Multiplier: 1,
	}, DefaultSizingPolicy())

	assert.False(t, s.Disabled)
	assert.Equal(t, 0.75, s.AllocPct)
	assert.Equal(t, 75000.0, s.AllocatedCapital)
	assert.Equal(t, 7500.0, s.CostPerLot)
	assert.Equal(t, 10, s.Lots)
	assert.Equal(t, 500, s.Quantity)
	assert.False(t, s.InsufficientFunds)
}

func TestSizePosition_InsufficientFunds(t *testing.T) {
	s := SizePosition(SizingInput{
		Confidence: 65,
		Capital:    10000,
		Premium:    240,
		LotSize:    50,
	}, DefaultSizingPolicy())

	assert.Equal(t, 0.50, s.AllocPct)
	assert.Equal(t, 5000.0, s.AllocatedCapital)
	assert.Equal(t, 12000.0, s.CostPerLot)
	assert.Equal(t, 1, s.Lots)
	assert.Equal(t, 50, s.Quantity)
	assert.True(t, s.InsufficientFunds)
	assert.Equal(t, 2000.0, s.CreditAmount)
}

func TestSizePosition_ThresholdBoundaries(t *testing.T) {
	policy := DefaultSizingPolicy()
	in := SizingInput{Capital: 100000, Premium: 100, LotSize: 10}

	in.Confidence = 59.99
	assert.True(t, SizePosition(in, policy).Disabled)

	in.Confidence = 60
	s := SizePosition(in, policy)
	assert.False(t, s.Disabled)
	assert.Equal(t, 0.50, s.AllocPct)

	in.Confidence = 75
	assert.Equal(t, 0.50, SizePosition(in, policy).AllocPct)

	in.Confidence = 75.01
	assert.Equal(t, 0.75, SizePosition(in, policy).AllocPct)
}

func TestSizePosition_MultiplierOverridesLotSize(t *testing.T) {
	s := SizePosition(SizingInput{
		Confidence: 90,
		Capital:    100000,
		Premium:    50,
		LotSize:    10,
		Multiplier: 100,
	}, DefaultSizingPolicy())

	assert.Equal(t, 5000.0, s.CostPerLot)
	assert.Equal(t, 15, s.Lots)
	assert.Equal(t, 150, s.Quantity)
}

func TestEvaluate_MultiplierOrderCostMatchesSizing(t *testing.T) {
	sig := models.Signal{
		ID:               "sig-m",
		ScripCode:        "ACME",
		Strategy:         StrategyPattern,
		Direction:        models.Bullish,
		Entry:            1000,
		StopLoss:         960,
		Target1:          1080,
		Confidence:       80,
		OptionAvailable:  models.Bool(true),
		OptionLTP:        100,
		OptionStrike:     1000,
		OptionType:       "CE",
		OptionLotSize:    1,
		OptionMultiplier: 100,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))
	require.NoError(t, ticket.Err)
	require.NotNil(t, ticket.Order)

	assert.Equal(t, 10000.0, ticket.Sizing.CostPerLot)
	assert.Equal(t, 7, ticket.Order.Lots)
	assert.Equal(t, 7, ticket.Order.Quantity)
	assert.InDelta(t, 70000, ticket.Order.Cost(), 1e-6)
	assert.InDelta(t, float64(ticket.Order.Lots)*ticket.Sizing.CostPerLot, ticket.Order.Cost(), 1e-6)
}

func TestEvaluate_NoDerivative(t *testing.T) {
	sig := models.Signal{
		ID:               "sig-c",
		ScripCode:        "RELIANCE",
		Exchange:         models.NSE,
		Direction:        models.Bullish,
		Entry:            2500,
		StopLoss:         2450,
		Target1:          2600,
		Confidence:       90,
		OptionAvailable:  models.Bool(false),
		FuturesAvailable: models.Bool(false),
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))

	assert.False(t, ticket.Available())
	assert.True(t, errors.Is(ticket.Err, errors.ErrNoInstrument))
	assert.True(t, errors.IsUnavailable(ticket.Err))
	assert.Equal(t, models.ModeNone, ticket.Selection.Mode)
	assert.Equal(t, models.PositionSizing{}, ticket.Sizing)
	assert.Nil(t, ticket.Order)
}

func TestMapLevels_KnownDelta(t *testing.T) {
	plan := models.TradePlan{
		Direction: models.Bullish,
		Entry:     100,
		StopLoss:  96,
		Targets:   []float64{108},
	}

	levels, err := MapLevels(plan, 3, 0.30)
	require.NoError(t, err)
	assert.InDelta(t, 1.80, levels.StopLoss, 1e-9)
	assert.InDelta(t, 5.40, levels.Targets[0], 1e-9)
	assert.Equal(t, 3.0, levels.Entry)
}

func TestApproxDelta_OutOfTheMoneyCall(t *testing.T) {
	assert.InDelta(t, 0.30, ApproxDelta(100, 105, models.OptionCall), 0.01)
	assert.InDelta(t, 0.5, ApproxDelta(100, 100, models.OptionCall), 1e-9)
	assert.InDelta(t, 0.30, ApproxDelta(100, 95, models.OptionPut), 0.01)
	assert.Equal(t, DeltaFloor, ApproxDelta(100, 200, models.OptionCall))
	assert.Equal(t, DeltaCap, ApproxDelta(200, 100, models.OptionCall))
}

func TestMapLevels_ClampsStopToTickFloor(t *testing.T) {
	plan := models.TradePlan{Direction: models.Bullish, Entry: 100, StopLoss: 80, Targets: []float64{120}}

	levels, err := MapLevels(plan, 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, TickFloor, levels.StopLoss)
}

func TestMapLevels_FloorsStopToTick(t *testing.T) {
	plan := models.TradePlan{Direction: models.Bullish, Entry: 100, StopLoss: 95.9, Targets: []float64{108}}

	// 3 - 4.1*0.3 = 1.77, floored to 1.75.
	levels, err := MapLevels(plan, 3, 0.30)
	require.NoError(t, err)
	assert.Equal(t, 1.75, levels.StopLoss)
}

func TestMapLevels_RejectsPremiumAtFloor(t *testing.T) {
	plan := models.TradePlan{Direction: models.Bullish, Entry: 100, StopLoss: 96, Targets: []float64{108}}

	_, err := MapLevels(plan, TickFloor, 0.3)
	assert.True(t, errors.Is(err, errors.ErrPlanInvalid))
}

func TestEvaluate_LiveOptionQuote(t *testing.T) {
	sig := models.Signal{
		ID:              "sig-d",
		ScripCode:       "ACME",
		Strategy:        StrategyPattern,
		Direction:       models.Bullish,
		Entry:           100,
		StopLoss:        96,
		Target1:         108,
		Confidence:      80,
		OptionAvailable: models.Bool(true),
		OptionLTP:       3,
		OptionStrike:    105,
		OptionType:      "CE",
		OptionLotSize:   50,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))
	require.NoError(t, ticket.Err)
	require.NotNil(t, ticket.Order)

	o := ticket.Order
	assert.Equal(t, models.ModeOption, o.Mode)
	assert.Equal(t, models.OrderSideBuy, o.Side)
	assert.Equal(t, models.OptionCall, o.OptionType)
	assert.Equal(t, 105.0, o.Strike)
	assert.InDelta(t, 0.30, o.Delta, 0.01)
	assert.InDelta(t, 1.80, o.StopLoss, 0.01)
	assert.InDelta(t, 5.40, o.Targets[0], 0.01)
	assert.Equal(t, 100.0, o.EquityEntry)
	assert.Equal(t, 96.0, o.EquityStopLoss)
	assert.Equal(t, []float64{108}, o.EquityTargets)
	assert.Equal(t, int64(7), o.CapitalVersion)
	assert.Equal(t, 500, o.Lots)
	assert.Equal(t, 25000, o.Quantity)
	assert.Equal(t, 105.0, ticket.Plan.Strike)
	assert.Equal(t, 5.0, ticket.Plan.StrikeInterval)
	assert.Equal(t, models.NFO, o.Exchange)
}

func TestEvaluate_BearishFuturesGoesShort(t *testing.T) {
	sig := models.Signal{
		ID:               "sig-fut",
		ScripCode:        "TCS",
		Direction:        models.Bearish,
		Entry:            2000,
		StopLoss:         2030,
		Target1:          1950,
		Confidence:       70,
		OptionAvailable:  models.Bool(false),
		FuturesAvailable: models.Bool(true),
		FuturesLTP:       2010,
		FuturesLotSize:   250,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(1000000))
	require.NoError(t, ticket.Err)

	o := ticket.Order
	assert.Equal(t, models.ModeFutures, o.Mode)
	assert.Equal(t, models.OrderSideSell, o.Side)
	assert.Equal(t, models.SideShort, o.PositionSide())
	assert.Equal(t, 1.0, o.Delta)
	assert.Equal(t, 2010.0, o.Entry)
	assert.Equal(t, 2040.0, o.StopLoss)
	assert.Equal(t, []float64{1960}, o.Targets)
	assert.Equal(t, "TCSFUT", o.ScripCode)
}

func TestEvaluate_CurrencyPairTradesItself(t *testing.T) {
	sig := models.Signal{
		ID:         "sig-fx",
		ScripCode:  "USDINR",
		Exchange:   models.CDS,
		Direction:  models.Bullish,
		Entry:      83.5,
		StopLoss:   83.2,
		Target1:    84.1,
		Confidence: 70,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))
	require.NoError(t, ticket.Err)

	assert.Equal(t, models.ModeFutures, ticket.Selection.Mode)
	assert.Equal(t, "USDINR", ticket.Order.ScripCode)
	assert.Equal(t, 83.5, ticket.Order.Entry)
	assert.InDelta(t, 83.2, ticket.Order.StopLoss, 1e-9)
	assert.Equal(t, 1000, ticket.Order.LotSize)
	assert.True(t, ticket.Sizing.InsufficientFunds)
	assert.Equal(t, 1, ticket.Sizing.Lots)
	assert.Equal(t, 0.0, ticket.Sizing.CreditAmount)
}

func TestEvaluate_LegacySignalUsesSyntheticOption(t *testing.T) {
	sig := models.Signal{
		ID:         "sig-legacy",
		ScripCode:  "INFY",
		Direction:  models.Bullish,
		Entry:      1234,
		ATR:        10,
		Confidence: 85,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))
	require.NoError(t, ticket.Err)

	sel := ticket.Selection
	assert.True(t, sel.Synthetic)
	assert.Equal(t, 1300.0, sel.Strike)
	assert.Equal(t, models.OptionCall, sel.OptionType)
	assert.InDelta(t, 12.34, sel.Premium, 1e-9)
	assert.Equal(t, "INFY1300CE", sel.ScripCode)
	assert.Equal(t, models.PlanFallback, ticket.Plan.Source)
}

func TestEvaluate_ConfidenceScaledByProfile(t *testing.T) {
	sig := models.Signal{
		ID:         "sig-vol",
		ScripCode:  "SBIN",
		Strategy:   StrategyVolume,
		Direction:  models.Bullish,
		Entry:      600,
		StopLoss:   590,
		Target1:    620,
		Confidence: 0.8,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))
	require.NoError(t, ticket.Err)
	assert.InDelta(t, 80.0, ticket.Order.Confidence, 1e-9)
	assert.Equal(t, 0.75, ticket.Sizing.AllocPct)
}

func TestEvaluate_BelowConfidence(t *testing.T) {
	sig := models.Signal{
		ID:         "sig-low",
		ScripCode:  "SBIN",
		Direction:  models.Bullish,
		Entry:      600,
		StopLoss:   590,
		Target1:    620,
		Confidence: 55,
	}

	ticket := newTestEngine().Evaluate(sig, snapshot(100000))
	assert.True(t, errors.Is(ticket.Err, errors.ErrBelowConfidence))
	assert.True(t, ticket.Sizing.Disabled)
	assert.Equal(t, 0, ticket.Sizing.Lots)
	assert.Nil(t, ticket.Order)
}

func TestBuildPlan_Enriched(t *testing.T) {
	sig := &models.Signal{
		ID:         "e",
		Direction:  models.Bullish,
		Entry:      100,
		StopLoss:   96,
		Target1:    108,
		Target2:    models.Float(112),
		Target4:    models.Float(130),
		RiskReward: models.Float(2.5),
	}

	plan, err := BuildPlan(sig, DefaultProfiles()[StrategyPattern])
	require.NoError(t, err)
	assert.Equal(t, models.PlanEnriched, plan.Source)
	assert.Equal(t, []float64{108, 112}, plan.Targets)
	assert.Equal(t, 2.5, plan.RiskReward)
}

func TestBuildPlan_EnrichedRecomputesRiskReward(t *testing.T) {
	sig := &models.Signal{ID: "e", Direction: models.Bearish, Entry: 100, StopLoss: 104, Target1: 90}

	plan, err := BuildPlan(sig, Profile{})
	require.NoError(t, err)
	assert.Equal(t, 2.5, plan.RiskReward)
}

func TestBuildPlan_FallbackFromATR(t *testing.T) {
	sig := &models.Signal{ID: "f", Direction: models.Bullish, Entry: 1000, ATR: 10}

	plan, err := BuildPlan(sig, DefaultProfiles()[StrategyMomentum])
	require.NoError(t, err)
	assert.Equal(t, models.PlanFallback, plan.Source)
	assert.Equal(t, 980.0, plan.StopLoss)
	assert.Equal(t, []float64{1040, 1060, 1080, 1100}, plan.Targets)
	assert.Equal(t, 2.0, plan.RiskReward)
}

func TestBuildPlan_FallbackFromBands(t *testing.T) {
	sig := &models.Signal{ID: "f", Direction: models.Bearish, Entry: 1000, BandUpper: 1010, BandLower: 990}

	plan, err := BuildPlan(sig, DefaultProfiles()[StrategyVolume])
	require.NoError(t, err)
	assert.Equal(t, 1007.5, plan.StopLoss)
	assert.Equal(t, []float64{985, 977.5}, plan.Targets)
}

func TestBuildPlan_FallbackFromEntryFraction(t *testing.T) {
	sig := &models.Signal{ID: "f", Direction: models.Bullish, Entry: 500}

	plan, err := BuildPlan(sig, DefaultProfiles()[StrategyPattern])
	require.NoError(t, err)
	assert.InDelta(t, 497, plan.StopLoss, 1e-9)
	assert.InDelta(t, 506, plan.Targets[0], 1e-9)
	assert.InDelta(t, 509, plan.Targets[1], 1e-9)
}

func TestBuildPlan_Invalid(t *testing.T) {
	tests := []struct {
		name string
		sig  models.Signal
	}{
		{"zero entry", models.Signal{Direction: models.Bullish, Entry: 0}},
		{"negative entry", models.Signal{Direction: models.Bearish, Entry: -5}},
		{"unknown direction", models.Signal{Direction: "SIDEWAYS", Entry: 100}},
		{"stop above bullish entry", models.Signal{Direction: models.Bullish, Entry: 100, StopLoss: 105, Target1: 110}},
		{"target below bullish entry", models.Signal{Direction: models.Bullish, Entry: 100, StopLoss: 95, Target1: 99}},
		{"bearish targets out of order", models.Signal{Direction: models.Bearish, Entry: 100, StopLoss: 105, Target1: 95, Target2: models.Float(97)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPlan(&tt.sig, DefaultProfiles()[StrategyPattern])
			assert.True(t, errors.Is(err, errors.ErrPlanInvalid), "got %v", err)
		})
	}
}

func TestStrikeIntervalAndOTMStrike(t *testing.T) {
	assert.Equal(t, 2.5, StrikeInterval(99))
	assert.Equal(t, 5.0, StrikeInterval(100))
	assert.Equal(t, 10.0, StrikeInterval(499))
	assert.Equal(t, 20.0, StrikeInterval(999))
	assert.Equal(t, 50.0, StrikeInterval(2499))
	assert.Equal(t, 100.0, StrikeInterval(25000))

	strike, interval := OTMStrike(1234, models.OptionPut)
	assert.Equal(t, 1200.0, strike)
	assert.Equal(t, 50.0, interval)

	strike, _ = OTMStrike(22480, models.OptionCall)
	assert.Equal(t, 22600.0, strike)
}

func TestSyntheticPremium(t *testing.T) {
	assert.InDelta(t, 1.0, SyntheticPremium(100, 105, models.OptionCall, 0.01), 1e-9)
	assert.InDelta(t, 6.0, SyntheticPremium(100, 95, models.OptionCall, 0.01), 1e-9)
	assert.Equal(t, TickFloor, SyntheticPremium(1, 5, models.OptionCall, 0.01))
}

func TestProfileFor(t *testing.T) {
	profiles := DefaultProfiles()
	assert.Equal(t, StrategyMomentum, ProfileFor(profiles, " momentum ").Name)
	assert.Equal(t, StrategyConfluence, ProfileFor(profiles, "UNKNOWN").Name)
	assert.Equal(t, StrategyConfluence, ProfileFor(nil, "").Name)
}
