package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/errors"
	"signal-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedWallet(t *testing.T, st *SQLiteStore, id string) *models.Wallet {
	t.Helper()
	now := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	w := &models.Wallet{
		ID:              id,
		Capital:         1000000,
		AvailableMargin: 1000000,
		DayPnLDate:      "2024-06-03",
		CreatedAt:       now,
		LastUpdated:     now,
	}
	require.NoError(t, st.WithTx(context.Background(), func(tx Tx) error {
		return tx.CreateWallet(context.Background(), w)
	}))
	return w
}

func samplePosition(id, walletID, signalID string) *models.Position {
	now := time.Date(2024, 6, 3, 9, 45, 0, 0, time.UTC)
	return &models.Position{
		ID:              id,
		WalletID:        walletID,
		SignalID:        signalID,
		ScripCode:       "INFY1500CE",
		Symbol:          "INFY",
		Exchange:        models.NFO,
		Mode:            models.ModeOption,
		Strike:          1500,
		OptionType:      models.OptionCall,
		Strategy:        "MOMENTUM",
		Side:            models.SideLong,
		Quantity:        800,
		InitialQuantity: 800,
		LotSize:         400,
		Multiplier:      1,
		AvgEntry:        21.5,
		CurrentPrice:    21.5,
		StopLoss:        15.2,
		Targets:         []float64{28, 34.6},
		PartialClosePct: 50,
		TrailPercent:    1.5,
		Status:          models.StatusActive,
		OpenedAt:        now,
		LastUpdated:     now,
	}
}

func TestCreateWalletStartsAtVersionOne(t *testing.T) {
	st := newTestStore(t)
	seedWallet(t, st, "paper")

	w, err := st.GetWallet(context.Background(), "paper")
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Version)
	assert.Equal(t, 1000000.0, w.AvailableMargin)
	assert.Equal(t, "2024-06-03", w.DayPnLDate)
}

func TestGetMissingRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.GetWallet(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrWalletNotFound))

	_, err = st.GetPosition(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestUpdateWalletDetectsVersionConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, st, "paper")

	a, err := st.GetWallet(ctx, "paper")
	require.NoError(t, err)
	b, err := st.GetWallet(ctx, "paper")
	require.NoError(t, err)

	a.AvailableMargin = 900000
	require.NoError(t, st.WithTx(ctx, func(tx Tx) error { return tx.UpdateWallet(ctx, a) }))
	assert.Equal(t, int64(2), a.Version)

	b.AvailableMargin = 800000
	err = st.WithTx(ctx, func(tx Tx) error { return tx.UpdateWallet(ctx, b) })
	assert.True(t, errors.Is(err, errors.ErrVersionConflict))

	w, err := st.GetWallet(ctx, "paper")
	require.NoError(t, err)
	assert.Equal(t, 900000.0, w.AvailableMargin)
}

func TestInsertPositionRejectsDuplicateSignal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, st, "paper")

	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		return tx.InsertPosition(ctx, samplePosition("p1", "paper", "sig-1"))
	}))

	err := st.WithTx(ctx, func(tx Tx) error {
		return tx.InsertPosition(ctx, samplePosition("p2", "paper", "sig-1"))
	})
	assert.True(t, errors.Is(err, errors.ErrDuplicateSignal))

	positions, err := st.ListPositions(ctx, PositionFilter{WalletID: "paper"})
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestTransactionRollsBack(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, st, "paper")

	boom := fmt.Errorf("boom")
	err := st.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertPosition(ctx, samplePosition("p1", "paper", "sig-1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.GetPosition(ctx, "p1")
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestUpdatePositionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, st, "paper")

	p := samplePosition("p1", "paper", "sig-1")
	require.NoError(t, st.WithTx(ctx, func(tx Tx) error { return tx.InsertPosition(ctx, p) }))

	trail := 21.5
	closed := p.OpenedAt.Add(90 * time.Minute)
	p.Quantity = 0
	p.CurrentPrice = 21.5
	p.TrailingStop = &trail
	p.TP1Hit = true
	p.Status = models.StatusClosed
	p.ExitReason = models.ExitTrailingStopHit
	p.RealizedPnL = 2600
	p.ClosedAt = &closed
	require.NoError(t, st.WithTx(ctx, func(tx Tx) error { return tx.UpdatePosition(ctx, p) }))
	assert.Equal(t, int64(2), p.Version)

	got, err := st.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, models.ExitTrailingStopHit, got.ExitReason)
	assert.True(t, got.TP1Hit)
	require.NotNil(t, got.TrailingStop)
	assert.Equal(t, 21.5, *got.TrailingStop)
	require.NotNil(t, got.ClosedAt)
	assert.True(t, closed.Equal(*got.ClosedAt))
	assert.Equal(t, []float64{28, 34.6}, got.Targets)
	assert.Equal(t, 1.5, got.TrailPercent)
	assert.Equal(t, int64(2), got.Version)

	open, err := st.ListPositions(ctx, PositionFilter{WalletID: "paper", OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTradesFilteredByPosition(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedWallet(t, st, "paper")

	p := samplePosition("p1", "paper", "sig-1")
	base := p.OpenedAt
	require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertPosition(ctx, p); err != nil {
			return err
		}
		for i, reason := range []models.ExitReason{models.ExitPartialTarget, models.ExitTargetHit} {
			err := tx.LogTrade(ctx, &models.Trade{
				ID:           fmt.Sprintf("t%d", i),
				PositionID:   p.ID,
				WalletID:     p.WalletID,
				SignalID:     p.SignalID,
				Timestamp:    base.Add(time.Duration(i+1) * time.Minute),
				Symbol:       p.ScripCode,
				Exchange:     p.Exchange,
				Side:         p.Side,
				Quantity:     400,
				EntryPrice:   21.5,
				ExitPrice:    28,
				PnL:          2600,
				ExitReason:   reason,
				IsPaper:      true,
				HoldDuration: time.Duration(i+1) * time.Minute,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	trades, err := st.GetTrades(ctx, TradeFilter{PositionID: "p1"})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, models.ExitTargetHit, trades[0].ExitReason)
	assert.True(t, trades[0].IsPaper)
	assert.Equal(t, 2*time.Minute, trades[0].HoldDuration)

	limited, err := st.GetTrades(ctx, TradeFilter{WalletID: "paper", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// Property: a position written and read back keeps its levels and exit
// state.
func TestProperty_PositionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	seedWallet(t, st, "paper")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	var seq int
	properties.Property("insert then read produces the same position", prop.ForAll(
		func(entry float64, stopPct float64, lots int, short bool, trail float64) bool {
			ctx := context.Background()
			seq++

			p := samplePosition(fmt.Sprintf("pos-%d", seq), "paper", fmt.Sprintf("sig-%d", seq))
			p.AvgEntry = math.Round(entry*100) / 100
			p.CurrentPrice = p.AvgEntry
			p.Quantity = lots * p.LotSize
			p.InitialQuantity = p.Quantity
			p.TrailPercent = trail
			if short {
				p.Side = models.SideShort
				p.StopLoss = p.AvgEntry * (1 + stopPct/100)
				p.Targets = []float64{p.AvgEntry * 0.9, p.AvgEntry * 0.8}
			} else {
				p.StopLoss = p.AvgEntry * (1 - stopPct/100)
				p.Targets = []float64{p.AvgEntry * 1.1, p.AvgEntry * 1.2}
			}

			if err := st.WithTx(ctx, func(tx Tx) error { return tx.InsertPosition(ctx, p) }); err != nil {
				t.Logf("insert: %v", err)
				return false
			}
			got, err := st.GetPosition(ctx, p.ID)
			if err != nil {
				t.Logf("get: %v", err)
				return false
			}

			return got.Side == p.Side &&
				got.Quantity == p.Quantity &&
				got.AvgEntry == p.AvgEntry &&
				got.StopLoss == p.StopLoss &&
				len(got.Targets) == 2 &&
				got.Targets[0] == p.Targets[0] &&
				got.Targets[1] == p.Targets[1] &&
				got.TrailPercent == p.TrailPercent &&
				got.Multiplier == 1 &&
				got.TrailingStop == nil &&
				got.ClosedAt == nil &&
				got.Status == models.StatusActive &&
				got.Version == 1
		},
		gen.Float64Range(1, 5000),
		gen.Float64Range(1, 30),
		gen.IntRange(1, 20),
		gen.Bool(),
		gen.Float64Range(0, 5),
	))

	properties.TestingRun(t)
}
