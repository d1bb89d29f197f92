package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var changes []CircuitState
	cb := NewCircuitBreaker("ledger", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Minute},
		nil, func(s CircuitState) { changes = append(changes, s) })
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	fail := func(context.Context) error { return fmt.Errorf("disk full") }
	ok := func(context.Context) error { return nil }

	assert.Error(t, cb.Execute(ctx, fail))
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, CircuitClosed, cb.State())

	assert.Equal(t, []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}, changes)
	assert.Equal(t, "ledger", cb.Name())

	stats := cb.Stats()
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.TotalFailures)
	assert.Equal(t, int64(1), stats.TotalRejected)
	assert.Equal(t, 25.0, stats.FailureRate())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("ledger", BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute}, nil, nil)
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	fail := func(context.Context) error { return fmt.Errorf("locked") }

	cb.Execute(ctx, fail)
	now = now.Add(2 * time.Minute)
	cb.Execute(ctx, fail)
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitStateGauge(t *testing.T) {
	assert.Equal(t, 0, CircuitClosed.Gauge())
	assert.Equal(t, 1, CircuitHalfOpen.Gauge())
	assert.Equal(t, 2, CircuitOpen.Gauge())
}
