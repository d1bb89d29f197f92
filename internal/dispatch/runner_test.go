package dispatch

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/models"
)

func feed(signals ...models.Signal) <-chan models.Signal {
	ch := make(chan models.Signal, len(signals))
	for _, s := range signals {
		ch <- s
	}
	close(ch)
	return ch
}

func TestRunner_TradesEverySignal(t *testing.T) {
	opener := filledOpener()
	d := newTestDispatcher(opener, fixedCapital(100000), DefaultConfig())
	r := NewRunner(d, 4)

	var signals []models.Signal
	for i := 0; i < 20; i++ {
		signals = append(signals, liveOptionSignal(fmt.Sprintf("sig-%d", i)))
	}
	low := liveOptionSignal("sig-low")
	low.Confidence = 30
	signals = append(signals, low)

	var seqs []int
	filled, skipped := 0, 0
	for res := range r.Run(context.Background(), feed(signals...)) {
		require.NoError(t, res.Err)
		seqs = append(seqs, res.Seq)
		if res.Skipped() {
			skipped++
			assert.Equal(t, "sig-low", res.Signal.ID)
			continue
		}
		filled++
		assert.Equal(t, StateFilled, res.Execution.State())
	}

	assert.Equal(t, 20, filled)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, int32(20), opener.calls.Load())

	sort.Ints(seqs)
	for i, s := range seqs {
		assert.Equal(t, i, s)
	}

	stats := r.Stats()
	assert.Equal(t, 4, stats.Workers)
	assert.Equal(t, uint64(21), stats.TasksTotal)
	assert.Equal(t, uint64(21), stats.TasksDone)
	assert.Zero(t, stats.Failed)
}

func TestRunner_SingleWorkerKeepsOrder(t *testing.T) {
	d := newTestDispatcher(filledOpener(), fixedCapital(100000), DefaultConfig())
	r := NewRunner(d, 0)

	var ids []string
	for res := range r.Run(context.Background(), feed(liveOptionSignal("a"), liveOptionSignal("b"), liveOptionSignal("c"))) {
		ids = append(ids, res.Signal.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 1, r.Stats().Workers)
}

func TestRunner_CountsFailures(t *testing.T) {
	d := newTestDispatcher(failingOpener(fmt.Errorf("disk full")), fixedCapital(100000), DefaultConfig())
	r := NewRunner(d, 2)

	n := 0
	for res := range r.Run(context.Background(), feed(liveOptionSignal("a"), liveOptionSignal("b"))) {
		assert.Error(t, res.Err)
		n++
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), r.Stats().Failed)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	d := newTestDispatcher(filledOpener(), fixedCapital(100000), DefaultConfig())
	r := NewRunner(d, 2)

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan models.Signal)
	results := r.Run(ctx, signals)

	signals <- liveOptionSignal("a")
	res := <-results
	assert.NoError(t, res.Err)

	cancel()
	for range results {
	}
	assert.Equal(t, uint64(1), r.Stats().TasksTotal)
}
