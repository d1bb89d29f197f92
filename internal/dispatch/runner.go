package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"signal-trader/internal/engine"
	"signal-trader/internal/models"
)

// Result is the outcome of trading one signal from a stream. Seq is the
// signal's position in the input.
type Result struct {
	Seq       int
	Signal    models.Signal
	Ticket    engine.Ticket
	Execution *Execution
	Err       error
}

// Skipped reports whether the signal produced no order.
func (r Result) Skipped() bool {
	return r.Err == nil && r.Execution == nil
}

type runTask struct {
	seq int
	sig models.Signal
}

// Runner trades a stream of signals on a fixed set of workers. With one
// worker results come back in input order.
type Runner struct {
	dispatcher *Dispatcher
	workers    int

	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
	failed     atomic.Uint64
}

// NewRunner creates a runner. Workers below one mean one.
func NewRunner(d *Dispatcher, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{dispatcher: d, workers: workers}
}

// Run trades every signal received on signals until the channel closes or
// ctx is cancelled. The returned channel is closed once all workers exit.
func (r *Runner) Run(ctx context.Context, signals <-chan models.Signal) <-chan Result {
	queue := make(chan runTask, r.workers)
	results := make(chan Result, r.workers)

	go func() {
		defer close(queue)
		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				select {
				case queue <- runTask{seq: seq, sig: sig}:
					r.tasksTotal.Add(1)
					seq++
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, queue, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func (r *Runner) worker(ctx context.Context, queue <-chan runTask, results chan<- Result) {
	for task := range queue {
		exec, ticket, err := r.dispatcher.Trade(ctx, task.sig)
		r.tasksDone.Add(1)
		if err != nil {
			r.failed.Add(1)
		}
		select {
		case results <- Result{Seq: task.seq, Signal: task.sig, Ticket: ticket, Execution: exec, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns runner statistics.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Workers:    r.workers,
		TasksTotal: r.tasksTotal.Load(),
		TasksDone:  r.tasksDone.Load(),
		Failed:     r.failed.Load(),
	}
}

// RunnerStats contains runner statistics.
type RunnerStats struct {
	Workers    int    `json:"workers"`
	TasksTotal uint64 `json:"tasksTotal"`
	TasksDone  uint64 `json:"tasksDone"`
	Failed     uint64 `json:"failed"`
}
