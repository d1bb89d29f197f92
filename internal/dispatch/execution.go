package dispatch

import (
	"sync"
	"time"

	"signal-trader/internal/models"
)

// ExecutionState is the lifecycle state of one order submission.
type ExecutionState string

const (
	StateSending   ExecutionState = "SENDING"
	StateFilled    ExecutionState = "FILLED"
	StateError     ExecutionState = "ERROR"
	StateDismissed ExecutionState = "DISMISSED"
)

// Terminal reports whether no further transition can happen.
func (s ExecutionState) Terminal() bool {
	return s == StateError || s == StateDismissed
}

// allowed lists the legal transitions. ERROR and DISMISSED have none.
var allowed = map[ExecutionState][]ExecutionState{
	StateSending: {StateFilled, StateError},
	StateFilled:  {StateDismissed},
}

// ExecutionStatus is a point-in-time copy of an Execution.
type ExecutionStatus struct {
	ID        string               `json:"id"`
	SignalID  string               `json:"signalId"`
	State     ExecutionState       `json:"state"`
	Order     *models.OrderRequest `json:"order,omitempty"`
	Fill      *models.Fill         `json:"fill,omitempty"`
	Error     string               `json:"error,omitempty"`
	Attempts  int                  `json:"attempts"`
	StartedAt time.Time            `json:"startedAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Execution tracks one dispatch. A filled execution dismisses itself after
// a delay; dismissal only changes the state.
type Execution struct {
	mu       sync.Mutex
	status   ExecutionStatus
	err      error
	timer    *time.Timer
	observer func(ExecutionStatus)
	done     chan struct{}
}

func newExecution(id, signalID string, observer func(ExecutionStatus)) *Execution {
	now := time.Now()
	e := &Execution{
		status: ExecutionStatus{
			ID:        id,
			SignalID:  signalID,
			State:     StateSending,
			StartedAt: now,
			UpdatedAt: now,
		},
		observer: observer,
		done:     make(chan struct{}),
	}
	e.notify(e.status)
	return e
}

// ID returns the execution id.
func (e *Execution) ID() string {
	return e.status.ID
}

// State returns the current state.
func (e *Execution) State() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.State
}

// Status returns a copy of the execution.
func (e *Execution) Status() ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Fill returns the ledger fill once FILLED.
func (e *Execution) Fill() *models.Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Fill
}

// Err returns the failure once in ERROR.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Done is closed when the execution reaches a terminal state.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Dismiss moves a FILLED execution to DISMISSED now instead of waiting for
// the timer.
func (e *Execution) Dismiss() bool {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()
	return e.transition(StateDismissed, nil)
}

func (e *Execution) setAttempt(order *models.OrderRequest, attempt int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Order = order
	e.status.Attempts = attempt
}

func (e *Execution) filled(fill *models.Fill, dismissAfter time.Duration) bool {
	e.mu.Lock()
	e.status.Fill = fill
	e.mu.Unlock()

	if !e.transition(StateFilled, nil) {
		return false
	}
	if dismissAfter > 0 {
		e.mu.Lock()
		e.timer = time.AfterFunc(dismissAfter, func() { e.transition(StateDismissed, nil) })
		e.mu.Unlock()
	}
	return true
}

func (e *Execution) failed(err error) bool {
	return e.transition(StateError, err)
}

func (e *Execution) transition(to ExecutionState, err error) bool {
	e.mu.Lock()
	from := e.status.State
	ok := false
	for _, s := range allowed[from] {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		e.mu.Unlock()
		return false
	}

	e.status.State = to
	e.status.UpdatedAt = time.Now()
	if err != nil {
		e.err = err
		e.status.Error = err.Error()
	}
	snapshot := e.status
	if to.Terminal() {
		close(e.done)
	}
	e.mu.Unlock()

	e.notify(snapshot)
	return true
}

func (e *Execution) notify(s ExecutionStatus) {
	if e.observer != nil {
		e.observer(s)
	}
}
