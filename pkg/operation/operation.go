// Package operation tracks one cancellable background run on a loop.
package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"pix/pkg/loop"
	"sync"
)

// State is the lifecycle state of an Operation.
type State int

const (
	Idle State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

var transitions = map[State][]State{
	Idle:    {Running},
	Running: {Completed, Cancelled, Failed},
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ErrNotIdle is returned when starting an operation that already ran.
var ErrNotIdle = errors.New("operation already started")

// Operation is a single run of background work. It is created Idle, started
// once and ends in exactly one terminal state.
// Mutable
type Operation struct {
	name   string
	loop   *loop.Loop
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	err    error
	handle *loop.Handle
}

// New creates an idle operation that will run on l.
func New(name string, l *loop.Loop, logger *slog.Logger) *Operation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operation{
		name:   name,
		loop:   l,
		logger: logger.With("operation", name),
	}
}

// Start submits work to the loop. onDone, if set, is called exactly once with
// the terminal state and error, from a goroutine owned by the loop.
func (o *Operation) Start(work loop.Work, onDone func(State, error)) error {
	o.mu.Lock()
	if !o.state.CanTransition(Running) {
		o.mu.Unlock()
		return fmt.Errorf("%s: %w", o.name, ErrNotIdle)
	}
	o.state = Running
	o.mu.Unlock()
	o.logger.Debug("operation started")

	// A stopped loop finishes the handle inside SubmitFunc, so the lock must
	// not be held here.
	h := o.loop.SubmitFunc(work, func(err error) {
		state := o.finish(err)
		if onDone != nil {
			onDone(state, err)
		}
	})

	o.mu.Lock()
	o.handle = h
	o.mu.Unlock()
	return nil
}

func (o *Operation) finish(err error) State {
	next := Completed
	switch {
	case err == nil:
	case loop.Cancelled(err):
		next = Cancelled
	default:
		next = Failed
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.CanTransition(next) {
		o.logger.Warn("ignoring transition", "from", o.state, "to", next)
		return o.state
	}
	o.state = next
	o.err = err
	o.logger.Debug("operation finished", "state", next, "error", err)
	return next
}

// Cancel requests cancellation. It does nothing if the operation was never
// started or has already finished.
func (o *Operation) Cancel() {
	o.mu.Lock()
	h := o.handle
	o.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

// Done is closed when the operation reaches a terminal state.
// It is nil for an operation that was never started.
func (o *Operation) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle == nil {
		return nil
	}
	return o.handle.Done()
}

// Wait blocks until the operation finishes or ctx is done.
func (o *Operation) Wait(ctx context.Context) error {
	done := o.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return o.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the operation name.
func (o *Operation) Name() string { return o.name }

// State returns the current state.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the terminal error, if any.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Active reports whether the operation is running.
func (o *Operation) Active() bool {
	return o.State() == Running
}
