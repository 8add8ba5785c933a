// Package loop provides long-lived background schedulers.
//
// A Loop owns one goroutine that accepts work from any goroutine and runs it
// serially, one item at a time. Cancellation requests are posted to the loop
// like any other request and applied by the loop goroutine itself, so the
// caller never touches a running item's state directly.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Work is a unit of background work. It must return ctx.Err() (or an error
// wrapping it) when it stops early because ctx was cancelled.
type Work func(ctx context.Context) error

type requestKind int

const (
	requestSubmit requestKind = iota
	requestCancel
)

type request struct {
	kind requestKind
	h    *Handle
}

// Loop is a background scheduler. Create it once at startup, start Run on a
// dedicated goroutine and pass it to the components that submit work.
// Mutable
type Loop struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	inbox  []request
	closed bool
	wake   chan struct{}
}

// New creates a loop. It does nothing until Run is called.
func New(name string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		name:   name,
		logger: logger.With("loop", name),
		wake:   make(chan struct{}, 1),
	}
}

// Name returns the name the loop was created with.
func (l *Loop) Name() string { return l.name }

// Submit schedules work on the loop and returns its handle.
// It is safe to call from any goroutine and never blocks.
func (l *Loop) Submit(work Work) *Handle {
	return l.SubmitFunc(work, nil)
}

// SubmitFunc is like Submit but calls done with the terminal error before the
// handle's Done channel is closed. done runs on the loop side: on the worker
// goroutine after work returns, or on the loop goroutine when queued work is
// dropped by a cancel. It must not block for long.
func (l *Loop) SubmitFunc(work Work, done func(error)) *Handle {
	h := &Handle{
		id:     uuid.NewString(),
		loop:   l,
		work:   work,
		onDone: done,
		done:   make(chan struct{}),
	}
	l.post(request{kind: requestSubmit, h: h})
	return h
}

func (l *Loop) post(req request) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if req.kind == requestSubmit {
			req.h.finish(context.Canceled)
		}
		return
	}
	l.inbox = append(l.inbox, req)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) drain(stop bool) []request {
	l.mu.Lock()
	defer l.mu.Unlock()
	reqs := l.inbox
	l.inbox = nil
	if stop {
		l.closed = true
	}
	return reqs
}

// Run dispatches submitted work until ctx is done. It blocks the calling
// goroutine. When ctx ends the running item is cancelled and everything still
// queued finishes with context.Canceled. Work submitted after Run returns
// finishes immediately with context.Canceled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Debug("loop started")

	var (
		queue    []*Handle
		running  *Handle
		finished = make(chan *Handle, 1)
	)

	for {
		if running == nil && len(queue) > 0 {
			running, queue = queue[0], queue[1:]
			l.start(ctx, running, finished)
		}

		select {
		case <-ctx.Done():
			if running != nil {
				running.cancel()
			}
			for _, req := range l.drain(true) {
				if req.kind == requestSubmit {
					queue = append(queue, req.h)
				}
			}
			for _, h := range queue {
				h.finish(context.Canceled)
			}
			l.logger.Debug("loop stopped", "dropped", len(queue))
			return

		case <-l.wake:
			for _, req := range l.drain(false) {
				switch req.kind {
				case requestSubmit:
					queue = append(queue, req.h)
				case requestCancel:
					queue = l.cancel(req.h, running, queue)
				}
			}

		case h := <-finished:
			if h == running {
				running = nil
			}
		}
	}
}

// start runs h on a worker goroutine (called on the loop goroutine).
func (l *Loop) start(parent context.Context, h *Handle, finished chan<- *Handle) {
	ctx, cancel := context.WithCancel(parent)
	h.cancel = cancel
	l.logger.Debug("work started", "id", h.id)

	go func() {
		err := h.work(ctx)
		cancel()
		h.finish(err)
		finished <- h
	}()
}

// cancel applies a cancel request (called on the loop goroutine).
func (l *Loop) cancel(h *Handle, running *Handle, queue []*Handle) []*Handle {
	if h == running {
		l.logger.Debug("cancelling running work", "id", h.id)
		h.cancel()
		return queue
	}
	for i, q := range queue {
		if q == h {
			l.logger.Debug("dropping queued work", "id", h.id)
			h.finish(context.Canceled)
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}

// Handle refers to one submitted unit of work.
type Handle struct {
	id     string
	loop   *Loop
	work   Work
	onDone func(error)

	// owned by the loop goroutine
	cancel context.CancelFunc

	once sync.Once
	err  error
	done chan struct{}
}

// ID returns a unique identifier for the submission.
func (h *Handle) ID() string { return h.id }

// Loop returns the loop the work was submitted to.
func (h *Handle) Loop() *Loop { return h.loop }

// Done is closed once the work has finished, failed or been cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the terminal error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel asks the owning loop to cancel the work. Cancellation is
// cooperative: running work observes it at its next context check.
// Calling Cancel on finished work, or more than once, does nothing.
func (h *Handle) Cancel() {
	select {
	case <-h.done:
		return
	default:
	}
	h.loop.post(request{kind: requestCancel, h: h})
}

// Cancelled reports whether err is the result of a cancellation.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func (h *Handle) finish(err error) {
	h.once.Do(func() {
		h.err = err
		if h.onDone != nil {
			h.onDone(err)
		}
		close(h.done)
	})
}
