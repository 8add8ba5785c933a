package coordinator

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Queue is an unbounded Sender for running the coordinator without a
// tea.Program. One goroutine reads it with Next and feeds Update.
// Mutable
type Queue struct {
	mu   sync.Mutex
	msgs []tea.Msg
	wake chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Send never blocks.
func (q *Queue) Send(msg tea.Msg) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Next returns the oldest message, waiting for one if necessary.
func (q *Queue) Next(ctx context.Context) (tea.Msg, error) {
	for {
		q.mu.Lock()
		if len(q.msgs) > 0 {
			msg := q.msgs[0]
			q.msgs = q.msgs[1:]
			q.mu.Unlock()
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Exec runs cmd on its own goroutine and queues what it returns.
// Batches are unpacked.
func (q *Queue) Exec(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				q.Exec(c)
			}
			return
		}
		if msg != nil {
			q.Send(msg)
		}
	}()
}
