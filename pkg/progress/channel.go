// Package progress carries install progress from background work to the
// foreground poller.
package progress

import "sync"

// Channel is an unbounded FIFO of percentages. Push never blocks, so it can
// be called from any goroutine; TryPop is meant for the single poller.
// Mutable
type Channel struct {
	mu    sync.Mutex
	queue []int
}

func NewChannel() *Channel {
	return &Channel{}
}

// Push appends percent to the queue.
func (c *Channel) Push(percent int) {
	c.mu.Lock()
	c.queue = append(c.queue, percent)
	c.mu.Unlock()
}

// TryPop removes and returns the oldest value. ok is false if the queue is
// empty.
func (c *Channel) TryPop() (percent int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return 0, false
	}
	percent = c.queue[0]
	c.queue = c.queue[1:]
	if len(c.queue) == 0 {
		c.queue = nil
	}
	return percent, true
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Percent returns done*100/total using integer division, or 0 when total is
// not positive.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
