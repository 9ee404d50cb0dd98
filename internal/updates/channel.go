package updates

import (
	"context"
	"errors"
	"sync"

	"github.com/Guliveer/vitalis/sampler/internal/metrics"
)

// ErrClosed is returned by Send after Close, and by Recv once the channel
// is closed and drained.
var ErrClosed = errors.New("update channel closed")

// DefaultCapacity bounds the queue when no capacity is given.
const DefaultCapacity = 64

// Channel is an ordered queue safe for several producers and one consumer.
// Unread snapshots are superseded by newer ones, and when the queue is full
// the oldest message is dropped, so a slow consumer sees bounded staleness
// instead of a growing backlog.
type Channel struct {
	mu       sync.Mutex
	queue    []Message
	capacity int
	closed   bool
	dropped  int
	notify   chan struct{}
}

// NewChannel creates a channel holding at most capacity unread messages.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Channel{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Send enqueues msg without blocking.
func (c *Channel) Send(msg Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	dropped := 0
	if _, ok := msg.(SnapshotReady); ok {
		kept := c.queue[:0]
		for _, m := range c.queue {
			if _, old := m.(SnapshotReady); old {
				dropped++
				continue
			}
			kept = append(kept, m)
		}
		for i := len(kept); i < len(c.queue); i++ {
			c.queue[i] = nil
		}
		c.queue = kept
	}
	for len(c.queue) >= c.capacity {
		c.queue[0] = nil
		c.queue = c.queue[1:]
		dropped++
	}
	c.queue = append(c.queue, msg)
	c.dropped += dropped
	c.mu.Unlock()

	if dropped > 0 {
		metrics.IncChannelDropped(dropped)
	}
	c.signal()
	return nil
}

// TryRecv returns the oldest unread message without blocking.
func (c *Channel) TryRecv() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return msg, true
}

// Drain returns every unread message in order.
func (c *Channel) Drain() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.queue
	c.queue = nil
	return out
}

// Ready is signalled after a send or close. A signal may cover several
// messages; receivers should drain until TryRecv reports empty.
func (c *Channel) Ready() <-chan struct{} {
	return c.notify
}

// Recv blocks until a message is available, ctx is done, or the channel is
// closed and empty.
func (c *Channel) Recv(ctx context.Context) (Message, error) {
	for {
		if msg, ok := c.TryRecv(); ok {
			return msg, nil
		}
		if c.isClosed() {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.notify:
		}
	}
}

// Close stops further sends. Queued messages stay readable.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// Len returns the number of unread messages.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Dropped returns how many messages were superseded or evicted unread.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
