package updates

import (
	"errors"
	"time"
)

// ErrBusy is returned when the control queue is full.
var ErrBusy = errors.New("control queue full")

// Request is a control request from the consumer to the collector loop.
type Request interface {
	isRequest()
}

// SetInterval asks the loop to change its tick interval from the next tick.
type SetInterval struct {
	Interval time.Duration
}

// Shutdown asks the loop to stop.
type Shutdown struct {
	Reason string
}

func (SetInterval) isRequest() {}
func (Shutdown) isRequest()    {}

// Controls is the consumer-to-loop request sink.
type Controls struct {
	ch chan Request
}

// NewControls creates a sink buffering up to capacity requests.
func NewControls(capacity int) *Controls {
	if capacity < 1 {
		capacity = 8
	}
	return &Controls{ch: make(chan Request, capacity)}
}

// Request enqueues r without blocking.
func (c *Controls) Request(r Request) error {
	select {
	case c.ch <- r:
		return nil
	default:
		return ErrBusy
	}
}

// C is read by the collector loop.
func (c *Controls) C() <-chan Request {
	return c.ch
}
