package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Remaining returns whole seconds left until expiry, never negative.
func Remaining(expiry, now time.Time) int {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// Tick is one published countdown value.
type Tick struct {
	Remaining int  `json:"remaining"`
	Done      bool `json:"done"`
}

// Controller runs at most one expiry countdown at a time. Opening a new
// countdown or closing the current one stops the previous ticker before
// returning, so no stale timer keeps publishing.
type Controller struct {
	clock clockwork.Clock

	mu        sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	remaining int
	subs      map[int]chan Tick
	nextSub   int
}

// NewController creates a controller driven by clock.
func NewController(clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{clock: clock, subs: make(map[int]chan Tick)}
}

// Open cancels any running countdown and starts one towards expiry. It
// returns the initial remaining value. A zero expiry or one already in the
// past yields 0 and starts no timer.
func (c *Controller) Open(expiry time.Time) int {
	c.Close()

	left := 0
	if !expiry.IsZero() {
		left = Remaining(expiry, c.clock.Now())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = left
	c.publishLocked(Tick{Remaining: left, Done: left == 0})
	if left == 0 {
		return 0
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done
	ticker := c.clock.NewTicker(time.Second)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				left := Remaining(expiry, c.clock.Now())
				c.mu.Lock()
				if c.stop != stop {
					c.mu.Unlock()
					return
				}
				c.remaining = left
				c.publishLocked(Tick{Remaining: left, Done: left == 0})
				if left == 0 {
					c.stop, c.done = nil, nil
				}
				c.mu.Unlock()
				if left == 0 {
					return
				}
			}
		}
	}()
	return left
}

// Close stops the running countdown, if any, and waits for its goroutine.
func (c *Controller) Close() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.remaining = 0
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Remaining reports the last published value.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Active reports whether a ticker is currently running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Subscribe returns a channel receiving every published tick and a func to
// unsubscribe. Slow subscribers miss ticks rather than stall the countdown.
func (c *Controller) Subscribe() (<-chan Tick, func()) {
	ch := make(chan Tick, 8)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) publishLocked(t Tick) {
	for _, ch := range c.subs {
		select {
		case ch <- t:
		default:
		}
	}
}
