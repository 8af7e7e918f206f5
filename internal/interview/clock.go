package interview

import (
	"sync"
	"time"
)

const defaultTickInterval = time.Second

// Clock counts the interview budget down. The expiry callback fires at most
// once and never after Stop.
type Clock struct {
	budget   time.Duration
	tick     time.Duration
	onTick   func(remaining time.Duration)
	onExpire func()

	mu      sync.Mutex
	started time.Time
	running bool
	stopped bool
	expired bool
	frozen  time.Duration
	stop    chan struct{}
}

// NewClock builds a stopped clock. Both callbacks are optional and run on the clock's goroutine.
func NewClock(budget, tick time.Duration, onTick func(time.Duration), onExpire func()) *Clock {
	if tick <= 0 {
		tick = defaultTickInterval
	}
	return &Clock{
		budget:   budget,
		tick:     tick,
		onTick:   onTick,
		onExpire: onExpire,
		frozen:   budget,
		stop:     make(chan struct{}),
	}
}

// Start begins the countdown. Calls after the first are ignored.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.running || c.stopped {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.started = time.Now()
	c.mu.Unlock()

	go c.run()
}

func (c *Clock) run() {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	timer := time.NewTimer(c.budget)
	defer timer.Stop()

	for {
		select {
		case <-c.stop:
			return

		case <-ticker.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			remaining := c.remainingLocked()
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(remaining)
			}

		case <-timer.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.stopped = true
			c.expired = true
			c.frozen = 0
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(0)
			}
			if c.onExpire != nil {
				c.onExpire()
			}
			return
		}
	}
}

// Stop freezes the remaining time. It reports whether this call stopped the clock.
func (c *Clock) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	c.frozen = c.remainingLocked()
	c.stopped = true
	close(c.stop)
	return true
}

// Remaining never increases.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Clock) remainingLocked() time.Duration {
	if c.stopped || !c.running {
		return c.frozen
	}
	remaining := c.budget - time.Since(c.started)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the budget ran out.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Budget returns the total time.
func (c *Clock) Budget() time.Duration {
	return c.budget
}
