// Package clock tracks the judging window.
//
// The clock never ticks on its own: elapsed time is computed from the
// accumulated duration plus the time since the last start.
package clock

import (
	"sync"
	"time"

	"github.com/okian/jury/internal/domain/model"
	"github.com/okian/jury/pkg/metrics"
)

// Controller owns the process-wide judging window state.
type Controller struct {
	mu          sync.Mutex
	now         func() time.Time
	accumulated time.Duration
	startedAt   time.Time
	running     bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a stopped clock at zero.
func New(opts ...Option) *Controller {
	c := &Controller{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	metrics.UpdateClockRunning(false)
	return c
}

// Start opens the judging window. Starting a running clock is a no-op.
func (c *Controller) Start() model.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		c.running = true
		c.startedAt = c.now()
		metrics.UpdateClockRunning(true)
	}
	return c.stateLocked()
}

// Stop closes the judging window and folds the running span into the total.
func (c *Controller) Stop() model.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.accumulated += c.sinceStartLocked()
		c.running = false
		metrics.UpdateClockRunning(false)
	}
	return c.stateLocked()
}

// Reset stops the clock and zeroes elapsed time.
func (c *Controller) Reset() model.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.accumulated = 0
	c.startedAt = time.Time{}
	metrics.UpdateClockRunning(false)
	return c.stateLocked()
}

// Get returns the current state.
func (c *Controller) Get() model.ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Running reports whether the window is open.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) stateLocked() model.ClockState {
	elapsed := c.accumulated
	if c.running {
		elapsed += c.sinceStartLocked()
	}
	return model.ClockState{Time: elapsed.Seconds(), Running: c.running}
}

// sinceStartLocked never goes negative, even if the time source steps back.
func (c *Controller) sinceStartLocked() time.Duration {
	d := c.now().Sub(c.startedAt)
	if d < 0 {
		return 0
	}
	return d
}
