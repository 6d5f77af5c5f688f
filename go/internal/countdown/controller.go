package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle phase of a countdown.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExpired State = "expired"
)

// Controller drives a one-second countdown toward a deadline. OnTick reports
// the remaining whole seconds after every tick; OnExpire fires exactly once
// when the deadline passes. All callbacks run on the ticker goroutine.
type Controller struct {
	clock    clockwork.Clock
	onTick   func(remaining int)
	onExpire func()

	mu       sync.Mutex
	state    State
	deadline time.Time
	// gen invalidates a stale ticker goroutine after Stop or a restart, so a
	// tick from a cancelled run can never expire the current one.
	gen int
}

// NewController creates an idle countdown. Either callback may be nil.
func NewController(clock clockwork.Clock, onTick func(remaining int), onExpire func()) *Controller {
	return &Controller{
		clock:    clock,
		onTick:   onTick,
		onExpire: onExpire,
		state:    StateIdle,
	}
}

// Start begins a countdown of the given duration from now.
func (c *Controller) Start(d time.Duration) {
	c.SyncToDeadline(c.clock.Now().Add(d))
}

// SyncToDeadline aligns the countdown with an externally supplied deadline,
// replacing any countdown already running. A deadline already in the past
// expires immediately.
func (c *Controller) SyncToDeadline(deadline time.Time) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.deadline = deadline
	remaining := remainingSeconds(deadline, c.clock.Now())
	if remaining <= 0 {
		c.state = StateExpired
		c.mu.Unlock()
		log.Debug().Time("deadline", deadline).Msg("countdown deadline already passed")
		if c.onExpire != nil {
			// Off the caller's goroutine, like a ticker expiry: the caller may
			// hold locks the callback needs.
			go c.onExpire()
		}
		return
	}
	c.state = StateRunning
	c.mu.Unlock()

	log.Debug().
		Time("deadline", deadline).
		Int("remaining", remaining).
		Msg("countdown started")

	go c.run(gen, deadline)
}

func (c *Controller) run(gen int, deadline time.Time) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.Chan() {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		remaining := remainingSeconds(deadline, c.clock.Now())
		expired := remaining <= 0
		if expired {
			c.state = StateExpired
		}
		c.mu.Unlock()

		if expired {
			log.Debug().Time("deadline", deadline).Msg("countdown expired")
			if c.onExpire != nil {
				c.onExpire()
			}
			return
		}
		if c.onTick != nil {
			c.onTick(remaining)
		}
	}
}

// Stop cancels any running countdown and returns to idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.deadline = time.Time{}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the whole seconds left, rounded up so a freshly started
// countdown reads its full length. Zero when idle or expired.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return 0
	}
	r := remainingSeconds(c.deadline, c.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}

func remainingSeconds(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
