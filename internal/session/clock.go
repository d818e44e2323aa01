package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ClockState enumerates the lifecycle states of a SessionClock.
type ClockState int

// Clock lifecycle states. Expired is terminal; Stopped is reachable only via
// an explicit Stop call.
const (
	ClockIdle ClockState = iota
	ClockRunning
	ClockExpired
	ClockStopped
)

func (s ClockState) String() string {
	switch s {
	case ClockIdle:
		return "idle"
	case ClockRunning:
		return "running"
	case ClockExpired:
		return "expired"
	case ClockStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrClockNotIdle indicates Start was called on a clock that already ran.
var ErrClockNotIdle = errors.New("session clock has already been started")

// ClockConfig groups SessionClock construction options.
type ClockConfig struct {
	// Now supplies wall-clock time; defaults to time.Now.
	Now func() time.Time
	// TickInterval controls how often remaining time is re-evaluated.
	// Defaults to one second.
	TickInterval time.Duration
	Logger       zerolog.Logger
}

// SessionClock is a wall-clock-accurate countdown for one assessment session.
// Remaining time is derived from elapsed wall-clock time rather than a
// decrementing counter, so a stalled or throttled tick loop cannot cause
// drift: the first tick after a stall reflects true elapsed time, clamped at
// zero. The expiry callback fires exactly once.
type SessionClock struct {
	mu            sync.Mutex
	now           func() time.Time
	tickInterval  time.Duration
	logger        zerolog.Logger
	state         ClockState
	startedAt     time.Time
	duration      time.Duration
	lastRemaining int
	onTick        func(remainingSeconds int)
	onExpire      func()
	stop          chan struct{}
}

// NewSessionClock constructs an idle clock.
func NewSessionClock(cfg ClockConfig) *SessionClock {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}

	return &SessionClock{
		now:          cfg.Now,
		tickInterval: cfg.TickInterval,
		logger:       cfg.Logger.With().Str("component", "session_clock").Logger(),
		state:        ClockIdle,
	}
}

// Start begins the countdown. onTick receives the remaining whole seconds at
// least once per tick interval while running; onExpire fires exactly once
// when remaining time reaches zero.
func (c *SessionClock) Start(duration time.Duration, onTick func(int), onExpire func()) error {
	c.mu.Lock()
	if c.state != ClockIdle {
		c.mu.Unlock()
		return ErrClockNotIdle
	}

	c.state = ClockRunning
	c.startedAt = c.now()
	c.duration = duration
	c.lastRemaining = int(duration / time.Second)
	c.onTick = onTick
	c.onExpire = onExpire
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	c.logger.Info().Dur("duration", duration).Msg("session clock started")

	go c.run(stop)
	return nil
}

func (c *SessionClock) run(stop chan struct{}) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := c.evaluate(); done {
				return
			}
		}
	}
}

// evaluate recomputes remaining time from wall-clock timestamps and fires the
// tick and, on the Running to Expired transition, the expiry callback. It
// reports whether the clock has reached a terminal state.
func (c *SessionClock) evaluate() bool {
	c.mu.Lock()
	if c.state != ClockRunning {
		c.mu.Unlock()
		return true
	}

	remaining := c.duration - c.now().Sub(c.startedAt)
	seconds := int((remaining + time.Second - 1) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	// Wall clocks can step backwards; never report an increase.
	if seconds > c.lastRemaining {
		seconds = c.lastRemaining
	}
	c.lastRemaining = seconds

	expired := remaining <= 0
	if expired {
		c.state = ClockExpired
	}
	onTick := c.onTick
	onExpire := c.onExpire
	c.mu.Unlock()

	if onTick != nil {
		onTick(seconds)
	}
	if expired {
		c.logger.Info().Msg("session time expired")
		if onExpire != nil {
			onExpire()
		}
	}
	return expired
}

// Stop halts the countdown without expiring it, e.g. on session teardown.
// Stopping an expired or already stopped clock is a no-op.
func (c *SessionClock) Stop() {
	c.mu.Lock()
	if c.state != ClockRunning {
		c.mu.Unlock()
		return
	}
	c.state = ClockStopped
	close(c.stop)
	c.mu.Unlock()

	c.logger.Info().Msg("session clock stopped")
}

// Remaining returns the last observed remaining whole seconds.
func (c *SessionClock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRemaining
}

// State returns the clock's lifecycle state.
func (c *SessionClock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
