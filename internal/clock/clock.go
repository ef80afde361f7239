// Package clock is a two-sided chess clock. Remaining time is computed from
// clock readings, so a late or skipped tick never loses or gains time; the
// ticker only exists to notice when the running side reaches zero.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-online-chess/internal/domain"
)

const DefaultTick = 100 * time.Millisecond

// TimeoutFunc is called once, off the clock's lock, when a side hits zero.
type TimeoutFunc func(loser domain.Color)

type Clock struct {
	clk       clockwork.Clock
	interval  time.Duration
	onTimeout TimeoutFunc

	mu        sync.Mutex
	tc        domain.TimeControl
	remaining [2]time.Duration
	active    domain.Color
	running   bool
	lastTick  time.Time
	stop      chan struct{}
}

type Option func(*Clock)

func WithClock(c clockwork.Clock) Option {
	return func(k *Clock) {
		if c != nil {
			k.clk = c
		}
	}
}

func WithTick(d time.Duration) Option {
	return func(k *Clock) {
		if d > 0 {
			k.interval = d
		}
	}
}

func WithTimeout(fn TimeoutFunc) Option {
	return func(k *Clock) { k.onTimeout = fn }
}

// New returns a stopped clock with both sides at tc's initial time.
func New(tc domain.TimeControl, opts ...Option) *Clock {
	c := &Clock{clk: clockwork.NewRealClock(), interval: DefaultTick}
	for _, opt := range opts {
		opt(c)
	}
	c.tc = tc
	c.remaining = [2]time.Duration{tc.Initial(), tc.Initial()}
	return c
}

func side(color domain.Color) int {
	switch color {
	case domain.White:
		return 0
	case domain.Black:
		return 1
	default:
		return -1
	}
}

// Start runs color's countdown. A side already at zero is not started.
func (c *Clock) Start(color domain.Color) {
	i := side(color)
	if i < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	if c.remaining[i] <= 0 {
		return
	}
	c.active = color
	c.running = true
	c.lastTick = c.clk.Now()
	c.ensureTickerLocked()
}

// Pause stops both countdowns.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.running = false
	c.active = domain.NoColor
	c.stopTickerLocked()
}

// SwitchTurn credits the increment to the side that just moved (the
// opposite of to) and makes to the running side.
func (c *Clock) SwitchTurn(to domain.Color) {
	i := side(to)
	if i < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settleLocked()
	c.remaining[1-i] += c.tc.Increment()
	c.active = to
	c.lastTick = c.clk.Now()
}

// SetTimes overwrites both sides, e.g. from a room snapshot.
func (c *Clock) SetTimes(white, black time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = [2]time.Duration{max(white, 0), max(black, 0)}
	c.lastTick = c.clk.Now()
}

// Reset stops the clock and loads a new time control.
func (c *Clock) Reset(tc domain.TimeControl) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.active = domain.NoColor
	c.stopTickerLocked()
	c.tc = tc
	c.remaining = [2]time.Duration{tc.Initial(), tc.Initial()}
}

// Remaining is the live value for color, never negative.
func (c *Clock) Remaining(color domain.Color) time.Duration {
	i := side(color)
	if i < 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.remaining[i]
	if c.running && c.active == color {
		r -= c.clk.Since(c.lastTick)
	}
	return max(r, 0)
}

func (c *Clock) RemainingMs(color domain.Color) int64 {
	return c.Remaining(color).Milliseconds()
}

func (c *Clock) IsTimeUp(color domain.Color) bool { return c.Remaining(color) <= 0 }

// Active is the side currently counting down, NoColor when stopped.
func (c *Clock) Active() domain.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return domain.NoColor
	}
	return c.active
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) TimeControl() domain.TimeControl {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tc
}

// Close stops the ticker goroutine.
func (c *Clock) Close() { c.Pause() }

func (c *Clock) settleLocked() {
	if !c.running {
		return
	}
	i := side(c.active)
	if i < 0 {
		return
	}
	now := c.clk.Now()
	c.remaining[i] = max(c.remaining[i]-now.Sub(c.lastTick), 0)
	c.lastTick = now
}

func (c *Clock) ensureTickerLocked() {
	if c.stop != nil {
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	ticker := c.clk.NewTicker(c.interval)
	go c.run(ticker, stop)
}

func (c *Clock) stopTickerLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Clock) run(t clockwork.Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			if loser, flagged := c.tick(); flagged {
				if c.onTimeout != nil {
					c.onTimeout(loser)
				}
				return
			}
		}
	}
}

// tick settles elapsed time and reports a side that just ran out.
func (c *Clock) tick() (domain.Color, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return domain.NoColor, false
	}
	c.settleLocked()
	i := side(c.active)
	if i < 0 || c.remaining[i] > 0 {
		return domain.NoColor, false
	}
	loser := c.active
	c.running = false
	c.active = domain.NoColor
	c.stop = nil
	return loser, true
}

// Format renders d as M:SS, or H:MM:SS from one hour up. Negative values
// render as 0:00.
func Format(d time.Duration) string {
	total := int64(max(d, 0) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
