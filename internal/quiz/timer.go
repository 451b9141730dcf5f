package quiz

import (
	"fmt"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Timer is a one-second countdown. Ticks are delivered one at a time: a tick
// hook finishes before the next tick starts, whether ticks come from the
// internal ticker or from manual Tick calls.
type Timer struct {
	interval time.Duration
	onTick   func(remaining int)
	onExpire func()

	tickMu sync.Mutex // serializes Tick

	mu        sync.Mutex
	remaining int
	armed     bool
	stop      chan struct{}
	gen       uint64 // bumped by Start; stale tickers compare against it
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithInterval sets the automatic tick period. Zero disables the internal
// ticker; the owner then drives the countdown with Tick.
func WithInterval(d time.Duration) TimerOption {
	return func(t *Timer) { t.interval = d }
}

// WithTickHook registers the callback that receives remaining seconds after each decrement.
func WithTickHook(fn func(remaining int)) TimerOption {
	return func(t *Timer) { t.onTick = fn }
}

// WithExpireHook registers the callback fired once when the countdown reaches zero.
func WithExpireHook(fn func()) TimerOption {
	return func(t *Timer) { t.onExpire = fn }
}

func NewTimer(opts ...TimerOption) *Timer {
	t := &Timer{interval: time.Second}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start arms the countdown. A running countdown is replaced.
func (t *Timer) Start(initialSeconds int) error {
	if initialSeconds < 0 {
		return &domain.DataError{Reason: fmt.Sprintf("negative countdown %d", initialSeconds)}
	}

	t.Stop()

	t.mu.Lock()
	t.remaining = initialSeconds
	t.armed = true
	t.gen++
	gen := t.gen
	stop := make(chan struct{})
	t.stop = stop
	interval := t.interval
	t.mu.Unlock()

	if interval > 0 {
		go t.run(interval, stop, gen)
	}
	return nil
}

func (t *Timer) run(interval time.Duration, stop <-chan struct{}, gen uint64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tick(gen)
		}
	}
}

// Tick advances the countdown by one second. It is a no-op while disarmed.
func (t *Timer) Tick() {
	t.tick(0)
}

// tick decrements only if gen is zero or still the current countdown.
func (t *Timer) tick(gen uint64) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	t.mu.Lock()
	if !t.armed || (gen != 0 && gen != t.gen) {
		t.mu.Unlock()
		return
	}
	ticked := false
	if t.remaining > 0 {
		t.remaining--
		ticked = true
	}
	remaining := t.remaining
	expired := remaining == 0
	if expired {
		t.disarmLocked()
	}
	t.mu.Unlock()

	// Hooks run unlocked so they may call Stop or Remaining.
	if ticked && t.onTick != nil {
		t.onTick(remaining)
	}
	if expired && t.onExpire != nil {
		t.onExpire()
	}
}

// Stop disarms the countdown. Safe to call repeatedly and from hooks.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *Timer) disarmLocked() {
	t.armed = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// Remaining returns the seconds left on the countdown.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}
