/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const tickInterval = time.Second

// Timer counts down once per second and calls onExpire exactly once when it
// reaches zero from a running state.
type Timer struct {
	mu sync.Mutex

	clock    clockwork.Clock
	onExpire func()
	onTick   func(remaining int)

	initial   int
	remaining int
	running   bool
	exceeded  bool

	// generation invalidates tick loops that belong to a stopped run.
	generation uint64
	ticker     clockwork.Ticker
	done       chan struct{}
}

type TimerOption func(*Timer)

// WithTickFunc registers a callback invoked after every tick with the
// remaining number of seconds.
func WithTickFunc(fn func(remaining int)) TimerOption {
	return func(t *Timer) {
		t.onTick = fn
	}
}

func NewTimer(clock clockwork.Clock, seconds int, onExpire func(), opts ...TimerOption) (*Timer, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, seconds)
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	t := &Timer{
		clock:     clock,
		onExpire:  onExpire,
		initial:   seconds,
		remaining: seconds,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startLocked()
}

func (t *Timer) startLocked() {
	if t.remaining == 0 || t.running {
		return
	}

	t.exceeded = false
	t.running = true
	t.generation++
	t.ticker = t.clock.NewTicker(tickInterval)
	t.done = make(chan struct{})

	go t.run(t.ticker, t.done, t.generation)
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if !t.running {
		return
	}

	t.running = false
	t.generation++

	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}

	if t.done != nil {
		close(t.done)
		t.done = nil
	}
}

// Reset stops the timer and puts it back to its initial duration without
// starting it.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
}

func (t *Timer) resetLocked() {
	t.stopLocked()
	t.remaining = t.initial
	t.exceeded = false
}

func (t *Timer) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
	t.startLocked()
}

func (t *Timer) run(ticker clockwork.Ticker, done <-chan struct{}, generation uint64) {
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
		}

		remaining, expired, ok := t.tick(generation)
		if !ok {
			return
		}

		if t.onTick != nil {
			t.onTick(remaining)
		}

		if expired {
			if t.onExpire != nil {
				t.onExpire()
			}

			return
		}
	}
}

// tick decrements the counter. ok is false when the run it belongs to has
// already been stopped.
func (t *Timer) tick(generation uint64) (remaining int, expired, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running || t.generation != generation {
		return t.remaining, false, false
	}

	t.remaining--

	if t.remaining == 0 {
		t.stopLocked()
		t.exceeded = true

		return 0, true, true
	}

	return t.remaining, false, true
}

func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.remaining
}

func (t *Timer) Initial() int {
	return t.initial
}

func (t *Timer) Exceeded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.exceeded
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
