/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package memory implements a timed card-pairs game: a grid of face-down
// cards is revealed two at a time, matching pairs stay up, and a countdown
// decides whether the round is won or lost.
package memory

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultFlipDuration = 500 * time.Millisecond

type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// Listener receives everything a renderer needs. Calls are made without
// any grid lock held, possibly from timer goroutines.
type Listener interface {
	GridChanged(Snapshot)
	RoundEnded(won bool)
}

type Option func(*Grid)

func WithClock(clock clockwork.Clock) Option {
	return func(g *Grid) {
		g.clock = clock
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(g *Grid) {
		g.rng = rng
	}
}

func WithListener(l Listener) Option {
	return func(g *Grid) {
		g.listener = l
	}
}

// WithFlipDuration sets the card flip animation length. Mismatched cards
// stay up for twice this long; outcomes are announced after it.
func WithFlipDuration(d time.Duration) Option {
	return func(g *Grid) {
		g.flip = d
	}
}

type Grid struct {
	mu sync.Mutex

	cfg      Config
	clock    clockwork.Clock
	rng      *rand.Rand
	listener Listener
	flip     time.Duration
	timer    *Timer

	state   State
	started bool
	cards   []*Card
	matched []*Card
	pending []*Card
	delays  []time.Duration

	outcome    Outcome
	announcing bool

	// epoch is bumped by restarts; deferred callbacks from older epochs are dropped.
	epoch   uint64
	version uint64
}

func NewGrid(cfg Config, opts ...Option) (*Grid, error) {
	g := &Grid{
		flip:  DefaultFlipDuration,
		state: StatePending,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.clock == nil {
		g.clock = clockwork.NewRealClock()
	}

	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	timer, err := NewTimer(g.clock, cfg.TimeLimit, g.timerExpired, WithTickFunc(g.timerTicked))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g.timer = timer
	g.cfg = cfg.Normalized()

	g.dealLocked()

	return g, nil
}

func (g *Grid) dealLocked() {
	ids := GenerateIDs(g.rng, g.cfg.Rows*g.cfg.Columns)

	g.cards = make([]*Card, len(ids))
	for i, id := range ids {
		g.cards[i] = newCard(id)
	}

	g.matched = nil
	g.pending = nil
	g.delays = Stagger(g.cfg.Rows, g.cfg.Columns, staggerStep)
}

// update runs fn under the grid lock and publishes a snapshot if fn
// reports a change.
func (g *Grid) update(fn func() bool) {
	g.mu.Lock()

	if !fn() {
		g.mu.Unlock()

		return
	}

	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.publish(snap)
}

func (g *Grid) publish(snap Snapshot) {
	if g.listener != nil {
		g.listener.GridChanged(snap)
	}
}

// afterLocked runs fn once d has elapsed, unless the grid was restarted or
// closed in the meantime.
func (g *Grid) afterLocked(d time.Duration, fn func() bool) {
	epoch := g.epoch

	g.clock.AfterFunc(d, func() {
		g.update(func() bool {
			if g.epoch != epoch {
				return false
			}

			return fn()
		})
	})
}

func (g *Grid) Start() {
	g.update(func() bool {
		if g.started || g.state != StatePending {
			return false
		}

		g.started = true
		g.state = StateActive
		g.timer.Start()

		return true
	})
}

// Pause is triggered by the pointer leaving the grid.
func (g *Grid) Pause() {
	g.update(func() bool {
		if !g.started {
			return false
		}

		switch g.state {
		case StateActive, StatePending:
		default:
			return false
		}

		g.state = StatePaused
		g.timer.Stop()

		return true
	})
}

// Resume is triggered by the pointer entering the grid.
func (g *Grid) Resume() {
	g.update(func() bool {
		if g.state != StatePaused {
			return false
		}

		if len(g.pending) == 2 {
			g.state = StatePending
		} else {
			g.state = StateActive
		}

		g.timer.Start()

		return true
	})
}

func (g *Grid) Restart() {
	g.update(func() bool {
		if !g.started {
			return false
		}

		for _, card := range g.cards {
			card.Hide()
		}

		g.epoch++
		g.announcing = false
		g.outcome = OutcomeNone

		g.dealLocked()

		g.state = StateActive
		g.timer.Reset()

		g.afterLocked(2*g.flip, func() bool {
			switch g.state {
			case StatePaused, StateEnded:
				return false
			}

			g.timer.Restart()

			return true
		})

		return true
	})
}

// Click reveals the card at index and resolves the pair once two cards
// are up. Clicks that cannot apply are ignored.
func (g *Grid) Click(index int) {
	g.update(func() bool {
		if g.state != StateActive || index < 0 || index >= len(g.cards) {
			return false
		}

		if len(g.pending) >= 2 {
			return false
		}

		card := g.cards[index]
		if !card.Reveal() {
			return false
		}

		g.pending = append(g.pending, card)

		if len(g.pending) < 2 {
			return true
		}

		first, second := g.pending[0], g.pending[1]

		if first.ID() == second.ID() {
			g.matched = append(g.matched, first, second)
			g.pending = nil
			g.checkStatusLocked()

			return true
		}

		g.state = StatePending

		g.afterLocked(2*g.flip, func() bool {
			first.Hide()
			second.Hide()
			g.pending = nil

			if g.state == StatePending {
				g.state = StateActive
			}

			return true
		})

		return true
	})
}

func (g *Grid) checkStatusLocked() {
	total := len(g.cards)
	matched := len(g.matched)
	exceeded := g.timer.Exceeded()

	// A final match wins even when it lands as the clock hits zero. Once a
	// loss has been scheduled, announceLocked keeps it.
	if total == matched {
		g.announceLocked(OutcomeWin)

		return
	}

	if exceeded {
		g.announceLocked(OutcomeLoss)
	}
}

func (g *Grid) announceLocked(outcome Outcome) {
	if g.announcing {
		return
	}

	g.announcing = true
	epoch := g.epoch

	g.clock.AfterFunc(g.flip, func() {
		g.mu.Lock()

		if g.epoch != epoch || g.state == StateEnded {
			g.mu.Unlock()

			return
		}

		g.endLocked(outcome)

		snap := g.snapshotLocked()
		g.mu.Unlock()

		if g.listener != nil {
			g.listener.RoundEnded(outcome == OutcomeWin)
		}

		g.publish(snap)
	})
}

func (g *Grid) endLocked(outcome Outcome) {
	g.state = StateEnded
	g.outcome = outcome
	g.timer.Stop()
}

func (g *Grid) timerTicked(int) {
	g.update(func() bool {
		return true
	})
}

func (g *Grid) timerExpired() {
	g.update(func() bool {
		g.checkStatusLocked()

		return true
	})
}

// Close stops the timer and discards every pending callback.
func (g *Grid) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.epoch++
	g.timer.Stop()
}

func (g *Grid) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

func (g *Grid) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.started
}

func (g *Grid) Outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.outcome
}

func (g *Grid) MatchedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.matched)
}

func (g *Grid) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.pending)
}

func (g *Grid) Timer() *Timer {
	return g.timer
}

func (g *Grid) Config() Config {
	return g.cfg
}
