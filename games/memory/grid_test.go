/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
	ends      []bool
}

func (r *recorder) GridChanged(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) RoundEnded(won bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ends = append(r.ends, won)
}

func (r *recorder) endings() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]bool(nil), r.ends...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.snapshots)
}

// stallingListener holds the first publish that sees an exceeded timer, so
// a click can land between the final tick and the expiry callback.
type stallingListener struct {
	recorder

	stalled atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newStallingListener() *stallingListener {
	return &stallingListener{
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (l *stallingListener) GridChanged(s Snapshot) {
	l.recorder.GridChanged(s)

	if s.Exceeded && l.stalled.CompareAndSwap(false, true) {
		close(l.reached)
		<-l.release
	}
}

func testConfig(timeLimit int) Config {
	return Config{
		Selector:  "#grid1",
		Width:     800,
		Height:    800,
		Rows:      4,
		Columns:   4,
		TimeLimit: timeLimit,
	}
}

func newTestGrid(t *testing.T, cfg Config, opts ...Option) (*Grid, *clockwork.FakeClock, *recorder) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	rec := &recorder{}

	opts = append([]Option{
		WithClock(clock),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithListener(rec),
	}, opts...)

	g, err := NewGrid(cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(g.Close)

	return g, clock, rec
}

// pairs maps every identifier to the two cell indexes holding it.
func pairs(g *Grid) map[int][]int {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[int][]int)
	for i, card := range g.cards {
		out[card.ID()] = append(out[card.ID()], i)
	}

	return out
}

func mismatch(g *Grid) (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 1; i < len(g.cards); i++ {
		if g.cards[i].ID() != g.cards[0].ID() {
			return 0, i
		}
	}

	panic("deck has no mismatching cards")
}

func revealed(g *Grid, index int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.cards[index].Revealed()
}

func advanceUntil(t *testing.T, clock *clockwork.FakeClock, step time.Duration, cond func() bool) {
	t.Helper()

	require.Eventually(t, func() bool {
		if cond() {
			return true
		}

		clock.Advance(step)

		return cond()
	}, waitFor, pollFor)
}

func TestNewGridValidation(t *testing.T) {
	_, err := NewGrid(testConfig(-1), WithClock(clockwork.NewFakeClock()))
	require.ErrorIs(t, err, ErrInvalidDuration)

	cfg := testConfig(10)
	cfg.Rows = 0
	_, err = NewGrid(cfg, WithClock(clockwork.NewFakeClock()))
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig(10)
	cfg.Theme = "neon"
	_, err = NewGrid(cfg, WithClock(clockwork.NewFakeClock()))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewGridNormalizesOddDimensions(t *testing.T) {
	cfg := testConfig(10)
	cfg.Rows = 3
	cfg.Columns = 5

	g, _, _ := newTestGrid(t, cfg)

	snap := g.Snapshot()
	assert.Equal(t, 4, snap.Rows)
	assert.Equal(t, 6, snap.Columns)
	assert.Len(t, snap.Cards, 24)
	assert.Equal(t, ThemeDefault, snap.Theme)
	assert.Equal(t, StatePending, snap.State)
	assert.Equal(t, Controls{Start: true}, snap.Controls)
}

func TestClickIgnoredBeforeStart(t *testing.T) {
	g, _, _ := newTestGrid(t, testConfig(10))

	g.Click(0)

	assert.False(t, revealed(g, 0))
	assert.Equal(t, 0, g.PendingCount())
}

func TestClickIgnoresOutOfRangeAndRevealedCards(t *testing.T) {
	g, _, _ := newTestGrid(t, testConfig(10))
	g.Start()

	g.Click(-1)
	g.Click(16)
	assert.Equal(t, 0, g.PendingCount())

	g.Click(3)
	g.Click(3)
	assert.Equal(t, 1, g.PendingCount())
	assert.Equal(t, StateActive, g.State())
}

func TestMatchingPairStaysRevealed(t *testing.T) {
	g, _, _ := newTestGrid(t, testConfig(20))
	g.Start()

	cells := pairs(g)[0]
	g.Click(cells[0])
	g.Click(cells[1])

	assert.Equal(t, 2, g.MatchedCount())
	assert.Equal(t, 0, g.PendingCount())
	assert.Equal(t, StateActive, g.State())
	assert.True(t, revealed(g, cells[0]))
	assert.True(t, revealed(g, cells[1]))
}

func TestMismatchFlipsBackAfterDelay(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(60))
	g.Start()

	a, b := mismatch(g)
	g.Click(a)
	g.Click(b)

	assert.Equal(t, StatePending, g.State())
	assert.Equal(t, 2, g.PendingCount())

	// clicks are refused until the pair is resolved
	partner := -1
	for _, i := range pairs(g)[g.cards[a].ID()] {
		if i != a {
			partner = i
		}
	}

	g.Click(partner)
	assert.False(t, revealed(g, partner))

	clock.Advance(2 * DefaultFlipDuration)

	require.Eventually(t, func() bool { return g.State() == StateActive }, waitFor, pollFor)
	assert.False(t, revealed(g, a))
	assert.False(t, revealed(g, b))
	assert.Equal(t, 0, g.PendingCount())
	assert.Equal(t, 0, g.MatchedCount())
}

func TestTimerExpiryLosesRound(t *testing.T) {
	g, clock, rec := newTestGrid(t, testConfig(2))
	g.Start()

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return g.Timer().Remaining() == 1 }, waitFor, pollFor)

	clock.Advance(time.Second)
	require.Eventually(t, g.Timer().Exceeded, waitFor, pollFor)

	advanceUntil(t, clock, 100*time.Millisecond, func() bool { return g.State() == StateEnded })

	assert.Equal(t, OutcomeLoss, g.Outcome())
	require.Eventually(t, func() bool { return len(rec.endings()) == 1 }, waitFor, pollFor)
	assert.Equal(t, []bool{false}, rec.endings())

	g.Click(0)
	assert.False(t, revealed(g, 0))
}

func TestMatchingEveryPairWinsRound(t *testing.T) {
	g, clock, rec := newTestGrid(t, testConfig(20))
	g.Start()

	for _, cells := range pairs(g) {
		g.Click(cells[0])
		g.Click(cells[1])
	}

	assert.Equal(t, 16, g.MatchedCount())
	assert.Equal(t, StateActive, g.State())

	advanceUntil(t, clock, 100*time.Millisecond, func() bool { return g.State() == StateEnded })

	assert.Equal(t, OutcomeWin, g.Outcome())
	assert.False(t, g.Timer().Exceeded())
	assert.False(t, g.Timer().Running())
	require.Eventually(t, func() bool { return len(rec.endings()) == 1 }, waitFor, pollFor)
	assert.Equal(t, []bool{true}, rec.endings())
}

func TestWinTakesPrecedenceOverLateExpiry(t *testing.T) {
	g, clock, rec := newTestGrid(t, testConfig(1), WithFlipDuration(3*time.Second))
	g.Start()

	for _, cells := range pairs(g) {
		g.Click(cells[0])
		g.Click(cells[1])
	}

	clock.Advance(time.Second)
	require.Eventually(t, g.Timer().Exceeded, waitFor, pollFor)

	advanceUntil(t, clock, 500*time.Millisecond, func() bool { return g.State() == StateEnded })

	assert.Equal(t, OutcomeWin, g.Outcome())
	require.Eventually(t, func() bool { return len(rec.endings()) == 1 }, waitFor, pollFor)
	assert.Never(t, func() bool { return len(rec.endings()) > 1 }, quietly, pollFor)
	assert.Equal(t, []bool{true}, rec.endings())
}

func TestFinalMatchAsClockRunsOutWins(t *testing.T) {
	l := newStallingListener()
	g, clock, _ := newTestGrid(t, testConfig(1), WithListener(l))
	g.Start()

	var last []int
	for _, cells := range pairs(g) {
		if last == nil {
			last = cells
			continue
		}

		g.Click(cells[0])
		g.Click(cells[1])
	}

	clock.Advance(time.Second)

	select {
	case <-l.reached:
	case <-time.After(waitFor):
		t.Fatal("final tick was never published")
	}

	require.True(t, g.Timer().Exceeded())

	g.Click(last[0])
	g.Click(last[1])
	assert.Equal(t, 16, g.MatchedCount())

	close(l.release)

	advanceUntil(t, clock, 100*time.Millisecond, func() bool { return g.State() == StateEnded })

	assert.Equal(t, OutcomeWin, g.Outcome())
	require.Eventually(t, func() bool { return len(l.endings()) == 1 }, waitFor, pollFor)
	assert.Never(t, func() bool { return len(l.endings()) > 1 }, quietly, pollFor)
	assert.Equal(t, []bool{true}, l.endings())
}

func TestExpiryDuringMismatchLoses(t *testing.T) {
	g, clock, rec := newTestGrid(t, testConfig(1), WithFlipDuration(2*time.Second))
	g.Start()

	a, b := mismatch(g)
	g.Click(a)
	g.Click(b)
	require.Equal(t, StatePending, g.State())

	clock.Advance(time.Second)
	require.Eventually(t, g.Timer().Exceeded, waitFor, pollFor)

	advanceUntil(t, clock, 500*time.Millisecond, func() bool { return g.State() == StateEnded })
	assert.Equal(t, OutcomeLoss, g.Outcome())

	advanceUntil(t, clock, 500*time.Millisecond, func() bool { return g.PendingCount() == 0 })
	assert.False(t, revealed(g, a))
	assert.False(t, revealed(g, b))
	assert.Equal(t, StateEnded, g.State())

	require.Eventually(t, func() bool { return len(rec.endings()) == 1 }, waitFor, pollFor)
	assert.Equal(t, []bool{false}, rec.endings())
}

func TestPauseDuringRestartSettleKeepsTimerStopped(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(20))
	g.Start()

	g.Restart()
	g.Pause()
	require.Equal(t, StatePaused, g.State())

	clock.Advance(2 * DefaultFlipDuration)
	assert.Never(t, g.Timer().Running, quietly, pollFor)

	g.Resume()
	assert.Equal(t, StateActive, g.State())
	assert.True(t, g.Timer().Running())
	assert.Equal(t, 20, g.Timer().Remaining())
}

func TestPauseAndResume(t *testing.T) {
	g, _, _ := newTestGrid(t, testConfig(30))

	g.Pause()
	assert.Equal(t, StatePending, g.State(), "pause before start is ignored")

	g.Start()
	g.Resume()
	assert.Equal(t, StateActive, g.State())

	g.Pause()
	assert.Equal(t, StatePaused, g.State())
	assert.False(t, g.Timer().Running())

	g.Click(0)
	assert.False(t, revealed(g, 0))

	g.Resume()
	assert.Equal(t, StateActive, g.State())
	assert.True(t, g.Timer().Running())
}

func TestPauseDuringMismatchKeepsPaused(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(30))
	g.Start()

	a, b := mismatch(g)
	g.Click(a)
	g.Click(b)
	g.Pause()

	clock.Advance(2 * DefaultFlipDuration)

	require.Eventually(t, func() bool { return g.PendingCount() == 0 }, waitFor, pollFor)
	assert.Equal(t, StatePaused, g.State())

	g.Resume()
	assert.Equal(t, StateActive, g.State())
}

func TestResumeWhileMismatchUnresolvedStaysPending(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(30))
	g.Start()

	a, b := mismatch(g)
	g.Click(a)
	g.Click(b)
	g.Pause()
	g.Resume()

	assert.Equal(t, StatePending, g.State())

	clock.Advance(2 * DefaultFlipDuration)
	require.Eventually(t, func() bool { return g.State() == StateActive }, waitFor, pollFor)
}

func TestEndedGameIgnoresPauseAndResume(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(1))
	g.Start()

	clock.Advance(time.Second)
	advanceUntil(t, clock, 100*time.Millisecond, func() bool { return g.State() == StateEnded })

	g.Pause()
	assert.Equal(t, StateEnded, g.State())

	g.Resume()
	assert.Equal(t, StateEnded, g.State())
}

func TestRestartResetsRound(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(20))

	g.Restart()
	assert.Equal(t, StatePending, g.State(), "restart is unavailable before start")

	g.Start()

	cells := pairs(g)[1]
	g.Click(cells[0])
	g.Click(cells[1])

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return g.Timer().Remaining() == 19 }, waitFor, pollFor)

	g.Restart()

	snap := g.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.Equal(t, 0, g.MatchedCount())
	assert.Equal(t, 0, g.PendingCount())
	assert.Equal(t, 20, snap.Remaining)
	assert.False(t, g.Timer().Running())
	assert.Equal(t, Controls{Restart: true}, snap.Controls)

	for _, card := range snap.Cards {
		assert.False(t, card.Revealed)
		assert.False(t, card.Matched)
	}

	clock.Advance(2 * DefaultFlipDuration)
	require.Eventually(t, g.Timer().Running, waitFor, pollFor)
	assert.Equal(t, 20, g.Timer().Remaining())
}

func TestRestartAfterLossStartsNewRound(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(1))
	g.Start()

	clock.Advance(time.Second)
	advanceUntil(t, clock, 100*time.Millisecond, func() bool { return g.State() == StateEnded })

	g.Restart()

	assert.Equal(t, StateActive, g.State())
	assert.Equal(t, OutcomeNone, g.Outcome())
	assert.False(t, g.Timer().Exceeded())
}

func TestRestartDiscardsPendingMismatch(t *testing.T) {
	g, clock, _ := newTestGrid(t, testConfig(60))
	g.Start()

	a, b := mismatch(g)
	g.Click(a)
	g.Click(b)

	g.Restart()
	g.Click(5)
	require.Equal(t, 1, g.PendingCount())

	clock.Advance(2 * DefaultFlipDuration)
	require.Eventually(t, g.Timer().Running, waitFor, pollFor)

	assert.Never(t, func() bool { return g.PendingCount() != 1 || !revealed(g, 5) }, quietly, pollFor)
}

func TestSnapshotHidesFaceDownIDs(t *testing.T) {
	g, _, rec := newTestGrid(t, testConfig(20))
	g.Start()

	for _, card := range g.Snapshot().Cards {
		assert.Equal(t, -1, card.ID)
	}

	g.Click(2)

	snap := g.Snapshot()
	assert.Equal(t, g.cards[2].ID(), snap.Cards[2].ID)
	assert.Equal(t, -1, snap.Cards[3].ID)

	assert.Equal(t, 2, rec.count())

	var last uint64
	for _, s := range rec.snapshots {
		assert.Greater(t, s.Version, last)
		last = s.Version
	}
}

func TestCardRevealAndHideAreIdempotent(t *testing.T) {
	card := newCard(3)

	card.Hide()
	assert.False(t, card.Revealed())

	assert.True(t, card.Reveal())
	assert.False(t, card.Reveal())
	assert.True(t, card.Revealed())

	card.Hide()
	card.Hide()
	assert.False(t, card.Revealed())
	assert.Equal(t, 3, card.ID())
}
