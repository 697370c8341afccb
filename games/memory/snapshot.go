/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeWin
	OutcomeLoss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	default:
		return "none"
	}
}

// Message is the text shown to the player when the round ends.
func (o Outcome) Message() string {
	switch o {
	case OutcomeWin:
		return "You win"
	case OutcomeLoss:
		return "You Lose :( Try again"
	default:
		return ""
	}
}

// Controls reports which of the two action buttons is visible. They swap
// once, when the game is first started.
type Controls struct {
	Start   bool `json:"start"`
	Restart bool `json:"restart"`
}

// CardView is what a renderer may know about a cell. ID is -1 while the
// card is face down.
type CardView struct {
	Index    int   `json:"index"`
	ID       int   `json:"id"`
	Revealed bool  `json:"revealed"`
	Matched  bool  `json:"matched"`
	DelayMS  int64 `json:"delay_ms"`
}

type Snapshot struct {
	Version   uint64     `json:"version"`
	State     State      `json:"state"`
	Outcome   string     `json:"outcome"`
	Selector  string     `json:"selector"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Rows      int        `json:"rows"`
	Columns   int        `json:"columns"`
	Theme     string     `json:"theme"`
	TimeLimit int        `json:"time_limit"`
	Remaining int        `json:"remaining"`
	Clock     string     `json:"clock"`
	Exceeded  bool       `json:"exceeded"`
	Controls  Controls   `json:"controls"`
	Cards     []CardView `json:"cards"`
}

func (g *Grid) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.snapshotLocked()
}

func (g *Grid) snapshotLocked() Snapshot {
	g.version++

	matched := make(map[*Card]bool, len(g.matched))
	for _, card := range g.matched {
		matched[card] = true
	}

	cards := make([]CardView, len(g.cards))
	for i, card := range g.cards {
		view := CardView{
			Index:    i,
			ID:       -1,
			Revealed: card.Revealed(),
			Matched:  matched[card],
		}

		if view.Revealed {
			view.ID = card.ID()
		}

		if i < len(g.delays) {
			view.DelayMS = g.delays[i].Milliseconds()
		}

		cards[i] = view
	}

	remaining := g.timer.Remaining()

	return Snapshot{
		Version:   g.version,
		State:     g.state,
		Outcome:   g.outcome.String(),
		Selector:  g.cfg.Selector,
		Width:     g.cfg.Width,
		Height:    g.cfg.Height,
		Rows:      g.cfg.Rows,
		Columns:   g.cfg.Columns,
		Theme:     g.cfg.Theme,
		TimeLimit: g.timer.Initial(),
		Remaining: remaining,
		Clock:     FormatClock(remaining),
		Exceeded:  g.timer.Exceeded(),
		Controls: Controls{
			Start:   !g.started,
			Restart: g.started,
		},
		Cards: cards,
	}
}
