// Package rules holds the deterministic scoring engines for each game variant.
// Engines are pure: they never read clocks, randomness or the network, so two
// devices applying the same darts in the same order hold identical state.
package rules

import (
	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// Result is what a single dart did to the leg.
type Result struct {
	// Scored is the points credited by this dart (01 face value once opened,
	// cricket overflow points).
	Scored int  `json:"scored"`
	Bust   bool `json:"bust,omitempty"`
	Won    bool `json:"won,omitempty"`

	// Cricket only.
	Target       int  `json:"target,omitempty"`
	Marks        int  `json:"marks,omitempty"`
	TargetClosed bool `json:"targetClosed,omitempty"`
}

// X01Player is one side of a 501/301 leg.
type X01Player struct {
	Remaining   int  `json:"remaining"`
	Opened      bool `json:"opened"`
	TurnStart   int  `json:"turnStart"`
	DartsThrown int  `json:"dartsThrown"`
	// ReachedRound is the round in which Remaining was first reached.
	ReachedRound int     `json:"reachedRound"`
	PPR          float64 `json:"ppr"`
	PPRFrozen    bool    `json:"pprFrozen"`

	openedAtTurnStart bool
}

// X01 scores a 501 or 301 leg.
type X01 struct {
	Start    int
	InMode   models.InOutMode
	OutMode  models.InOutMode
	BullMode models.BullMode
	Players  [2]X01Player

	winner int
}

// NewX01 returns a fresh leg counting down from start.
func NewX01(start int, in, out models.InOutMode, bm models.BullMode) *X01 {
	x := &X01{Start: start, InMode: in, OutMode: out, BullMode: bm, winner: -1}
	for i := range x.Players {
		x.Players[i] = X01Player{
			Remaining:         start,
			TurnStart:         start,
			Opened:            in == models.ModeOpen,
			openedAtTurnStart: in == models.ModeOpen,
		}
	}
	return x
}

// FreezeThreshold is the remaining score at or below which PPR stops updating.
func (x *X01) FreezeThreshold() int {
	if x.Start >= 501 {
		return 100
	}
	return 50
}

// Legal reports whether d satisfies the given in or out mode.
func Legal(mode models.InOutMode, d dart.Dart, bm models.BullMode) bool {
	if d.IsMiss() {
		return false
	}
	switch mode {
	case models.ModeMaster:
		return d.IsDouble(bm) || d.IsTriple() || d.IsBull()
	case models.ModeDouble:
		return d.IsDouble(bm)
	}
	return true
}

// BeginTurn snapshots the player's state for bust rollback.
func (x *X01) BeginTurn(p int) {
	pl := &x.Players[p]
	pl.TurnStart = pl.Remaining
	pl.openedAtTurnStart = pl.Opened
}

// Throw applies one dart for player p.
func (x *X01) Throw(p int, d dart.Dart) Result {
	pl := &x.Players[p]
	pl.DartsThrown++

	if !pl.Opened {
		if !Legal(x.InMode, d, x.BullMode) {
			return Result{}
		}
		pl.Opened = true
	}

	points := d.Points(x.BullMode)
	next := pl.Remaining - points

	// One left is unfinishable only when the out needs a double or treble;
	// under open out a single 1 still checks out.
	switch {
	case next < 0,
		next == 1 && x.OutMode != models.ModeOpen,
		next == 0 && !Legal(x.OutMode, d, x.BullMode):
		pl.Remaining = pl.TurnStart
		pl.Opened = pl.openedAtTurnStart
		return Result{Bust: true}
	case next == 0:
		pl.Remaining = 0
		x.winner = p
		return Result{Scored: points, Won: true}
	}

	pl.Remaining = next
	return Result{Scored: points}
}

// FinishTurn closes player p's turn in the given round. padded is the number
// of unthrown darts filled with misses.
func (x *X01) FinishTurn(p, round, padded int) {
	pl := &x.Players[p]
	pl.DartsThrown += padded
	if pl.Remaining != pl.TurnStart {
		pl.ReachedRound = round
	}
	if !pl.PPRFrozen {
		pl.PPR = x.livePPR(p)
		if pl.Remaining <= x.FreezeThreshold() {
			pl.PPRFrozen = true
		}
	}
	pl.TurnStart = pl.Remaining
	pl.openedAtTurnStart = pl.Opened
}

func (x *X01) livePPR(p int) float64 {
	pl := x.Players[p]
	if pl.DartsThrown == 0 {
		return 0
	}
	return float64(x.Start-pl.Remaining) / float64(pl.DartsThrown) * 3
}

// Winner returns the player who checked out, if any.
func (x *X01) Winner() (int, bool) {
	return x.winner, x.winner >= 0
}

// TieBreak decides a leg that reached the round cap without a checkout:
// lower remaining wins, then whoever reached that score in an earlier round,
// then the starter, who throws first within a round.
func (x *X01) TieBreak(starter int) int {
	a, b := x.Players[0], x.Players[1]
	switch {
	case a.Remaining < b.Remaining:
		return 0
	case b.Remaining < a.Remaining:
		return 1
	case a.ReachedRound < b.ReachedRound:
		return 0
	case b.ReachedRound < a.ReachedRound:
		return 1
	}
	return starter
}

// Checkout suggests a finish for player p with darts left in the turn.
func (x *X01) Checkout(p, dartsLeft int) []dart.Dart {
	pl := x.Players[p]
	if !pl.Opened {
		return nil
	}
	return Suggest(pl.Remaining, x.OutMode, x.BullMode, dartsLeft)
}
