package rules

import (
	"github.com/Billy-Davies-2/dartsync/internal/dart"
)

// CricketTargets are the seven numbers in play, in board order.
var CricketTargets = [...]int{20, 19, 18, 17, 16, 15, dart.Bull}

const closedMarks = 3

// IsCricketTarget reports whether n is one of the seven targets.
func IsCricketTarget(n int) bool {
	return targetIndex(n) >= 0
}

func targetIndex(n int) int {
	for i, t := range CricketTargets {
		if t == n {
			return i
		}
	}
	return -1
}

// CricketPlayer is one side of a cricket leg.
type CricketPlayer struct {
	Marks         [len(CricketTargets)]int `json:"marks"`
	Points        int                      `json:"points"`
	CreditedMarks int                      `json:"creditedMarks"`
	DartsThrown   int                      `json:"dartsThrown"`
	// PointsRound is the round in which Points was first reached.
	PointsRound int `json:"pointsRound"`

	turnStartPoints int
}

// ClosedAll reports whether every target has three marks.
func (c CricketPlayer) ClosedAll() bool {
	for _, m := range c.Marks {
		if m < closedMarks {
			return false
		}
	}
	return true
}

// MPR is credited marks per three darts.
func (c CricketPlayer) MPR() float64 {
	if c.DartsThrown == 0 {
		return 0
	}
	return float64(c.CreditedMarks) / (float64(c.DartsThrown) / 3)
}

// Cricket scores a cricket leg.
type Cricket struct {
	Players [2]CricketPlayer

	winner int
}

// NewCricket returns a fresh cricket leg.
func NewCricket() *Cricket {
	return &Cricket{winner: -1}
}

// Dead reports whether both players have closed target n.
func (c *Cricket) Dead(n int) bool {
	i := targetIndex(n)
	if i < 0 {
		return false
	}
	return c.Players[0].Marks[i] >= closedMarks && c.Players[1].Marks[i] >= closedMarks
}

// MarksOn returns player p's marks on target n.
func (c *Cricket) MarksOn(p, n int) int {
	i := targetIndex(n)
	if i < 0 {
		return 0
	}
	return c.Players[p].Marks[i]
}

// BeginTurn snapshots the player's points for round bookkeeping.
func (c *Cricket) BeginTurn(p int) {
	c.Players[p].turnStartPoints = c.Players[p].Points
}

// Throw applies one dart for player p.
func (c *Cricket) Throw(p int, d dart.Dart) Result {
	me, opp := &c.Players[p], &c.Players[1-p]
	me.DartsThrown++

	i := targetIndex(d.Number)
	if i < 0 || d.IsMiss() {
		return Result{}
	}
	res := Result{Target: d.Number}
	if c.Dead(d.Number) {
		return res
	}

	hits := d.Multiplier
	credited := min(hits, closedMarks-me.Marks[i])
	overflow := hits - credited

	me.Marks[i] += credited
	me.CreditedMarks += credited
	res.Marks = credited
	res.TargetClosed = credited > 0 && me.Marks[i] == closedMarks

	if overflow > 0 && opp.Marks[i] < closedMarks {
		res.Scored = overflow * d.Number
		me.Points += res.Scored
	}

	if me.ClosedAll() && me.Points >= opp.Points {
		c.winner = p
		res.Won = true
	}
	return res
}

// FinishTurn closes player p's turn in the given round.
func (c *Cricket) FinishTurn(p, round, padded int) {
	pl := &c.Players[p]
	pl.DartsThrown += padded
	if pl.Points != pl.turnStartPoints {
		pl.PointsRound = round
	}
	pl.turnStartPoints = pl.Points
}

// Winner returns the player who won on the board, if any.
func (c *Cricket) Winner() (int, bool) {
	return c.winner, c.winner >= 0
}

// TieBreak decides a leg that reached the round cap: more points, then more
// credited marks, then whoever reached their final points in an earlier
// round, then the starter.
func (c *Cricket) TieBreak(starter int) int {
	a, b := c.Players[0], c.Players[1]
	switch {
	case a.Points > b.Points:
		return 0
	case b.Points > a.Points:
		return 1
	case a.CreditedMarks > b.CreditedMarks:
		return 0
	case b.CreditedMarks > a.CreditedMarks:
		return 1
	case a.PointsRound < b.PointsRound:
		return 0
	case b.PointsRound < a.PointsRound:
		return 1
	}
	return starter
}
