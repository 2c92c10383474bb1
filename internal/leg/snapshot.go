package leg

import (
	"strconv"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/rules"
)

// PlayerView is the per-player part of a Snapshot.
type PlayerView struct {
	// Score is the remaining score in 01 and the points total in cricket.
	Score       int            `json:"score"`
	Opened      bool           `json:"opened,omitempty"`
	Marks       map[string]int `json:"marks,omitempty"`
	DartsThrown int            `json:"dartsThrown"`
	PPR         float64        `json:"ppr,omitempty"`
	MPR         float64        `json:"mpr,omitempty"`
}

// Snapshot is a read-only copy of the leg for display and comparison.
type Snapshot struct {
	Variant     models.Variant    `json:"variant"`
	Phase       Phase             `json:"phase"`
	Round       int               `json:"round"`
	Thrower     int               `json:"thrower"`
	Starter     int               `json:"starter"`
	Turn        []dart.Dart       `json:"turn"`
	Achievement rules.Achievement `json:"achievement,omitempty"`
	Checkout    []dart.Dart       `json:"checkout,omitempty"`
	Players     [2]PlayerView     `json:"players"`
	Winner      int               `json:"winner"`
	TieBreak    bool              `json:"tieBreak,omitempty"`
}

// Snapshot copies the current leg state.
func (l *Leg) Snapshot() Snapshot {
	s := Snapshot{
		Variant:     l.cfg.Variant,
		Phase:       l.phase,
		Round:       l.round,
		Thrower:     l.thrower,
		Starter:     l.cfg.Starter,
		Turn:        append([]dart.Dart{}, l.turn...),
		Achievement: l.achievement,
		Winner:      l.winner,
		TieBreak:    l.tieBreak,
	}
	for p := range s.Players {
		switch {
		case l.x01 != nil:
			st := l.x01.Players[p]
			s.Players[p] = PlayerView{
				Score:       st.Remaining,
				Opened:      st.Opened,
				DartsThrown: st.DartsThrown,
				PPR:         st.PPR,
			}
		case l.crk != nil:
			st := l.crk.Players[p]
			marks := make(map[string]int, len(rules.CricketTargets))
			for i, t := range rules.CricketTargets {
				marks[targetName(t)] = st.Marks[i]
			}
			s.Players[p] = PlayerView{
				Score:       st.Points,
				Marks:       marks,
				DartsThrown: st.DartsThrown,
				MPR:         st.MPR(),
			}
		}
	}
	if l.x01 != nil && l.phase == WaitingForThrow {
		s.Checkout = l.x01.Checkout(l.thrower, DartsPerTurn-len(l.turn))
	}
	return s
}

func targetName(n int) string {
	if n == dart.Bull {
		return "B"
	}
	return strconv.Itoa(n)
}
