// Package leg is the turn and round state machine for a single leg. Every
// state change goes through Apply, which both devices run on the same event
// stream.
package leg

import (
	"errors"
	"fmt"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/rules"
)

const (
	DartsPerTurn     = 3
	DefaultMaxRounds = 20
	dedupWindow      = 64
)

var (
	ErrNotYourTurn  = errors.New("throw attributed to the inactive player")
	ErrDuplicate    = errors.New("event already applied")
	ErrTurnComplete = errors.New("turn already complete")
	ErrLegOver      = errors.New("leg is over")
	ErrBadEvent     = errors.New("malformed event")
)

// Phase is the state of the turn machine.
type Phase int

const (
	WaitingForThrow Phase = iota
	TurnComplete
	LegOver
)

func (p Phase) String() string {
	switch p {
	case WaitingForThrow:
		return "waiting_for_throw"
	case TurnComplete:
		return "turn_complete"
	case LegOver:
		return "leg_over"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// EventKind distinguishes darts from explicit end-of-turn signals.
type EventKind int

const (
	Throw EventKind = iota
	EndTurn
)

// Event is one input to the reducer. Key identifies the event for duplicate
// suppression and may be empty.
type Event struct {
	Kind   EventKind
	Player int
	Dart   dart.Dart
	Key    string
}

// Outcome describes what an applied event did.
type Outcome struct {
	Result        rules.Result
	TurnComplete  bool
	Achievement   rules.Achievement
	TurnEnded     bool
	RoundAdvanced bool
	LegOver       bool
	Winner        int
	TieBreak      bool
}

// Config describes one leg.
type Config struct {
	Variant   models.Variant
	Starter   int
	InMode    models.InOutMode
	OutMode   models.InOutMode
	BullMode  models.BullMode
	MaxRounds int
}

type engine interface {
	BeginTurn(p int)
	Throw(p int, d dart.Dart) rules.Result
	FinishTurn(p, round, padded int)
	TieBreak(starter int) int
}

// Leg holds all per-leg state. It is not safe for concurrent use; the owning
// session serializes access.
type Leg struct {
	cfg    Config
	engine engine
	x01    *rules.X01
	crk    *rules.Cricket

	phase       Phase
	thrower     int
	round       int
	turn        []dart.Dart
	turnScored  int
	turnBust    bool
	achievement rules.Achievement
	winner      int
	tieBreak    bool

	recent [dedupWindow]string
	next   int
	seen   map[string]struct{}
}

// New starts a leg with cfg.Starter to throw in round 1.
func New(cfg Config) (*Leg, error) {
	if cfg.Starter != 0 && cfg.Starter != 1 {
		return nil, fmt.Errorf("invalid starter %d", cfg.Starter)
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.InMode == "" {
		cfg.InMode = models.ModeOpen
	}
	if cfg.OutMode == "" {
		cfg.OutMode = models.ModeOpen
	}
	if cfg.BullMode == "" {
		cfg.BullMode = models.BullSplit
	}
	l := &Leg{
		cfg:     cfg,
		thrower: cfg.Starter,
		round:   1,
		winner:  -1,
		seen:    make(map[string]struct{}, dedupWindow),
	}
	switch {
	case cfg.Variant.IsX01():
		l.x01 = rules.NewX01(cfg.Variant.StartScore(), cfg.InMode, cfg.OutMode, cfg.BullMode)
		l.engine = l.x01
	case cfg.Variant == models.VariantCricket:
		l.crk = rules.NewCricket()
		l.engine = l.crk
	default:
		return nil, fmt.Errorf("variant %q cannot be played directly", cfg.Variant)
	}
	l.engine.BeginTurn(l.thrower)
	return l, nil
}

func (l *Leg) Config() Config { return l.cfg }
func (l *Leg) Phase() Phase   { return l.phase }
func (l *Leg) Thrower() int   { return l.thrower }
func (l *Leg) Round() int     { return l.round }

// Winner returns the leg winner once the leg is over.
func (l *Leg) Winner() (int, bool) {
	return l.winner, l.phase == LegOver
}

// Apply runs one event through the state machine. Rejected events return an
// error and leave the leg untouched.
func (l *Leg) Apply(ev Event) (Outcome, error) {
	if ev.Player != 0 && ev.Player != 1 {
		return Outcome{}, ErrBadEvent
	}
	if l.phase == LegOver {
		return Outcome{}, ErrLegOver
	}
	if l.duplicate(ev) {
		return Outcome{}, ErrDuplicate
	}
	if ev.Player != l.thrower {
		return Outcome{}, ErrNotYourTurn
	}

	var (
		out Outcome
		err error
	)
	switch ev.Kind {
	case Throw:
		out, err = l.throw(ev.Dart)
	case EndTurn:
		out = l.endTurn()
	default:
		err = ErrBadEvent
	}
	if err != nil {
		return Outcome{}, err
	}
	l.remember(ev)
	return out, nil
}

func (l *Leg) throw(d dart.Dart) (Outcome, error) {
	if l.phase == TurnComplete {
		return Outcome{}, ErrTurnComplete
	}
	if !d.Valid() {
		d = dart.Miss
	}

	res := l.engine.Throw(l.thrower, d)
	l.turn = append(l.turn, d)
	l.turnScored += res.Scored
	l.turnBust = res.Bust

	out := Outcome{Result: res, Winner: -1}
	if res.Won || res.Bust || len(l.turn) == DartsPerTurn {
		l.completeTurn()
		out.TurnComplete = true
		out.Achievement = l.achievement
	}
	if res.Won {
		l.finish(l.thrower, false)
		out.LegOver, out.Winner = true, l.thrower
	}
	return out, nil
}

// endTurn pads a short turn with misses, completes it if needed, and hands
// the board to the other player.
func (l *Leg) endTurn() Outcome {
	out := Outcome{Winner: -1, TurnEnded: true}
	if l.phase == WaitingForThrow {
		l.completeTurn()
		out.TurnComplete = true
		out.Achievement = l.achievement
	}

	finished := l.thrower
	l.thrower = 1 - finished
	l.turn = nil
	l.turnScored = 0
	l.turnBust = false
	l.achievement = rules.AchievementNone
	l.phase = WaitingForThrow

	if finished != l.cfg.Starter {
		if l.round >= l.cfg.MaxRounds {
			w := l.engine.TieBreak(l.cfg.Starter)
			l.finish(w, true)
			out.LegOver, out.Winner, out.TieBreak = true, w, true
			return out
		}
		l.round++
		out.RoundAdvanced = true
	}
	l.engine.BeginTurn(l.thrower)
	return out
}

func (l *Leg) completeTurn() {
	padded := DartsPerTurn - len(l.turn)
	thrown := append([]dart.Dart(nil), l.turn...)
	won := false
	if w, ok := l.engineWinner(); ok && w == l.thrower {
		won = true
	}
	if l.crk != nil {
		l.achievement = rules.DetectCricket(thrown, won)
	} else {
		l.achievement = rules.DetectX01(thrown, l.turnScored, l.turnBust, won)
	}
	for i := 0; i < padded; i++ {
		l.turn = append(l.turn, dart.Miss)
	}
	l.engine.FinishTurn(l.thrower, l.round, padded)
	l.phase = TurnComplete
}

func (l *Leg) engineWinner() (int, bool) {
	if l.x01 != nil {
		return l.x01.Winner()
	}
	return l.crk.Winner()
}

func (l *Leg) finish(winner int, tieBreak bool) {
	l.phase = LegOver
	l.winner = winner
	l.tieBreak = tieBreak
}

func dedupKey(ev Event) string {
	if ev.Key == "" {
		return ""
	}
	return fmt.Sprintf("%d:%d:%s", ev.Player, ev.Kind, ev.Key)
}

func (l *Leg) duplicate(ev Event) bool {
	k := dedupKey(ev)
	if k == "" {
		return false
	}
	_, ok := l.seen[k]
	return ok
}

func (l *Leg) remember(ev Event) {
	k := dedupKey(ev)
	if k == "" {
		return
	}
	if old := l.recent[l.next]; old != "" {
		delete(l.seen, old)
	}
	l.recent[l.next] = k
	l.seen[k] = struct{}{}
	l.next = (l.next + 1) % dedupWindow
}

// Replay rebuilds a leg from a recorded event stream, skipping events the
// state machine rejects.
func Replay(cfg Config, events []Event) (*Leg, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if _, err := l.Apply(ev); err != nil && !Rejected(err) {
			return nil, err
		}
	}
	return l, nil
}

// Rejected reports whether err is a routine rejection rather than a fault.
func Rejected(err error) bool {
	return errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrTurnComplete) ||
		errors.Is(err, ErrLegOver)
}
