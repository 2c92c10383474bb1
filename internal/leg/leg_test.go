package leg

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/rules"
)

func newX01(t *testing.T, starter int) *Leg {
	t.Helper()
	l, err := New(Config{
		Variant:  models.Variant501,
		Starter:  starter,
		InMode:   models.ModeOpen,
		OutMode:  models.ModeDouble,
		BullMode: models.BullSplit,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func mustApply(t *testing.T, l *Leg, ev Event) Outcome {
	t.Helper()
	out, err := l.Apply(ev)
	if err != nil {
		t.Fatalf("Apply(%+v) error = %v", ev, err)
	}
	return out
}

func throwTurn(t *testing.T, l *Leg, p int, darts string) {
	t.Helper()
	for _, d := range dart.List(darts) {
		mustApply(t, l, Event{Kind: Throw, Player: p, Dart: d})
	}
	mustApply(t, l, Event{Kind: EndTurn, Player: p})
}

func TestNewRejectsChoice(t *testing.T) {
	if _, err := New(Config{Variant: models.VariantChoice}); err == nil {
		t.Fatal("choice must be resolved before a leg starts")
	}
	if _, err := New(Config{Variant: models.Variant501, Starter: 2}); err == nil {
		t.Fatal("starter must be 0 or 1")
	}
}

func TestThreeDartsCompleteTurn(t *testing.T) {
	l := newX01(t, 0)
	for i, d := range dart.List("T20 T20 T20") {
		out := mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: d})
		if out.TurnComplete != (i == 2) {
			t.Fatalf("dart %d: TurnComplete = %v", i, out.TurnComplete)
		}
		if i == 2 && out.Achievement != rules.AchievementTonEighty {
			t.Errorf("achievement = %q", out.Achievement)
		}
	}
	if l.Phase() != TurnComplete || l.Thrower() != 0 {
		t.Fatalf("phase = %v thrower = %d", l.Phase(), l.Thrower())
	}

	if _, err := l.Apply(Event{Kind: Throw, Player: 0, Dart: dart.MustParse("S1")}); !errors.Is(err, ErrTurnComplete) {
		t.Fatalf("fourth dart error = %v, want ErrTurnComplete", err)
	}

	out := mustApply(t, l, Event{Kind: EndTurn, Player: 0})
	if !out.TurnEnded || out.TurnComplete || out.RoundAdvanced {
		t.Errorf("end turn outcome = %+v", out)
	}
	if l.Thrower() != 1 || l.Phase() != WaitingForThrow || l.Round() != 1 {
		t.Errorf("after flip: thrower %d phase %v round %d", l.Thrower(), l.Phase(), l.Round())
	}
}

func TestEndTurnPadsMisses(t *testing.T) {
	l := newX01(t, 0)
	mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("S20")})

	out := mustApply(t, l, Event{Kind: EndTurn, Player: 0})
	if !out.TurnComplete || !out.TurnEnded {
		t.Fatalf("outcome = %+v", out)
	}
	s := l.Snapshot()
	if s.Players[0].DartsThrown != 3 {
		t.Errorf("darts thrown = %d, want 3", s.Players[0].DartsThrown)
	}
	if s.Players[0].Score != 481 {
		t.Errorf("score = %d, want 481", s.Players[0].Score)
	}
}

func TestOutOfTurnRejected(t *testing.T) {
	l := newX01(t, 0)
	before := l.Snapshot()

	_, err := l.Apply(Event{Kind: Throw, Player: 1, Dart: dart.MustParse("T20"), Key: "k1"})
	if !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("error = %v, want ErrNotYourTurn", err)
	}
	if _, err := l.Apply(Event{Kind: EndTurn, Player: 1}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("end turn error = %v, want ErrNotYourTurn", err)
	}
	if !reflect.DeepEqual(before, l.Snapshot()) {
		t.Error("rejected events changed state")
	}
}

func TestDuplicateAppliedOnce(t *testing.T) {
	l := newX01(t, 0)
	ev := Event{Kind: Throw, Player: 0, Dart: dart.MustParse("T20"), Key: "2024-01-01T00:00:00.000Z"}
	mustApply(t, l, ev)

	if _, err := l.Apply(ev); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("error = %v, want ErrDuplicate", err)
	}
	if got := l.Snapshot().Players[0].Score; got != 441 {
		t.Errorf("score = %d, want 441", got)
	}
}

func TestDuplicateAfterInterveningEvent(t *testing.T) {
	l := newX01(t, 0)
	first := Event{Kind: Throw, Player: 0, Dart: dart.MustParse("S20"), Key: "a"}
	mustApply(t, l, first)
	mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("S19"), Key: "b"})

	if _, err := l.Apply(first); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("late duplicate error = %v, want ErrDuplicate", err)
	}
	if got := l.Snapshot().Players[0].Score; got != 462 {
		t.Errorf("score = %d, want 462", got)
	}
}

func TestDedupWindowIsBounded(t *testing.T) {
	l, err := New(Config{Variant: models.Variant501, MaxRounds: 1000})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i <= dedupWindow; i++ {
		p := l.Thrower()
		mustApply(t, l, Event{Kind: EndTurn, Player: p, Key: fmt.Sprintf("e%d", i)})
	}
	if len(l.seen) != dedupWindow {
		t.Errorf("seen set grew to %d", len(l.seen))
	}
}

func TestRoundAdvancesAfterBothThrow(t *testing.T) {
	l := newX01(t, 1)
	throwTurn(t, l, 1, "S1 S1 S1")
	if l.Round() != 1 {
		t.Fatalf("round advanced after one turn: %d", l.Round())
	}
	for _, d := range dart.List("S1 S1 S1") {
		mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: d})
	}
	out := mustApply(t, l, Event{Kind: EndTurn, Player: 0})
	if !out.RoundAdvanced || l.Round() != 2 {
		t.Fatalf("round = %d, outcome %+v", l.Round(), out)
	}
	if l.Thrower() != 1 {
		t.Errorf("starter should open round 2, got %d", l.Thrower())
	}
}

func TestBustCompletesTurn(t *testing.T) {
	l := newX01(t, 0)
	throwTurn(t, l, 0, "T20 T20 T20")
	throwTurn(t, l, 1, "MISS")
	throwTurn(t, l, 0, "T20 T20 T20")
	throwTurn(t, l, 1, "MISS")
	// player 0 on 141
	mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("T20")})
	out := mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("T20")})
	if out.TurnComplete {
		t.Fatal("21 left is not a bust")
	}
	out = mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("S20")})
	if !out.Result.Bust || !out.TurnComplete || out.Achievement != rules.AchievementBust {
		t.Fatalf("outcome = %+v", out)
	}
	if got := l.Snapshot().Players[0].Score; got != 141 {
		t.Errorf("score = %d, want rollback to 141", got)
	}
}

func TestBustShortTurnStillCountsThreeDarts(t *testing.T) {
	l, err := New(Config{Variant: models.Variant301, OutMode: models.ModeDouble})
	if err != nil {
		t.Fatal(err)
	}
	throwTurn(t, l, 0, "T20 T20 T20")
	throwTurn(t, l, 1, "MISS")

	out := mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("T20")})
	if out.TurnComplete {
		t.Fatal("61 left is not a bust")
	}
	mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("T20")})
	if l.Phase() != TurnComplete {
		t.Fatalf("leaving 1 should bust and complete the turn, phase %v", l.Phase())
	}
	out = mustApply(t, l, Event{Kind: EndTurn, Player: 0})
	if out.TurnComplete {
		t.Error("turn was already complete")
	}
	s := l.Snapshot()
	if s.Players[0].Score != 121 {
		t.Errorf("score = %d, want 121", s.Players[0].Score)
	}
	if s.Players[0].DartsThrown != 6 {
		t.Errorf("darts = %d, want 6", s.Players[0].DartsThrown)
	}
}

func TestLegalFinishEndsLeg(t *testing.T) {
	l := newX01(t, 0)
	for _, turn := range []string{"T20 T20 T20", "T20 T20 T20", "T20 T20 S1"} {
		throwTurn(t, l, 0, turn)
		throwTurn(t, l, 1, "MISS")
	}
	// 501 - 180 - 180 - 121 = 20
	if got := l.Snapshot().Checkout; len(got) != 1 || got[0] != dart.MustParse("D10") {
		t.Fatalf("checkout = %v, want D10", got)
	}
	out := mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("D10")})
	if !out.LegOver || out.Winner != 0 || out.Achievement != rules.AchievementWin {
		t.Fatalf("outcome = %+v", out)
	}
	if w, over := l.Winner(); !over || w != 0 {
		t.Errorf("Winner() = %d, %v", w, over)
	}
	if _, err := l.Apply(Event{Kind: EndTurn, Player: 0}); !errors.Is(err, ErrLegOver) {
		t.Errorf("error after leg over = %v", err)
	}
}

func TestRoundCapTieBreak(t *testing.T) {
	l, err := New(Config{Variant: models.Variant501, OutMode: models.ModeDouble, Starter: 0, MaxRounds: 3})
	if err != nil {
		t.Fatal(err)
	}
	throwTurn(t, l, 0, "T20 T20 T20")
	throwTurn(t, l, 1, "T20 T20 T20")
	// player 0 reaches 170 in round 2, player 1 in round 3
	throwTurn(t, l, 0, "T20 T17 D20")
	throwTurn(t, l, 1, "MISS")
	throwTurn(t, l, 0, "MISS")
	if l.Phase() == LegOver {
		t.Fatal("leg ended before player 1 threw in the final round")
	}
	for _, d := range dart.List("T20 T17 D20") {
		mustApply(t, l, Event{Kind: Throw, Player: 1, Dart: d})
	}
	out := mustApply(t, l, Event{Kind: EndTurn, Player: 1})
	if !out.LegOver || !out.TieBreak {
		t.Fatalf("outcome = %+v", out)
	}
	s := l.Snapshot()
	if s.Players[0].Score != 170 || s.Players[1].Score != 170 {
		t.Fatalf("scores = %d/%d", s.Players[0].Score, s.Players[1].Score)
	}
	if out.Winner != 0 {
		t.Errorf("player who reached 170 first should win, got %d", out.Winner)
	}
}

func TestCricketLeg(t *testing.T) {
	l, err := New(Config{Variant: models.VariantCricket, Starter: 0})
	if err != nil {
		t.Fatal(err)
	}
	mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("S20")})
	out := mustApply(t, l, Event{Kind: Throw, Player: 0, Dart: dart.MustParse("T20")})
	if out.Result.Scored != 20 || out.Result.Marks != 2 {
		t.Fatalf("result = %+v", out.Result)
	}
	s := l.Snapshot()
	if s.Players[0].Marks["20"] != 3 || s.Players[0].Score != 20 {
		t.Errorf("player view = %+v", s.Players[0])
	}
	if s.Checkout != nil {
		t.Error("cricket has no checkout")
	}
}

func TestTwoDevicesConverge(t *testing.T) {
	events := []Event{
		{Kind: Throw, Player: 0, Dart: dart.MustParse("T20"), Key: "a1"},
		{Kind: Throw, Player: 0, Dart: dart.MustParse("S5"), Key: "a2"},
		{Kind: EndTurn, Player: 0, Key: "a3"},
		{Kind: Throw, Player: 1, Dart: dart.MustParse("T19"), Key: "b1"},
		{Kind: Throw, Player: 1, Dart: dart.MustParse("T19"), Key: "b2"},
		{Kind: Throw, Player: 1, Dart: dart.MustParse("T19"), Key: "b3"},
		{Kind: EndTurn, Player: 1, Key: "b4"},
		{Kind: Throw, Player: 0, Dart: dart.MustParse("D20"), Key: "a4"},
	}
	// device B sees a duplicate and a stale throw for the wrong player
	noisy := append([]Event{}, events[:2]...)
	noisy = append(noisy, events[1], Event{Kind: Throw, Player: 1, Dart: dart.MustParse("T20"), Key: "x"})
	noisy = append(noisy, events[2:]...)
	noisy = append(noisy, events[4])

	cfg := Config{Variant: models.Variant501, OutMode: models.ModeDouble}
	a, err := Replay(cfg, events)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Replay(cfg, noisy)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Snapshot(), b.Snapshot()) {
		t.Fatalf("devices diverged:\n%+v\n%+v", a.Snapshot(), b.Snapshot())
	}
}
