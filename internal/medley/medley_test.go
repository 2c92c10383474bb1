package medley

import (
	"errors"
	"testing"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

var plan3 = []models.Variant{models.Variant501, models.VariantCricket, models.VariantChoice}

func mustNew(t *testing.T, plan []models.Variant) *Match {
	t.Helper()
	m, err := New(plan)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		plan []models.Variant
		want error
	}{
		{"empty", nil, ErrNoLegs},
		{"even", []models.Variant{models.Variant501, models.Variant301}, ErrEvenLegCount},
		{"choice first", []models.Variant{models.VariantChoice}, ErrChoiceFirst},
		{"unknown", []models.Variant{"killer"}, ErrUnknownVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.plan); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFirstLegUsesCork(t *testing.T) {
	m := mustNew(t, plan3)
	if m.Phase() != AwaitingCork {
		t.Fatalf("phase = %s", m.Phase())
	}
	if _, _, ok := m.Current(); ok {
		t.Fatal("no leg should be in play before the cork")
	}
	if err := m.Cork(1); err != nil {
		t.Fatal(err)
	}
	v, starter, ok := m.Current()
	if !ok || v != models.Variant501 || starter != 1 {
		t.Errorf("Current() = %s, %d, %v", v, starter, ok)
	}
	if err := m.Cork(0); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("second cork error = %v", err)
	}
}

func TestLoserStartsNextLeg(t *testing.T) {
	m := mustNew(t, []models.Variant{models.Variant501, models.VariantCricket, models.Variant301, models.Variant501, models.VariantCricket})
	m.Cork(0)
	if err := m.FinishLeg(1); err != nil {
		t.Fatal(err)
	}
	v, starter, ok := m.Current()
	if !ok || v != models.VariantCricket || starter != 0 {
		t.Fatalf("Current() = %s, %d, %v; loser of leg 1 should start", v, starter, ok)
	}
}

func TestDecidingLegUsesCork(t *testing.T) {
	m := mustNew(t, []models.Variant{models.Variant501, models.VariantCricket, models.Variant301})
	m.Cork(0)
	m.FinishLeg(1)
	m.FinishLeg(0)
	if m.Phase() != AwaitingCork {
		t.Fatalf("tied deciding leg should wait for a cork, phase %s", m.Phase())
	}
	m.Cork(0)
	v, starter, _ := m.Current()
	if v != models.Variant301 || starter != 0 {
		t.Errorf("Current() = %s, %d", v, starter)
	}
}

func TestMajorityEndsMatchEarly(t *testing.T) {
	m := mustNew(t, []models.Variant{models.Variant501, models.Variant501, models.Variant501, models.Variant501, models.Variant501})
	m.Cork(0)
	for _, w := range []int{1, 0, 1, 1} {
		if err := m.FinishLeg(w); err != nil {
			t.Fatal(err)
		}
	}
	w, done := m.Winner()
	if !done || w != 1 {
		t.Fatalf("Winner() = %d, %v", w, done)
	}
	if m.Wins() != [2]int{1, 3} {
		t.Errorf("Wins() = %v", m.Wins())
	}
	if err := m.FinishLeg(0); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("FinishLeg after completion error = %v", err)
	}
}

func TestSingleLegMatch(t *testing.T) {
	m := mustNew(t, []models.Variant{models.VariantCricket})
	m.Cork(1)
	m.FinishLeg(0)
	if w, done := m.Winner(); !done || w != 0 {
		t.Fatalf("Winner() = %d, %v", w, done)
	}
}

func TestChoiceLegPickGame(t *testing.T) {
	m := mustNew(t, plan3)
	m.Cork(0)
	m.FinishLeg(0)
	m.FinishLeg(1)

	if m.Phase() != AwaitingCork {
		t.Fatalf("phase = %s", m.Phase())
	}
	m.Cork(1)
	if m.Phase() != AwaitingChoiceMode {
		t.Fatalf("phase = %s", m.Phase())
	}
	if err := m.ChooseMode(PickGame); err != nil {
		t.Fatal(err)
	}
	if m.Chooser() != 1 {
		t.Errorf("cork winner should choose, got %d", m.Chooser())
	}
	if err := m.SelectGame(models.Variant301); !errors.Is(err, ErrNotEligible) {
		t.Errorf("unplayed variant error = %v", err)
	}
	if err := m.SelectGame(models.VariantCricket); err != nil {
		t.Fatal(err)
	}
	v, starter, _ := m.Current()
	if v != models.VariantCricket || starter != 0 {
		t.Errorf("Current() = %s, %d; opponent of chooser should start", v, starter)
	}
}

func TestChoiceLegGiveChoice(t *testing.T) {
	m := mustNew(t, plan3)
	m.Cork(0)
	m.FinishLeg(0)
	m.FinishLeg(1)
	m.Cork(0)
	if err := m.ChooseMode(GiveChoice); err != nil {
		t.Fatal(err)
	}
	if m.Chooser() != 1 {
		t.Errorf("opponent should choose, got %d", m.Chooser())
	}
	m.SelectGame(models.Variant501)
	v, starter, _ := m.Current()
	if v != models.Variant501 || starter != 0 {
		t.Errorf("Current() = %s, %d; cork winner should start", v, starter)
	}
	got := m.Eligible()
	if len(got) != 2 || got[0] != models.Variant501 || got[1] != models.VariantCricket {
		t.Errorf("Eligible() = %v", got)
	}
}

func TestParseChoiceMode(t *testing.T) {
	if _, err := ParseChoiceMode("pick_game"); err != nil {
		t.Error(err)
	}
	if _, err := ParseChoiceMode("coin"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("error = %v", err)
	}
}

func TestAbandon(t *testing.T) {
	m := mustNew(t, plan3)
	m.Cork(0)
	m.Abandon()
	if m.Phase() != Abandoned {
		t.Fatalf("phase = %s", m.Phase())
	}
	if err := m.FinishLeg(0); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("error = %v", err)
	}
}

func TestResume(t *testing.T) {
	legs := []LegRecord{
		{Variant: models.Variant501, Starter: 1, Winner: 0},
		{Variant: models.VariantCricket, Starter: 1, Winner: 1},
		{Variant: models.VariantCricket, Starter: 0, Winner: -1},
	}
	m, err := Resume(plan3, legs)
	if err != nil {
		t.Fatal(err)
	}
	if m.LegIndex() != 2 || m.Wins() != [2]int{1, 1} {
		t.Fatalf("leg %d wins %v", m.LegIndex(), m.Wins())
	}
	v, starter, ok := m.Current()
	if !ok || v != models.VariantCricket || starter != 0 {
		t.Errorf("Current() = %s, %d, %v", v, starter, ok)
	}
}

func TestResumeRejectsLegsAfterCompletion(t *testing.T) {
	legs := []LegRecord{
		{Variant: models.VariantCricket, Starter: 0, Winner: 0},
		{Variant: models.VariantCricket, Starter: 1, Winner: 1},
	}
	if _, err := Resume([]models.Variant{models.VariantCricket}, legs); err == nil {
		t.Fatal("expected error for legs beyond a completed match")
	}
}
