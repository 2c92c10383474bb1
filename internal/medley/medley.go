// Package medley sequences the legs of a match and decides the match winner.
package medley

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

var (
	ErrWrongPhase     = errors.New("not allowed in the current phase")
	ErrEvenLegCount   = errors.New("leg count must be odd")
	ErrNoLegs         = errors.New("match has no legs")
	ErrChoiceFirst    = errors.New("a choice leg needs an earlier leg to choose from")
	ErrNotEligible    = errors.New("variant has not been played in this match")
	ErrInvalidPlayer  = errors.New("invalid player")
	ErrInvalidMode    = errors.New("invalid choice mode")
	ErrUnknownVariant = errors.New("unknown variant")
)

// Phase is the orchestrator state.
type Phase string

const (
	AwaitingCork       Phase = "awaiting_cork"
	AwaitingChoiceMode Phase = "awaiting_choice_mode"
	AwaitingSelection  Phase = "awaiting_selection"
	Playing            Phase = "playing"
	Complete           Phase = "complete"
	Abandoned          Phase = "abandoned"
)

// ChoiceMode is what the cork winner decides for a choice leg.
type ChoiceMode string

const (
	// PickGame: cork winner picks the game, opponent throws first.
	PickGame ChoiceMode = "pick_game"
	// GiveChoice: opponent picks the game, cork winner throws first.
	GiveChoice ChoiceMode = "give_choice"
)

// ParseChoiceMode parses the wire names of the choice modes.
func ParseChoiceMode(s string) (ChoiceMode, error) {
	switch ChoiceMode(s) {
	case PickGame, GiveChoice:
		return ChoiceMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Match tracks leg wins and what is played next. Only the leg tally, the
// played variants and the next variant/starter survive between legs.
type Match struct {
	plan    []models.Variant
	current int
	phase   Phase

	wins    [2]int
	winners []int
	played  []models.Variant

	variant    models.Variant
	starter    int
	corkWinner int
	chooser    int
	winner     int
}

// New validates the leg plan and waits for the opening cork.
func New(plan []models.Variant) (*Match, error) {
	switch {
	case len(plan) == 0:
		return nil, ErrNoLegs
	case len(plan)%2 == 0:
		return nil, fmt.Errorf("%w: %d", ErrEvenLegCount, len(plan))
	case plan[0] == models.VariantChoice:
		return nil, ErrChoiceFirst
	}
	for _, v := range plan {
		if !v.IsX01() && v != models.VariantCricket && v != models.VariantChoice {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, v)
		}
	}
	return &Match{
		plan:       slices.Clone(plan),
		phase:      AwaitingCork,
		variant:    plan[0],
		corkWinner: -1,
		chooser:    -1,
		winner:     -1,
	}, nil
}

func (m *Match) Phase() Phase { return m.phase }

// LegIndex is the zero-based index of the current leg.
func (m *Match) LegIndex() int { return m.current }
func (m *Match) Legs() int { return len(m.plan) }
func (m *Match) Wins() [2]int { return m.wins }
func (m *Match) LegWinners() []int { return slices.Clone(m.winners) }
func (m *Match) CorkWinner() int { return m.corkWinner }
func (m *Match) Chooser() int { return m.chooser }
func (m *Match) Needed() int { return len(m.plan)/2 + 1 }
func (m *Match) Planned() models.Variant {
	return m.plan[m.current]
}

// Current returns the variant and starting player of the leg in play.
func (m *Match) Current() (models.Variant, int, bool) {
	if m.phase != Playing {
		return "", -1, false
	}
	return m.variant, m.starter, true
}

// Winner returns the match winner once decided.
func (m *Match) Winner() (int, bool) {
	return m.winner, m.phase == Complete
}

// Eligible lists the variants a choice leg may resolve to.
func (m *Match) Eligible() []models.Variant {
	return slices.Clone(m.played)
}

// Cork records who won the cork for the current leg.
func (m *Match) Cork(winner int) error {
	if m.phase != AwaitingCork {
		return ErrWrongPhase
	}
	if winner != 0 && winner != 1 {
		return ErrInvalidPlayer
	}
	m.corkWinner = winner
	if m.plan[m.current] == models.VariantChoice {
		m.phase = AwaitingChoiceMode
		return nil
	}
	m.variant = m.plan[m.current]
	m.starter = winner
	m.phase = Playing
	return nil
}

// ChooseMode records the cork winner's decision for a choice leg.
func (m *Match) ChooseMode(mode ChoiceMode) error {
	if m.phase != AwaitingChoiceMode {
		return ErrWrongPhase
	}
	switch mode {
	case PickGame:
		m.chooser, m.starter = m.corkWinner, 1-m.corkWinner
	case GiveChoice:
		m.chooser, m.starter = 1-m.corkWinner, m.corkWinner
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	m.phase = AwaitingSelection
	return nil
}

// SelectGame resolves a choice leg to a variant played earlier in the match.
func (m *Match) SelectGame(v models.Variant) error {
	if m.phase != AwaitingSelection {
		return ErrWrongPhase
	}
	if !slices.Contains(m.played, v) {
		return fmt.Errorf("%w: %q", ErrNotEligible, v)
	}
	m.variant = v
	m.phase = Playing
	return nil
}

// FinishLeg records the current leg's winner and sets up the next leg.
func (m *Match) FinishLeg(winner int) error {
	if m.phase != Playing {
		return ErrWrongPhase
	}
	if winner != 0 && winner != 1 {
		return ErrInvalidPlayer
	}
	m.wins[winner]++
	m.winners = append(m.winners, winner)
	if !slices.Contains(m.played, m.variant) {
		m.played = append(m.played, m.variant)
	}

	if m.wins[winner] >= m.Needed() {
		m.winner = winner
		m.phase = Complete
		return nil
	}

	m.current++
	m.corkWinner, m.chooser = -1, -1
	m.variant = m.plan[m.current]
	last := m.current == len(m.plan)-1
	switch {
	case last && m.wins[0] == m.wins[1]:
		m.phase = AwaitingCork
	case m.plan[m.current] == models.VariantChoice:
		m.phase = AwaitingCork
	default:
		m.starter = 1 - winner
		m.phase = Playing
	}
	return nil
}

// Abandon ends the match without a winner.
func (m *Match) Abandon() {
	if m.phase != Complete {
		m.phase = Abandoned
	}
}

// LegRecord is the persisted shape of a started leg used by Resume.
type LegRecord struct {
	Variant models.Variant
	Starter int
	// Winner is -1 while the leg is in progress.
	Winner int
}

// Resume rebuilds the orchestrator from persisted legs in play order.
// A trailing leg without a winner is resumed as the leg in play.
func Resume(plan []models.Variant, legs []LegRecord) (*Match, error) {
	m, err := New(plan)
	if err != nil {
		return nil, err
	}
	for i, rec := range legs {
		if i != m.current || (m.phase != AwaitingCork && m.phase != Playing) {
			return nil, fmt.Errorf("leg %d does not follow the match state", i+1)
		}
		if rec.Starter != 0 && rec.Starter != 1 {
			return nil, fmt.Errorf("leg %d: %w", i+1, ErrInvalidPlayer)
		}
		m.variant, m.starter, m.phase = rec.Variant, rec.Starter, Playing
		if rec.Winner < 0 {
			break
		}
		if err := m.FinishLeg(rec.Winner); err != nil {
			return nil, fmt.Errorf("leg %d: %w", i+1, err)
		}
	}
	return m, nil
}
