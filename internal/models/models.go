package models

import (
	"fmt"
	"strings"
	"time"
)

// Variant is the game played in one leg.
type Variant string

const (
	Variant501     Variant = "501"
	Variant301     Variant = "301"
	VariantCricket Variant = "cricket"
	// VariantChoice is resolved to one of the variants already played.
	VariantChoice Variant = "choice"
)

// ParseVariant accepts the variant names used in configuration and on the wire.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "501":
		return Variant501, nil
	case "301":
		return Variant301, nil
	case "cricket", "cr":
		return VariantCricket, nil
	case "choice", "loser", "losers_choice":
		return VariantChoice, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// IsX01 reports whether the variant counts down from a start score.
func (v Variant) IsX01() bool {
	return v == Variant501 || v == Variant301
}

// StartScore returns the starting score for 01 variants and 0 otherwise.
func (v Variant) StartScore() int {
	switch v {
	case Variant501:
		return 501
	case Variant301:
		return 301
	}
	return 0
}

// InOutMode governs which darts open or finish a 01 leg.
type InOutMode string

const (
	ModeOpen   InOutMode = "open"
	ModeMaster InOutMode = "master"
	ModeDouble InOutMode = "double"
)

// ParseInOutMode parses open/master/double, defaulting empty input to open.
func ParseInOutMode(s string) (InOutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open", "straight":
		return ModeOpen, nil
	case "master":
		return ModeMaster, nil
	case "double":
		return ModeDouble, nil
	}
	return "", fmt.Errorf("unknown in/out mode %q", s)
}

// BullMode selects whether the bull is split into 25/50 or scores 50 for both rings.
type BullMode string

const (
	BullSplit BullMode = "split"
	BullFull  BullMode = "full"
)

// ParseBullMode parses split/full, defaulting empty input to split.
func ParseBullMode(s string) (BullMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "split":
		return BullSplit, nil
	case "full", "fat", "unified":
		return BullFull, nil
	}
	return "", fmt.Errorf("unknown bull mode %q", s)
}

// MatchStatus is the lifecycle state written to the match log.
type MatchStatus string

const (
	StatusAccepted  MatchStatus = "accepted"
	StatusPlaying   MatchStatus = "playing"
	StatusAbandoned MatchStatus = "abandoned"
	StatusCompleted MatchStatus = "completed"
)

// Terminal reports whether no further play can happen in this status.
func (s MatchStatus) Terminal() bool {
	return s == StatusAbandoned || s == StatusCompleted
}

// Player is one participant's profile.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
}

// MatchDescriptor is what the lobby hands over when a challenge is accepted.
type MatchDescriptor struct {
	ID        string      `json:"id"`
	Players   [2]Player   `json:"players"`
	Legs      []Variant   `json:"legs"`
	InMode    InOutMode   `json:"inMode"`
	OutMode   InOutMode   `json:"outMode"`
	BullMode  BullMode    `json:"bullMode"`
	Status    MatchStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Seat returns the index (0 or 1) of the player with the given id.
func (m *MatchDescriptor) Seat(playerID string) (int, bool) {
	for i, p := range m.Players {
		if p.ID == playerID {
			return i, true
		}
	}
	return -1, false
}

// Validate checks the descriptor is playable.
func (m *MatchDescriptor) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("match id is required")
	}
	if m.Players[0].ID == "" || m.Players[1].ID == "" {
		return fmt.Errorf("match %s needs two players", m.ID)
	}
	if m.Players[0].ID == m.Players[1].ID {
		return fmt.Errorf("match %s has the same player twice", m.ID)
	}
	if len(m.Legs) == 0 {
		return fmt.Errorf("match %s has no legs", m.ID)
	}
	return nil
}

// Throw kinds in the match log.
const (
	ThrowKindDart    = "dart"
	ThrowKindEndTurn = "end_turn"
)

// ThrowRecord is one append-only row of the match log.
type ThrowRecord struct {
	MatchID    string    `json:"matchId"`
	Leg        int       `json:"leg"`
	Round      int       `json:"round"`
	PlayerID   string    `json:"playerId"`
	Key        string    `json:"key"`
	Kind       string    `json:"kind"`
	Segment    string    `json:"segment,omitempty"`
	Number     int       `json:"number"`
	Multiplier int       `json:"multiplier"`
	Score      int       `json:"score"`
	Variant    Variant   `json:"variant"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LegResult records the start and, once known, the outcome of a leg.
// WinnerID is empty while the leg is in progress.
type LegResult struct {
	MatchID   string    `json:"matchId"`
	Leg       int       `json:"leg"`
	Variant   Variant   `json:"variant"`
	StarterID string    `json:"starterId"`
	WinnerID  string    `json:"winnerId,omitempty"`
	Rounds    int       `json:"rounds"`
	TieBreak  bool      `json:"tieBreak"`
	CreatedAt time.Time `json:"createdAt"`
}
