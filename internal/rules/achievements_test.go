package rules

import (
	"testing"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
)

func TestDetectX01(t *testing.T) {
	tests := []struct {
		darts string
		total int
		bust  bool
		won   bool
		want  Achievement
	}{
		{"T20 T20 T20", 180, false, false, AchievementTonEighty},
		{"T20 T20 T20", 0, true, false, AchievementBust},
		{"S20 D20", 60, false, true, AchievementWin},
		{"T20 T20 T20", 180, false, true, AchievementWin},
		{"DB DB DB", 150, false, false, AchievementThreeDoubleBulls},
		{"S20 D20 T20", 120, false, false, AchievementShanghai},
		{"T19 T19 T19", 171, false, false, AchievementThreeInABed},
		{"SB DB SB", 100, false, false, AchievementHatTrick},
		{"T20 T19 T18", 171, false, false, AchievementHighTon},
		{"T20 S20 D10", 100, false, false, AchievementLowTon},
		{"S1 S1 S1", 3, false, false, AchievementNone},
		{"T20 T20", 120, false, false, AchievementLowTon},
	}
	for _, tt := range tests {
		if got := DetectX01(dart.List(tt.darts), tt.total, tt.bust, tt.won); got != tt.want {
			t.Errorf("DetectX01(%s) = %q, want %q", tt.darts, got, tt.want)
		}
	}
}

func TestDetectCricket(t *testing.T) {
	tests := []struct {
		darts string
		won   bool
		want  Achievement
	}{
		{"T20 T20 T20", false, AchievementTonEighty},
		{"T18 T18 T18", false, AchievementThreeInABed},
		{"T20 T19 T18", false, AchievementWhiteHorse},
		{"T20 T19 T14", false, AchievementNone},
		{"T5 T5 T5", false, AchievementNone},
		{"S20 D20 T20", false, AchievementNone},
		{"DB DB DB", false, AchievementThreeDoubleBulls},
		{"SB SB DB", false, AchievementHatTrick},
		{"T20 T19 T18", true, AchievementWin},
	}
	for _, tt := range tests {
		if got := DetectCricket(dart.List(tt.darts), tt.won); got != tt.want {
			t.Errorf("DetectCricket(%s) = %q, want %q", tt.darts, got, tt.want)
		}
	}
}
