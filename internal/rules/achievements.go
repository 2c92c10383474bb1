package rules

import (
	"github.com/Billy-Davies-2/dartsync/internal/dart"
)

// Achievement labels a notable turn. It never affects scoring.
type Achievement string

const (
	AchievementNone             Achievement = ""
	AchievementWin              Achievement = "win"
	AchievementBust             Achievement = "bust"
	AchievementTonEighty        Achievement = "ton_eighty"
	AchievementThreeDoubleBulls Achievement = "three_double_bulls"
	AchievementShanghai         Achievement = "shanghai"
	AchievementThreeInABed      Achievement = "three_in_a_bed"
	AchievementWhiteHorse       Achievement = "white_horse"
	AchievementHatTrick         Achievement = "hat_trick"
	AchievementHighTon          Achievement = "high_ton"
	AchievementLowTon           Achievement = "low_ton"
)

// DetectX01 classifies a finished 01 turn. total is the points credited
// in the turn.
func DetectX01(darts []dart.Dart, total int, bust, won bool) Achievement {
	switch {
	case won:
		return AchievementWin
	case bust:
		return AchievementBust
	}
	if a := pattern(darts, false); a != AchievementNone {
		return a
	}
	switch {
	case total >= 150:
		return AchievementHighTon
	case total >= 100:
		return AchievementLowTon
	}
	return AchievementNone
}

// DetectCricket classifies a finished cricket turn.
func DetectCricket(darts []dart.Dart, won bool) Achievement {
	if won {
		return AchievementWin
	}
	return pattern(darts, true)
}

func pattern(darts []dart.Dart, cricket bool) Achievement {
	if len(darts) != 3 {
		return AchievementNone
	}
	a, b, c := darts[0], darts[1], darts[2]
	sameNumber := !a.IsMiss() && a.Number == b.Number && b.Number == c.Number
	allTriples := a.IsTriple() && b.IsTriple() && c.IsTriple()

	switch {
	case a == dart.MustParse("T20") && b == a && c == a:
		return AchievementTonEighty
	case a == dart.MustParse("DB") && b == a && c == a:
		return AchievementThreeDoubleBulls
	case !cricket && sameNumber && !a.IsBull() && shanghai(a, b, c):
		return AchievementShanghai
	case sameNumber && allTriples && (!cricket || IsCricketTarget(a.Number)):
		return AchievementThreeInABed
	case cricket && allTriples && whiteHorse(a, b, c):
		return AchievementWhiteHorse
	case a.IsBull() && b.IsBull() && c.IsBull():
		return AchievementHatTrick
	}
	return AchievementNone
}

func shanghai(ds ...dart.Dart) bool {
	var seen [4]bool
	for _, d := range ds {
		seen[d.Multiplier] = true
	}
	return seen[1] && seen[2] && seen[3]
}

func whiteHorse(a, b, c dart.Dart) bool {
	for _, d := range []dart.Dart{a, b, c} {
		if !IsCricketTarget(d.Number) {
			return false
		}
	}
	return a.Number != b.Number && b.Number != c.Number && a.Number != c.Number
}
