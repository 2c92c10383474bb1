package rules

import (
	"sort"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/models"
)

const maxDart = 60

var (
	splitBoard = board(models.BullSplit)
	fullBoard  = board(models.BullFull)
)

// board lists every distinct scoring dart, best first.
func board(bm models.BullMode) []dart.Dart {
	var ds []dart.Dart
	for n := 1; n <= 20; n++ {
		for m := 1; m <= 3; m++ {
			ds = append(ds, dart.Dart{Number: n, Multiplier: m})
		}
	}
	ds = append(ds, dart.Dart{Number: dart.Bull, Multiplier: 2})
	if bm == models.BullSplit {
		ds = append(ds, dart.Dart{Number: dart.Bull, Multiplier: 1})
	}
	sort.SliceStable(ds, func(i, j int) bool {
		return better(ds[i], ds[j], bm)
	})
	return ds
}

// better orders darts by value, then multiplier, then number.
func better(a, b dart.Dart, bm models.BullMode) bool {
	if av, bv := a.Points(bm), b.Points(bm); av != bv {
		return av > bv
	}
	if a.Multiplier != b.Multiplier {
		return a.Multiplier > b.Multiplier
	}
	return a.Number > b.Number
}

// Suggest returns the preferred legal finish for remaining within darts
// darts, or nil when none exists or the out mode is open. Fewer darts win;
// among equal counts the sequence with the higher-valued earlier darts wins.
func Suggest(remaining int, out models.InOutMode, bm models.BullMode, darts int) []dart.Dart {
	if out == models.ModeOpen || remaining < 2 {
		return nil
	}
	if darts > 3 {
		darts = 3
	}
	ds := splitBoard
	if bm == models.BullFull {
		ds = fullBoard
	}
	for n := 1; n <= darts; n++ {
		if path := search(remaining, n, out, bm, ds, nil); path != nil {
			return path
		}
	}
	return nil
}

func search(remaining, n int, out models.InOutMode, bm models.BullMode, ds, prefix []dart.Dart) []dart.Dart {
	if n == 1 {
		for _, d := range ds {
			if d.Points(bm) == remaining && Legal(out, d, bm) {
				return append(append([]dart.Dart(nil), prefix...), d)
			}
		}
		return nil
	}
	for _, d := range ds {
		left := remaining - d.Points(bm)
		if left > maxDart*(n-1) {
			break
		}
		// A non-final dart must leave a finishable score.
		if left < 2 {
			continue
		}
		if path := search(left, n-1, out, bm, ds, append(prefix, d)); path != nil {
			return path
		}
	}
	return nil
}
