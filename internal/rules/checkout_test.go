package rules

import (
	"testing"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/models"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		out       models.InOutMode
		bull      models.BullMode
		darts     int
		want      string
	}{
		{"170 master full bull", 170, models.ModeMaster, models.BullFull, 3, "T20 T20 DB"},
		{"170 double split bull", 170, models.ModeDouble, models.BullSplit, 3, "T20 T20 DB"},
		{"one dart double", 40, models.ModeDouble, models.BullSplit, 3, "D20"},
		{"one dart bull", 50, models.ModeDouble, models.BullSplit, 1, "DB"},
		{"master treble finish", 57, models.ModeMaster, models.BullSplit, 1, "T19"},
		{"master single bull", 25, models.ModeMaster, models.BullSplit, 2, "SB"},
		{"two darts", 100, models.ModeDouble, models.BullSplit, 2, "T20 D20"},
		{"prefers higher first dart", 61, models.ModeDouble, models.BullSplit, 2, "T19 D2"},
		{"full bull outer counts", 50, models.ModeDouble, models.BullFull, 1, "DB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.remaining, tt.out, tt.bull, tt.darts)
			want := dart.List(tt.want)
			if len(got) != len(want) {
				t.Fatalf("Suggest() = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("Suggest() = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestSuggestNone(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		out       models.InOutMode
		darts     int
	}{
		{"open out", 40, models.ModeOpen, 3},
		{"bogey 169", 169, models.ModeDouble, 3},
		{"too far for two darts", 120, models.ModeDouble, 2},
		{"one", 1, models.ModeDouble, 3},
		{"odd with one dart double out", 41, models.ModeDouble, 1},
		{"no darts left", 40, models.ModeDouble, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suggest(tt.remaining, tt.out, models.BullSplit, tt.darts); got != nil {
				t.Errorf("Suggest() = %v, want nil", got)
			}
		})
	}
}

func TestSuggestIsAlwaysLegal(t *testing.T) {
	for _, out := range []models.InOutMode{models.ModeDouble, models.ModeMaster} {
		for _, bm := range []models.BullMode{models.BullSplit, models.BullFull} {
			for remaining := 2; remaining <= 180; remaining++ {
				path := Suggest(remaining, out, bm, 3)
				if path == nil {
					continue
				}
				sum := 0
				for i, d := range path {
					sum += d.Points(bm)
					if i < len(path)-1 && remaining-sum < 2 {
						t.Fatalf("%d %s: %v leaves %d mid-turn", remaining, out, path, remaining-sum)
					}
				}
				if sum != remaining {
					t.Fatalf("%d %s: %v sums to %d", remaining, out, path, sum)
				}
				if !Legal(out, path[len(path)-1], bm) {
					t.Fatalf("%d %s: %v ends on an illegal dart", remaining, out, path)
				}
			}
		}
	}
}
