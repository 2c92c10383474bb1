// Package dart defines the canonical representation of a single thrown dart.
package dart

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Billy-Davies-2/dartsync/internal/models"
)

// Bull is the segment number used for both bull rings.
const Bull = 25

// ErrBadSegment is returned by Parse for text that names no board segment.
var ErrBadSegment = errors.New("unrecognized segment")

// Dart is a segment hit. The zero value is a miss.
type Dart struct {
	Number     int `json:"number"`
	Multiplier int `json:"multiplier"`
}

// Miss is a non-scoring dart.
var Miss = Dart{}

// New returns the dart for a number and multiplier, or Miss when the pair is
// not on the board.
func New(number, multiplier int) Dart {
	d := Dart{Number: number, Multiplier: multiplier}
	if !d.Valid() {
		return Miss
	}
	return d
}

// Valid reports whether d is a miss or a real board segment.
func (d Dart) Valid() bool {
	switch {
	case d == Miss:
		return true
	case d.Number >= 1 && d.Number <= 20:
		return d.Multiplier >= 1 && d.Multiplier <= 3
	case d.Number == Bull:
		return d.Multiplier == 1 || d.Multiplier == 2
	}
	return false
}

func (d Dart) IsMiss() bool { return d.Number == 0 }
func (d Dart) IsBull() bool { return d.Number == Bull }

// IsDouble reports whether the dart landed in a double ring. Under full bull
// scoring every bull is treated as the double bull.
func (d Dart) IsDouble(bm models.BullMode) bool {
	if d.IsBull() && bm == models.BullFull {
		return true
	}
	return d.Multiplier == 2
}

func (d Dart) IsTriple() bool { return d.Multiplier == 3 }

// Points is the face value of the dart.
func (d Dart) Points(bm models.BullMode) int {
	switch {
	case d.IsMiss():
		return 0
	case d.IsBull() && bm == models.BullFull:
		return 50
	}
	return d.Number * d.Multiplier
}

// String renders the dart as S20, D16, T19, SB, DB or MISS.
func (d Dart) String() string {
	switch {
	case d.IsMiss():
		return "MISS"
	case d.IsBull() && d.Multiplier == 2:
		return "DB"
	case d.IsBull():
		return "SB"
	}
	return fmt.Sprintf("%c%d", "SDT"[d.Multiplier-1], d.Number)
}

// MarshalText lets darts travel as their short names.
func (d Dart) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Dart) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse reads the short names produced by String plus a few board-side
// spellings: bare numbers, "BULL", "25", "50", "M" and "0".
func Parse(s string) (Dart, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "MISS", "M", "0", "OUT":
		return Miss, nil
	case "SB", "BULL", "25", "S25", "OB":
		return Dart{Number: Bull, Multiplier: 1}, nil
	case "DB", "BE", "50", "D25", "IB":
		return Dart{Number: Bull, Multiplier: 2}, nil
	case "":
		return Miss, fmt.Errorf("%w: empty", ErrBadSegment)
	}

	mult := 1
	switch s[0] {
	case 'S':
		s = s[1:]
	case 'D':
		mult, s = 2, s[1:]
	case 'T':
		mult, s = 3, s[1:]
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 20 {
		return Miss, fmt.Errorf("%w: %q", ErrBadSegment, s)
	}
	return Dart{Number: n, Multiplier: mult}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Dart {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// List parses a space separated list of darts, as used in tests and logs.
func List(s string) []Dart {
	fields := strings.Fields(s)
	out := make([]Dart, 0, len(fields))
	for _, f := range fields {
		out = append(out, MustParse(f))
	}
	return out
}
