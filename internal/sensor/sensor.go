// Package sensor turns raw dartboard readings into canonical inputs for the
// leg state machine.
package sensor

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
)

// SegmentType is the ring reported by the board.
type SegmentType string

const (
	SegmentSingle   SegmentType = "SINGLE"
	SegmentDouble   SegmentType = "DOUBLE"
	SegmentTriple   SegmentType = "TRIPLE"
	SegmentBull     SegmentType = "BULL"
	SegmentBullseye SegmentType = "BULLSEYE"
	SegmentMiss     SegmentType = "MISS"
	SegmentButton   SegmentType = "BUTTON"
)

// buttonSegment is the segment name some boards send for the end-turn button.
const buttonSegment = "BTN"

// Status is the board connectivity state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusScanning     Status = "scanning"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Reading is one raw event from the board.
type Reading struct {
	Segment     string      `json:"segment"`
	SegmentType SegmentType `json:"segmentType"`
	Multiplier  int         `json:"multiplier"`
	Timestamp   string      `json:"timestamp"`
}

// InputKind separates scored darts from the end-turn control signal.
type InputKind string

const (
	InputDart    InputKind = "dart"
	InputEndTurn InputKind = "end_turn"
)

// Input is a normalized reading. Key is the dedup key carried through the
// state machine and over the wire.
type Input struct {
	Kind InputKind `json:"kind"`
	Dart dart.Dart `json:"dart"`
	Key  string    `json:"key"`
}

// Normalize maps a reading to an input. Anything that does not name a board
// segment becomes a miss rather than an error.
func Normalize(r Reading) Input {
	key := strings.TrimSpace(r.Timestamp)
	if key == "" {
		key = uuid.NewString()
	}

	seg := strings.ToUpper(strings.TrimSpace(r.Segment))
	typ := SegmentType(strings.ToUpper(string(r.SegmentType)))
	if typ == SegmentButton || seg == buttonSegment {
		return Input{Kind: InputEndTurn, Key: key}
	}
	return Input{Kind: InputDart, Dart: segmentDart(seg, typ, r.Multiplier), Key: key}
}

func segmentDart(seg string, typ SegmentType, mult int) dart.Dart {
	switch typ {
	case SegmentMiss:
		return dart.Miss
	case SegmentBull:
		return dart.New(dart.Bull, 1)
	case SegmentBullseye:
		return dart.New(dart.Bull, 2)
	}

	d, err := dart.Parse(seg)
	if err != nil || d.IsMiss() {
		return dart.Miss
	}

	// A bare number takes its ring from the type or the multiplier field.
	if d.Multiplier == 1 && !strings.HasPrefix(seg, "S") {
		switch {
		case typ == SegmentDouble:
			mult = 2
		case typ == SegmentTriple:
			mult = 3
		case mult == 0:
			mult = 1
		}
		return dart.New(d.Number, mult)
	}
	return d
}
