package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrFeedStopped is returned when input is sent to a simulator that is not running.
var ErrFeedStopped = errors.New("feed stopped")

// Simulator is a manual input source for development. Segments go through
// the same normalization as board readings.
type Simulator struct {
	in      chan Reading
	stopped chan struct{}
	seq     atomic.Uint64
}

func NewSimulator() *Simulator {
	return &Simulator{
		in:      make(chan Reading, 16),
		stopped: make(chan struct{}),
	}
}

func (s *Simulator) Run(ctx context.Context, emit func(Reading), status func(Status)) error {
	defer close(s.stopped)
	status(StatusConnected)
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.in:
			emit(r)
		}
	}
}

// Throw injects a dart such as "T20", "DB" or "MISS".
func (s *Simulator) Throw(ctx context.Context, segment string) error {
	return s.send(ctx, Reading{Segment: segment})
}

// EndTurn presses the end-turn button.
func (s *Simulator) EndTurn(ctx context.Context) error {
	return s.send(ctx, Reading{Segment: buttonSegment, SegmentType: SegmentButton})
}

func (s *Simulator) send(ctx context.Context, r Reading) error {
	select {
	case <-s.stopped:
		return ErrFeedStopped
	default:
	}
	r.Timestamp = fmt.Sprintf("%s#%d", time.Now().UTC().Format(time.RFC3339Nano), s.seq.Add(1))
	select {
	case s.in <- r:
		return nil
	case <-s.stopped:
		return ErrFeedStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
