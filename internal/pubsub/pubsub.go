package pubsub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// ErrNotConnected is returned when a publish is attempted on a transport that
// is not (or no longer) connected. Callers treat it as a dropped send.
var ErrNotConnected = errors.New("transport not connected")

// Kind is the message type carried by an Envelope.
type Kind string

const (
	KindDartThrow Kind = "dart_throw"
	KindTurnEnd   Kind = "turn_end"
	KindCork      Kind = "cork"
	KindLegChoice Kind = "leg_choice"
	KindLegSelect Kind = "leg_select"
	KindLeave     Kind = "leave"
	KindHeartbeat Kind = "heartbeat"
)

// Envelope is one message on a match channel.
type Envelope struct {
	Kind     Kind   `json:"kind"`
	MatchID  string `json:"matchId"`
	Sender   string `json:"sender"`
	PlayerID string `json:"playerId,omitempty"`
	// Leg is the zero-based leg the message belongs to.
	Leg        int       `json:"leg"`
	Key        string    `json:"key,omitempty"`
	Segment    string    `json:"segment,omitempty"`
	Score      int       `json:"score,omitempty"`
	Multiplier int       `json:"multiplier,omitempty"`
	Winner     string    `json:"winner,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Variant    string    `json:"variant,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// Transport is a match-scoped broadcast channel. A transport never delivers
// envelopes it sent itself, nor envelopes for another match.
type Transport interface {
	// ID identifies this endpoint as a sender.
	ID() string
	Publish(ctx context.Context, env Envelope) error
	Subscribe() chan Envelope
	Unsubscribe(ch chan Envelope)
	Close()
}

// maxBacklog bounds the envelopes held for a transport nobody reads yet.
const maxBacklog = 1000

// subscribers is the local fan-out shared by every transport. Game envelopes
// that arrive while nobody is subscribed are kept and handed to the next
// subscriber, so a device that rejoins sees what it missed.
type subscribers struct {
	mu      sync.RWMutex
	chans   []chan Envelope
	buffer  int
	backlog []Envelope
	closed  bool
}

func (s *subscribers) add() chan Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffer
	if buf == 0 {
		buf = 100
	}
	ch := make(chan Envelope, buf+len(s.backlog))
	for _, env := range s.backlog {
		ch <- env
	}
	if len(s.backlog) > 0 {
		logger.Debug("PubSub: Replayed backlog to subscriber", "envelopes", len(s.backlog))
	}
	s.backlog = nil
	s.chans = append(s.chans, ch)
	logger.Debug("PubSub: New subscriber added", "total_subscribers", len(s.chans))
	return ch
}

// seed queues envs ahead of anything delivered later.
func (s *subscribers) seed(envs []Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, env := range envs {
		s.hold(env)
	}
}

// hold appends to the backlog; callers hold s.mu for writing.
func (s *subscribers) hold(env Envelope) {
	if env.Kind == KindHeartbeat {
		return
	}
	s.backlog = append(s.backlog, env)
	if len(s.backlog) > maxBacklog {
		s.backlog = s.backlog[len(s.backlog)-maxBacklog:]
	}
}

func (s *subscribers) remove(ch chan Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.chans {
		if sub == ch {
			s.chans = append(s.chans[:i], s.chans[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *subscribers) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chans)
}

// publish never blocks, so the lock is held across the sends to keep
// closeAll from closing a channel mid-delivery.
func (s *subscribers) publish(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if len(s.chans) == 0 {
		s.hold(env)
		return
	}
	for _, ch := range s.chans {
		select {
		case ch <- env:
		default:
			logger.Warn("PubSub: Skipping slow subscriber", "kind", env.Kind)
		}
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.chans {
		close(ch)
	}
	s.chans = nil
	s.backlog = nil
	s.closed = true
}

// accept applies the self-suppression and match scoping rules.
func accept(self, matchID string, env Envelope) bool {
	if env.Sender == self {
		return false
	}
	if env.MatchID != matchID {
		logger.Debug("PubSub: Dropping envelope for foreign match", "match_id", env.MatchID, "want", matchID)
		return false
	}
	return true
}
