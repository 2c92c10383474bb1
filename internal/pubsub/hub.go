package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// Hub is an in-process broker. Each device joins as an Endpoint; an envelope
// published on one endpoint reaches every other endpoint of the same match.
// The hub keeps recent envelopes per match so a late joiner can catch up.
type Hub struct {
	mu          sync.RWMutex
	endpoints   map[string][]*Endpoint
	history     map[string][]Envelope
	maxMessages int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		endpoints:   make(map[string][]*Endpoint),
		history:     make(map[string][]Envelope),
		maxMessages: 1000,
	}
}

// Join attaches a new endpoint to the match. The endpoint's first subscriber
// receives the match history before any live envelope.
func (h *Hub) Join(matchID string) *Endpoint {
	ep := &Endpoint{hub: h, id: uuid.NewString(), matchID: matchID}

	h.mu.Lock()
	backlog := h.recent(matchID, 0)
	ep.subs.seed(backlog)
	h.endpoints[matchID] = append(h.endpoints[matchID], ep)
	n := len(h.endpoints[matchID])
	h.mu.Unlock()

	logger.Debug("Hub: Endpoint joined", "match_id", matchID, "endpoint", ep.id, "endpoints", n, "backlog", len(backlog))
	return ep
}

// recent returns up to count envelopes of a match, oldest first. Callers
// hold h.mu.
func (h *Hub) recent(matchID string, count int) []Envelope {
	msgs := h.history[matchID]
	start := len(msgs) - count
	if start < 0 || count <= 0 {
		start = 0
	}
	return append([]Envelope(nil), msgs[start:]...)
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.Lock()
	if env.Kind != KindHeartbeat {
		msgs := append(h.history[env.MatchID], env)
		if len(msgs) > h.maxMessages {
			msgs = msgs[len(msgs)-h.maxMessages:]
		}
		h.history[env.MatchID] = msgs
	}
	eps := append([]*Endpoint(nil), h.endpoints[env.MatchID]...)
	h.mu.Unlock()

	for _, ep := range eps {
		ep.deliver(env)
	}
}

func (h *Hub) leave(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	eps := h.endpoints[ep.matchID]
	for i, e := range eps {
		if e == ep {
			h.endpoints[ep.matchID] = append(eps[:i], eps[i+1:]...)
			break
		}
	}
}

// Endpoint is one device's view of a Hub.
type Endpoint struct {
	hub     *Hub
	id      string
	matchID string
	subs    subscribers

	mu     sync.RWMutex
	closed bool
}

func (e *Endpoint) ID() string { return e.id }

// Publish stamps env with this endpoint's identity and broadcasts it.
func (e *Endpoint) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrNotConnected
	}

	env.Sender = e.id
	env.MatchID = e.matchID
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}
	e.hub.broadcast(env)
	logger.Debug("Hub: Published envelope", "kind", env.Kind, "match_id", e.matchID)
	return nil
}

func (e *Endpoint) deliver(env Envelope) {
	if !accept(e.id, e.matchID, env) {
		return
	}
	e.subs.publish(env)
}

func (e *Endpoint) Subscribe() chan Envelope     { return e.subs.add() }
func (e *Endpoint) Unsubscribe(ch chan Envelope) { e.subs.remove(ch) }
func (e *Endpoint) SubscriberCount() int         { return e.subs.count() }

// Close detaches the endpoint and closes its subscriber channels.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.hub.leave(e)
	e.subs.closeAll()
}
