package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// NATSOptions configures a NATS transport for one match.
type NATSOptions struct {
	MatchID string
	// Prefix roots all match subjects: <prefix>.<match>.events and
	// <prefix>.<match>.presence.
	Prefix string
	// Stream is the JetStream stream holding match events.
	Stream  string
	Storage nats.StorageType
	MaxAge  time.Duration
}

// DefaultNATSOptions returns production defaults for a match.
func DefaultNATSOptions(matchID string) NATSOptions {
	return NATSOptions{
		MatchID: matchID,
		Prefix:  "darts.match",
		Stream:  "DART_MATCHES",
		Storage: nats.FileStorage,
		MaxAge:  24 * time.Hour,
	}
}

// EventsSubject is the JetStream subject for game events of a match.
func (o NATSOptions) EventsSubject() string {
	return fmt.Sprintf("%s.%s.events", o.Prefix, o.MatchID)
}

// PresenceSubject is the core NATS subject for heartbeats of a match.
func (o NATSOptions) PresenceSubject() string {
	return fmt.Sprintf("%s.%s.presence", o.Prefix, o.MatchID)
}

const closeFlushTimeout = 5 * time.Second

// NATSTransport carries game events over JetStream and heartbeats over core
// NATS, so liveness traffic never lands in the stream.
type NATSTransport struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	opts    NATSOptions
	id      string
	ownConn bool

	subs   subscribers
	mu     sync.Mutex
	natSub []*nats.Subscription
}

// DialNATS connects to url and opens a transport that owns the connection.
func DialNATS(url string, opts NATSOptions) (*NATSTransport, error) {
	nc, err := nats.Connect(url,
		nats.Name("dartsync-"+opts.MatchID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	t, err := NewNATSTransport(nc, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	t.ownConn = true
	return t, nil
}

// NewNATSTransport opens a transport on an existing connection.
func NewNATSTransport(nc *nats.Conn, opts NATSOptions) (*NATSTransport, error) {
	if opts.MatchID == "" {
		return nil, fmt.Errorf("match id is required")
	}
	def := DefaultNATSOptions(opts.MatchID)
	if opts.Prefix == "" {
		opts.Prefix = def.Prefix
	}
	if opts.Stream == "" {
		opts.Stream = def.Stream
	}

	js, err := nc.JetStream(
		nats.PublishAsyncMaxPending(256),
		nats.PublishAsyncTimeout(5*time.Second),
		nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
			logger.Warn("JetStream publish not acknowledged",
				"subject", msg.Subject, "msg_id", msg.Header.Get(nats.MsgIdHdr), "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(opts.Stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       opts.Stream,
			Subjects:   []string{opts.Prefix + ".*.events"},
			Storage:    opts.Storage,
			MaxAge:     opts.MaxAge,
			Duplicates: 2 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
		logger.Info("JetStream stream created", "stream", opts.Stream, "subjects", opts.Prefix+".*.events")
	}

	t := &NATSTransport{
		nc:   nc,
		js:   js,
		opts: opts,
		id:   uuid.NewString(),
	}

	// The whole match is replayed to a new transport; envelopes that land
	// before the session subscribes wait in the backlog.
	evSub, err := js.Subscribe(opts.EventsSubject(), t.handleEvent, nats.ManualAck(), nats.DeliverAll())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", opts.EventsSubject(), err)
	}
	prSub, err := nc.Subscribe(opts.PresenceSubject(), func(msg *nats.Msg) {
		t.handle(msg.Data)
	})
	if err != nil {
		evSub.Unsubscribe()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", opts.PresenceSubject(), err)
	}
	t.natSub = []*nats.Subscription{evSub, prSub}

	logger.Debug("NATS transport ready", "match_id", opts.MatchID, "sender", t.id)
	return t, nil
}

func (t *NATSTransport) handleEvent(msg *nats.Msg) {
	if !t.handle(msg.Data) {
		msg.Term()
		return
	}
	msg.Ack()
}

func (t *NATSTransport) handle(data []byte) bool {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Error("Failed to unmarshal envelope", "error", err)
		return false
	}
	if accept(t.id, t.opts.MatchID, env) {
		t.subs.publish(env)
	}
	return true
}

func (t *NATSTransport) ID() string { return t.id }

// Publish sends env. Game events go to JetStream with the dedup key as the
// message id so a retried publish is stored once. Acks are awaited off the
// caller's goroutine; a missing ack is logged by the async error handler.
func (t *NATSTransport) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.nc.IsConnected() {
		return ErrNotConnected
	}
	env.Sender = t.id
	env.MatchID = t.opts.MatchID
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if env.Kind == KindHeartbeat {
		return t.nc.Publish(t.opts.PresenceSubject(), data)
	}

	var opts []nats.PubOpt
	if env.Key != "" {
		opts = append(opts, nats.MsgId(fmt.Sprintf("%s:%s:%s", env.PlayerID, env.Kind, env.Key)))
	}
	if _, err := t.js.PublishAsync(t.opts.EventsSubject(), data, opts...); err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.Kind, err)
	}
	logger.Debug("Published envelope to NATS", "kind", env.Kind, "subject", t.opts.EventsSubject())
	return nil
}

func (t *NATSTransport) Subscribe() chan Envelope     { return t.subs.add() }
func (t *NATSTransport) Unsubscribe(ch chan Envelope) { t.subs.remove(ch) }
func (t *NATSTransport) SubscriberCount() int         { return t.subs.count() }

// Close waits briefly for outstanding publish acks, then drops the NATS
// subscriptions and closes local subscribers. The connection is closed only
// when the transport dialed it.
func (t *NATSTransport) Close() {
	select {
	case <-t.js.PublishAsyncComplete():
	case <-time.After(closeFlushTimeout):
		logger.Warn("Closing NATS transport with unacknowledged publishes", "pending", t.js.PublishAsyncPending())
	}

	t.mu.Lock()
	subs := t.natSub
	t.natSub = nil
	t.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			logger.Debug("NATS unsubscribe failed", "error", err)
		}
	}
	t.subs.closeAll()
	if t.ownConn {
		t.nc.Close()
	}
}
