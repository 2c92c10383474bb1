// Package session runs one device's side of a match. A single goroutine
// owns all game state and processes board input, peer envelopes, timers and
// commands one at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Billy-Davies-2/dartsync/internal/clickhouse"
	"github.com/Billy-Davies-2/dartsync/internal/dal"
	"github.com/Billy-Davies-2/dartsync/internal/leg"
	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/medley"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/presence"
	"github.com/Billy-Davies-2/dartsync/internal/pubsub"
	"github.com/Billy-Davies-2/dartsync/internal/sensor"
)

const (
	DefaultSettleDelay       = 1500 * time.Millisecond
	DefaultHeartbeatInterval = time.Second
)

var (
	ErrClosed        = errors.New("session closed")
	ErrUnknownPlayer = errors.New("player is not in this match")
	ErrNotYourChoice = errors.New("the other player makes this choice")
	ErrMatchOver     = errors.New("match is over")
)

// Analytics receives the local player's darts.
type Analytics interface {
	RecordThrows(ctx context.Context, stats []clickhouse.ThrowStat) error
}

// Config describes the match and this device's seat in it.
type Config struct {
	Match   models.MatchDescriptor
	LocalID string

	SettleDelay       time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Grace             time.Duration
	MaxRounds         int

	// Cork returns the cork winner. Defaults to a fair coin flip.
	Cork func() int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Deps are the collaborators a session talks to. Store and Analytics may be nil.
type Deps struct {
	Transport pubsub.Transport
	Store     dal.MatchStore
	Analytics Analytics
	Input     <-chan sensor.Input
}

// Session is the per-device match controller.
type Session struct {
	cfg   Config
	local int
	log   *slog.Logger

	transport pubsub.Transport
	remote    chan pubsub.Envelope
	store     dal.MatchStore
	analytics Analytics
	input     <-chan sensor.Input

	cmds    chan func()
	settleC chan uint64
	done    chan struct{}
	running atomic.Bool

	// Owned by the loop goroutine.
	status   models.MatchStatus
	match    *medley.Match
	leg      *leg.Leg
	lastLeg  *leg.Leg
	applied  map[string]struct{}
	peer     *presence.Monitor
	announce []pubsub.Envelope
	stats    []clickhouse.ThrowStat

	settleGen    uint64
	settleCancel context.CancelFunc

	state     atomic.Pointer[State]
	observers observers
	wg        sync.WaitGroup
}

// New validates the match, restores any persisted progress and subscribes to
// the transport. Call Run to start processing.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Match.Validate(); err != nil {
		return nil, err
	}
	local, ok := cfg.Match.Seat(cfg.LocalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, cfg.LocalID)
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = presence.DefaultTimeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = presence.DefaultGrace
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = leg.DefaultMaxRounds
	}
	if cfg.Cork == nil {
		cfg.Cork = flipCork
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Match.InMode == "" {
		cfg.Match.InMode = models.ModeOpen
	}
	if cfg.Match.OutMode == "" {
		cfg.Match.OutMode = models.ModeOpen
	}
	if cfg.Match.BullMode == "" {
		cfg.Match.BullMode = models.BullSplit
	}

	match, err := medley.New(cfg.Match.Legs)
	if err != nil {
		return nil, fmt.Errorf("invalid leg plan: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		local:     local,
		log:       logger.With("match_id", cfg.Match.ID, "player_id", cfg.LocalID),
		transport: deps.Transport,
		store:     deps.Store,
		analytics: deps.Analytics,
		input:     deps.Input,
		cmds:      make(chan func()),
		settleC:   make(chan uint64, 1),
		done:      make(chan struct{}),
		status:    models.StatusAccepted,
		match:     match,
		applied:   make(map[string]struct{}),
		peer:      presence.NewMonitor(cfg.HeartbeatTimeout, cfg.Grace),
	}

	if err := s.restore(); err != nil {
		return nil, err
	}
	s.remote = s.transport.Subscribe()
	s.publishState()
	return s, nil
}

// Run processes events until ctx is canceled. It returns nil on a clean
// shutdown.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}
	defer func() {
		s.cancelSettle()
		close(s.done)
		s.wg.Wait()
		s.transport.Unsubscribe(s.remote)
		s.observers.closeAll()
	}()

	s.log.Info("Match session started", "seat", s.local, "legs", len(s.cfg.Match.Legs))
	s.resume()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	s.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Match session stopped", "status", s.status)
			return nil

		case in, ok := <-s.input:
			if !ok {
				s.input = nil
				continue
			}
			s.handleInput(ctx, in)

		case env, ok := <-s.remote:
			if !ok {
				s.log.Warn("Transport closed")
				s.remote = nil
				continue
			}
			s.handleRemote(ctx, env)

		case gen := <-s.settleC:
			if gen == s.settleGen {
				s.settle(ctx)
			}

		case <-ticker.C:
			s.heartbeat(ctx)

		case fn := <-s.cmds:
			fn()
		}
		s.publishState()
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case s.cmds <- func() { errc <- fn(ctx) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Local is this device's seat.
func (s *Session) Local() int { return s.local }

// ChooseMode answers the choice-leg question. Only the cork winner may call it.
func (s *Session) ChooseMode(ctx context.Context, mode medley.ChoiceMode) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.match.Phase() == medley.AwaitingChoiceMode && s.match.CorkWinner() != s.local {
			return ErrNotYourChoice
		}
		if err := s.match.ChooseMode(mode); err != nil {
			return err
		}
		s.log.Info("Choice mode selected", "mode", mode)
		s.originate(ctx, pubsub.Envelope{Kind: pubsub.KindLegChoice, Mode: string(mode)})
		return nil
	})
}

// SelectGame picks the variant for a choice leg. Only the chooser may call it.
func (s *Session) SelectGame(ctx context.Context, v models.Variant) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.match.Phase() == medley.AwaitingSelection && s.match.Chooser() != s.local {
			return ErrNotYourChoice
		}
		if err := s.match.SelectGame(v); err != nil {
			return err
		}
		s.log.Info("Choice leg resolved", "variant", v)
		s.originate(ctx, pubsub.Envelope{Kind: pubsub.KindLegSelect, Variant: string(v)})
		s.beginLeg()
		return nil
	})
}

// Leave abandons the match for both players.
func (s *Session) Leave(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		if s.status.Terminal() {
			return ErrMatchOver
		}
		s.broadcast(ctx, pubsub.Envelope{Kind: pubsub.KindLeave, PlayerID: s.cfg.LocalID})
		s.abandon("left")
		return nil
	})
}
