package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/leg"
	"github.com/Billy-Davies-2/dartsync/internal/medley"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/presence"
	"github.com/Billy-Davies-2/dartsync/internal/pubsub"
	"github.com/Billy-Davies-2/dartsync/internal/sensor"
)

func (s *Session) handleInput(ctx context.Context, in sensor.Input) {
	if s.leg == nil || s.status.Terminal() {
		s.log.Debug("Ignoring board input outside a leg", "key", in.Key)
		return
	}
	switch in.Kind {
	case sensor.InputEndTurn:
		s.cancelSettle()
		s.endTurn(ctx, in.Key)
	case sensor.InputDart:
		ev := leg.Event{Kind: leg.Throw, Player: s.local, Dart: in.Dart, Key: in.Key}
		round := s.leg.Round()
		out, ok := s.apply(ev)
		if !ok {
			return
		}
		bm := s.cfg.Match.BullMode
		s.broadcast(ctx, pubsub.Envelope{
			Kind:       pubsub.KindDartThrow,
			PlayerID:   s.cfg.LocalID,
			Key:        in.Key,
			Segment:    in.Dart.String(),
			Score:      in.Dart.Points(bm),
			Multiplier: in.Dart.Multiplier,
		})
		s.afterApply(ev, round, out)
	}
}

// endTurn applies and broadcasts the local player's turn end.
func (s *Session) endTurn(ctx context.Context, key string) {
	if key == "" {
		key = uuid.NewString()
	}
	ev := leg.Event{Kind: leg.EndTurn, Player: s.local, Key: key}
	round := s.leg.Round()
	out, ok := s.apply(ev)
	if !ok {
		return
	}
	s.broadcast(ctx, pubsub.Envelope{Kind: pubsub.KindTurnEnd, PlayerID: s.cfg.LocalID, Key: key})
	s.afterApply(ev, round, out)
}

// settle fires once the settle delay after a completed local turn passes.
func (s *Session) settle(ctx context.Context) {
	s.settleCancel = nil
	if s.leg == nil || s.leg.Phase() != leg.TurnComplete || s.leg.Thrower() != s.local {
		return
	}
	s.endTurn(ctx, "")
}

func (s *Session) handleRemote(ctx context.Context, env pubsub.Envelope) {
	if s.status.Terminal() {
		return
	}
	switch tr := s.peer.Seen(s.cfg.Now()); tr {
	case presence.Joined:
		s.log.Info("Peer joined")
	case presence.Recovered:
		s.log.Info("Peer reconnected, countdown canceled")
	}

	switch env.Kind {
	case pubsub.KindHeartbeat:
		s.maybeCork(ctx)
	case pubsub.KindDartThrow, pubsub.KindTurnEnd:
		s.remoteLegEvent(env)
	case pubsub.KindCork:
		s.remoteCork(env)
	case pubsub.KindLegChoice:
		s.remoteChoice(env)
	case pubsub.KindLegSelect:
		s.remoteSelect(env)
	case pubsub.KindLeave:
		s.log.Info("Peer left the match")
		s.abandon("peer left")
	default:
		s.log.Debug("Ignoring unknown envelope", "kind", env.Kind)
	}
}

func (s *Session) remoteSeat(env pubsub.Envelope) (int, bool) {
	seat, ok := s.cfg.Match.Seat(env.PlayerID)
	if !ok || seat == s.local {
		s.log.Debug("Ignoring envelope for wrong player", "kind", env.Kind, "player_id", env.PlayerID)
		return 0, false
	}
	return seat, true
}

func (s *Session) remoteLegEvent(env pubsub.Envelope) {
	if s.leg == nil || env.Leg != s.match.LegIndex() {
		s.log.Debug("Ignoring event for another leg", "kind", env.Kind, "leg", env.Leg)
		return
	}
	seat, ok := s.remoteSeat(env)
	if !ok {
		return
	}

	ev := leg.Event{Kind: leg.EndTurn, Player: seat, Key: env.Key}
	if env.Kind == pubsub.KindDartThrow {
		d, err := dart.Parse(env.Segment)
		if err != nil {
			s.log.Debug("Malformed segment counted as miss", "segment", env.Segment)
			d = dart.Miss
		}
		ev = leg.Event{Kind: leg.Throw, Player: seat, Dart: d, Key: env.Key}
	}
	if s.wasApplied(ev) {
		s.log.Debug("Ignoring replayed event", "kind", env.Kind, "key", env.Key)
		return
	}
	round := s.leg.Round()
	out, ok := s.apply(ev)
	if !ok {
		return
	}
	s.afterApply(ev, round, out)
}

// appliedKey identifies a leg event across the whole leg. A rejoining device
// is handed every event of the match, including ones it already applied.
func appliedKey(ev leg.Event) string {
	if ev.Key == "" {
		return ""
	}
	return fmt.Sprintf("%d:%d:%s", ev.Player, ev.Kind, ev.Key)
}

func (s *Session) markApplied(ev leg.Event) {
	if k := appliedKey(ev); k != "" {
		s.applied[k] = struct{}{}
	}
}

func (s *Session) wasApplied(ev leg.Event) bool {
	k := appliedKey(ev)
	if k == "" {
		return false
	}
	_, ok := s.applied[k]
	return ok
}

func (s *Session) remoteCork(env pubsub.Envelope) {
	if env.Leg != s.match.LegIndex() || s.match.Phase() != medley.AwaitingCork {
		return
	}
	winner, ok := s.cfg.Match.Seat(env.Winner)
	if !ok {
		return
	}
	if err := s.match.Cork(winner); err != nil {
		s.log.Debug("Cork rejected", "error", err)
		return
	}
	s.log.Info("Cork received", "winner", env.Winner, "leg", env.Leg)
	s.beginLeg()
}

func (s *Session) remoteChoice(env pubsub.Envelope) {
	if env.Leg != s.match.LegIndex() || s.match.Phase() != medley.AwaitingChoiceMode {
		return
	}
	if seat, ok := s.remoteSeat(env); !ok || seat != s.match.CorkWinner() {
		return
	}
	if err := s.match.ChooseMode(medley.ChoiceMode(env.Mode)); err != nil {
		s.log.Debug("Choice mode rejected", "error", err)
		return
	}
	s.log.Info("Peer chose mode", "mode", env.Mode)
}

func (s *Session) remoteSelect(env pubsub.Envelope) {
	if env.Leg != s.match.LegIndex() || s.match.Phase() != medley.AwaitingSelection {
		return
	}
	if seat, ok := s.remoteSeat(env); !ok || seat != s.match.Chooser() {
		return
	}
	if err := s.match.SelectGame(models.Variant(env.Variant)); err != nil {
		s.log.Debug("Game selection rejected", "error", err)
		return
	}
	s.log.Info("Peer selected game", "variant", env.Variant)
	s.beginLeg()
}

// apply runs ev through the leg, swallowing routine rejections.
func (s *Session) apply(ev leg.Event) (leg.Outcome, bool) {
	out, err := s.leg.Apply(ev)
	if err != nil {
		if leg.Rejected(err) || errors.Is(err, leg.ErrBadEvent) {
			s.log.Debug("Event rejected", "player", ev.Player, "key", ev.Key, "reason", err)
		} else {
			s.log.Error("Failed to apply event", "error", err)
		}
		return out, false
	}
	s.markApplied(ev)
	return out, true
}

// afterApply handles everything that follows an accepted leg event:
// persistence, analytics, the settle timer and leg transitions.
func (s *Session) afterApply(ev leg.Event, round int, out leg.Outcome) {
	s.announce = nil
	s.persistEvent(ev, round, out)

	if out.Achievement != "" {
		s.log.Info("Achievement", "player", ev.Player, "achievement", out.Achievement)
	}
	if out.TurnComplete && ev.Player == s.local {
		s.flushStats()
	}
	if out.LegOver {
		s.cancelSettle()
		s.finishLeg(out.Winner, out.TieBreak)
		return
	}
	if out.TurnComplete && !out.TurnEnded && ev.Player == s.local {
		s.startSettle()
	}
}

// originate records a setup envelope this device is responsible for and
// sends it. Setup envelopes are re-sent on every heartbeat until the leg's
// first event is applied.
func (s *Session) originate(ctx context.Context, env pubsub.Envelope) {
	env.PlayerID = s.cfg.LocalID
	env.Leg = s.match.LegIndex()
	s.announce = append(s.announce, env)
	s.broadcast(ctx, env)
}

func (s *Session) broadcast(ctx context.Context, env pubsub.Envelope) {
	if env.Kind != pubsub.KindCork && env.Kind != pubsub.KindLegChoice && env.Kind != pubsub.KindLegSelect {
		env.Leg = s.match.LegIndex()
	}
	if err := s.transport.Publish(ctx, env); err != nil {
		if errors.Is(err, pubsub.ErrNotConnected) {
			s.log.Debug("Send dropped, transport not connected", "kind", env.Kind)
			return
		}
		s.log.Warn("Failed to publish envelope", "kind", env.Kind, "error", err)
	}
}

func (s *Session) heartbeat(ctx context.Context) {
	if s.status.Terminal() {
		return
	}
	s.broadcast(ctx, pubsub.Envelope{Kind: pubsub.KindHeartbeat, PlayerID: s.cfg.LocalID})
	for _, env := range s.announce {
		s.broadcast(ctx, env)
	}

	switch s.peer.Tick(s.cfg.Now()) {
	case presence.Lost:
		s.log.Warn("Peer missing, starting disconnect countdown", "grace", s.cfg.Grace)
	case presence.Expired:
		s.log.Warn("Peer did not return, abandoning match")
		s.abandon("peer disconnected")
	}
}
