package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Billy-Davies-2/dartsync/internal/clickhouse"
	"github.com/Billy-Davies-2/dartsync/internal/dal"
	"github.com/Billy-Davies-2/dartsync/internal/dart"
	"github.com/Billy-Davies-2/dartsync/internal/leg"
	"github.com/Billy-Davies-2/dartsync/internal/medley"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/presence"
	"github.com/Billy-Davies-2/dartsync/internal/pubsub"
)

func (s *Session) legConfig(v models.Variant, starter int) leg.Config {
	return leg.Config{
		Variant:   v,
		Starter:   starter,
		InMode:    s.cfg.Match.InMode,
		OutMode:   s.cfg.Match.OutMode,
		BullMode:  s.cfg.Match.BullMode,
		MaxRounds: s.cfg.MaxRounds,
	}
}

// maybeCork flips the cork when one is due. Seat 0 owns the flip and waits
// until the peer has been heard from.
func (s *Session) maybeCork(ctx context.Context) {
	if s.local != 0 || s.status.Terminal() || s.match.Phase() != medley.AwaitingCork {
		return
	}
	if s.peer.State() == presence.Waiting {
		return
	}
	w := s.cfg.Cork()
	if err := s.match.Cork(w); err != nil {
		s.log.Error("Failed to record cork", "error", err)
		return
	}
	s.log.Info("Cork flipped", "winner", s.cfg.Match.Players[w].ID, "leg", s.match.LegIndex())
	s.originate(ctx, pubsub.Envelope{Kind: pubsub.KindCork, Winner: s.cfg.Match.Players[w].ID})
	s.beginLeg()
}

// beginLeg starts the leg the orchestrator says is in play, if any.
func (s *Session) beginLeg() {
	v, starter, ok := s.match.Current()
	if !ok {
		return
	}
	l, err := leg.New(s.legConfig(v, starter))
	if err != nil {
		s.log.Error("Failed to start leg", "variant", v, "error", err)
		return
	}
	s.leg = l
	s.lastLeg = nil
	s.applied = make(map[string]struct{})
	s.log.Info("Leg started", "leg", s.match.LegIndex(), "variant", v, "starter", s.cfg.Match.Players[starter].ID)

	if s.status == models.StatusAccepted {
		s.setStatus(models.StatusPlaying)
	}
	s.recordLeg(models.LegResult{
		MatchID:   s.cfg.Match.ID,
		Leg:       s.match.LegIndex(),
		Variant:   v,
		StarterID: s.cfg.Match.Players[starter].ID,
	})
}

func (s *Session) finishLeg(winner int, tieBreak bool) {
	cfg := s.leg.Config()
	s.recordLeg(models.LegResult{
		MatchID:   s.cfg.Match.ID,
		Leg:       s.match.LegIndex(),
		Variant:   cfg.Variant,
		StarterID: s.cfg.Match.Players[cfg.Starter].ID,
		WinnerID:  s.cfg.Match.Players[winner].ID,
		Rounds:    s.leg.Round(),
		TieBreak:  tieBreak,
	})
	s.log.Info("Leg won", "leg", s.match.LegIndex(), "winner", s.cfg.Match.Players[winner].ID, "tie_break", tieBreak)

	s.flushStats()
	s.lastLeg, s.leg = s.leg, nil
	if err := s.match.FinishLeg(winner); err != nil {
		s.log.Error("Failed to advance match", "error", err)
		return
	}
	if w, ok := s.match.Winner(); ok {
		s.log.Info("Match won", "winner", s.cfg.Match.Players[w].ID, "wins", s.match.Wins())
		s.setStatus(models.StatusCompleted)
		return
	}
	s.beginLeg()
}

func (s *Session) abandon(reason string) {
	s.cancelSettle()
	s.match.Abandon()
	s.peer.Abandon()
	if s.leg != nil {
		s.lastLeg, s.leg = s.leg, nil
	}
	s.announce = nil
	s.log.Warn("Match abandoned", "reason", reason)
	s.setStatus(models.StatusAbandoned)
}

func (s *Session) setStatus(st models.MatchStatus) {
	s.status = st
	if s.store == nil {
		return
	}
	if err := s.store.UpdateStatus(s.cfg.Match.ID, st); err != nil {
		s.log.Warn("Failed to persist match status", "status", st, "error", err)
	}
}

func (s *Session) recordLeg(rec models.LegResult) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordLeg(rec); err != nil {
		s.log.Warn("Failed to persist leg result", "leg", rec.Leg, "error", err)
	}
}

// persistEvent appends ev to the match log and buffers analytics for local darts.
func (s *Session) persistEvent(ev leg.Event, round int, out leg.Outcome) {
	cfg := s.leg.Config()
	playerID := s.cfg.Match.Players[ev.Player].ID

	if s.store != nil {
		rec := models.ThrowRecord{
			MatchID:  s.cfg.Match.ID,
			Leg:      s.match.LegIndex(),
			Round:    round,
			PlayerID: playerID,
			Key:      ev.Key,
			Kind:     models.ThrowKindEndTurn,
			Variant:  cfg.Variant,
		}
		if ev.Kind == leg.Throw {
			rec.Kind = models.ThrowKindDart
			rec.Segment = ev.Dart.String()
			rec.Number = ev.Dart.Number
			rec.Multiplier = ev.Dart.Multiplier
			rec.Score = ev.Dart.Points(cfg.BullMode)
		}
		if err := s.store.AppendThrow(rec); err != nil {
			s.log.Warn("Failed to persist throw", "key", ev.Key, "error", err)
		}
	}

	if s.analytics != nil && ev.Kind == leg.Throw && ev.Player == s.local {
		s.stats = append(s.stats, clickhouse.ThrowStat{
			MatchID:  s.cfg.Match.ID,
			Leg:      s.match.LegIndex(),
			Round:    round,
			PlayerID: playerID,
			Variant:  string(cfg.Variant),
			Segment:  ev.Dart.String(),
			Score:    out.Result.Scored,
			Marks:    out.Result.Marks,
			Bust:     out.Result.Bust,
			ThrownAt: s.cfg.Now().UTC(),
		})
	}
}

// flushStats ships buffered analytics without blocking the loop.
func (s *Session) flushStats() {
	if s.analytics == nil || len(s.stats) == 0 {
		return
	}
	stats := s.stats
	s.stats = nil

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.analytics.RecordThrows(ctx, stats); err != nil {
			s.log.Warn("Failed to record analytics", "darts", len(stats), "error", err)
		}
	}()
}

// startSettle arms the settle timer. Only the newest timer may fire; older
// ones are recognized by their generation and dropped.
func (s *Session) startSettle() {
	s.cancelSettle()
	gen := s.settleGen
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SettleDelay)
	s.settleCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		if ctx.Err() != context.DeadlineExceeded {
			return
		}
		select {
		case s.settleC <- gen:
		case <-s.done:
		}
	}()
}

func (s *Session) cancelSettle() {
	s.settleGen++
	if s.settleCancel != nil {
		s.settleCancel()
		s.settleCancel = nil
	}
}

// restore rebuilds the orchestrator and the leg in play from the store.
func (s *Session) restore() error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.GetMatch(s.cfg.Match.ID)
	if errors.Is(err, dal.ErrNotFound) {
		d := s.cfg.Match
		d.Status = models.StatusAccepted
		if err := s.store.SaveMatch(&d); err != nil {
			s.log.Warn("Failed to persist match", "error", err)
		}
		return nil
	}
	if err != nil {
		s.log.Warn("Failed to load match, starting fresh", "error", err)
		return nil
	}

	legs, err := s.store.ListLegs(s.cfg.Match.ID)
	if err != nil {
		s.log.Warn("Failed to load legs, starting fresh", "error", err)
		return nil
	}
	s.status = stored.Status
	if len(legs) == 0 {
		return nil
	}

	recs := make([]medley.LegRecord, 0, len(legs))
	for _, l := range legs {
		starter, ok := s.cfg.Match.Seat(l.StarterID)
		if !ok {
			return fmt.Errorf("leg %d: %w: %s", l.Leg, ErrUnknownPlayer, l.StarterID)
		}
		winner := -1
		if l.WinnerID != "" {
			if winner, ok = s.cfg.Match.Seat(l.WinnerID); !ok {
				return fmt.Errorf("leg %d: %w: %s", l.Leg, ErrUnknownPlayer, l.WinnerID)
			}
		}
		recs = append(recs, medley.LegRecord{Variant: l.Variant, Starter: starter, Winner: winner})
	}
	m, err := medley.Resume(s.cfg.Match.Legs, recs)
	if err != nil {
		return fmt.Errorf("failed to resume match: %w", err)
	}
	s.match = m
	if s.status == models.StatusAbandoned {
		s.match.Abandon()
		return nil
	}

	v, starter, ok := m.Current()
	if !ok {
		s.log.Info("Restored match", "phase", m.Phase(), "wins", m.Wins())
		return nil
	}
	throws, err := s.store.ListThrows(s.cfg.Match.ID)
	if err != nil {
		s.log.Warn("Failed to load throw log", "error", err)
	}
	var events []leg.Event
	for _, t := range throws {
		if t.Leg != m.LegIndex() {
			continue
		}
		seat, ok := s.cfg.Match.Seat(t.PlayerID)
		if !ok {
			continue
		}
		ev := leg.Event{Kind: leg.EndTurn, Player: seat, Key: t.Key}
		if t.Kind == models.ThrowKindDart {
			ev = leg.Event{Kind: leg.Throw, Player: seat, Dart: dart.New(t.Number, t.Multiplier), Key: t.Key}
		}
		events = append(events, ev)
	}
	l, err := leg.Replay(s.legConfig(v, starter), events)
	if err != nil {
		return fmt.Errorf("failed to replay leg %d: %w", m.LegIndex(), err)
	}
	s.leg = l
	for _, ev := range events {
		s.markApplied(ev)
	}
	s.log.Info("Restored match", "leg", m.LegIndex(), "variant", v, "events", len(events), "round", l.Round())
	return nil
}

// resume picks up transitions that were pending when the device went away.
func (s *Session) resume() {
	if s.leg == nil {
		return
	}
	switch {
	case s.leg.Phase() == leg.LegOver:
		w, _ := s.leg.Winner()
		s.finishLeg(w, s.leg.Snapshot().TieBreak)
	case s.leg.Phase() == leg.TurnComplete && s.leg.Thrower() == s.local:
		s.startSettle()
	}
}
