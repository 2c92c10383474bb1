package session

import (
	"sync"

	"github.com/Billy-Davies-2/dartsync/internal/leg"
	"github.com/Billy-Davies-2/dartsync/internal/logger"
	"github.com/Billy-Davies-2/dartsync/internal/medley"
	"github.com/Billy-Davies-2/dartsync/internal/models"
	"github.com/Billy-Davies-2/dartsync/internal/presence"
)

// MedleyView is the match-level part of State.
type MedleyView struct {
	Phase      medley.Phase     `json:"phase"`
	Leg        int              `json:"leg"`
	Legs       int              `json:"legs"`
	Planned    models.Variant   `json:"planned"`
	Wins       [2]int           `json:"wins"`
	LegWinners []int            `json:"legWinners"`
	CorkWinner int              `json:"corkWinner"`
	Chooser    int              `json:"chooser"`
	Eligible   []models.Variant `json:"eligible,omitempty"`
	Winner     int              `json:"winner"`
}

// State is an immutable view of the session, published after every event.
type State struct {
	Seq     uint64             `json:"seq"`
	MatchID string             `json:"matchId"`
	Local   int                `json:"local"`
	Players [2]models.Player   `json:"players"`
	Status  models.MatchStatus `json:"status"`
	Medley  MedleyView         `json:"medley"`
	// Leg is the leg in play, or the leg that just finished.
	Leg  *leg.Snapshot  `json:"leg,omitempty"`
	Peer presence.State `json:"peer"`
	// Countdown is the number of seconds left before abandonment while the
	// peer is missing.
	Countdown int `json:"countdown,omitempty"`
}

func (s *Session) publishState() {
	winner, _ := s.match.Winner()
	st := &State{
		MatchID: s.cfg.Match.ID,
		Local:   s.local,
		Players: s.cfg.Match.Players,
		Status:  s.status,
		Medley: MedleyView{
			Phase:      s.match.Phase(),
			Leg:        s.match.LegIndex(),
			Legs:       s.match.Legs(),
			Planned:    s.match.Planned(),
			Wins:       s.match.Wins(),
			LegWinners: s.match.LegWinners(),
			CorkWinner: s.match.CorkWinner(),
			Chooser:    s.match.Chooser(),
			Eligible:   s.match.Eligible(),
			Winner:     winner,
		},
		Peer: s.peer.State(),
	}
	if s.peer.State() == presence.Missing {
		st.Countdown = int(s.peer.Remaining(s.cfg.Now()).Seconds())
	}
	l := s.leg
	if l == nil {
		l = s.lastLeg
	}
	if l != nil {
		snap := l.Snapshot()
		st.Leg = &snap
	}

	if prev := s.state.Load(); prev != nil {
		st.Seq = prev.Seq + 1
	}
	s.state.Store(st)
	s.observers.publish(st)
}

// Snapshot returns the latest published state. It is safe to call from any
// goroutine.
func (s *Session) Snapshot() State {
	return *s.state.Load()
}

// Healthy reports whether the match is live and the peer is reachable.
func (s *Session) Healthy() bool {
	st := s.state.Load()
	return st != nil && !st.Status.Terminal() && st.Peer != presence.Missing
}

// Subscribe returns a channel receiving published states. A full channel
// skips states; Snapshot always has the latest.
func (s *Session) Subscribe() chan *State {
	return s.observers.add()
}

func (s *Session) Unsubscribe(ch chan *State) {
	s.observers.remove(ch)
}

type observers struct {
	mu    sync.RWMutex
	chans []chan *State
}

func (o *observers) add() chan *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan *State, 16)
	o.chans = append(o.chans, ch)
	return ch
}

func (o *observers) remove(ch chan *State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.chans {
		if c == ch {
			o.chans = append(o.chans[:i], o.chans[i+1:]...)
			close(ch)
			return
		}
	}
}

func (o *observers) publish(st *State) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ch := range o.chans {
		select {
		case ch <- st:
		default:
			logger.Debug("Session observer is behind, skipping state", "seq", st.Seq)
		}
	}
}

func (o *observers) closeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.chans {
		close(ch)
	}
	o.chans = nil
}
