// Package presence watches the remote peer's liveness signals and runs the
// disconnect countdown. The monitor takes explicit timestamps so it can be
// driven by a ticker in production and by hand in tests.
package presence

import "time"

const (
	DefaultTimeout = 5 * time.Second
	DefaultGrace   = 60 * time.Second
)

// State of the remote peer as seen from this device.
type State string

const (
	// Waiting means no signal has been received from the peer yet.
	Waiting   State = "waiting"
	Online    State = "online"
	Missing   State = "missing"
	Abandoned State = "abandoned"
)

// Transition is reported when the state changes.
type Transition int

const (
	NoChange Transition = iota
	Joined
	Lost
	Recovered
	Expired
)

func (t Transition) String() string {
	switch t {
	case Joined:
		return "joined"
	case Lost:
		return "lost"
	case Recovered:
		return "recovered"
	case Expired:
		return "expired"
	}
	return "none"
}

// Monitor is a pure liveness state machine.
type Monitor struct {
	timeout  time.Duration
	grace    time.Duration
	state    State
	lastSeen time.Time
	deadline time.Time
}

// NewMonitor returns a monitor that declares the peer missing after timeout
// without a signal and abandons after a further grace period.
func NewMonitor(timeout, grace time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Monitor{timeout: timeout, grace: grace, state: Waiting}
}

func (m *Monitor) State() State { return m.state }

// Seen records a liveness signal from the peer.
func (m *Monitor) Seen(now time.Time) Transition {
	m.lastSeen = now
	switch m.state {
	case Waiting:
		m.state = Online
		return Joined
	case Missing:
		m.state = Online
		m.deadline = time.Time{}
		return Recovered
	}
	return NoChange
}

// Tick advances the clock.
func (m *Monitor) Tick(now time.Time) Transition {
	switch m.state {
	case Online:
		if now.Sub(m.lastSeen) > m.timeout {
			m.state = Missing
			m.deadline = now.Add(m.grace)
			return Lost
		}
	case Missing:
		if !now.Before(m.deadline) {
			m.state = Abandoned
			return Expired
		}
	}
	return NoChange
}

// Remaining is the time left on the disconnect countdown, or zero when no
// countdown is running.
func (m *Monitor) Remaining(now time.Time) time.Duration {
	if m.state != Missing {
		return 0
	}
	return max(m.deadline.Sub(now), 0)
}

// Abandon ends monitoring, for a voluntary leave or a peer's leave message.
func (m *Monitor) Abandon() {
	m.state = Abandoned
}
