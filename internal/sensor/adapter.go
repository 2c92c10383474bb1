package sensor

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// Feed is a source of raw readings. Run blocks until ctx is done or the feed
// gives up, calling emit for each reading and status on every connectivity
// change.
type Feed interface {
	Run(ctx context.Context, emit func(Reading), status func(Status)) error
}

// Adapter normalizes readings from a feed and fans them out. It keeps the
// last input and drops a reading whose key repeats the previous one, which
// is what a board does when it re-sends after a reconnect.
type Adapter struct {
	feed Feed

	mu      sync.RWMutex
	status  Status
	last    Input
	hasLast bool
	subs    []chan Input
	done    chan struct{}
}

// NewAdapter wraps feed. Call Start to begin reading.
func NewAdapter(feed Feed) *Adapter {
	return &Adapter{
		feed:   feed,
		status: StatusDisconnected,
		done:   make(chan struct{}),
	}
}

// Start runs the feed in the background until ctx is canceled. Subscriber
// channels are closed when the feed stops.
func (a *Adapter) Start(ctx context.Context) {
	go func() {
		defer close(a.done)
		if err := a.feed.Run(ctx, a.handle, a.setStatus); err != nil && ctx.Err() == nil {
			logger.Error("Board feed stopped", "error", err)
		}
		a.setStatus(StatusDisconnected)

		a.mu.Lock()
		for _, ch := range a.subs {
			close(ch)
		}
		a.subs = nil
		a.mu.Unlock()
	}()
}

// Done is closed once the feed has stopped.
func (a *Adapter) Done() <-chan struct{} { return a.done }

func (a *Adapter) Subscribe() chan Input {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan Input, 64)
	a.subs = append(a.subs, ch)
	return ch
}

// Last returns the most recent accepted input.
func (a *Adapter) Last() (Input, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.hasLast
}

func (a *Adapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Adapter) setStatus(s Status) {
	a.mu.Lock()
	changed := a.status != s
	a.status = s
	a.mu.Unlock()
	if changed {
		logger.Info("Board status changed", "status", s)
	}
}

func (a *Adapter) handle(r Reading) {
	in := Normalize(r)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasLast && a.last.Key == in.Key {
		logger.Debug("Dropping repeated board reading", "key", in.Key)
		return
	}
	a.last, a.hasLast = in, true

	for _, ch := range a.subs {
		select {
		case ch <- in:
		default:
			logger.Warn("Board subscriber is full, dropping input", "key", in.Key)
		}
	}
}
