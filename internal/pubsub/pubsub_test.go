package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recv(t *testing.T, ch chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for envelope")
	}
	return Envelope{}
}

func expectNone(t *testing.T, ch chan Envelope) {
	t.Helper()
	select {
	case env := <-ch:
		t.Fatalf("unexpected envelope %+v", env)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToPeer(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	b := h.Join("m1")
	defer a.Close()
	defer b.Close()

	chA := a.Subscribe()
	chB := b.Subscribe()

	err := a.Publish(context.Background(), Envelope{Kind: KindDartThrow, PlayerID: "p1", Key: "k1", Segment: "T20"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := recv(t, chB)
	if got.Sender != a.ID() {
		t.Errorf("Sender = %q, want %q", got.Sender, a.ID())
	}
	if got.MatchID != "m1" {
		t.Errorf("MatchID = %q", got.MatchID)
	}
	if got.SentAt.IsZero() {
		t.Error("SentAt should be stamped")
	}
	expectNone(t, chA)
}

func TestHubScopesByMatch(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	other := h.Join("m2")
	defer a.Close()
	defer other.Close()

	ch := other.Subscribe()
	if err := a.Publish(context.Background(), Envelope{Kind: KindTurnEnd, Key: "e1"}); err != nil {
		t.Fatal(err)
	}
	expectNone(t, ch)
}

// inject delivers env to every endpoint of its match as if it came off the
// network, including the endpoint named as its sender.
func inject(h *Hub, env Envelope) {
	h.mu.RLock()
	eps := append([]*Endpoint(nil), h.endpoints[env.MatchID]...)
	h.mu.RUnlock()
	for _, ep := range eps {
		ep.deliver(env)
	}
}

func history(h *Hub, matchID string, count int) []Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recent(matchID, count)
}

func TestHubSuppressesOwnEcho(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	b := h.Join("m1")
	defer a.Close()
	defer b.Close()

	chA := a.Subscribe()
	chB := b.Subscribe()

	env := Envelope{Kind: KindDartThrow, MatchID: "m1", Sender: a.ID(), Key: "k1"}
	inject(h, env)
	inject(h, env)

	recv(t, chB)
	recv(t, chB)
	expectNone(t, chA)
}

func TestHubHistory(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	defer a.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a.Publish(ctx, Envelope{Kind: KindDartThrow, Key: string(rune('a' + i))})
	}
	a.Publish(ctx, Envelope{Kind: KindHeartbeat})

	all := history(h, "m1", 0)
	if len(all) != 5 {
		t.Fatalf("history len = %d, want 5 (heartbeats excluded)", len(all))
	}
	last := history(h, "m1", 2)
	if len(last) != 2 || last[0].Key != "d" || last[1].Key != "e" {
		t.Errorf("history(2) = %+v", last)
	}
	if len(history(h, "none", 10)) != 0 {
		t.Error("unknown match should have no history")
	}
}

func TestHubHistoryBounded(t *testing.T) {
	h := NewHub()
	h.maxMessages = 3
	a := h.Join("m1")
	defer a.Close()

	for i := 0; i < 10; i++ {
		a.Publish(context.Background(), Envelope{Kind: KindDartThrow})
	}
	if n := len(history(h, "m1", 0)); n != 3 {
		t.Errorf("history len = %d, want 3", n)
	}
}

func TestHubLateJoinerReceivesHistory(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	defer a.Close()

	ctx := context.Background()
	a.Publish(ctx, Envelope{Kind: KindDartThrow, PlayerID: "p1", Key: "k1", Segment: "T20"})
	a.Publish(ctx, Envelope{Kind: KindHeartbeat, PlayerID: "p1"})
	a.Publish(ctx, Envelope{Kind: KindTurnEnd, PlayerID: "p1", Key: "k2"})

	late := h.Join("m1")
	defer late.Close()
	a.Publish(ctx, Envelope{Kind: KindDartThrow, PlayerID: "p1", Key: "k3", Segment: "S5"})

	ch := late.Subscribe()
	for _, want := range []string{"k1", "k2", "k3"} {
		if got := recv(t, ch); got.Key != want {
			t.Errorf("Key = %q, want %q", got.Key, want)
		}
	}
	expectNone(t, ch)
}

func TestBacklogHeldUntilSubscribe(t *testing.T) {
	var s subscribers
	s.publish(Envelope{Kind: KindDartThrow, Key: "a"})
	s.publish(Envelope{Kind: KindHeartbeat})
	s.publish(Envelope{Kind: KindTurnEnd, Key: "b"})

	ch := s.add()
	if got := recv(t, ch); got.Key != "a" {
		t.Errorf("first = %+v", got)
	}
	if got := recv(t, ch); got.Key != "b" {
		t.Errorf("second = %+v", got)
	}
	expectNone(t, ch)

	second := s.add()
	expectNone(t, second)

	s.closeAll()
	s.publish(Envelope{Kind: KindDartThrow, Key: "late"})
	if len(s.backlog) != 0 {
		t.Errorf("backlog after close = %d", len(s.backlog))
	}
}

func TestBacklogBounded(t *testing.T) {
	var s subscribers
	for i := 0; i < maxBacklog+10; i++ {
		s.publish(Envelope{Kind: KindDartThrow})
	}
	if len(s.backlog) != maxBacklog {
		t.Errorf("backlog = %d, want %d", len(s.backlog), maxBacklog)
	}
}

func TestEndpointCloseStopsPublishing(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	ch := a.Subscribe()
	a.Close()
	a.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	err := a.Publish(context.Background(), Envelope{Kind: KindDartThrow})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close = %v, want ErrNotConnected", err)
	}
}

func TestPublishHonorsContext(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Publish(ctx, Envelope{Kind: KindDartThrow}); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish() = %v, want context.Canceled", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub()
	a := h.Join("m1")
	defer a.Close()

	ch1 := a.Subscribe()
	ch2 := a.Subscribe()
	if a.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount() = %d", a.SubscriberCount())
	}
	a.Unsubscribe(ch1)
	if a.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d after unsubscribe", a.SubscriberCount())
	}
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel should be closed")
	}
	a.Unsubscribe(ch2)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	var s subscribers
	s.buffer = 1
	ch := s.add()

	done := make(chan struct{})
	go func() {
		s.publish(Envelope{Kind: KindDartThrow})
		s.publish(Envelope{Kind: KindDartThrow})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want bool
	}{
		{"peer", Envelope{Sender: "b", MatchID: "m"}, true},
		{"self", Envelope{Sender: "a", MatchID: "m"}, false},
		{"foreign match", Envelope{Sender: "b", MatchID: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := accept("a", "m", tt.env); got != tt.want {
				t.Errorf("accept() = %v, want %v", got, tt.want)
			}
		})
	}
}
