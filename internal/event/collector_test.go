package event

import (
	"testing"
	"time"
)

func TestEmitStampsPerSessionSequence(t *testing.T) {
	c := NewCollector(nil, nil)

	a1 := c.Emit("sess-a", "player_moved", nil)
	a2 := c.Emit("sess-a", "ai_moved", nil)
	b1 := c.Emit("sess-b", "player_moved", nil)

	if a1.Seq != 1 || a2.Seq != 2 {
		t.Fatalf("sequence not monotonic per session: %d %d", a1.Seq, a2.Seq)
	}
	if b1.Seq != 1 {
		t.Fatalf("sessions must not share sequences, got %d", b1.Seq)
	}
	if a1.At == 0 || a1.Type != "player_moved" {
		t.Fatalf("event not stamped: %+v", a1)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	c := NewCollector(NewKeyedSequencer(), nil)
	ch, cancel := c.Subscribe(4)
	defer cancel()

	sent := c.Emit("sess", "challenge_started", map[string]any{"challenge_id": "nim"})

	select {
	case got := <-ch:
		if got.Seq != sent.Seq || got.Type != sent.Type {
			t.Fatalf("subscriber saw %+v, want %+v", got, sent)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber did not receive the event")
	}
}

func TestSlowSubscriberIsSkipped(t *testing.T) {
	c := NewCollector(nil, nil)
	ch, cancel := c.Subscribe(1)
	defer cancel()

	c.Emit("sess", "first", nil)
	// Buffer full; this emit must not block.
	done := make(chan struct{})
	go func() {
		c.Emit("sess", "second", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit blocked on a slow subscriber")
	}

	got := <-ch
	if got.Type != "first" {
		t.Fatalf("expected the buffered event, got %+v", got)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	c := NewCollector(nil, nil)
	ch, cancel := c.Subscribe(1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	// Double cancel is safe.
	cancel()

	// Emitting after cancel must not panic or deliver.
	c.Emit("sess", "late", nil)
}

func TestResetSession(t *testing.T) {
	c := NewCollector(nil, nil)
	c.Emit("sess", "a", nil)
	c.ResetSession("sess")
	if ev := c.Emit("sess", "b", nil); ev.Seq != 1 {
		t.Fatalf("sequence should restart after reset, got %d", ev.Seq)
	}
}
