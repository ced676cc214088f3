package typing

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestBroadcaster(t *testing.T) (*Broadcaster, *recorder) {
	t.Helper()
	rec := &recorder{}
	b := NewBroadcaster("self", "Agent Dana", rec.publish)
	b.idleDelay = 30 * time.Millisecond
	b.watchdogDelay = 50 * time.Millisecond
	t.Cleanup(b.Close)
	return b, rec
}

func TestIdleTimerEmitsSingleStop(t *testing.T) {
	b, rec := newTestBroadcaster(t)

	b.Typing()
	time.Sleep(100 * time.Millisecond)

	evs := rec.snapshot()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if !evs[0].IsTyping || evs[1].IsTyping {
		t.Fatalf("want [true false], got %+v", evs)
	}
	if evs[0].UserName != "Agent Dana" {
		t.Fatalf("sender name = %q", evs[0].UserName)
	}
}

func TestStopTypingSuppressesIdleTimer(t *testing.T) {
	b, rec := newTestBroadcaster(t)

	b.Typing()
	b.StopTyping()
	time.Sleep(100 * time.Millisecond)

	evs := rec.snapshot()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want exactly [true false], no duplicate stop: %+v", len(evs), evs)
	}
}

func TestContinuedTypingRearmsTimer(t *testing.T) {
	b, rec := newTestBroadcaster(t)

	b.Typing()
	time.Sleep(15 * time.Millisecond)
	b.Typing()
	time.Sleep(100 * time.Millisecond)

	var stops int
	for _, ev := range rec.snapshot() {
		if !ev.IsTyping {
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("got %d stop broadcasts, want 1", stops)
	}
}

func TestInboundWatchdogExpiry(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: true})
	if !b.AnyoneTyping() {
		t.Fatal("participant should be tracked after is_typing=true")
	}
	time.Sleep(100 * time.Millisecond)
	if b.AnyoneTyping() {
		t.Fatal("watchdog should have removed the participant")
	}
}

func TestInboundStopCancelsWatchdog(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: true})
	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: false})
	if b.AnyoneTyping() {
		t.Fatal("is_typing=false should remove immediately")
	}

	// Re-add a different participant and make sure the cancelled watchdog
	// for u1 does not fire against them at the original mark.
	b.HandleEvent(Event{UserID: "u2", UserName: "Sam", IsTyping: true})
	time.Sleep(20 * time.Millisecond)
	if got := b.TypingUsers(); len(got) != 1 || got[0] != "Sam" {
		t.Fatalf("typing users = %v, want [Sam]", got)
	}
}

func TestMultipleParticipantsTrackedIndependently(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: true})
	b.HandleEvent(Event{UserID: "u2", UserName: "Sam", IsTyping: true})
	if got := b.TypingUsers(); len(got) != 2 {
		t.Fatalf("typing users = %v, want two entries", got)
	}
	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: false})
	if got := b.TypingUsers(); len(got) != 1 || got[0] != "Sam" {
		t.Fatalf("typing users = %v, want [Sam]", got)
	}
}

func TestSelfEchoSuppressed(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	b.HandleEvent(Event{UserID: "self", UserName: "Agent Dana", IsTyping: true})
	if b.AnyoneTyping() {
		t.Fatal("own events must not land in the typing set")
	}
}

func TestFiredIdleTimerSupersededByNewerHandle(t *testing.T) {
	b, rec := newTestBroadcaster(t)

	b.Typing()
	// Hold the lock past the delay so the idle callback fires but blocks,
	// then hand the slot to a newer timer before letting it in. The stale
	// callback must neither broadcast a stop nor clear the newer handle.
	b.mu.Lock()
	time.Sleep(3 * b.idleDelay)
	newer := time.NewTimer(time.Hour)
	defer newer.Stop()
	b.idle = newer
	b.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	evs := rec.snapshot()
	if len(evs) != 1 || !evs[0].IsTyping {
		t.Fatalf("got %+v, want only the initial is_typing=true", evs)
	}
	b.mu.Lock()
	current := b.idle
	b.mu.Unlock()
	if current != newer {
		t.Fatal("stale idle callback cleared a newer timer handle")
	}
}

func TestFiredWatchdogSupersededByRefresh(t *testing.T) {
	b, _ := newTestBroadcaster(t)

	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: true})
	// Same interleaving on the inbound side: the watchdog fires and blocks
	// on the lock while a refresh re-arms the participant's slot.
	b.mu.Lock()
	time.Sleep(3 * b.watchdogDelay)
	newer := time.NewTimer(time.Hour)
	defer newer.Stop()
	b.watchdogs["u1"] = newer
	b.typing["u1"] = "Pat"
	b.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	if !b.AnyoneTyping() {
		t.Fatal("participant refreshed at the watchdog boundary was dropped by the stale callback")
	}
	b.mu.Lock()
	current := b.watchdogs["u1"]
	b.mu.Unlock()
	if current != newer {
		t.Fatal("stale watchdog callback removed a newer timer handle")
	}
}

func TestCloseCancelsEverything(t *testing.T) {
	b, rec := newTestBroadcaster(t)

	b.Typing()
	b.HandleEvent(Event{UserID: "u1", UserName: "Pat", IsTyping: true})
	b.Close()

	before := len(rec.snapshot())
	time.Sleep(100 * time.Millisecond)
	if after := len(rec.snapshot()); after != before {
		t.Fatalf("timers fired after Close: %d -> %d events", before, after)
	}
	if b.AnyoneTyping() {
		t.Fatal("typing set should be cleared on Close")
	}
	b.Typing() // must be a no-op
	if len(rec.snapshot()) != before {
		t.Fatal("broadcasts after Close must be dropped")
	}
}
