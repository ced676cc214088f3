// Package typing signals "user is typing" presence over the push channel
// without flooding it on every keystroke.
package typing

import (
	"sort"
	"sync"
	"time"
)

const (
	// Idle delay before a local "stopped typing" broadcast goes out.
	idleDelay = 2 * time.Second
	// Watchdog for remote participants whose stop signal got lost.
	watchdogDelay = 3 * time.Second
)

// Event is the wire payload broadcast on the typing channel.
type Event struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// Broadcaster debounces outbound typing signals for one participant and
// tracks which remote participants are currently typing.
type Broadcaster struct {
	mu       sync.Mutex
	selfID   string
	selfName string
	publish  func(Event)

	idle      *time.Timer
	watchdogs map[string]*time.Timer
	typing    map[string]string // participant id -> display name
	closed    bool

	idleDelay     time.Duration
	watchdogDelay time.Duration
}

func NewBroadcaster(selfID, selfName string, publish func(Event)) *Broadcaster {
	if selfName == "" {
		selfName = "Someone"
	}
	return &Broadcaster{
		selfID:        selfID,
		selfName:      selfName,
		publish:       publish,
		watchdogs:     make(map[string]*time.Timer),
		typing:        make(map[string]string),
		idleDelay:     idleDelay,
		watchdogDelay: watchdogDelay,
	}
}

func (b *Broadcaster) send(isTyping bool) {
	b.publish(Event{UserID: b.selfID, UserName: b.selfName, IsTyping: isTyping})
}

// Typing broadcasts is_typing=true and re-arms the idle timer; if no
// further input arrives before it fires, is_typing=false goes out.
func (b *Broadcaster) Typing() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.send(true)
	if b.idle != nil {
		b.idle.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(b.idleDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// A Stop that loses the race against an already-fired timer cannot
		// cancel it, so a callback that is no longer the current timer
		// must do nothing.
		if b.closed || b.idle != t {
			return
		}
		b.idle = nil
		b.send(false)
	})
	b.idle = t
}

// StopTyping cancels the pending idle timer and broadcasts is_typing=false
// immediately. Called right before a message send completes so the
// indicator does not linger.
func (b *Broadcaster) StopTyping() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.idle != nil {
		b.idle.Stop()
		b.idle = nil
	}
	b.send(false)
}

// HandleEvent processes an inbound typing event. Events echoing our own
// id are ignored. A true event (re)arms a per-participant watchdog that
// removes them if no refresh arrives; a false event removes immediately.
func (b *Broadcaster) HandleEvent(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || ev.UserID == b.selfID {
		return
	}

	if t, ok := b.watchdogs[ev.UserID]; ok {
		t.Stop()
		delete(b.watchdogs, ev.UserID)
	}

	if !ev.IsTyping {
		delete(b.typing, ev.UserID)
		return
	}

	b.typing[ev.UserID] = ev.UserName
	id := ev.UserID
	var t *time.Timer
	t = time.AfterFunc(b.watchdogDelay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// A refresh that re-armed the watchdog while this callback waited
		// on the lock owns the slot now; dropping the participant here
		// would undo it.
		if b.watchdogs[id] != t {
			return
		}
		delete(b.typing, id)
		delete(b.watchdogs, id)
	})
	b.watchdogs[id] = t
}

// TypingUsers returns the display names of everyone currently typing,
// in stable order for display composition.
func (b *Broadcaster) TypingUsers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.typing))
	for _, name := range b.typing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Broadcaster) AnyoneTyping() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.typing) > 0
}

// Close cancels every outstanding timer. After Close the broadcaster
// drops all calls; nothing may fire against a torn-down conversation.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.idle != nil {
		b.idle.Stop()
		b.idle = nil
	}
	for id, t := range b.watchdogs {
		t.Stop()
		delete(b.watchdogs, id)
	}
	b.typing = make(map[string]string)
}
