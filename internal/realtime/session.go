package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"supportdesk/internal/conversation"
	"supportdesk/internal/ratelimit"
	"supportdesk/internal/ticket"
	"supportdesk/internal/typing"
)

// storeBinding adapts the repository to the controller's store contract,
// bound to one authenticated sender. It also emits the push events the
// rest of the system reconciles from, the way the hosted backend would.
type storeBinding struct {
	repo *ticket.Repository
	bus  *Bus
	user string
}

func (s storeBinding) TicketDetails(ctx context.Context, ticketID string) (*ticket.Details, error) {
	return s.repo.Details(ctx, ticketID, s.user)
}

func (s storeBinding) SendMessage(ctx context.Context, ticketID, content string, atts []ticket.AttachmentInput) (*ticket.Message, error) {
	content = ticket.SanitizeContent(content)
	if content != "" {
		if err := ticket.ValidateContent(content); err != nil {
			return nil, err
		}
	}
	for _, a := range atts {
		if !ticket.FileTypeSafe(a.FileName) {
			return nil, errors.New("attachment type not allowed")
		}
	}
	m, err := s.repo.SaveMessage(ctx, ticketID, s.user, content, atts)
	if err != nil {
		return nil, err
	}
	if err := s.bus.PublishMessage(ctx, MessageEvent{
		TicketID:  ticketID,
		MessageID: m.ID,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	}); err != nil {
		log.Printf("realtime: publish message event: %v", err)
	}
	return m, nil
}

func (s storeBinding) UpdateStatus(ctx context.Context, ticketID string, status ticket.Status) error {
	if err := s.repo.UpdateStatus(ctx, ticketID, status); err != nil {
		return err
	}
	if err := s.bus.PublishTicketEvent(ctx, TicketEvent{
		Type:     "updated",
		TicketID: ticketID,
		Status:   string(status),
	}); err != nil {
		log.Printf("realtime: publish ticket event: %v", err)
	}
	return nil
}

func (s storeBinding) MarkRead(ctx context.Context, ticketID string) error {
	return s.repo.MarkRead(ctx, ticketID, s.user)
}

// ---------------------------------------------
// ⚡ Wire frames
// ---------------------------------------------

type inboundFrame struct {
	Type        string                   `json:"type"`
	Content     string                   `json:"content,omitempty"`
	Attachments []ticket.AttachmentInput `json:"attachments,omitempty"`
	Status      ticket.Status            `json:"status,omitempty"`
	Confirmed   bool                     `json:"confirmed,omitempty"`
}

type snapshotFrame struct {
	Type    string          `json:"type"` // "snapshot"
	Ticket  *ticket.Details `json:"ticket"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
}

type typingFrame struct {
	Type  string   `json:"type"` // "typing"
	Users []string `json:"users"`
}

type errorFrame struct {
	Type         string `json:"type"` // "error"
	Code         string `json:"code"`
	Error        string `json:"error"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// Session drives one open conversation over a websocket: inbound frames
// are user intents, outbound frames are snapshot and presence updates.
type Session struct {
	client    *Client
	ctrl      *conversation.Controller
	presence  *typing.Broadcaster
	stopFeeds func()
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewSession wires a controller and a typing broadcaster for the given
// user and ticket. Call Run to start pumping; teardown happens when the
// connection drops.
func NewSession(client *Client, bus *Bus, repo *ticket.Repository, limiter *ratelimit.Limiter, profile *ticket.Profile, ticketID string) *Session {
	s := &Session{client: client}
	client.onMessage = s.handle
	client.onClose = s.Close

	store := storeBinding{repo: repo, bus: bus, user: profile.ID}
	s.ctrl = conversation.New(store, bus, limiter, profile)
	s.ctrl.SetOnChange(s.pushSnapshot)

	s.presence = typing.NewBroadcaster(profile.ID, profile.FullName, func(ev typing.Event) {
		if err := bus.PublishTyping(context.Background(), ticketID, ev); err != nil {
			log.Printf("realtime: publish typing: %v", err)
		}
	})

	cancelTyping, err := bus.SubscribeTyping(ticketID, func(ev typing.Event) {
		s.presence.HandleEvent(ev)
		s.pushTyping()
	})
	if err != nil {
		log.Printf("realtime: typing subscribe failed: %v", err)
		cancelTyping = func() {}
	}
	s.stopFeeds = cancelTyping
	return s
}

// Run loads the conversation and blocks pumping frames until the peer
// disconnects.
func (s *Session) Run(ctx context.Context, ticketID string) {
	go s.client.WritePump()
	if err := s.ctrl.Load(ctx, ticketID); err != nil {
		s.pushError(err)
	}
	s.client.ReadPump()
}

func (s *Session) handle(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.send(errorFrame{Type: "error", Code: "bad_frame", Error: "malformed frame"})
		return
	}
	ctx := context.Background()

	switch frame.Type {
	case "message":
		// Sending ends the typing indicator before the send resolves.
		s.presence.StopTyping()
		if err := s.ctrl.SendMessage(ctx, frame.Content, frame.Attachments); err != nil {
			s.pushError(err)
		}

	case "typing":
		s.presence.Typing()

	case "stop_typing":
		s.presence.StopTyping()

	case "status":
		if !frame.Status.Valid() {
			s.send(errorFrame{Type: "error", Code: "invalid_status", Error: "unknown status"})
			return
		}
		// Resolving or closing needs an explicit user confirmation; the
		// controller itself mutates unconditionally once invoked.
		if (frame.Status == ticket.StatusResolved || frame.Status == ticket.StatusClosed) && !frame.Confirmed {
			s.send(errorFrame{Type: "error", Code: "confirm_required", Error: "confirmation required to " + string(frame.Status)})
			return
		}
		if err := s.ctrl.UpdateStatus(ctx, frame.Status); err != nil {
			s.pushError(err)
		}

	case "refetch":
		if err := s.ctrl.Refetch(ctx); err != nil {
			s.pushError(err)
		}

	default:
		s.send(errorFrame{Type: "error", Code: "bad_frame", Error: "unknown frame type " + frame.Type})
	}
}

func (s *Session) pushSnapshot() {
	frame := snapshotFrame{Type: "snapshot", Ticket: s.ctrl.Snapshot(), Loading: s.ctrl.Loading()}
	if err := s.ctrl.Err(); err != nil {
		frame.Error = err.Error()
	}
	s.send(frame)
}

func (s *Session) pushTyping() {
	s.send(typingFrame{Type: "typing", Users: s.presence.TypingUsers()})
}

func (s *Session) pushError(err error) {
	frame := errorFrame{Type: "error", Error: err.Error()}
	var rl *conversation.RateLimitedError
	var sf *conversation.SendFailedError
	var ff *conversation.FetchFailedError
	var su *conversation.StatusUpdateFailedError
	switch {
	case errors.As(err, &rl):
		frame.Code = "rate_limited"
		frame.RetryAfterMs = rl.RetryAfter.Milliseconds()
	case errors.Is(err, conversation.ErrEmptyMessage):
		frame.Code = "validation"
	case errors.As(err, &sf):
		frame.Code = "send_failed"
	case errors.As(err, &su):
		frame.Code = "status_failed"
	case errors.As(err, &ff):
		frame.Code = "fetch_failed"
	default:
		// Unknown failures are normalized, never propagated raw.
		frame.Code = "internal"
		frame.Error = "something went wrong"
	}
	s.send(frame)
}

func (s *Session) send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	// A late reconciliation callback must not write to a torn-down
	// session, so the closed check and the channel send share the lock.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.client.Send <- data:
	default:
		// Slow consumer; the pump will notice the dead connection.
	}
}

// Close tears the session down: push subscriptions cancelled, every
// pending typing timer stopped, nothing fires against the gone view.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.ctrl.Close()
		s.presence.Close()
		s.stopFeeds()
		close(s.client.Send)
	})
}
