package realtime

import "time"

// Channel naming is scoped per ticket so no cross-ticket interference is
// possible; the desk-wide feed carries ticket lifecycle events only.
const (
	ticketChannelPrefix = "ticket-"
	typingChannelPrefix = "typing-"
	ticketsChannel      = "tickets"
)

// MessageEvent announces a newly inserted message on a ticket's channel.
// Subscribers re-fetch the conversation rather than patching from the
// event, so the payload stays small.
type MessageEvent struct {
	TicketID  string    `json:"ticket_id"`
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketEvent announces ticket lifecycle changes on the desk-wide feed,
// used by dashboard clients to refresh their lists and unread counts.
type TicketEvent struct {
	Type       string `json:"type"` // "created" or "updated"
	TicketID   string `json:"ticket_id"`
	CustomerID string `json:"customer_id"`
	Subject    string `json:"subject,omitempty"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
}
