package realtime

import (
	"context"
	"log"

	"supportdesk/internal/ticket"
)

// Notifier adapts the bus to the ticket handler's publisher contract.
// Event delivery is fire-and-forget; a publish failure is logged, never
// surfaced to the request that caused it.
type Notifier struct {
	bus *Bus
}

func NewNotifier(bus *Bus) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) TicketCreated(ctx context.Context, ticketID, customerID, subject string, priority ticket.Priority) {
	err := n.bus.PublishTicketEvent(ctx, TicketEvent{
		Type:       "created",
		TicketID:   ticketID,
		CustomerID: customerID,
		Subject:    subject,
		Status:     string(ticket.StatusOpen),
		Priority:   string(priority),
	})
	if err != nil {
		log.Printf("realtime: publish ticket created: %v", err)
	}
}

func (n *Notifier) TicketUpdated(ctx context.Context, ticketID string, status ticket.Status) {
	err := n.bus.PublishTicketEvent(ctx, TicketEvent{
		Type:     "updated",
		TicketID: ticketID,
		Status:   string(status),
	})
	if err != nil {
		log.Printf("realtime: publish ticket updated: %v", err)
	}
}

func (n *Notifier) MessageCreated(ctx context.Context, m *ticket.Message) {
	err := n.bus.PublishMessage(ctx, MessageEvent{
		TicketID:  m.TicketID,
		MessageID: m.ID,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		log.Printf("realtime: publish message created: %v", err)
	}
}
