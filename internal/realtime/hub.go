package realtime

import (
	"encoding/json"
	"log"
)

// Hub fans the desk-wide ticket feed out to connected dashboard clients.
// The run loop is the only goroutine that touches the client map.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client

	bus        *Bus
	cancelFeed func()
}

func NewHub(bus *Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		bus:        bus,
	}
}

func (h *Hub) Run() {
	cancel, err := h.bus.SubscribeTickets(func(ev TicketEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		h.broadcast <- data
	})
	if err != nil {
		log.Printf("hub: ticket feed subscribe failed: %v", err)
	}
	h.cancelFeed = cancel

	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer; drop them rather than block the feed.
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}
