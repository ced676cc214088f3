package realtime

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"supportdesk/internal/middleware"
	"supportdesk/internal/ratelimit"
	"supportdesk/internal/ticket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub      *Hub
	bus      *Bus
	repo     *ticket.Repository
	limiters *ratelimit.Registry
}

func NewHandler(hub *Hub, bus *Bus, repo *ticket.Repository, limiters *ratelimit.Registry) *Handler {
	return &Handler{hub: hub, bus: bus, repo: repo, limiters: limiters}
}

// ServeDashboard streams the desk-wide ticket feed to admin clients.
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !caller.IsAdmin() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	var client *Client
	client = NewClient(conn, nil, func() {
		h.hub.Unregister <- client
	})
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// ServeTicket opens a conversation session for one ticket. Customers may
// only open their own tickets; admins may open any.
func (h *Handler) ServeTicket(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ticketID := chi.URLParam(r, "id")
	if ticketID == "" {
		http.Error(w, "missing ticket id", http.StatusBadRequest)
		return
	}

	if !caller.IsAdmin() {
		details, err := h.repo.Details(r.Context(), ticketID, caller.ID)
		if err != nil {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return
		}
		if details.CustomerID != caller.ID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := NewClient(conn, nil, nil)
	profile := &ticket.Profile{
		ID:       caller.ID,
		Email:    caller.Email,
		FullName: caller.FullName,
		Role:     ticket.Role(caller.Role),
	}
	session := NewSession(client, h.bus, h.repo, h.limiters.Get(caller.ID), profile, ticketID)
	// Run blocks until the peer disconnects; teardown is wired to the
	// read pump's close hook inside NewSession.
	session.Run(r.Context(), ticketID)
}
