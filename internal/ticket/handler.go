package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"supportdesk/internal/middleware"
	"supportdesk/internal/ratelimit"
)

const pageSize = 20

// EventPublisher is what the handler needs from the realtime layer.
// The interface keeps this package decoupled from it.
type EventPublisher interface {
	TicketCreated(ctx context.Context, ticketID, customerID, subject string, priority Priority)
	TicketUpdated(ctx context.Context, ticketID string, status Status)
	MessageCreated(ctx context.Context, m *Message)
}

type Handler struct {
	repo     *Repository
	events   EventPublisher
	limiters *ratelimit.Registry
}

func NewHandler(repo *Repository, events EventPublisher, limiters *ratelimit.Registry) *Handler {
	return &Handler{repo: repo, events: events, limiters: limiters}
}

type createRequest struct {
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subject := SanitizeContent(req.Subject)
	message := SanitizeContent(req.Message)
	if subject == "" || len(subject) > 200 {
		http.Error(w, "subject must be 1-200 characters", http.StatusBadRequest)
		return
	}
	if err := ValidateContent(message); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		http.Error(w, "unknown priority", http.StatusBadRequest)
		return
	}

	ticketID, err := h.repo.Create(r.Context(), caller.ID, subject, req.Priority, message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Fan out so admin dashboards pick the new ticket up immediately.
	h.events.TicketCreated(r.Context(), ticketID, caller.ID, subject, req.Priority)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"ticket_id": ticketID})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	filter := SearchFilter{Search: q.Get("search"), Limit: pageSize}
	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filter.Offset = page * pageSize
	}
	for _, s := range splitParam(q.Get("status")) {
		if st := Status(s); st.Valid() {
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	for _, p := range splitParam(q.Get("priority")) {
		if pr := Priority(p); pr.Valid() {
			filter.Priorities = append(filter.Priorities, pr)
		}
	}
	// Customers only ever see their own tickets.
	if !caller.IsAdmin() {
		filter.CustomerID = caller.ID
	}

	tickets, err := h.repo.Search(r.Context(), filter, caller.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tickets == nil {
		tickets = []Summary{}
	}
	json.NewEncoder(w).Encode(tickets)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	_, details, ok := h.authorizeTicket(w, r)
	if !ok {
		return
	}
	json.NewEncoder(w).Encode(details)
}

type sendRequest struct {
	Content     string            `json:"content"`
	Attachments []AttachmentInput `json:"attachments"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller, details, ok := h.authorizeTicket(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content := SanitizeContent(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		http.Error(w, "message requires content or an attachment", http.StatusBadRequest)
		return
	}
	if content != "" {
		if err := ValidateContent(content); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	for _, a := range req.Attachments {
		if !FileTypeSafe(a.FileName) {
			http.Error(w, "attachment type not allowed", http.StatusBadRequest)
			return
		}
	}

	// Authoritative send limit, mirroring the client-side gate.
	limiter := h.limiters.Get(caller.ID)
	if !limiter.CheckAndRecord() {
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", limiter.ResetTime().Seconds()))
		http.Error(w, "too many messages, slow down", http.StatusTooManyRequests)
		return
	}

	m, err := h.repo.SaveMessage(r.Context(), details.ID, caller.ID, content, req.Attachments)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.events.MessageCreated(r.Context(), m)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	_, details, ok := h.authorizeTicket(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), details.ID, req.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.events.TicketUpdated(r.Context(), details.ID, req.Status)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, details, ok := h.authorizeTicket(w, r)
	if !ok {
		return
	}
	// Best-effort: a failed read receipt is not the caller's problem.
	if err := h.repo.MarkRead(r.Context(), details.ID, caller.ID); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	customerID := ""
	if !caller.IsAdmin() {
		customerID = caller.ID
	}
	stats, err := h.repo.Stats(r.Context(), customerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(stats)
}

// authorizeTicket loads the ticket named in the URL and checks the caller
// may touch it: admins always, customers only for their own tickets.
func (h *Handler) authorizeTicket(w http.ResponseWriter, r *http.Request) (middleware.Identity, *Details, bool) {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return middleware.Identity{}, nil, false
	}
	ticketID := chi.URLParam(r, "id")
	details, err := h.repo.Details(r.Context(), ticketID, caller.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return middleware.Identity{}, nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return middleware.Identity{}, nil, false
	}
	if !caller.IsAdmin() && details.CustomerID != caller.ID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return middleware.Identity{}, nil, false
	}
	return caller, details, true
}

func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
