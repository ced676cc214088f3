// Package conversation owns the client-side view of one ticket's
// conversation: load, optimistic send with rollback, status changes, and
// reconciliation against server truth via silent refetch.
package conversation

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"supportdesk/internal/ratelimit"
	"supportdesk/internal/ticket"
)

// OptimisticPrefix marks locally synthesized placeholder identifiers.
// Server-issued ids never carry it, so a full snapshot replacement makes
// the placeholder simply cease to appear.
const OptimisticPrefix = "optimistic-"

// Store is the remote ticket store contract the controller talks to.
type Store interface {
	TicketDetails(ctx context.Context, ticketID string) (*ticket.Details, error)
	SendMessage(ctx context.Context, ticketID, content string, attachments []ticket.AttachmentInput) (*ticket.Message, error)
	UpdateStatus(ctx context.Context, ticketID string, status ticket.Status) error
	MarkRead(ctx context.Context, ticketID string) error
}

// Subscriber delivers new-message push events for a ticket. The returned
// cancel func tears the subscription down.
type Subscriber interface {
	SubscribeInserts(ticketID string, fn func()) (cancel func(), err error)
}

// Controller mediates all reads and writes for one open conversation.
// Optimistic changes apply synchronously; reconciliation always replaces
// the whole snapshot, fenced by a fetch sequence so a stale fetch that
// completes late never overwrites a newer one.
type Controller struct {
	store   Store
	sub     Subscriber
	limiter *ratelimit.Limiter
	profile *ticket.Profile

	mu          sync.Mutex
	ticketID    string
	snapshot    *ticket.Details
	loading     bool
	err         error
	lastRead    string
	fetchSeq    uint64
	appliedSeq  uint64
	unsubscribe func()
	onChange    func()
	closed      bool
}

// New builds a controller. profile supplies sender identity for optimistic
// placeholders and may be nil; the limiter is shared per session, not per
// ticket, so one user's cap spans all their open conversations.
func New(store Store, sub Subscriber, limiter *ratelimit.Limiter, profile *ticket.Profile) *Controller {
	return &Controller{store: store, sub: sub, limiter: limiter, profile: profile}
}

// SetOnChange registers a callback fired after every state change, for
// the presentation layer to re-render. Must be set before Load.
func (c *Controller) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Load fetches the ticket and its messages, subscribes to push events for
// it, and marks it read exactly once per ticket id. On fetch failure the
// snapshot is cleared and the error retained; there is no automatic retry.
func (c *Controller) Load(ctx context.Context, ticketID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNoTicket
	}
	c.ticketID = ticketID
	oldCancel := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if c.sub != nil {
		cancel, err := c.sub.SubscribeInserts(ticketID, func() {
			// Push events reuse the silent reload path; replacement by
			// full snapshot makes it idempotent for self-originated events.
			c.reload(context.Background(), true)
		})
		if err == nil {
			c.mu.Lock()
			if c.closed || c.ticketID != ticketID {
				c.mu.Unlock()
				cancel()
			} else {
				c.unsubscribe = cancel
				c.mu.Unlock()
			}
		}
	}

	return c.reload(ctx, false)
}

// Refetch is the manual retry affordance after a failed load.
func (c *Controller) Refetch(ctx context.Context) error {
	return c.reload(ctx, false)
}

// reload fetches the full conversation and replaces the snapshot. A silent
// reload leaves the loading flag alone so routine background syncs do not
// flicker the UI. Results of fetches issued before the currently applied
// one are discarded.
func (c *Controller) reload(ctx context.Context, silent bool) error {
	c.mu.Lock()
	if c.closed || c.ticketID == "" {
		c.mu.Unlock()
		return ErrNoTicket
	}
	id := c.ticketID
	c.fetchSeq++
	seq := c.fetchSeq
	if !silent {
		c.loading = true
		c.err = nil
	}
	c.mu.Unlock()
	c.notify()

	details, err := c.store.TicketDetails(ctx, id)

	c.mu.Lock()
	if c.closed || c.ticketID != id || seq <= c.appliedSeq {
		if !silent {
			c.loading = false
		}
		c.mu.Unlock()
		c.notify()
		return nil
	}
	c.appliedSeq = seq
	var markRead bool
	if err != nil {
		c.snapshot = nil
		c.err = &FetchFailedError{Err: err}
	} else {
		c.snapshot = details
		c.err = nil
		if c.lastRead != id {
			c.lastRead = id
			markRead = true
		}
	}
	if !silent {
		c.loading = false
	}
	out := c.err
	c.mu.Unlock()
	c.notify()

	if markRead {
		// Read receipts are best-effort; a failure is not surfaced.
		_ = c.store.MarkRead(ctx, id)
	}
	return out
}

// SendMessage appends an optimistic placeholder synchronously, issues the
// remote send, and reconciles by silent refetch on success. On failure
// exactly the placeholder is removed and the error returned, leaving the
// content with the caller for resubmission.
func (c *Controller) SendMessage(ctx context.Context, content string, attachments []ticket.AttachmentInput) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}

	if c.limiter != nil && !c.limiter.CheckAndRecord() {
		return &RateLimitedError{RetryAfter: c.limiter.ResetTime()}
	}

	c.mu.Lock()
	if c.closed || c.snapshot == nil {
		c.mu.Unlock()
		return ErrNoTicket
	}
	id := c.ticketID
	optimistic := c.placeholder(trimmed, attachments)
	c.snapshot.Messages = append(c.snapshot.Messages, optimistic)
	c.mu.Unlock()
	c.notify()

	if _, err := c.store.SendMessage(ctx, id, trimmed, attachments); err != nil {
		c.removeMessage(optimistic.ID)
		c.notify()
		return &SendFailedError{Err: err}
	}

	// Silent refetch supersedes the placeholder with server truth.
	c.reload(ctx, true)
	return nil
}

// placeholder synthesizes the optimistic message. Sender identity comes
// from the locally known profile, with a generic fallback when unknown.
// Callers must hold mu.
func (c *Controller) placeholder(content string, attachments []ticket.AttachmentInput) ticket.Message {
	now := time.Now()
	optimisticID := OptimisticPrefix + strconv.FormatInt(now.UnixNano(), 10)

	sender := ticket.Profile{FullName: "You"}
	if c.profile != nil {
		sender = *c.profile
	}

	msg := ticket.Message{
		ID:          optimisticID,
		TicketID:    c.ticketID,
		SenderID:    sender.ID,
		Content:     content,
		CreatedAt:   now,
		Sender:      sender,
		Attachments: []ticket.Attachment{},
	}
	for i, in := range attachments {
		msg.Attachments = append(msg.Attachments, ticket.Attachment{
			ID:        OptimisticPrefix + "att-" + strconv.Itoa(i),
			MessageID: optimisticID,
			FileName:  ticket.SanitizeFileName(in.FileName),
			FileURL:   in.FileURL,
			FileType:  in.FileType,
			FileSize:  in.FileSize,
			CreatedAt: now,
		})
	}
	return msg
}

// removeMessage drops exactly the message with the given id, never any
// other entry.
func (c *Controller) removeMessage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return
	}
	kept := c.snapshot.Messages[:0]
	for _, m := range c.snapshot.Messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	c.snapshot.Messages = kept
}

// UpdateStatus optimistically sets the status, then confirms remotely,
// rolling back the visible value on failure. Identical status is a no-op.
// The confirmation gate for resolving/closing lives with the caller.
func (c *Controller) UpdateStatus(ctx context.Context, status ticket.Status) error {
	c.mu.Lock()
	if c.closed || c.snapshot == nil {
		c.mu.Unlock()
		return ErrNoTicket
	}
	if c.snapshot.Status == status {
		c.mu.Unlock()
		return nil
	}
	id := c.ticketID
	previous := c.snapshot.Status
	c.snapshot.Status = status
	c.mu.Unlock()
	c.notify()

	if err := c.store.UpdateStatus(ctx, id, status); err != nil {
		c.mu.Lock()
		if c.snapshot != nil {
			c.snapshot.Status = previous
		}
		c.mu.Unlock()
		c.notify()
		return &StatusUpdateFailedError{Err: err}
	}
	return nil
}

// Snapshot returns a copy of the current conversation view, or nil when
// nothing is loaded.
func (c *Controller) Snapshot() *ticket.Details {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	cp := *c.snapshot
	cp.Messages = append([]ticket.Message(nil), c.snapshot.Messages...)
	return &cp
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the retained fetch error, if the last load failed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) TicketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticketID
}

// Close unsubscribes from push events. Further operations are rejected;
// late fetch completions are discarded by the closed check in reload.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
