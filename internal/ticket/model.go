package ticket

import "time"

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Ticket struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Subject    string    `json:"subject"`
	Status     Status    `json:"status"`
	Priority   Priority  `json:"priority"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message is immutable once created; there is no edit or delete path.
type Message struct {
	ID          string       `json:"id"`
	TicketID    string       `json:"ticket_id"`
	SenderID    string       `json:"sender_id"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
	Sender      Profile      `json:"sender"` // 🟢 Denormalized for UI speed (fetched via JOIN)
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	FileName  string    `json:"file_name"`
	FileURL   string    `json:"file_url"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachmentInput is the descriptor a sender supplies with a message.
// The blob itself lives elsewhere; we only persist the reference.
type AttachmentInput struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// Details is the full conversation view: the ticket plus its ordered
// message list as currently known. It is rebuilt wholesale on every fetch.
type Details struct {
	Ticket
	Customer      Profile   `json:"customer"`
	AssignedAgent *Profile  `json:"assigned_agent,omitempty"`
	Messages      []Message `json:"messages"`
	UnreadCount   int       `json:"unread_count"`
}

// Summary is one row of a ticket search result.
type Summary struct {
	Ticket
	Customer    Profile  `json:"customer"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

type Stats struct {
	Total    int `json:"total"`
	Open     int `json:"open"`
	Pending  int `json:"pending"`
	Resolved int `json:"resolved"`
	Closed   int `json:"closed"`
}
