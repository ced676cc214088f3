package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("ticket not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a ticket and its initial message in one transaction.
func (r *Repository) Create(ctx context.Context, customerID, subject string, priority Priority, message string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var ticketID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO tickets (customer_id, subject, priority) VALUES ($1, $2, $3) RETURNING id`,
		customerID, subject, priority,
	).Scan(&ticketID)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (ticket_id, sender_id, content) VALUES ($1, $2, $3)`,
		ticketID, customerID, message,
	)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return ticketID, nil
}

// Details loads the ticket, its customer, the assigned agent if any, and
// the full message list ordered by creation time ascending.
func (r *Repository) Details(ctx context.Context, ticketID, viewerID string) (*Details, error) {
	d := &Details{}
	var assignedTo sql.NullString
	var assignee struct {
		id, email, fullName, avatar sql.NullString
		role                        sql.NullString
		createdAt                   sql.NullTime
	}
	err := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.customer_id, t.subject, t.status, t.priority, t.assigned_to,
		       t.created_at, t.updated_at,
		       c.id, c.email, COALESCE(c.full_name, ''), COALESCE(c.avatar_url, ''), c.role, c.created_at,
		       a.id, a.email, a.full_name, a.avatar_url, a.role, a.created_at
		FROM tickets t
		JOIN profiles c ON t.customer_id = c.id
		LEFT JOIN profiles a ON t.assigned_to = a.id
		WHERE t.id = $1
	`, ticketID).Scan(
		&d.ID, &d.CustomerID, &d.Subject, &d.Status, &d.Priority, &assignedTo,
		&d.CreatedAt, &d.UpdatedAt,
		&d.Customer.ID, &d.Customer.Email, &d.Customer.FullName, &d.Customer.AvatarURL,
		&d.Customer.Role, &d.Customer.CreatedAt,
		&assignee.id, &assignee.email, &assignee.fullName, &assignee.avatar,
		&assignee.role, &assignee.createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.AssignedTo = assignedTo.String
	if assignee.id.Valid {
		d.AssignedAgent = &Profile{
			ID:        assignee.id.String,
			Email:     assignee.email.String,
			FullName:  assignee.fullName.String,
			AvatarURL: assignee.avatar.String,
			Role:      Role(assignee.role.String),
			CreatedAt: assignee.createdAt.Time,
		}
	}

	msgs, err := r.messagesForTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	d.Messages = msgs

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE ticket_id = $1 AND read = FALSE AND sender_id <> $2
	`, ticketID, viewerID).Scan(&d.UnreadCount)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Repository) messagesForTicket(ctx context.Context, ticketID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.ticket_id, m.sender_id, m.content, m.created_at,
		       p.id, p.email, COALESCE(p.full_name, ''), COALESCE(p.avatar_url, ''), p.role, p.created_at
		FROM messages m
		JOIN profiles p ON m.sender_id = p.id
		WHERE m.ticket_id = $1
		ORDER BY m.created_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	byID := map[string]int{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.TicketID, &m.SenderID, &m.Content, &m.CreatedAt,
			&m.Sender.ID, &m.Sender.Email, &m.Sender.FullName, &m.Sender.AvatarURL,
			&m.Sender.Role, &m.Sender.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.Attachments = []Attachment{}
		byID[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	// Second pass for attachments; one query for the whole conversation.
	arows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.message_id, a.file_name, a.file_url, a.file_type, a.file_size, a.created_at
		FROM attachments a
		JOIN messages m ON a.message_id = m.id
		WHERE m.ticket_id = $1
		ORDER BY a.created_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a Attachment
		if err := arows.Scan(&a.ID, &a.MessageID, &a.FileName, &a.FileURL, &a.FileType, &a.FileSize, &a.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := byID[a.MessageID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, a)
		}
	}
	return msgs, arows.Err()
}

// SaveMessage persists a message plus its attachment descriptors and
// returns the stored row with sender details filled in.
func (r *Repository) SaveMessage(ctx context.Context, ticketID, senderID, content string, attachments []AttachmentInput) (*Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	m := &Message{TicketID: ticketID, SenderID: senderID, Content: content, Attachments: []Attachment{}}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (ticket_id, sender_id, content) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		ticketID, senderID, content,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, in := range attachments {
		var a Attachment
		a.MessageID = m.ID
		a.FileName = SanitizeFileName(in.FileName)
		a.FileURL = in.FileURL
		a.FileType = in.FileType
		a.FileSize = in.FileSize
		err = tx.QueryRowContext(ctx,
			`INSERT INTO attachments (message_id, file_name, file_url, file_type, file_size)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
			a.MessageID, a.FileName, a.FileURL, a.FileType, a.FileSize,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.Attachments = append(m.Attachments, a)
	}

	// Bump the ticket so list views sort it to the top.
	_, err = tx.ExecContext(ctx, `UPDATE tickets SET updated_at = NOW() WHERE id = $1`, ticketID)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(full_name, ''), COALESCE(avatar_url, ''), role, created_at
		FROM profiles WHERE id = $1
	`, senderID).Scan(
		&m.Sender.ID, &m.Sender.Email, &m.Sender.FullName, &m.Sender.AvatarURL,
		&m.Sender.Role, &m.Sender.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, ticketID string, status Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, ticketID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead clears the unread flag on every message in the ticket that the
// reader did not send. Best-effort from the caller's point of view.
func (r *Repository) MarkRead(ctx context.Context, ticketID, readerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read = TRUE WHERE ticket_id = $1 AND sender_id <> $2`,
		ticketID, readerID,
	)
	return err
}

type SearchFilter struct {
	Search     string
	Statuses   []Status
	Priorities []Priority
	CustomerID string // restrict to one customer's tickets (portal view)
	Limit      int
	Offset     int
}

// Search returns ticket summaries sorted by last activity, newest first.
func (r *Repository) Search(ctx context.Context, f SearchFilter, viewerID string) ([]Summary, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	query := `
		SELECT t.id, t.customer_id, t.subject, t.status, t.priority,
		       COALESCE(t.assigned_to::text, ''), t.created_at, t.updated_at,
		       c.id, c.email, COALESCE(c.full_name, ''), COALESCE(c.avatar_url, ''), c.role, c.created_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.ticket_id = t.id AND m.read = FALSE AND m.sender_id <> $1),
		       lm.id, lm.sender_id, lm.content, lm.created_at, lm.sender_name
		FROM tickets t
		JOIN profiles c ON t.customer_id = c.id
		LEFT JOIN LATERAL (
			SELECT m.id, m.sender_id, m.content, m.created_at,
			       COALESCE(p.full_name, '') AS sender_name
			FROM messages m
			JOIN profiles p ON m.sender_id = p.id
			WHERE m.ticket_id = t.id
			ORDER BY m.created_at DESC
			LIMIT 1
		) lm ON TRUE
		WHERE 1=1`
	args := []any{viewerID}

	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND (t.subject ILIKE $%d OR c.email ILIKE $%d)", len(args), len(args))
	}
	if len(f.Statuses) > 0 {
		placeholders := ""
		for i, s := range f.Statuses {
			args = append(args, s)
			if i > 0 {
				placeholders += ","
			}
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		query += " AND t.status IN (" + placeholders + ")"
	}
	if len(f.Priorities) > 0 {
		placeholders := ""
		for i, p := range f.Priorities {
			args = append(args, p)
			if i > 0 {
				placeholders += ","
			}
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		query += " AND t.priority IN (" + placeholders + ")"
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		query += fmt.Sprintf(" AND t.customer_id = $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY t.updated_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var lmID, lmSender, lmContent, lmName sql.NullString
		var lmCreated sql.NullTime
		if err := rows.Scan(
			&s.ID, &s.CustomerID, &s.Subject, &s.Status, &s.Priority,
			&s.AssignedTo, &s.CreatedAt, &s.UpdatedAt,
			&s.Customer.ID, &s.Customer.Email, &s.Customer.FullName, &s.Customer.AvatarURL,
			&s.Customer.Role, &s.Customer.CreatedAt,
			&s.UnreadCount,
			&lmID, &lmSender, &lmContent, &lmCreated, &lmName,
		); err != nil {
			return nil, err
		}
		if lmID.Valid {
			s.LastMessage = &Message{
				ID:          lmID.String,
				TicketID:    s.ID,
				SenderID:    lmSender.String,
				Content:     lmContent.String,
				CreatedAt:   lmCreated.Time,
				Sender:      Profile{ID: lmSender.String, FullName: lmName.String},
				Attachments: []Attachment{},
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Stats counts tickets by status across the whole desk. Pass a customer id
// to restrict the counts to that customer's tickets.
func (r *Repository) Stats(ctx context.Context, customerID string) (*Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'open'),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'resolved'),
		       COUNT(*) FILTER (WHERE status = 'closed')
		FROM tickets`
	args := []any{}
	if customerID != "" {
		query += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	s := &Stats{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.Total, &s.Open, &s.Pending, &s.Resolved, &s.Closed)
	if err != nil {
		return nil, err
	}
	return s, nil
}
