package canned

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("canned response not found")

type Response struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Shortcut  string    `json:"shortcut,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Defaults seeded into an empty table so agents have a usable picker on
// first run.
var defaults = []Response{
	{Title: "Greeting", Content: "Hi there! Thanks for reaching out. How can I help you today?", Shortcut: "/hi", Category: "General"},
	{Title: "Request More Info", Content: "Could you please provide more details about your issue? This will help us assist you better.", Shortcut: "/more", Category: "General"},
	{Title: "Order Status", Content: "I'd be happy to help you check your order status. Could you please provide your order number?", Shortcut: "/order", Category: "Orders"},
	{Title: "Refund Process", Content: "I understand you'd like a refund. I've initiated the refund process for you. Please allow 5-7 business days for the amount to reflect in your account.", Shortcut: "/refund", Category: "Orders"},
	{Title: "Shipping Info", Content: "Standard shipping typically takes 3-5 business days. Express shipping is available for 1-2 business day delivery.", Shortcut: "/ship", Category: "Shipping"},
	{Title: "Thank You", Content: "Thank you for contacting us! Is there anything else I can help you with?", Shortcut: "/thanks", Category: "General"},
	{Title: "Closing", Content: "Thank you for reaching out! If you have any more questions, don't hesitate to contact us. Have a great day!", Shortcut: "/close", Category: "General"},
	{Title: "Escalation", Content: "I understand this is a complex issue. I'm escalating this to our senior support team who will get back to you within 24 hours.", Shortcut: "/escalate", Category: "General"},
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Seed inserts the default responses if the table is empty.
func (r *Repository) Seed(ctx context.Context) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canned_responses`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, d := range defaults {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO canned_responses (title, content, shortcut, category) VALUES ($1, $2, $3, $4)`,
			d.Title, d.Content, d.Shortcut, d.Category,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns all responses, optionally filtered by a search term over
// title, content, shortcut and category.
func (r *Repository) List(ctx context.Context, search string) ([]Response, error) {
	query := `
		SELECT id, title, content, COALESCE(shortcut, ''), COALESCE(category, ''), created_at, updated_at
		FROM canned_responses`
	args := []any{}
	if search != "" {
		query += ` WHERE title ILIKE $1 OR content ILIKE $1 OR shortcut ILIKE $1 OR category ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY category, title`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		var c Response
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &c.Shortcut, &c.Category, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetByShortcut(ctx context.Context, shortcut string) (*Response, error) {
	c := &Response{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, content, COALESCE(shortcut, ''), COALESCE(category, ''), created_at, updated_at
		FROM canned_responses WHERE shortcut = $1
	`, shortcut).Scan(&c.ID, &c.Title, &c.Content, &c.Shortcut, &c.Category, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) Create(ctx context.Context, c *Response) (*Response, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO canned_responses (title, content, shortcut, category) VALUES ($1, $2, NULLIF($3, ''), $4)
		 RETURNING id, created_at, updated_at`,
		c.Title, c.Content, c.Shortcut, c.Category,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) Update(ctx context.Context, c *Response) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE canned_responses
		 SET title = $1, content = $2, shortcut = NULLIF($3, ''), category = $4, updated_at = NOW()
		 WHERE id = $5`,
		c.Title, c.Content, c.Shortcut, c.Category, c.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM canned_responses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
