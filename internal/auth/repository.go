package auth

import (
	"context"
	"database/sql"
	"errors"

	"supportdesk/internal/ticket"
)

var ErrProfileNotFound = errors.New("profile not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateProfile(ctx context.Context, email, fullName, passwordHash string, role ticket.Role) (*ticket.Profile, error) {
	p := &ticket.Profile{Email: email, FullName: fullName, Role: role}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO profiles (email, full_name, password, role) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		email, fullName, passwordHash, role,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByEmail returns the profile plus its password hash for credential
// checks.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*ticket.Profile, string, error) {
	p := &ticket.Profile{}
	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(full_name, ''), COALESCE(avatar_url, ''), role, password, created_at
		FROM profiles WHERE email = $1
	`, email).Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.Role, &hash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrProfileNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return p, hash, nil
}

// SearchAgents lists admin profiles matching the query, for assignment
// and mention pickers. Limited to keep it fast.
func (r *Repository) SearchAgents(ctx context.Context, query string) ([]ticket.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, COALESCE(full_name, ''), COALESCE(avatar_url, ''), role, created_at
		FROM profiles
		WHERE role = 'admin' AND (full_name ILIKE $1 OR email ILIKE $1)
		LIMIT 10
	`, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ticket.Profile
	for rows.Next() {
		var p ticket.Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
