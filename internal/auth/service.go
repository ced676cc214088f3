package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"supportdesk/internal/ticket"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	repo      *Repository
	jwtSecret string
}

type SessionClaims struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{repo: repo, jwtSecret: secret}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest, role ticket.Role) (*ticket.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("valid email required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateProfile(ctx, email, strings.TrimSpace(req.FullName), string(hashed), role)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	stored, hash, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Email:    stored.Email,
		FullName: stored.FullName,
		Role:     string(stored.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   stored.ID,
			Issuer:    "supportdesk",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{AccessToken: ss, Profile: *stored}, nil
}

// ValidateToken checks a session token and returns the identity baked
// into its claims. Satisfies the middleware's TokenValidator.
func (s *Service) ValidateToken(tokenString string) (userID, email, fullName, role string, err error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", "", "", "", err
	}
	if !token.Valid {
		return "", "", "", "", errors.New("invalid token")
	}
	return claims.Subject, claims.Email, claims.FullName, claims.Role, nil
}

func (s *Service) SearchAgents(ctx context.Context, query string) ([]ticket.Profile, error) {
	return s.repo.SearchAgents(ctx, query)
}
