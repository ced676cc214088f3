package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserKey  contextKey = "user_id"
	EmailKey contextKey = "email"
	NameKey  contextKey = "full_name"
	RoleKey  contextKey = "role"
)

// TokenValidator is what we need from the auth service. The interface
// keeps this package decoupled from it.
type TokenValidator interface {
	ValidateToken(tokenString string) (userID, email, fullName, role string, err error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Fallback for websocket dials, which cannot set headers from
		// the browser.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, email, fullName, role, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, EmailKey, email)
		ctx = context.WithValue(ctx, NameKey, fullName)
		ctx = context.WithValue(ctx, RoleKey, role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity is the authenticated caller as recorded in the request
// context by Handle.
type Identity struct {
	ID       string
	Email    string
	FullName string
	Role     string
}

func (i Identity) IsAdmin() bool { return i.Role == "admin" }

// IdentityFromContext rebuilds the caller's identity from the request
// context populated by Handle.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(UserKey).(string)
	if !ok || id == "" {
		return Identity{}, false
	}
	email, _ := ctx.Value(EmailKey).(string)
	name, _ := ctx.Value(NameKey).(string)
	role, _ := ctx.Value(RoleKey).(string)
	return Identity{ID: id, Email: email, FullName: name, Role: role}, true
}
