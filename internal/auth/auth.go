package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// ContextKey is used for context keys to avoid collisions
type ContextKey string

const (
	// UserKey is the context key holding the authenticated username
	UserKey ContextKey = "auth_user"

	realm = `Basic realm="railspreview"`
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Basic guards the UI with a single username and bcrypt password hash.
// An empty Username disables authentication.
type Basic struct {
	Username     string
	PasswordHash string
}

// Enabled reports whether requests must authenticate.
func (b Basic) Enabled() bool { return b.Username != "" }

// Check validates a username/password pair.
func (b Basic) Check(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(b.Username)) != 1 {
		// keep timing similar to a wrong password
		_ = bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (b Basic) authenticate(r *http.Request) (string, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := b.Check(username, password); err != nil {
		return "", err
	}
	return username, nil
}

// GinAuth returns a Gin middleware function for authentication
func (b Basic) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !b.Enabled() {
			c.Next()
			return
		}
		user, err := b.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", realm)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}
		c.Set(string(UserKey), user)
		c.Next()
	}
}

// HTTPAuth returns a standard HTTP middleware function for authentication
func (b Basic) HTTPAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		user, err := b.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", realm)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication_failed","message":"Authentication required"}`))
			return
		}
		ctx := context.WithValue(r.Context(), UserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HashPassword returns the bcrypt hash to put in ui.password_hash.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}
