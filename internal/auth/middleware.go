package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/httpserver/respond"
	"nexusstore/internal/models"
)

// Middleware attaches the current user to requests and gates routes by
// role and ownership.
type Middleware struct {
	db     *gorm.DB
	tokens *Tokens
	resp   *respond.Responder
	wait   time.Duration
}

// NewMiddleware bounds each user lookup by wait; zero waits on the request
// context alone.
func NewMiddleware(db *gorm.DB, tokens *Tokens, resp *respond.Responder, wait time.Duration) *Middleware {
	return &Middleware{db: db, tokens: tokens, resp: resp, wait: wait}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return raw, raw != ""
}

// loadUser reads the user row fresh so role changes and deletions apply
// without a new login.
func (m *Middleware) loadUser(r *http.Request, raw string) (*models.User, error) {
	uid, err := m.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	if m.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.wait)
		defer cancel()
	}
	var u models.User
	if err := m.db.WithContext(ctx).First(&u, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, err
	}
	return &u, nil
}

// Authenticate requires a valid bearer token for an existing user.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			m.resp.Error(w, r, apperr.Unauthorized("missing bearer token"))
			return
		}
		u, err := m.loadUser(r, raw)
		switch {
		case errors.Is(err, ErrTokenExpired):
			m.resp.Error(w, r, apperr.Unauthorized("token expired"))
			return
		case errors.Is(err, ErrTokenInvalid):
			m.resp.Error(w, r, apperr.Unauthorized("invalid token"))
			return
		case err != nil:
			m.resp.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// OptionalAuth attaches the user when a valid token is present and never
// fails the request.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearerToken(r); ok {
			if u, err := m.loadUser(r, raw); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects anonymous requests with 401 and other roles with 403.
func (m *Middleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := FromContext(r.Context())
			if u == nil {
				m.resp.Error(w, r, apperr.Unauthorized("authentication required"))
				return
			}
			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.resp.Error(w, r, apperr.Forbidden("access denied"))
		})
	}
}

// OwnerResolver returns the owner id of the resource a request targets, or
// "" when the resource does not exist.
type OwnerResolver func(r *http.Request) (string, error)

// RequireOwnership lets the owner and admins through. A missing resource is
// 404, anyone else is 403.
func (m *Middleware) RequireOwnership(resolve OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := FromContext(r.Context())
			if u == nil {
				m.resp.Error(w, r, apperr.Unauthorized("authentication required"))
				return
			}
			ownerID, err := resolve(r)
			if err != nil {
				m.resp.Error(w, r, err)
				return
			}
			if ownerID == "" {
				m.resp.Error(w, r, apperr.NotFound(""))
				return
			}
			if u.Role != models.RoleAdmin && ownerID != u.ID {
				m.resp.Error(w, r, apperr.Forbidden("access to this resource is not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
