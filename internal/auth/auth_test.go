package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nexusstore/internal/httpserver/respond"
	"nexusstore/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestMiddleware(t *testing.T) (*Middleware, *gorm.DB, *Tokens) {
	db := openTestDB(t)
	tokens := NewTokens("test-secret", time.Hour)
	return NewMiddleware(db, tokens, respond.New(zap.NewNop().Sugar(), false), 0), db, tokens
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if u := FromContext(r.Context()); u != nil {
		w.Header().Set("X-User", u.ID)
	}
	w.WriteHeader(http.StatusOK)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.Error(t, CheckPassword(hash, "wrong horse"))
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	tok, err := tokens.Sign("user-1")
	require.NoError(t, err)

	uid, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = NewTokens("other", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tokens.Verify("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokensExpire(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	past := time.Now().Add(-2 * time.Hour)
	tokens.now = func() time.Time { return past }
	tok, err := tokens.Sign("user-1")
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthenticate(t *testing.T) {
	m, db, tokens := newTestMiddleware(t)
	u := models.User{Email: "dev@example.com", Name: "Dev", Role: models.RoleDeveloper, PasswordHash: "x"}
	require.NoError(t, db.Create(&u).Error)
	tok, err := tokens.Sign(u.ID)
	require.NoError(t, err)

	h := m.Authenticate(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.ID, rec.Header().Get("X-User"))

	// a deleted user loses access immediately
	require.NoError(t, db.Delete(&models.User{}, "id = ?", u.ID).Error)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateBoundedByAcquireWait(t *testing.T) {
	db := openTestDB(t)
	tokens := NewTokens("test-secret", time.Hour)
	m := NewMiddleware(db, tokens, respond.New(zap.NewNop().Sugar(), false), 100*time.Millisecond)
	u := models.User{Email: "dev@example.com", Name: "Dev", Role: models.RoleDeveloper, PasswordHash: "x"}
	require.NoError(t, db.Create(&u).Error)
	tok, err := tokens.Sign(u.ID)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	held, err := sqlDB.Conn(context.Background())
	require.NoError(t, err)
	defer held.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	m.Authenticate(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptionalAuthNeverFails(t *testing.T) {
	m, _, _ := newTestMiddleware(t)
	h := m.OptionalAuth(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-User"))
}

func TestRequireRole(t *testing.T) {
	m, _, _ := newTestMiddleware(t)
	h := m.RequireRole(models.RoleDeveloper, models.RoleAdmin)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &models.User{ID: "u", Role: models.RoleUser}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithUser(req.Context(), &models.User{ID: "d", Role: models.RoleDeveloper}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireOwnership(t *testing.T) {
	m, _, _ := newTestMiddleware(t)
	owner := "owner-1"
	gate := m.RequireOwnership(func(r *http.Request) (string, error) {
		if r.URL.Query().Get("missing") == "1" {
			return "", nil
		}
		return owner, nil
	})
	h := gate(http.HandlerFunc(okHandler))

	serve := func(u *models.User, target string) int {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if u != nil {
			req = req.WithContext(WithUser(req.Context(), u))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil, "/"))
	assert.Equal(t, http.StatusNotFound, serve(&models.User{ID: owner}, "/?missing=1"))
	assert.Equal(t, http.StatusForbidden, serve(&models.User{ID: "x", Role: models.RoleDeveloper}, "/"))
	assert.Equal(t, http.StatusOK, serve(&models.User{ID: owner, Role: models.RoleDeveloper}, "/"))
	assert.Equal(t, http.StatusOK, serve(&models.User{ID: "adm", Role: models.RoleAdmin}, "/"))
}
