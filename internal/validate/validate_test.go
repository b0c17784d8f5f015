package validate

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nexusstore/internal/httpserver/respond"
)

func TestCheckRequired(t *testing.T) {
	err := Check(map[string]interface{}{"email": "", "password": "x"}, Login)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "email" is required`)
}

func TestCheckShortCircuitsOnMissingField(t *testing.T) {
	err := Check(map[string]interface{}{}, Schema{F("name", Rules{Type: String, MinLength: 2})})
	assert.NoError(t, err)
}

func TestCheckJoinsMessages(t *testing.T) {
	err := Check(map[string]interface{}{
		"name":     "A",
		"email":    "not-an-email",
		"password": "short",
		"role":     "admin",
	}, Register)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `field "name" must be at least 2 characters`)
	assert.Contains(t, msg, `field "email" must be a valid email address`)
	assert.Contains(t, msg, `field "password" must be at least 8 characters`)
	assert.Contains(t, msg, `field "role" must be one of: user, developer`)
	assert.Equal(t, 3, strings.Count(msg, ". "))
}

func TestCheckNumbers(t *testing.T) {
	assert.NoError(t, Check(map[string]interface{}{"rating": float64(5)}, Review))
	assert.Error(t, Check(map[string]interface{}{"rating": float64(6)}, Review))
	assert.Error(t, Check(map[string]interface{}{"rating": float64(0)}, Review))
	assert.Error(t, Check(map[string]interface{}{"rating": 4.5}, Review))
	assert.Error(t, Check(map[string]interface{}{"rating": "great"}, Review))

	price := Schema{F("price", Rules{Type: Number, Min: Bound(0), Max: Bound(1000)})}
	assert.NoError(t, Check(map[string]interface{}{"price": "4.99"}, price))
	assert.Error(t, Check(map[string]interface{}{"price": float64(-1)}, price))
	assert.Error(t, Check(map[string]interface{}{"price": float64(1000.5)}, price))
}

func TestCheckLengthCountsRunes(t *testing.T) {
	s := Schema{F("name", Rules{MaxLength: 3})}
	assert.NoError(t, Check(map[string]interface{}{"name": "äöü"}, s))
	assert.Error(t, Check(map[string]interface{}{"name": "äöüß"}, s))
}

func TestBodyMiddleware(t *testing.T) {
	resp := respond.New(zap.NewNop().Sugar(), false)
	var seen string
	h := Body(Login, resp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))

	body := `{"email":"a@b.co","password":"secret"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, body, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `field \"password\" is required`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[1,2]`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
