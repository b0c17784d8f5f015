package validate

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"nexusstore/internal/apperr"
	"nexusstore/internal/httpserver/respond"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 10 << 20

// Body validates the JSON object body against s and hands the untouched
// bytes to the next handler.
func Body(s Schema, resp *respond.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				resp.Error(w, r, apperr.Validation("request body too large or unreadable"))
				return
			}
			data := map[string]interface{}{}
			if len(bytes.TrimSpace(raw)) > 0 {
				if err := json.Unmarshal(raw, &data); err != nil {
					resp.Error(w, r, apperr.Validation("request body must be a JSON object"))
					return
				}
			}
			if err := Check(data, s); err != nil {
				resp.Error(w, r, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			next.ServeHTTP(w, r)
		})
	}
}
