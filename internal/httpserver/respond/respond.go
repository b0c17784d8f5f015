// Package respond writes JSON bodies and translated error responses.
package respond

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"nexusstore/internal/apperr"
)

type Responder struct {
	Log *zap.SugaredLogger
	Dev bool
}

func New(lg *zap.SugaredLogger, dev bool) *Responder {
	return &Responder{Log: lg, Dev: dev}
}

// JSON writes v with the given status.
func (rs *Responder) JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// OK writes v with status 200.
func (rs *Responder) OK(w http.ResponseWriter, v interface{}) {
	rs.JSON(w, http.StatusOK, v)
}

// Error logs err and writes its translated status and public message.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.Translate(err)
	status := e.Kind.Status()
	fields := []interface{}{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	if status >= http.StatusInternalServerError {
		rs.Log.Errorw(err.Error(), fields...)
	} else {
		rs.Log.Warnw(err.Error(), fields...)
	}
	body := map[string]interface{}{"error": e.Message}
	if rs.Dev && e.Err != nil {
		body["details"] = e.Err.Error()
	}
	rs.JSON(w, status, body)
}
