package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/config"
	"nexusstore/internal/httpserver/respond"
	"nexusstore/internal/metrics"
	"nexusstore/internal/payment"
	"nexusstore/internal/storage"
)

// Deps carries what every controller needs.
type Deps struct {
	DB       *gorm.DB
	Log      *zap.SugaredLogger
	Cfg      *config.Config
	Files    *storage.Local
	Payments payment.Gateway
	Tokens   *auth.Tokens
	Resp     *respond.Responder
	Metrics  *metrics.Metrics
	Started  time.Time
}

// db binds the pool to the request with the configured acquire wait as
// deadline, so a full pool fails the request instead of blocking it.
func (d *Deps) db(r *http.Request) (*gorm.DB, context.CancelFunc) {
	if d.Cfg == nil || d.Cfg.DBAcquireWait <= 0 {
		return d.DB.WithContext(r.Context()), func() {}
	}
	ctx, cancel := context.WithTimeout(r.Context(), d.Cfg.DBAcquireWait)
	return d.DB.WithContext(ctx), cancel
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
	}
	return nil
}

// likeOp is ILIKE on Postgres. SQLite's LIKE already ignores ASCII case.
func likeOp(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "ILIKE"
	}
	return "LIKE"
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

type message struct {
	Message string `json:"message"`
}
