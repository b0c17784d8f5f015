package apperr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("register: %w", Validation("bad")), http.StatusBadRequest},
		{"unauthorized", Unauthorized(""), http.StatusUnauthorized},
		{"payment required", PaymentRequired("buy it"), http.StatusPaymentRequired},
		{"forbidden", Forbidden(""), http.StatusForbidden},
		{"not found", NotFound(""), http.StatusNotFound},
		{"conflict", Conflict(""), http.StatusConflict},
		{"rate limited", TooManyRequests("slow down"), http.StatusTooManyRequests},
		{"gorm duplicate", gorm.ErrDuplicatedKey, http.StatusConflict},
		{"gorm fk", gorm.ErrForeignKeyViolated, http.StatusBadRequest},
		{"pg unique", &pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{"pg fk", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), http.StatusBadRequest},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"missing file", &fs.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, http.StatusNotFound},
		{"db deadline", fmt.Errorf("find app: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(tc.err))
		})
	}
}

func TestTranslateKeepsDeclaredMessage(t *testing.T) {
	e := Translate(fmt.Errorf("ctx: %w", Conflict("email taken")))
	assert.Equal(t, "email taken", e.Message)

	e = Translate(errors.New("dial tcp: refused"))
	assert.Equal(t, "internal server error", e.Message)
	assert.EqualError(t, e.Unwrap(), "dial tcp: refused")

	assert.Nil(t, Translate(nil))
}
