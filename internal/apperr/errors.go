// Package apperr declares the error kinds controllers return and translates
// any error, including storage and filesystem failures, into an HTTP status.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindPaymentRequired
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindUnavailable
)

var kindStatus = map[Kind]int{
	KindInternal:        http.StatusInternalServerError,
	KindValidation:      http.StatusBadRequest,
	KindUnauthorized:    http.StatusUnauthorized,
	KindPaymentRequired: http.StatusPaymentRequired,
	KindForbidden:       http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindTooManyRequests: http.StatusTooManyRequests,
	KindUnavailable:     http.StatusServiceUnavailable,
}

// Status is the HTTP status carried by the kind.
func (k Kind) Status() int { return kindStatus[k] }

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error { return &Error{Kind: kind, Message: message} }

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(message string) *Error {
	if message == "" {
		message = "resource not found"
	}
	return New(KindNotFound, message)
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "unauthorized"
	}
	return New(KindUnauthorized, message)
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "forbidden"
	}
	return New(KindForbidden, message)
}

func Conflict(message string) *Error {
	if message == "" {
		message = "conflict with an existing resource"
	}
	return New(KindConflict, message)
}

func PaymentRequired(message string) *Error { return New(KindPaymentRequired, message) }

func TooManyRequests(message string) *Error { return New(KindTooManyRequests, message) }

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Translate maps any error onto a declared kind. Unknown errors become
// KindInternal with a generic message.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(KindConflict, "resource already exists", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return Wrap(KindValidation, "invalid reference", err)
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return Wrap(KindConflict, "resource already exists", err)
	case errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation:
		return Wrap(KindValidation, "invalid reference", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(KindNotFound, "resource not found", err)
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(KindNotFound, "file not found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(KindUnavailable, "service temporarily unavailable", err)
	}
	return Wrap(KindInternal, "internal server error", err)
}

// Status returns the HTTP status for err.
func Status(err error) int { return Translate(err).Kind.Status() }
