package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input provided")
)

// Notification / targeting
var (
	ErrInvalidTarget  = errors.New("unknown or malformed targeting rule")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrSchoolRequired = errors.New("school id required")
)

// Delivery ledger
var (
	ErrRetryExhausted    = errors.New("delivery retry count exhausted")
	ErrNotRetryable      = errors.New("delivery is not in a retryable state")
	ErrDuplicateDelivery = errors.New("delivery already exists for this user and channel")
)

// Session / token
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)
