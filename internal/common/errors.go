package common

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes shared by every layer. Wrap them with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrAuth              = errors.New("marketplace authentication failed")
	ErrNotFound          = errors.New("not found")
	ErrIntegrityConflict = errors.New("integrity conflict")
	ErrParse             = errors.New("parse error")
	ErrTransient         = errors.New("transient network failure")
	ErrMalformedResponse = errors.New("malformed response")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// IsForeignKeyViolation reports whether err is a Postgres foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == foreignKeyViolation
	}
	return false
}
