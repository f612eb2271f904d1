package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation. When hint is non-empty, the violated constraint or column must
// mention it, so callers can tell apart multiple unique indexes on one table.
func IsUniqueViolation(err error, hint string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		if pgxErr.Code != uniqueViolationCode {
			return false
		}
		return hint == "" || strings.Contains(pgxErr.ConstraintName, hint) || strings.Contains(pgxErr.Detail, hint)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) != uniqueViolationCode {
			return false
		}
		return hint == "" || strings.Contains(pqErr.Constraint, hint) || strings.Contains(pqErr.Detail, hint)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return hint == "" || strings.Contains(msg, hint)
}
