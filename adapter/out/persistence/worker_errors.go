package persistence

import (
	"errors"
	"fmt"
	"net/http"

	"campaign_sync/pkg/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique or primary key
// violation from any of the supported drivers.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// dbError maps a driver error to an AppError. Unique violations become
// CONFLICT so callers can tell a lost insert race from a broken database.
func dbError(operation string, err error) *apperr.AppError {
	if isUniqueViolation(err) {
		return &apperr.AppError{
			Code:    apperr.CodeConflict,
			Message: fmt.Sprintf("%s: already exists", operation),
			Status:  http.StatusConflict,
			Err:     err,
		}
	}
	return apperr.DatabaseError(operation, err)
}
