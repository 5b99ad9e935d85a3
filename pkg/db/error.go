package db

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes the store reacts to.
const (
	PGUniqueViolation      = "23505"
	PGSerializationFailure = "40001"
	PGDeadlockDetected     = "40P01"
	PGLockNotAvailable     = "55P03"
)

// PGCode returns the SQLSTATE of a PostgreSQL error, or "".
func PGCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	// gorm wraps driver errors in gorm.Err*
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if PGCode(err) == PGUniqueViolation {
		return true
	}

	// PostgreSQL (error code 23505) when the driver error was flattened to text
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsContentionErr reports lock waits, deadlocks and serialization failures a caller may retry.
func IsContentionErr(err error) bool {
	if err == nil {
		return false
	}
	switch PGCode(err) {
	case PGSerializationFailure, PGDeadlockDetected, PGLockNotAvailable:
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"Error 1213", // MySQL deadlock
		"Error 1205", // MySQL lock wait timeout
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func IsConnectionErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "sql: database is closed")
}
