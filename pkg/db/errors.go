package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint violation, optionally
// on a named constraint. SQLite surfaces no SQLSTATE, so its message text is checked.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if state, constraint, ok := pkgerrors.SQLState(err); ok {
		return state == pkgerrors.SQLStateUniqueViolation && (constraintName == "" || constraint == constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsRetryableTx reports whether a transaction failed only because it lost a race
// and can be rerun as is.
func IsRetryableTx(err error) bool {
	if err == nil {
		return false
	}
	if state, _, ok := pkgerrors.SQLState(err); ok {
		return state == pkgerrors.SQLStateSerialization || state == pkgerrors.SQLStateDeadlock
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
