package errors

// Postgres SQLSTATE codes the ledger reacts to.
const (
	SQLStateUniqueViolation     = "23505"
	SQLStateForeignKeyViolation = "23503"
	SQLStateCheckViolation      = "23514"
	SQLStateSerialization       = "40001"
	SQLStateDeadlock            = "40P01"
)

// SQLState extracts the SQLSTATE and constraint name from pgx or lib/pq errors.
func SQLState(err error) (state, constraint string, ok bool) {
	state, constraint, _, _ = pgDiagnostics(err)
	return state, constraint, state != ""
}

// FromDB wraps a storage failure in the code a caller can act on. Typed errors
// pass through unchanged and nil stays nil.
func FromDB(err error, message string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	state, constraint, _ := SQLState(err)
	switch state {
	case SQLStateSerialization, SQLStateDeadlock:
		return Wrap(CodeConcurrentUpdate, err, message)
	case SQLStateUniqueViolation, SQLStateCheckViolation, SQLStateForeignKeyViolation:
		return Wrap(CodeConflict, err, message).WithDetails(map[string]any{"constraint": constraint})
	}
	return Wrap(CodeDependency, err, message)
}
