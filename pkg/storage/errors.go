package storage

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrStatement      = errors.New("statement failed")
	ErrEmptyStatement = errors.New("empty statement")
	ErrStorageClosed  = errors.New("storage is closed")
)

// StatementError carries the engine's failure for one statement. It matches
// ErrStatement with errors.Is in addition to its cause.
type StatementError struct {
	Op        string // "query" or "exec"
	Statement string // statement as submitted
	Cause     error  // engine error
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStatement, e.Op, e.Cause)
}

// Message returns the engine's own message, the text reported back to clients
func (e *StatementError) Message() string {
	if e.Cause == nil {
		return ErrStatement.Error()
	}
	return e.Cause.Error()
}

// Unwrap returns the underlying cause for error chain support.
func (e *StatementError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrStatement or matches the cause.
func (e *StatementError) Is(target error) bool {
	return target == ErrStatement
}

// NewStatementError wraps an engine failure
func NewStatementError(op, stmt string, cause error) *StatementError {
	return &StatementError{Op: op, Statement: stmt, Cause: cause}
}

// ErrorMessage returns the text a client should see for err. Statement
// failures report the engine message only.
func ErrorMessage(err error) string {
	var se *StatementError
	if errors.As(err, &se) {
		return se.Message()
	}
	return err.Error()
}
