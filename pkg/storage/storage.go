// Package storage adapts the node's local SQL engine.
//
// The dispatcher only needs Execute: run one raw statement and hand back the
// rows of a read or the affected-row count of a write. Values come back in
// their text form, nil for SQL NULL.
package storage

import (
	"context"
	"strings"
	"unicode"
)

// Executor runs raw SQL statements against the local engine
type Executor interface {
	Execute(ctx context.Context, stmt string) (*Result, error)
}

// Pinger is implemented by executors that can check engine connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// Result of one statement
type Result struct {
	Columns      []string
	Rows         [][]*string // text values, nil for NULL
	RowsAffected int64
}

// IsReadStatement reports whether stmt is a read: its first token, ignoring
// leading whitespace, is SELECT in any letter case. Everything else is treated
// as a mutation and replicated.
func IsReadStatement(stmt string) bool {
	s := strings.TrimLeftFunc(stmt, unicode.IsSpace)
	if len(s) < len("SELECT") || !strings.EqualFold(s[:len("SELECT")], "SELECT") {
		return false
	}
	rest := s[len("SELECT"):]
	if rest == "" {
		return true
	}
	r := rune(rest[0])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// StatementType returns "read" or "write", used as a metric label
func StatementType(stmt string) string {
	if IsReadStatement(stmt) {
		return "read"
	}
	return "write"
}
