// Package driver defines the database-driver contract a Connection Worker
// dispatches against (spec.md §6). The bindings themselves (MySQL, Postgres,
// ...) are out of scope for the core runtime; this package only fixes the
// shape every concrete adapter must satisfy.
package driver

import "context"

// ColumnType is a coarse classification of a result column, enough for a
// caller to pick a typed getter without needing the full driver-native type
// system.
type ColumnType int

const (
	ColumnTypeUnknown ColumnType = iota
	ColumnTypeString
	ColumnTypeInt
	ColumnTypeUint
	ColumnTypeFloat
	ColumnTypeBool
	ColumnTypeNull
)

// Column describes one column of a Rows result.
type Column struct {
	Name string
	Type ColumnType
}

// Error wraps a driver-native failure with a caller-facing code and message,
// the shape a QueryError is built from at the adapter boundary.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Rows is a fully materialised result set: spec.md's Non-goals explicitly
// exclude streaming, so a driver returns Columns()/Next()/Scan() the caller
// drains completely before the Worker packages a QueryResult.
type Rows interface {
	Columns() []Column
	Next() bool
	// Scan decodes the current row into dest, one entry per column, typed
	// per that column's ColumnType (string, int64, uint64, float64, bool,
	// or nil).
	Scan(dest []any) error
	Close() error
}

// Session is one live database connection, exclusively owned by a single
// Connection Worker for its lifetime (spec.md §5: "no two threads ever touch
// one session").
type Session interface {
	ListDatabases(ctx context.Context, filter []string) (Rows, error)
	ListTables(ctx context.Context, database string) (Rows, error)
	// Execute runs sql with args bound to driver-side positional
	// placeholders and reports the number of rows affected for
	// non-SELECT statements (0 for SELECT, whose rows are in the
	// returned Rows).
	Execute(ctx context.Context, sql string, args []string) (Rows, int64, error)
	SelectDatabase(ctx context.Context, database string) error
	// KillQuery issues a driver-specific "kill the query running on
	// sessionID" primitive from this (a different) session.
	KillQuery(ctx context.Context, sessionID string) error
	// SessionID identifies this session to another session's KillQuery.
	SessionID() string
	Close() error
}

// Factory opens Sessions against one endpoint description. A Connection
// Worker holds exactly one Factory and opens exactly one Session from it.
type Factory interface {
	Connect(ctx context.Context, host, user, password string) (Session, error)
}
