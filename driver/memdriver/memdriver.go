// Package memdriver is an in-memory driver.Factory used by tests and the
// demo CLI in place of a real database, grounded on the same "fake storage
// backing a real interface" pattern the ambient stack's in-memory caches
// follow.
package memdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/rabidsql/rsqlworker/driver"
)

// Factory is a driver.Factory that hands back a Session reading from an
// in-process table map, optionally seeded with data. Connect succeeds unless
// FailConnect is set, which tests use for the Connecting→Terminated path.
type Factory struct {
	Tables      map[string][]string // database -> table names
	FailConnect bool

	mu     sync.Mutex
	killed map[string]bool
}

// NewFactory returns a Factory seeded with one database holding the given
// tables.
func NewFactory(database string, tables []string) *Factory {
	return &Factory{
		Tables: map[string][]string{database: tables},
		killed: make(map[string]bool),
	}
}

func (f *Factory) Connect(ctx context.Context, host, user, password string) (driver.Session, error) {
	if f.FailConnect {
		return nil, &driver.Error{Code: "CONNECT_FAILED", Message: "memdriver: connect refused"}
	}
	return &session{factory: f, id: fmt.Sprintf("%s:%s", host, user)}, nil
}

type session struct {
	factory *Factory
	id      string
	current string
}

func (s *session) ListDatabases(ctx context.Context, filter []string) (driver.Rows, error) {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	var names []string
	for db := range s.factory.Tables {
		if len(filter) > 0 && !contains(filter, db) {
			continue
		}
		names = append(names, db)
	}
	return newRows([]driver.Column{{Name: "database", Type: driver.ColumnTypeString}}, stringRows(names)), nil
}

func (s *session) ListTables(ctx context.Context, database string) (driver.Rows, error) {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	tables := s.factory.Tables[database]
	return newRows([]driver.Column{{Name: "table", Type: driver.ColumnTypeString}}, stringRows(tables)), nil
}

func (s *session) Execute(ctx context.Context, sql string, args []string) (driver.Rows, int64, error) {
	// memdriver doesn't interpret SQL; it echoes the statement and its
	// bound args back as a single row, which is enough for a caller to
	// assert ExecuteQuery wiring without a real engine behind it.
	row := append([]string{sql}, args...)
	cols := make([]driver.Column, len(row))
	for i := range cols {
		cols[i] = driver.Column{Name: fmt.Sprintf("col%d", i), Type: driver.ColumnTypeString}
	}
	return newRows(cols, [][]string{row}), 0, nil
}

func (s *session) SelectDatabase(ctx context.Context, database string) error {
	s.current = database
	return nil
}

func (s *session) KillQuery(ctx context.Context, sessionID string) error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	if s.factory.killed == nil {
		s.factory.killed = make(map[string]bool)
	}
	s.factory.killed[sessionID] = true
	return nil
}

// Killed reports whether KillQuery has been issued against sessionID.
func (f *Factory) Killed(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed[sessionID]
}

func (s *session) SessionID() string { return s.id }

func (s *session) Close() error { return nil }

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func stringRows(vals []string) [][]string {
	out := make([][]string, len(vals))
	for i, v := range vals {
		out[i] = []string{v}
	}
	return out
}

type rows struct {
	cols []driver.Column
	data [][]string
	pos  int
}

func newRows(cols []driver.Column, data [][]string) *rows {
	return &rows{cols: cols, data: data, pos: -1}
}

func (r *rows) Columns() []driver.Column { return r.cols }

func (r *rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *rows) Scan(dest []any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return fmt.Errorf("memdriver: scan out of range")
	}
	row := r.data[r.pos]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	return nil
}

func (r *rows) Close() error { return nil }
