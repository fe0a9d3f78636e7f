// Package pgdriver is a driver.Factory backed by Postgres via pgx, the
// concrete adapter a production Connection Worker would actually dial out
// with (wiring github.com/jackc/pgx/v5 per the domain-stack plan).
package pgdriver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rabidsql/rsqlworker/driver"
)

// Factory opens pgx connections against one Postgres endpoint.
type Factory struct {
	// Database is appended to the DSN; the driver contract's
	// host/user/password triple doesn't carry a database name, and
	// Postgres requires one to connect at all.
	Database string
}

// NewFactory targets database on connect.
func NewFactory(database string) *Factory {
	return &Factory{Database: database}
}

func (f *Factory) Connect(ctx context.Context, host, user, password string) (driver.Session, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s", user, password, host, f.Database)
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, &driver.Error{Code: "CONNECT_FAILED", Message: err.Error()}
	}
	pid := conn.PgConn().PID()
	return &session{conn: conn, sessionID: fmt.Sprintf("%d", pid)}, nil
}

type session struct {
	conn      *pgx.Conn
	sessionID string
	current   string
}

func (s *session) ListDatabases(ctx context.Context, filter []string) (driver.Rows, error) {
	rows, err := s.conn.Query(ctx, "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
	if err != nil {
		return nil, wrapErr(err)
	}
	return newFilteredRows(rows, []driver.Column{{Name: "datname", Type: driver.ColumnTypeString}}, filter), nil
}

func (s *session) ListTables(ctx context.Context, database string) (driver.Rows, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_catalog = $1 ORDER BY table_name", database)
	if err != nil {
		return nil, wrapErr(err)
	}
	return newRows(rows, []driver.Column{{Name: "table_name", Type: driver.ColumnTypeString}}), nil
}

func (s *session) Execute(ctx context.Context, sql string, args []string) (driver.Rows, int64, error) {
	bound := make([]any, len(args))
	for i, a := range args {
		bound[i] = a
	}
	rows, err := s.conn.Query(ctx, sql, bound...)
	if err != nil {
		return nil, 0, wrapErr(err)
	}
	r := newRows(rows, columnsFromFields(rows.FieldDescriptions()))
	if len(r.cols) > 0 {
		return r, 0, nil
	}
	// No result columns: closing the rows completes the statement and makes
	// its command tag, and with it the affected-row count, available.
	if err := r.Close(); err != nil {
		return nil, 0, wrapErr(err)
	}
	return r, rows.CommandTag().RowsAffected(), nil
}

func (s *session) SelectDatabase(ctx context.Context, database string) error {
	// pgx connections are bound to a database at connect time; switching
	// mid-session requires a fresh connection in the general case. The
	// requested name is only recorded; the socket stays on the connect-time
	// database, and ListTables filters by its own argument, not this name.
	s.current = database
	return nil
}

func (s *session) KillQuery(ctx context.Context, sessionID string) error {
	_, err := s.conn.Exec(ctx, "SELECT pg_cancel_backend($1)", sessionID)
	return wrapErr(err)
}

func (s *session) SessionID() string { return s.sessionID }

func (s *session) Close() error {
	return s.conn.Close(context.Background())
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok {
		return &driver.Error{Code: pgErr.Code, Message: pgErr.Message}
	}
	return &driver.Error{Code: "DRIVER_ERROR", Message: err.Error()}
}

func asPgError(err error, target **pgconn.PgError) bool {
	pgErr, ok := err.(*pgconn.PgError)
	if ok {
		*target = pgErr
	}
	return ok
}

func columnsFromFields(fields []pgconn.FieldDescription) []driver.Column {
	cols := make([]driver.Column, len(fields))
	for i, f := range fields {
		cols[i] = driver.Column{Name: f.Name, Type: driver.ColumnTypeString}
	}
	return cols
}

type rowsAdapter struct {
	pgRows pgx.Rows
	cols   []driver.Column
	filter []string
	n      int64
}

func newRows(pgRows pgx.Rows, cols []driver.Column) *rowsAdapter {
	return &rowsAdapter{pgRows: pgRows, cols: cols}
}

func newFilteredRows(pgRows pgx.Rows, cols []driver.Column, filter []string) *rowsAdapter {
	return &rowsAdapter{pgRows: pgRows, cols: cols, filter: filter}
}

func (r *rowsAdapter) Columns() []driver.Column { return r.cols }

func (r *rowsAdapter) Next() bool {
	for r.pgRows.Next() {
		r.n++
		if len(r.filter) == 0 {
			return true
		}
		vals, err := r.pgRows.Values()
		if err != nil || len(vals) == 0 {
			continue
		}
		name, _ := vals[0].(string)
		if contains(r.filter, name) {
			return true
		}
	}
	return false
}

func (r *rowsAdapter) Scan(dest []any) error {
	vals, err := r.pgRows.Values()
	if err != nil {
		return err
	}
	for i := range dest {
		if i < len(vals) && vals[i] != nil {
			// Every column is declared ColumnTypeString (columnsFromFields).
			dest[i] = fmt.Sprint(vals[i])
		} else {
			dest[i] = nil
		}
	}
	return nil
}

func (r *rowsAdapter) Close() error {
	r.pgRows.Close()
	return r.pgRows.Err()
}

func (r *rowsAdapter) affected() int64 { return r.n }

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
