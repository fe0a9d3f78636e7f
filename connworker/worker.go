// Package connworker implements the Connection Worker described in
// spec.md §4.5: one database session and a FIFO command queue driven by a
// dedicated workerthread.Worker, emitting results through an objectbus
// Object under a single EXECUTED signal.
package connworker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rabidsql/rsqlworker/driver"
	"github.com/rabidsql/rsqlworker/internal/obslog"
	"github.com/rabidsql/rsqlworker/objectbus"
	"github.com/rabidsql/rsqlworker/variant"
	"github.com/rabidsql/rsqlworker/variant/codec"
	"github.com/rabidsql/rsqlworker/workerthread"
)

func init() {
	// Registering here, rather than codec importing connworker, is what
	// keeps codec free of a dependency on the command-dispatch layer.
	codec.DefaultQueryResult = func() variant.QueryResulter {
		return QueryResult{}
	}
}

// EXECUTED is the single signal id Workers emit command results under.
const EXECUTED = "EXECUTED"

// State is a Connection Worker's lifecycle stage (spec.md §4.5).
type State int

const (
	Unstarted State = iota
	Connecting
	Idle
	Busy
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "Unstarted"
	case Connecting:
		return "Connecting"
	case Idle:
		return "Idle"
	case Busy:
		return "Busy"
	case Draining:
		return "Draining"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// SessionKiller resolves another Worker's reservation uuid to the driver
// session id needed for a KillQuery dispatch, breaking what would otherwise
// be a connworker/connmanager import cycle (the Manager is the only thing
// that knows the uuid→Worker mapping).
type SessionKiller interface {
	ResolveSessionID(uuid string) (sessionID string, ok bool)
}

// Worker owns one driver.Session and dispatches QueryCommands against it
// serially, from a single workerthread.Worker goroutine.
type Worker struct {
	factory  driver.Factory
	host     string
	user     string
	password string
	killer   SessionKiller
	log      zerolog.Logger

	object *objectbus.Object
	wt     *workerthread.Worker

	mu      sync.Mutex
	state   State
	queue   []QueryCommand
	busy    bool
	session driver.Session

	lastResult QueryResult
}

// New creates a Worker against one endpoint. The returned Worker is
// Unstarted until Start is called. pump supplies the objectbus.Object the
// Worker emits EXECUTED on.
func New(pump *objectbus.Pump, factory driver.Factory, host, user, password string) *Worker {
	w := &Worker{
		factory:  factory,
		host:     host,
		user:     user,
		password: password,
		object:   pump.NewObject(),
		state:    Unstarted,
		log:      obslog.New("connworker"),
	}
	w.wt = workerthread.New(w.run)
	return w
}

// SetSessionKiller wires the Manager (or any resolver) used by KillQuery
// dispatch. Optional: a Worker never issuing KillQuery need not set one.
func (w *Worker) SetSessionKiller(k SessionKiller) {
	w.mu.Lock()
	w.killer = k
	w.mu.Unlock()
}

// SetLogger overrides the Worker's default obslog logger, letting a caller
// route this Worker's events through an already-tagged logger instead.
func (w *Worker) SetLogger(log zerolog.Logger) {
	w.mu.Lock()
	w.log = log
	w.mu.Unlock()
}

// Object exposes the EXECUTED emitter so callers can Connect a receiver.
func (w *Worker) Object() *objectbus.Object { return w.object }

// Start launches the worker goroutine; idempotent.
func (w *Worker) Start() { w.wt.Start() }

// Stop requests the worker to drain and terminate; block waits for it.
func (w *Worker) Stop(block bool) {
	w.setState(func(s State) State {
		if s == Idle || s == Busy || s == Connecting {
			return Draining
		}
		return s
	})
	w.wt.Stop(block)
}

// IsStopping reports whether Stop has been requested.
func (w *Worker) IsStopping() bool { return w.wt.IsStopping() }

// IsFinished reports whether the worker goroutine has returned.
func (w *Worker) IsFinished() bool { return w.wt.IsFinished() }

// Join blocks until the worker goroutine finishes.
func (w *Worker) Join() { w.wt.Join() }

// State returns the worker's current lifecycle stage.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsBusyOrQueued reports whether the worker has an in-flight command or any
// queued, used by the Manager's reservation scan to decide reuse/retirement.
func (w *Worker) IsBusyOrQueued() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy || len(w.queue) > 0
}

// SessionID returns the underlying driver session's id, or "" before connect
// completes.
func (w *Worker) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return ""
	}
	return w.session.SessionID()
}

// Call enqueues cmd. The busy flag is raised before the command is actually
// dequeued, so a caller observing Call's return already sees the Worker as
// taken (spec.md §4.5).
func (w *Worker) Call(cmd QueryCommand) {
	cmd.Arguments = normalizeArguments(cmd.Arguments)
	w.mu.Lock()
	w.busy = true
	w.queue = append(w.queue, cmd)
	w.mu.Unlock()
}

func (w *Worker) setState(f func(State) State) {
	w.mu.Lock()
	w.state = f(w.state)
	w.mu.Unlock()
}

func (w *Worker) dequeue() (QueryCommand, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		w.busy = false
		return QueryCommand{}, false
	}
	cmd := w.queue[0]
	w.queue = w.queue[1:]
	return cmd, true
}

func (w *Worker) emitExecuted(result QueryResult) {
	w.mu.Lock()
	w.lastResult = result
	w.mu.Unlock()
	w.object.Emit(EXECUTED, result)
}

// run is the workerthread.Run body: connect, then dispatch commands until
// stopped and drained.
func (w *Worker) run(stop <-chan struct{}) {
	ctx := context.Background()

	w.setState(func(State) State { return Connecting })
	sess, err := w.factory.Connect(ctx, w.host, w.user, w.password)
	if err != nil {
		w.log.Error().Stack().Err(obslog.WithStack(err)).Str("host", w.host).Msg("connect failed")
		w.setState(func(State) State { return Terminated })
		w.emitExecuted(errorResult(variant.Null(), TestConnection, err))
		return
	}
	w.mu.Lock()
	w.session = sess
	w.mu.Unlock()
	w.setState(func(State) State { return Idle })
	connectResult := QueryResult{UID: variant.Null(), Valid: true, Event: TestConnection}

	for {
		cmd, ok := w.dequeue()
		if !ok {
			select {
			case <-stop:
				if w.queueIsEmpty() {
					w.closeSession()
					w.setState(func(State) State { return Terminated })
					return
				}
			default:
			}
			// NoEvent: sleep to avoid a busy loop (spec.md §4.5).
			time.Sleep(100 * time.Millisecond)
			continue
		}

		w.setState(func(State) State { return Busy })
		result := w.dispatch(ctx, cmd, connectResult)
		w.emitExecuted(result)
		if cmd.Event == Disconnect {
			w.closeSession()
			w.setState(func(State) State { return Terminated })
			return
		}
		w.setState(func(State) State { return Idle })
	}
}

func (w *Worker) queueIsEmpty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) == 0
}

func (w *Worker) closeSession() {
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

func (w *Worker) dispatch(ctx context.Context, cmd QueryCommand, connectResult QueryResult) QueryResult {
	w.mu.Lock()
	sess := w.session
	killer := w.killer
	w.mu.Unlock()

	switch cmd.Event {
	case NoEvent:
		return QueryResult{UID: cmd.UID, Valid: true, Event: cmd.Event}

	case TestConnection:
		r := connectResult
		r.UID = cmd.UID
		return r

	case ListDatabases:
		rows, err := sess.ListDatabases(ctx, arg(cmd.Arguments, 0).StringSlice())
		if err != nil {
			return errorResult(cmd.UID, cmd.Event, err)
		}
		return w.resultFromRows(cmd, rows)

	case ListTables:
		rows, err := sess.ListTables(ctx, arg(cmd.Arguments, 0).String())
		if err != nil {
			return errorResult(cmd.UID, cmd.Event, err)
		}
		return w.resultFromRows(cmd, rows)

	case ExecuteQuery:
		sql := arg(cmd.Arguments, 0).String()
		var params []string
		for _, a := range cmd.Arguments[minInt(1, len(cmd.Arguments)):] {
			params = append(params, a.String())
		}
		rows, affected, err := sess.Execute(ctx, sql, params)
		if err != nil {
			return errorResult(cmd.UID, cmd.Event, err)
		}
		r := w.resultFromRows(cmd, rows)
		r.AffectedRows = int32(affected)
		return r

	case SelectDatabase:
		if err := sess.SelectDatabase(ctx, arg(cmd.Arguments, 0).String()); err != nil {
			return errorResult(cmd.UID, cmd.Event, err)
		}
		return QueryResult{UID: cmd.UID, Valid: true, Event: cmd.Event}

	case KillQuery:
		targetUUID := arg(cmd.Arguments, 0).String()
		if killer == nil {
			return errorResult(cmd.UID, cmd.Event, errNoKiller)
		}
		sessionID, ok := killer.ResolveSessionID(targetUUID)
		if !ok {
			return errorResult(cmd.UID, cmd.Event, errUnknownReservation)
		}
		if err := sess.KillQuery(ctx, sessionID); err != nil {
			return errorResult(cmd.UID, cmd.Event, err)
		}
		return QueryResult{UID: cmd.UID, Valid: true, Event: cmd.Event}

	case CleanState:
		// Reserved for rollback-on-recycle; currently a no-op.
		return QueryResult{UID: cmd.UID, Valid: true, Event: cmd.Event}

	case Disconnect:
		return QueryResult{UID: cmd.UID, Valid: true, Event: cmd.Event}

	default:
		return errorResult(cmd.UID, cmd.Event, errUnknownEvent)
	}
}

func (w *Worker) resultFromRows(cmd QueryCommand, rows driver.Rows) QueryResult {
	defer rows.Close()
	cols := rows.Columns()
	colNames := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = c.Name
	}
	var out [][]variant.Variant
	for rows.Next() {
		dest := make([]any, len(cols))
		if err := rows.Scan(dest); err != nil {
			qlog := obslog.ForQuery(w.log, cmd.UID.String(), cmd.Event)
			qlog.Error().Stack().Err(obslog.WithStack(err)).Msg("row decode failed")
			return errorResult(cmd.UID, cmd.Event, err)
		}
		row := make([]variant.Variant, len(dest))
		for i, v := range dest {
			row[i] = variantFromAny(v)
		}
		out = append(out, row)
	}
	return QueryResult{
		UID:       cmd.UID,
		Valid:     true,
		Event:     cmd.Event,
		RowsCount: int32(len(out)),
		Columns:   colNames,
		Rows:      out,
	}
}

func variantFromAny(v any) variant.Variant {
	switch t := v.(type) {
	case nil:
		return variant.Null()
	case string:
		return variant.NewString(t)
	case int64:
		return variant.NewInt64(t)
	case int:
		return variant.NewInt64(int64(t))
	case uint64:
		return variant.NewUint64(t)
	case float64:
		return variant.NewFloat64(t)
	case bool:
		return variant.NewBool(t)
	default:
		return variant.NewString(toString(t))
	}
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
