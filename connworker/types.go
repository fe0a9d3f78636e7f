package connworker

import (
	"errors"

	"github.com/rabidsql/rsqlworker/driver"
	"github.com/rabidsql/rsqlworker/variant"
)

var (
	errNoKiller           = errors.New("connworker: KillQuery issued with no SessionKiller wired")
	errUnknownReservation = errors.New("connworker: KillQuery target uuid not resolvable to a session")
	errUnknownEvent       = errors.New("connworker: unrecognised QueryEvent")
)

// QueryEvent is the closed set of commands a Connection Worker dispatches
// (spec.md §3/§4.5).
type QueryEvent int

const (
	NoEvent QueryEvent = iota
	TestConnection
	ListDatabases
	ListTables
	ExecuteQuery
	KillQuery
	Disconnect
	CleanState
	SelectDatabase
)

func (e QueryEvent) String() string {
	switch e {
	case NoEvent:
		return "NoEvent"
	case TestConnection:
		return "TestConnection"
	case ListDatabases:
		return "ListDatabases"
	case ListTables:
		return "ListTables"
	case ExecuteQuery:
		return "ExecuteQuery"
	case KillQuery:
		return "KillQuery"
	case Disconnect:
		return "Disconnect"
	case CleanState:
		return "CleanState"
	case SelectDatabase:
		return "SelectDatabase"
	default:
		return "Unknown"
	}
}

// QueryError packages a driver failure for delivery inside a QueryResult,
// never as a Go error crossing the worker/caller boundary.
type QueryError struct {
	IsError bool
	Code    variant.Variant
	Message string
}

// QueryResult is the outcome of one dispatched command, delivered to the
// caller's mailbox under the EXECUTED signal. It implements
// variant.QueryResulter so it can travel wrapped in a Variant.
type QueryResult struct {
	UID          variant.Variant
	Valid        bool
	AffectedRows int32
	RowsCount    int32
	Event        QueryEvent
	Error        QueryError
	Columns      []string
	Rows         [][]variant.Variant
}

// VariantUID implements variant.QueryResulter: two QueryResults compare
// equal, for Variant purposes, iff their UIDs do.
func (r QueryResult) VariantUID() variant.Variant { return r.UID }

func errorResult(uid variant.Variant, event QueryEvent, err error) QueryResult {
	return QueryResult{
		UID:   uid,
		Valid: false,
		Event: event,
		Error: QueryError{
			IsError: true,
			Code:    variant.NewString(errorCode(err)),
			Message: err.Error(),
		},
	}
}

func errorCode(err error) string {
	var de *driver.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "ERROR"
}

// QueryCommand is a unit of work queued on a Worker. Its uid is opaque to the
// Worker and is echoed back verbatim in the resulting QueryResult so the
// caller can correlate request and response.
type QueryCommand struct {
	UID       variant.Variant
	Event     QueryEvent
	Arguments []variant.Variant
}

// normalizeArguments ensures arg0 is always addressable, per spec.md §4.5.
func normalizeArguments(args []variant.Variant) []variant.Variant {
	if len(args) == 0 {
		return []variant.Variant{variant.Null()}
	}
	return args
}

func arg(args []variant.Variant, i int) variant.Variant {
	if i < 0 || i >= len(args) {
		return variant.Null()
	}
	return args[i]
}
