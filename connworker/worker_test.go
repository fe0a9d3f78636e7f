package connworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabidsql/rsqlworker/driver/memdriver"
	"github.com/rabidsql/rsqlworker/objectbus"
	"github.com/rabidsql/rsqlworker/variant"
)

func waitForResult(t *testing.T, pump *objectbus.Pump, got *[]QueryResult) {
	t.Helper()
	require.Eventually(t, func() bool {
		pump.ProcessEvents()
		return len(*got) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_ConnectFailure_EmitsErrorAndTerminates(t *testing.T) {
	pump := objectbus.NewPump()
	factory := &memdriver.Factory{FailConnect: true}
	w := New(pump, factory, "host", "user", "pass")

	receiver := pump.NewObject()
	var results []QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(QueryResult))
	})
	w.Object().Connect(EXECUTED, receiver)

	w.Start()
	waitForResult(t, pump, &results)

	require.Len(t, results, 1)
	assert.True(t, results[0].Error.IsError)

	require.Eventually(t, w.IsFinished, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Terminated, w.State())
}

func TestWorker_ListDatabases_WithFilter(t *testing.T) {
	pump := objectbus.NewPump()
	factory := memdriver.NewFactory("test", []string{"users", "orders"})
	w := New(pump, factory, "host", "user", "pass")

	receiver := pump.NewObject()
	var results []QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(QueryResult))
	})
	w.Object().Connect(EXECUTED, receiver)
	w.Start()

	w.Call(QueryCommand{
		UID:       variant.NewString("uid"),
		Event:     ListDatabases,
		Arguments: []variant.Variant{variant.NewStringSlice([]string{"test"})},
	})

	waitForResult(t, pump, &results)
	w.Stop(true)

	require.Len(t, results, 1)
	r := results[0]
	assert.False(t, r.Error.IsError)
	assert.Equal(t, ListDatabases, r.Event)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "test", r.Rows[0][0].String())
}

func TestWorker_Call_RaisesBusyBeforeDequeue(t *testing.T) {
	pump := objectbus.NewPump()
	factory := memdriver.NewFactory("test", nil)
	w := New(pump, factory, "host", "user", "pass")
	w.Start()
	require.Eventually(t, func() bool { return w.State() == Idle }, 2*time.Second, 10*time.Millisecond)

	w.Call(QueryCommand{UID: variant.NewString("a"), Event: NoEvent})
	assert.True(t, w.IsBusyOrQueued())
	w.Stop(true)
}

func TestWorker_EmptyArguments_NormalizedToNull(t *testing.T) {
	pump := objectbus.NewPump()
	factory := memdriver.NewFactory("test", []string{"t"})
	w := New(pump, factory, "host", "user", "pass")

	receiver := pump.NewObject()
	var results []QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(QueryResult))
	})
	w.Object().Connect(EXECUTED, receiver)
	w.Start()

	w.Call(QueryCommand{UID: variant.NewString("uid"), Event: ListTables})
	waitForResult(t, pump, &results)
	w.Stop(true)

	require.Len(t, results, 1)
	assert.False(t, results[0].Error.IsError)
}

func TestWorker_Disconnect_TerminatesAfterEmitting(t *testing.T) {
	pump := objectbus.NewPump()
	factory := memdriver.NewFactory("test", nil)
	w := New(pump, factory, "host", "user", "pass")

	receiver := pump.NewObject()
	var results []QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(QueryResult))
	})
	w.Object().Connect(EXECUTED, receiver)
	w.Start()

	w.Call(QueryCommand{UID: variant.NewString("bye"), Event: Disconnect})
	waitForResult(t, pump, &results)

	require.Eventually(t, w.IsFinished, 2*time.Second, 10*time.Millisecond)
	require.Len(t, results, 1)
	assert.Equal(t, Disconnect, results[0].Event)
}

func TestWorker_KillQuery_WithoutKillerWired_Errors(t *testing.T) {
	pump := objectbus.NewPump()
	factory := memdriver.NewFactory("test", nil)
	w := New(pump, factory, "host", "user", "pass")

	receiver := pump.NewObject()
	var results []QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(QueryResult))
	})
	w.Object().Connect(EXECUTED, receiver)
	w.Start()

	w.Call(QueryCommand{
		UID:       variant.NewString("k"),
		Event:     KillQuery,
		Arguments: []variant.Variant{variant.NewString("some-uuid")},
	})
	waitForResult(t, pump, &results)
	w.Stop(true)

	require.Len(t, results, 1)
	assert.True(t, results[0].Error.IsError)
}
