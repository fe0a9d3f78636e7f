package connmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabidsql/rsqlworker/connworker"
	"github.com/rabidsql/rsqlworker/driver/memdriver"
	"github.com/rabidsql/rsqlworker/objectbus"
	"github.com/rabidsql/rsqlworker/variant"
	"github.com/rabidsql/rsqlworker/workerthread"
)

func memWorkerFactory(database string, tables []string) WorkerFactory {
	factory := memdriver.NewFactory(database, tables)
	return func(pump *objectbus.Pump) *connworker.Worker {
		return connworker.New(pump, factory, "host", "user", "pass")
	}
}

func TestManager_ReserveReleaseShutdown(t *testing.T) {
	pump := objectbus.NewPump()
	before := workerthread.ActiveCount()

	m := New(pump, memWorkerFactory("test", nil), 1)
	ctx := context.Background()
	uuid := m.Reserve(ctx, 0, nil)
	require.NotEmpty(t, uuid)

	require.Eventually(t, func() bool {
		return workerthread.ActiveCount() == before+1
	}, 2*time.Second, 10*time.Millisecond)

	m.Release(uuid)
	m.Close()

	require.Eventually(t, func() bool {
		return workerthread.ActiveCount() == before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ImplicitShutdown_WithoutRelease(t *testing.T) {
	pump := objectbus.NewPump()
	before := workerthread.ActiveCount()

	m := New(pump, memWorkerFactory("test", nil), 1)
	uuid := m.Reserve(context.Background(), 0, nil)
	require.NotEmpty(t, uuid)

	require.Eventually(t, func() bool {
		return workerthread.ActiveCount() == before+1
	}, 2*time.Second, 10*time.Millisecond)

	m.Close()

	require.Eventually(t, func() bool {
		return workerthread.ActiveCount() == before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ListDatabasesWithFilter(t *testing.T) {
	pump := objectbus.NewPump()
	m := New(pump, memWorkerFactory("test", []string{"users"}), 1)
	defer m.Close()

	receiver := pump.NewObject()
	var results []connworker.QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(connworker.QueryResult))
	})

	uuid := m.Reserve(context.Background(), 0, receiver)
	require.NotEmpty(t, uuid)

	m.Call(uuid, variant.NewString("uid"), connworker.ListDatabases,
		[]variant.Variant{variant.NewStringSlice([]string{"test"})}, false)

	require.Eventually(t, func() bool {
		pump.ProcessEvents()
		return len(results) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r := results[0]
	assert.False(t, r.Error.IsError)
	assert.Equal(t, connworker.ListDatabases, r.Event)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "test", r.Rows[0][0].String())
}

func TestManager_MaxConcurrent_ZeroPromotedToOne(t *testing.T) {
	pump := objectbus.NewPump()
	m := New(pump, memWorkerFactory("test", nil), 0)
	defer m.Close()
	assert.Equal(t, uint32(1), m.maxConcurrent)
}

func TestManager_Call_Blocking_ReturnsAfterDelivery(t *testing.T) {
	pump := objectbus.NewPump()
	m := New(pump, memWorkerFactory("test", []string{"users"}), 1)
	defer m.Close()

	receiver := pump.NewObject()
	var results []connworker.QueryResult
	receiver.SetHandler(func(e objectbus.Event) {
		results = append(results, e.Payload.(connworker.QueryResult))
	})

	uuid := m.Reserve(context.Background(), 0, receiver)
	require.NotEmpty(t, uuid)

	m.Call(uuid, variant.NewString("b1"), connworker.ListTables,
		[]variant.Variant{variant.NewString("test")}, true)

	// Blocking Call pumps until the matching uid lands, so the receiver's
	// handler has already run by the time it returns.
	require.Len(t, results, 1)
	assert.Equal(t, connworker.ListTables, results[0].Event)
}

func TestManager_IndefiniteReservation_DoesNotConsumeGrowthSlot(t *testing.T) {
	pump := objectbus.NewPump()
	m := New(pump, memWorkerFactory("test", nil), 1)
	defer m.Close()

	first := m.Reserve(context.Background(), 0, nil)
	require.NotEmpty(t, first)

	// The indefinitely-reserved worker is skipped by the growth count, so a
	// second reservation still gets its own worker under maxConcurrent == 1
	// instead of wedging in the back-off loop.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second := m.Reserve(ctx, 0, nil)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestManager_KillQuery_TargetsPrimarySession(t *testing.T) {
	pump := objectbus.NewPump()
	factory := memdriver.NewFactory("test", nil)

	var m *Manager
	m = New(pump, func(p *objectbus.Pump) *connworker.Worker {
		w := connworker.New(p, factory, "host", "user", "pass")
		w.SetSessionKiller(m)
		return w
	}, 2)
	defer m.Close()

	primary := m.Reserve(context.Background(), 0, nil)
	require.NotEmpty(t, primary)

	require.Eventually(t, func() bool {
		w := m.workerFor(primary)
		return w != nil && w.SessionID() != ""
	}, 2*time.Second, 10*time.Millisecond)
	target := m.workerFor(primary).SessionID()

	m.KillQuery(context.Background(), primary)

	require.Eventually(t, func() bool {
		pump.ProcessEvents()
		return factory.Killed(target)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_Retire_StampedWorkerMovesToRetiring(t *testing.T) {
	pump := objectbus.NewPump()
	m := New(pump, memWorkerFactory("test", nil), 2)
	defer m.Close()

	first := m.Reserve(context.Background(), 100, nil)
	require.NotEmpty(t, first)

	// Wait out the connect so the worker is idle with an empty queue;
	// only then is it eligible for the retire scan.
	require.Eventually(t, func() bool {
		w := m.workerFor(first)
		return w != nil && !w.IsBusyOrQueued() && w.State() == connworker.Idle
	}, 2*time.Second, 10*time.Millisecond)

	// The preserved predicate retires workers whose stamped deadline is
	// still in the future, so the next Reserve scan reaps the first one.
	second := m.Reserve(context.Background(), 0, nil)
	require.NotEmpty(t, second)

	require.Eventually(t, func() bool {
		pump.ProcessEvents()
		m.mu.Lock()
		_, stillActive := func() (*record, bool) {
			for _, rec := range m.active {
				if rec.uuid == first {
					return rec, true
				}
			}
			return nil, false
		}()
		m.mu.Unlock()
		return !stillActive
	}, 2*time.Second, 10*time.Millisecond)

	// Once its Disconnect result reaches the manager's notify object, the
	// retiring worker is joined and forgotten.
	require.Eventually(t, func() bool {
		pump.ProcessEvents()
		m.mu.Lock()
		n := len(m.retiring)
		m.mu.Unlock()
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ReservedIndefinitely_NeverRetired(t *testing.T) {
	pump := objectbus.NewPump()
	m := New(pump, memWorkerFactory("test", nil), 2)
	defer m.Close()

	uuid := m.Reserve(context.Background(), 0, nil)
	require.NotEmpty(t, uuid)

	m.mu.Lock()
	_, stillActive := func() (*record, bool) {
		for _, rec := range m.active {
			if rec.uuid == uuid {
				return rec, true
			}
		}
		return nil, false
	}()
	m.mu.Unlock()
	assert.True(t, stillActive)
}
