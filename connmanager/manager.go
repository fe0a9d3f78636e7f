// Package connmanager implements the Connection Manager described in
// spec.md §4.6: reservation, reuse, expiry-driven retirement and shutdown of
// connworker.Workers under a configured maximum.
package connmanager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rabidsql/rsqlworker/connworker"
	"github.com/rabidsql/rsqlworker/internal/obslog"
	"github.com/rabidsql/rsqlworker/objectbus"
	"github.com/rabidsql/rsqlworker/rsqluuid"
	"github.com/rabidsql/rsqlworker/variant"
)

// DefaultExpirySeconds is re-stamped onto a reservation by Release, per
// spec.md §4.6: the Worker isn't destroyed on release, it just becomes
// eligible for reaping after this grace period.
const DefaultExpirySeconds = 10

// record is the Manager's bookkeeping for one active reservation
// (spec.md §3's Connection Reservation Record).
type record struct {
	uuid     string
	expiry   int64 // epoch seconds; 0 = reserved indefinitely
	receiver *objectbus.Object
}

// WorkerFactory constructs a new, unstarted connworker.Worker bound to the
// Manager's configured endpoint. The Manager's "template worker" from
// spec.md §3/§4.6 becomes this factory function: calling it is the Go
// equivalent of "clone the template and start it".
type WorkerFactory func(pump *objectbus.Pump) *connworker.Worker

// Manager reserves, reuses, expires, and retires connworker.Workers.
type Manager struct {
	pump          *objectbus.Pump
	newWorker     WorkerFactory
	maxConcurrent uint32

	mu       sync.Mutex
	active   map[*connworker.Worker]*record
	retiring map[string]*connworker.Worker

	notifyObj *objectbus.Object
	log       zerolog.Logger
	nowFunc   func() int64
}

// New creates a Manager. maxConnections is clamped to at least 1, per
// spec.md §4.6 ("0 in config is promoted to 1").
func New(pump *objectbus.Pump, newWorker WorkerFactory, maxConnections uint32) *Manager {
	if maxConnections == 0 {
		maxConnections = 1
	}
	m := &Manager{
		pump:          pump,
		newWorker:     newWorker,
		maxConcurrent: maxConnections,
		active:        make(map[*connworker.Worker]*record),
		retiring:      make(map[string]*connworker.Worker),
		log:           obslog.New("connmanager"),
		nowFunc:       func() int64 { return time.Now().Unix() },
	}
	m.notifyObj = pump.NewObject()
	m.notifyObj.SetHandler(m.handleDisconnectedNotify)
	return m
}

// handleDisconnectedNotify is notifyObj's EXECUTED handler: a retiring
// Worker has every EXECUTED receiver disconnected and notifyObj connected in
// their place, so its own Disconnect-command result reaches only this
// handler.
func (m *Manager) handleDisconnectedNotify(e objectbus.Event) {
	r, ok := e.Payload.(connworker.QueryResult)
	if !ok || r.Event != connworker.Disconnect {
		return
	}
	m.disconnectedNotify(r.UID.String())
}

// ResolveSessionID implements connworker.SessionKiller: it maps a
// reservation uuid to the driver session id of the Worker that holds it,
// for another Worker's KillQuery dispatch to act on.
func (m *Manager) ResolveSessionID(uuid string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for w, rec := range m.active {
		if rec.uuid == uuid {
			return w.SessionID(), true
		}
	}
	return "", false
}

// Reserve implements the algorithm in spec.md §4.6: reuse a stopping-but-idle
// Worker, retire an expired one opportunistically, or grow the pool up to
// maxConcurrent; otherwise back off and retry. expirySeconds == 0 reserves
// indefinitely.
func (m *Manager) Reserve(ctx context.Context, expirySeconds int64, receiver *objectbus.Object) string {
	var deadline int64
	if expirySeconds > 0 {
		deadline = m.nowFunc() + expirySeconds
	}

	for {
		chosen, uuid := m.tryReserveOnce(deadline, receiver)
		if chosen != nil {
			if receiver != nil {
				chosen.Object().Connect(connworker.EXECUTED, receiver)
			}
			return uuid
		}

		select {
		case <-ctx.Done():
			return ""
		default:
		}
		m.pump.ProcessEvents()
		time.Sleep(30 * time.Millisecond)
	}
}

func (m *Manager) tryReserveOnce(deadline int64, receiver *objectbus.Object) (*connworker.Worker, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	var chosen *connworker.Worker

	// The growth gate counts only re-assignable workers: indefinitely
	// reserved ones (expiry == 0) are skipped before count is bumped, so a
	// held reservation never consumes a growth slot (spec.md §4.6).
	count := 0
	for w, rec := range m.active {
		if rec.expiry == 0 {
			continue // reserved indefinitely, never reassigned
		}
		count++
		if chosen == nil && w.IsStopping() && !w.IsBusyOrQueued() {
			chosen = w
			w.Object().Disconnect(connworker.EXECUTED, nil)
			w.Call(connworker.QueryCommand{Event: connworker.CleanState})
			continue
		}
		// Ambiguity note (spec.md §9): the retire predicate below is
		// `expiry != 0 && expiry > now`, preserved verbatim from the
		// source rather than "corrected" to `expiry <= now`.
		if rec.expiry != 0 && rec.expiry > now && !w.IsBusyOrQueued() {
			w.Object().Disconnect(connworker.EXECUTED, nil)
			w.Object().Connect(connworker.EXECUTED, m.notifyObj)
			w.Call(connworker.QueryCommand{UID: variant.NewString(rec.uuid), Event: connworker.Disconnect})
			delete(m.active, w)
			m.retiring[rec.uuid] = w
			m.log.Info().Str("uuid", rec.uuid).Msg("worker retiring")
		}
	}

	if chosen == nil && count < int(m.maxConcurrent) {
		chosen = m.newWorker(m.pump)
		chosen.Start()
	}

	if chosen == nil {
		return nil, ""
	}

	uuid := rsqluuid.New()
	m.active[chosen] = &record{uuid: uuid, expiry: deadline, receiver: receiver}
	return chosen, uuid
}

// Release re-stamps the reservation's expiry DefaultExpirySeconds out; the
// Worker keeps running.
func (m *Manager) Release(uuid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.active {
		if rec.uuid == uuid {
			rec.expiry = m.nowFunc() + DefaultExpirySeconds
			return
		}
	}
}

// Call forwards a command to the Worker identified by uuid. When blocking is
// true it pumps events until that uid's EXECUTED item has been delivered.
func (m *Manager) Call(uuid string, cmdUID variant.Variant, event connworker.QueryEvent, args []variant.Variant, blocking bool) {
	w := m.workerFor(uuid)
	if w == nil {
		return
	}
	if !blocking {
		w.Call(connworker.QueryCommand{UID: cmdUID, Event: event, Arguments: args})
		return
	}

	// A throwaway receiver rides alongside whatever the reservation's own
	// receiver is subscribed to: the caller's handler still fires through the
	// normal pump pass, this one only tells us when that has happened.
	watcher := m.pump.NewObject()
	delivered := false
	watcher.SetHandler(func(e objectbus.Event) {
		if r, ok := e.Payload.(connworker.QueryResult); ok && variant.Equal(r.UID, cmdUID) {
			delivered = true
		}
	})
	w.Object().Connect(connworker.EXECUTED, watcher)

	w.Call(connworker.QueryCommand{UID: cmdUID, Event: event, Arguments: args})
	for !delivered {
		m.pump.ProcessEvents()
		if delivered {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// The receiver's copy was enqueued before the watcher's but may have been
	// passed over earlier in the same pass; one more pass delivers it.
	m.pump.ProcessEvents()
	w.Object().Disconnect(connworker.EXECUTED, watcher)
	watcher.DeleteLater()
}

func (m *Manager) workerFor(uuid string) *connworker.Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	for w, rec := range m.active {
		if rec.uuid == uuid {
			return w
		}
	}
	return nil
}

// KillQuery reserves a secondary Worker, dispatches KillQuery against it with
// the target uuid, then releases the secondary (spec.md §4.6).
func (m *Manager) KillQuery(ctx context.Context, targetUUID string) {
	secondary := m.Reserve(ctx, DefaultExpirySeconds, nil)
	if secondary == "" {
		return
	}
	m.Call(secondary, variant.NewString("kill"), connworker.KillQuery,
		[]variant.Variant{variant.NewString(targetUUID)}, false)
	m.Release(secondary)
}

func (m *Manager) disconnectedNotify(uuid string) {
	m.mu.Lock()
	w, ok := m.retiring[uuid]
	if ok {
		delete(m.retiring, uuid)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	w.Join()
}

// Close stops every active Worker, requesting a non-blocking stop on each
// and then joining all of them, mirroring the destructor in spec.md §4.6.
func (m *Manager) Close() {
	m.mu.Lock()
	workers := make([]*connworker.Worker, 0, len(m.active))
	for w := range m.active {
		workers = append(workers, w)
	}
	m.active = make(map[*connworker.Worker]*record)
	m.mu.Unlock()

	for _, w := range workers {
		if !w.IsStopping() {
			w.Stop(false)
		}
	}
	for _, w := range workers {
		w.Join()
	}

	m.mu.Lock()
	retiring := make([]*connworker.Worker, 0, len(m.retiring))
	for _, w := range m.retiring {
		retiring = append(retiring, w)
	}
	m.retiring = make(map[string]*connworker.Worker)
	m.mu.Unlock()
	for _, w := range retiring {
		w.Join()
	}
}
