// Package objectbus implements the thread-affine smart-object event system
// described in spec.md §4.3: every Object owns a FIFO mailbox, `Connect`
// subscribes a *receiver* Object to a signal id on the emitter, and `Emit`
// appends straight into each subscriber's own mailbox. Delivery only happens
// when the subscriber's owning Pump drains that mailbox and invokes the
// subscriber's own handler. Go has no real thread-local storage for
// goroutines, so "thread affine" is modelled explicitly: a Pump stands in
// for "the thread" and every Object is created against one.
package objectbus

import (
	"sync"
)

// Event carries a signal emission: the signal name and an arbitrary
// payload (handlers type-assert what they expect, same as the original's
// QVariant-keyed connections).
type Event struct {
	Signal  string
	Payload any
}

// Handler is the single per-object dispatch function invoked once per
// mailbox item during ProcessMailbox, per spec.md §4.3 ("invokes the
// per-object handler for each item"). A handler typically switches on
// Event.Signal when an object subscribes to more than one signal id.
type Handler func(Event)

// deleteLaterSignal is the sentinel enqueued by DeleteLater. It is never
// delivered to the handler: encountering it stops the drain and marks the
// object finished, per spec.md §4.3.
const deleteLaterSignal = "\x00DeleteLater"

// Object is a unit of the bus: it has an identity, a parent/children tree, a
// mailbox, and a multimap of signal id -> subscribed receiver Objects. The
// tree is bookkeeping only: DeleteLater on a parent does not remove its
// children.
type Object struct {
	pump   *Pump
	parent *Object

	mu          sync.Mutex
	children    []*Object
	subs        map[string][]*Object // signal id -> receivers, per spec.md §3
	handler     Handler
	mailbox     []Event
	bag         map[string]any
	deleteLater bool
}

// newObject is unexported: objects only come into being through a Pump, so
// the pump can track them on its roster.
func newObject(p *Pump) *Object {
	return &Object{
		pump: p,
		subs: make(map[string][]*Object),
		bag:  make(map[string]any),
	}
}

// SetHandler installs o's per-object handler, invoked by ProcessMailbox for
// every item delivered to o's mailbox. An Object that only ever emits (never
// receives) need not call this; its mailbox, if anything lands there, is
// simply drained with no effect.
func (o *Object) SetHandler(h Handler) {
	o.mu.Lock()
	o.handler = h
	o.mu.Unlock()
}

// SetParent reparents o, removing it from any previous parent's children.
func (o *Object) SetParent(parent *Object) {
	if o.parent != nil {
		o.parent.removeChild(o)
	}
	o.parent = parent
	if parent != nil {
		parent.addChild(o)
	}
}

// Parent returns the current parent, or nil at the root.
func (o *Object) Parent() *Object {
	return o.parent
}

// Children returns a snapshot of o's current children.
func (o *Object) Children() []*Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Object, len(o.children))
	copy(out, o.children)
	return out
}

func (o *Object) addChild(c *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children = append(o.children, c)
}

func (o *Object) removeChild(c *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, ch := range o.children {
		if ch == c {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}

// BagSet stores an arbitrary property on o, mirroring the original's
// QObject::setProperty escape hatch for ad-hoc per-object state.
func (o *Object) BagSet(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bag[key] = value
}

// BagGet retrieves a property set via BagSet.
func (o *Object) BagGet(key string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.bag[key]
	return v, ok
}

// Connect subscribes receiver to signal on o (o is the emitter). Connections
// are additive: the same signal can have many receivers, and one receiver
// may be connected under many signals; there is no deduplication
// (spec.md §4.3). Connecting a nil receiver is a fatal misuse, matching the
// original's assert on a null receiver (spec.md §7 FatalMisuse).
func (o *Object) Connect(signal string, receiver *Object) {
	if receiver == nil {
		panic("objectbus: Connect called with a nil receiver")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subs[signal] = append(o.subs[signal], receiver)
}

// Disconnect removes subscriptions from o along the axis given:
//   - signal != "" && receiver != nil: remove only that receiver's entries
//     under signal.
//   - signal != "" && receiver == nil: remove every receiver under signal.
//   - signal == "" && receiver != nil: remove receiver from every signal.
//   - signal == "" && receiver == nil: clear every subscription on o.
//
// This is the three-axis contract spec.md §4.3 names for
// `disconnect(signal_id?, receiver?)`, using the empty string / nil as the
// "unset" sentinel for each axis.
func (o *Object) Disconnect(signal string, receiver *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case signal == "" && receiver == nil:
		o.subs = make(map[string][]*Object)

	case signal == "" && receiver != nil:
		for sig, subs := range o.subs {
			o.subs[sig] = removeReceiver(subs, receiver)
		}

	case signal != "" && receiver == nil:
		delete(o.subs, signal)

	default:
		o.subs[signal] = removeReceiver(o.subs[signal], receiver)
	}
}

func removeReceiver(subs []*Object, receiver *Object) []*Object {
	out := subs[:0]
	for _, s := range subs {
		if s != receiver {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Emit appends (signal, payload) to every current subscriber's own mailbox,
// per spec.md §4.3: "for each subscriber, append atomically to that
// subscriber's mailbox." Emit never blocks a subscriber and never runs
// subscriber code; delivery happens later, on the subscriber's own pump.
func (o *Object) Emit(signal string, payload any) {
	o.mu.Lock()
	receivers := append([]*Object(nil), o.subs[signal]...)
	o.mu.Unlock()

	evt := Event{Signal: signal, Payload: payload}
	for _, r := range receivers {
		r.enqueue(evt)
	}
}

func (o *Object) enqueue(evt Event) {
	o.mu.Lock()
	o.mailbox = append(o.mailbox, evt)
	o.mu.Unlock()
}

// DeleteLater marks o for removal from its pump's roster at the next
// ProcessEvents pass, after its mailbox has been drained once more. It never
// deletes synchronously, matching QObject::deleteLater semantics: the marker
// is itself enqueued so items emitted before the DeleteLater call still get
// delivered in order, and anything queued behind it does not.
func (o *Object) DeleteLater() {
	o.enqueue(Event{Signal: deleteLaterSignal})
}

// ProcessMailbox must only be called on o's home thread (the goroutine
// driving o's Pump). It drains o's mailbox in FIFO order, invoking o's
// handler for each item, and reports whether o is now finished (its
// DeleteLater marker was reached). A finished Object stops draining right
// there: anything queued behind the marker is discarded, same as a Worker's
// queue being destroyed with the Worker (spec.md §5).
func (o *Object) ProcessMailbox() (finished bool) {
	o.mu.Lock()
	pending := o.mailbox
	o.mailbox = nil
	done := o.deleteLater
	o.mu.Unlock()
	if done {
		// Already finished: whatever arrived after the marker is discarded.
		return true
	}

	for _, evt := range pending {
		if evt.Signal == deleteLaterSignal {
			o.mu.Lock()
			o.deleteLater = true
			o.mu.Unlock()
			return true
		}
		o.mu.Lock()
		h := o.handler
		o.mu.Unlock()
		if h != nil {
			h(evt)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deleteLater
}

func (o *Object) pendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mailbox)
}

func (o *Object) markedForDeletion() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deleteLater
}

// Tr is a no-op translation hook, grounded in SmartObject::tr: a pass-through
// adapter point a GUI layer would override to localize s. The core runtime
// has no strings to translate, so it only ever returns s unchanged.
func (o *Object) Tr(s string) string { return s }
