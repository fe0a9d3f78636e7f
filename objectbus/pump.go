package objectbus

import "sync"

// Pump stands in for "the owning thread" from spec.md §4.3: it holds the
// roster of Objects created against it and drains their mailboxes on demand.
// A goroutine that wants thread-affine objects creates one Pump and only
// ever calls ProcessEvents from that same goroutine; nothing in Pump enforces
// that by itself, the same way nothing in the original enforced which
// thread called QCoreApplication::processEvents.
type Pump struct {
	mu     sync.Mutex
	roster []*Object
	msgCh  chan LogMessage
}

// LogMessage is a record posted to a Pump's independent logging channel
// (spec.md §4.3's "separate PostMessage/NextMessage channel, decoupled from
// signal/slot delivery").
type LogMessage struct {
	Level string
	Text  string
}

// NewPump creates an empty Pump with a buffered log channel.
func NewPump() *Pump {
	return &Pump{msgCh: make(chan LogMessage, 256)}
}

// NewObject creates an Object on this pump and adds it to the roster.
func (p *Pump) NewObject() *Object {
	o := newObject(p)
	p.mu.Lock()
	p.roster = append(p.roster, o)
	p.mu.Unlock()
	return o
}

// ProcessEvents drains every roster object's mailbox once, then sweeps out
// any object that was marked via DeleteLater and has nothing left pending.
// It returns the number of objects still on the roster afterward.
func (p *Pump) ProcessEvents() int {
	p.mu.Lock()
	roster := append([]*Object(nil), p.roster...)
	p.mu.Unlock()

	for _, o := range roster {
		o.ProcessMailbox()
	}

	p.mu.Lock()
	kept := p.roster[:0]
	for _, o := range p.roster {
		if o.markedForDeletion() && o.pendingCount() == 0 {
			continue
		}
		kept = append(kept, o)
	}
	p.roster = kept
	n := len(p.roster)
	p.mu.Unlock()
	return n
}

// PostMessage enqueues a log record without touching any object's mailbox.
// It never blocks: a full channel drops the oldest pending message rather
// than stalling the poster, since log delivery is best-effort.
func (p *Pump) PostMessage(level, text string) {
	msg := LogMessage{Level: level, Text: text}
	select {
	case p.msgCh <- msg:
	default:
		select {
		case <-p.msgCh:
		default:
		}
		select {
		case p.msgCh <- msg:
		default:
		}
	}
}

// NextMessage returns the next queued log message, if any.
func (p *Pump) NextMessage() (LogMessage, bool) {
	select {
	case m := <-p.msgCh:
		return m, true
	default:
		return LogMessage{}, false
	}
}

// RosterSize reports how many objects the pump currently tracks, mostly
// useful for tests asserting DeleteLater actually swept an object out.
func (p *Pump) RosterSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.roster)
}
