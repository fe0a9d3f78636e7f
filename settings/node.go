// Package settings implements the Connection Settings tree described in
// spec.md §4.8: a recursive key/value store with parent fallback, persisted
// through the variant/codec package.
package settings

import (
	"fmt"
	"sync"

	"github.com/rabidsql/rsqlworker/rsqluuid"
	"github.com/rabidsql/rsqlworker/variant"
)

// ConnectionType names the kind of endpoint a root-level Node describes.
// MySQL is the default used to synthesise a node from an empty file.
// Inherit marks a non-root node that defers its type to its parent's,
// mirroring a settings-tree group node that carries no endpoint of its own.
type ConnectionType int

const (
	MySQL ConnectionType = iota
	PostgreSQL
	SQLite
	Inherit
)

func (t ConnectionType) String() string {
	switch t {
	case MySQL:
		return "MySQL"
	case PostgreSQL:
		return "PostgreSQL"
	case SQLite:
		return "SQLite"
	case Inherit:
		return "Inherit"
	default:
		return "Unknown"
	}
}

func parseConnectionType(s string) (ConnectionType, bool) {
	switch s {
	case MySQL.String():
		return MySQL, true
	case PostgreSQL.String():
		return PostgreSQL, true
	case SQLite.String():
		return SQLite, true
	case Inherit.String():
		return Inherit, true
	default:
		return 0, false
	}
}

// Well-known field names with special Get semantics (spec.md §4.8).
const (
	FieldUUID   = "uuid"
	FieldName   = "name"
	FieldParent = "parent"
	FieldType   = "type"
)

// FieldDescriptor names one field every Connection Settings node is
// expected to carry, used by Validate to catch a node missing it.
type FieldDescriptor struct {
	Key      string
	Required bool
}

// WellKnownFields lists the fields Validate checks on every node.
var WellKnownFields = []FieldDescriptor{
	{Key: FieldName, Required: true},
	{Key: FieldType, Required: false},
}

// Node is one entry in the settings tree: its own key/value mapping plus a
// back-pointer to its parent for fallback lookups.
type Node struct {
	mu       sync.Mutex
	values   map[string]variant.Variant
	parent   *Node
	children []*Node
}

// New creates an empty, unparented Node named name of the given type.
func New(name string, connType ConnectionType) *Node {
	n := &Node{values: make(map[string]variant.Variant)}
	n.Set(FieldName, variant.NewString(name))
	n.Set(FieldType, variant.NewString(connType.String()))
	return n
}

// SetParent reparents n.
func (n *Node) SetParent(parent *Node) {
	n.mu.Lock()
	old := n.parent
	n.parent = parent
	n.mu.Unlock()
	if old != nil {
		old.mu.Lock()
		for i, c := range old.children {
			if c == n {
				old.children = append(old.children[:i], old.children[i+1:]...)
				break
			}
		}
		old.mu.Unlock()
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, n)
		parent.mu.Unlock()
	}
}

// Parent returns n's current parent, or nil at the root.
func (n *Node) Parent() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

// Children returns a snapshot of n's children.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Set stores key=value locally on n.
func (n *Node) Set(key string, value variant.Variant) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[key] = value
}

// Get resolves key, optionally bubbling to the parent chain when not found
// locally. uuid, name, and parent never bubble; a missing uuid is lazily
// generated and cached locally the first time it's requested, per
// spec.md §4.8.
func (n *Node) Get(key string, bubble bool) variant.Variant {
	if key == FieldUUID {
		return n.getOrCreateUUID()
	}

	n.mu.Lock()
	v, ok := n.values[key]
	parent := n.parent
	n.mu.Unlock()
	if ok {
		return v
	}
	if key == FieldName || key == FieldParent {
		return variant.Null()
	}
	if bubble && parent != nil {
		return parent.Get(key, true)
	}
	return variant.Null()
}

func (n *Node) getOrCreateUUID() variant.Variant {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := n.values[FieldUUID]; ok {
		return v
	}
	v := variant.NewString(rsqluuid.New())
	n.values[FieldUUID] = v
	return v
}

// Validate checks n's required fields and normalizes its "type" field,
// mirroring ConnectionSettings::load's fallback to MySQL on an
// empty/corrupt settings file (spec.md §7): a root node with no
// recognizable type becomes MySQL, while a non-root node with no
// recognizable type of its own becomes Inherit. Get(FieldType, true) on such
// a node returns "Inherit"; it does not resolve to the parent's type.
// It returns an error only when a Required field is missing outright.
func (n *Node) Validate() error {
	for _, fd := range WellKnownFields {
		if fd.Required && n.Get(fd.Key, false).IsNull() {
			return fmt.Errorf("settings: node missing required field %q", fd.Key)
		}
	}

	raw := n.Get(FieldType, false)
	if _, ok := parseConnectionType(raw.String()); ok {
		return nil
	}
	if n.Parent() == nil {
		n.Set(FieldType, variant.NewString(MySQL.String()))
	} else {
		n.Set(FieldType, variant.NewString(Inherit.String()))
	}
	return nil
}

// snapshotValues returns a shallow copy of n's own map, for serialisation.
func (n *Node) snapshotValues() map[string]variant.Variant {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]variant.Variant, len(n.values))
	for k, v := range n.values {
		out[k] = v
	}
	return out
}
