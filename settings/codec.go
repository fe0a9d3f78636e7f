package settings

import (
	"io"
	"os"

	"github.com/rabidsql/rsqlworker/variant"
	"github.com/rabidsql/rsqlworker/variant/codec"
)

// Format selects which on-disk representation Load/Save use.
type Format int

const (
	FormatBinary Format = iota
	FormatJSON
)

const childrenKey = "children"

// DefaultNodeName is used to synthesise a node when a settings file is
// empty or unreadable (spec.md §4.8).
const DefaultNodeName = "Default"

// Save writes only the root-level nodes in list (those with no parent),
// inlining each one's descendants as a nested "children" sequence.
func Save(list []*Node, format Format, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return SaveTo(f, list, format)
}

// SaveTo is Save against an arbitrary writer, split out so tests and
// in-memory callers don't need a filesystem.
func SaveTo(w io.Writer, list []*Node, format Format) error {
	var roots []variant.Variant
	for _, n := range list {
		if n.Parent() == nil {
			roots = append(roots, toVariant(n))
		}
	}
	tree := variant.NewSlice(roots)

	switch format {
	case FormatJSON:
		return codec.NewJSONWriter(w).WriteVariant(tree)
	default:
		bw, err := codec.NewBinaryWriter(w)
		if err != nil {
			return err
		}
		if err := bw.Mark(); err != nil {
			return err
		}
		return bw.WriteVariant(tree)
	}
}

// Load reads a persisted tree and returns the flat list of every node
// (roots and descendants), re-parented from each node's inlined "children"
// sequence. An empty or unreadable file yields a single default MySQL node.
func Load(format Format, path string) ([]*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return []*Node{New(DefaultNodeName, MySQL)}, nil
	}
	defer f.Close()
	return LoadFrom(f, format)
}

// LoadFrom is Load against an arbitrary reader.
func LoadFrom(r io.Reader, format Format) ([]*Node, error) {
	tree, err := readTree(r, format)
	if err != nil {
		return []*Node{New(DefaultNodeName, MySQL)}, nil
	}

	var flat []*Node
	for _, rootVariant := range tree.Slice() {
		fromVariant(rootVariant, nil, &flat)
	}
	if len(flat) == 0 {
		return []*Node{New(DefaultNodeName, MySQL)}, nil
	}
	return flat, nil
}

func readTree(r io.Reader, format Format) (variant.Variant, error) {
	switch format {
	case FormatJSON:
		return codec.NewJSONReader(r).ReadVariant()
	default:
		br, err := codec.NewBinaryReader(r)
		if err != nil {
			return variant.Null(), err
		}
		ok, err := br.ExpectMark()
		if err != nil {
			return variant.Null(), err
		}
		if !ok {
			// No record marker: an empty (or truncated) file, which the
			// caller turns into the default node.
			return variant.Null(), io.ErrUnexpectedEOF
		}
		return br.ReadVariant()
	}
}

func toVariant(n *Node) variant.Variant {
	values := n.snapshotValues()
	children := n.Children()
	m := make(map[string]variant.Variant, len(values)+1)
	for k, v := range values {
		m[k] = v
	}
	if len(children) > 0 {
		childVariants := make([]variant.Variant, len(children))
		for i, c := range children {
			childVariants[i] = toVariant(c)
		}
		m[childrenKey] = variant.NewSlice(childVariants)
	}
	return variant.NewMap(m)
}

// fromVariant rebuilds a Node (and its subtree) from v, reparenting each
// node under parent and appending every node visited (this one and all
// descendants) to flat.
func fromVariant(v variant.Variant, parent *Node, flat *[]*Node) *Node {
	m := v.Map()
	n := &Node{values: make(map[string]variant.Variant, len(m))}
	for k, val := range m {
		if k == childrenKey {
			continue
		}
		n.values[k] = val
	}
	if parent != nil {
		n.SetParent(parent)
	}
	*flat = append(*flat, n)

	if childrenVariant, ok := m[childrenKey]; ok {
		for _, childVariant := range childrenVariant.Slice() {
			fromVariant(childVariant, n, flat)
		}
	}
	return n
}
