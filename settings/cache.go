package settings

import (
	"github.com/rabidsql/rsqlworker/variant"
	"github.com/rabidsql/rsqlworker/variant/codec"
)

// CacheBlob snapshots list through the msgpack codec for holding a parsed
// tree in memory between loads (an in-process cache, not a file format).
// It never touches the binary/JSON formats Save/Load use on disk.
func CacheBlob(list []*Node) ([]byte, error) {
	var roots []variant.Variant
	for _, n := range list {
		if n.Parent() == nil {
			roots = append(roots, toVariant(n))
		}
	}
	return codec.MarshalMsgpack(variant.NewSlice(roots))
}

// FromCacheBlob rebuilds the flat node list CacheBlob produced. Intended for
// short-lived in-memory reuse, e.g. re-serving a settings tree to a second
// caller within the same process without re-reading the settings file.
func FromCacheBlob(blob []byte) ([]*Node, error) {
	tree, err := codec.UnmarshalMsgpack(blob)
	if err != nil {
		return nil, err
	}
	var flat []*Node
	for _, rootVariant := range tree.Slice() {
		fromVariant(rootVariant, nil, &flat)
	}
	return flat, nil
}
