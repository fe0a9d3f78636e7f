package codec

import "github.com/rabidsql/rsqlworker/variant"

// TagSet selects which wire-tag numbering a BinaryReader/BinaryWriter uses.
// The pre-fork legacy encoding predates the VariantMap kind and has no tag
// for it; spec.md §9 flags this as an open question and asks readers to
// tolerate both encodings. CurrentTagSet is always used for writing; readers
// select a TagSet from the version byte written directly after the magic
// header (see BinaryWriter/BinaryReader in binary.go).
type TagSet uint8

const (
	CurrentTagSet TagSet = 1
	LegacyTagSet  TagSet = 0
)

// currentOrder is the full, current tag numbering. Position in this slice is
// the wire value.
var currentOrder = []variant.Kind{
	variant.KindNull,
	variant.KindString,
	variant.KindStringSlice,
	variant.KindSlice,
	variant.KindMap,
	variant.KindUint64,
	variant.KindInt64,
	variant.KindUint32,
	variant.KindInt32,
	variant.KindUint16,
	variant.KindInt16,
	variant.KindQueryResult,
	variant.KindFloat32,
	variant.KindFloat64,
	variant.KindBool,
	variant.KindPointer,
}

// legacyOrder omits KindMap, matching the pre-fork format that predates it.
var legacyOrder = []variant.Kind{
	variant.KindNull,
	variant.KindString,
	variant.KindStringSlice,
	variant.KindSlice,
	variant.KindUint64,
	variant.KindInt64,
	variant.KindUint32,
	variant.KindInt32,
	variant.KindUint16,
	variant.KindInt16,
	variant.KindQueryResult,
	variant.KindFloat32,
	variant.KindFloat64,
	variant.KindBool,
	variant.KindPointer,
}

func orderFor(ts TagSet) []variant.Kind {
	if ts == LegacyTagSet {
		return legacyOrder
	}
	return currentOrder
}

func tagFor(ts TagSet, k variant.Kind) (uint32, bool) {
	for i, candidate := range orderFor(ts) {
		if candidate == k {
			return uint32(i), true
		}
	}
	return 0, false
}

func kindFor(ts TagSet, tag uint32) (variant.Kind, bool) {
	order := orderFor(ts)
	if int(tag) < 0 || int(tag) >= len(order) {
		return variant.KindNull, false
	}
	return order[tag], true
}
