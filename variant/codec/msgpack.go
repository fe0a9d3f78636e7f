package codec

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rabidsql/rsqlworker/variant"
)

// wireVariant is the msgpack-friendly shape a Variant is projected through.
// Only one field is meaningful per Kind, the same discipline the RSQAF0
// binary frame uses, but here msgpack's own tag/length framing replaces the
// hand-rolled one: this format never touches disk, it's an opt-in transport
// for caching a parsed settings tree in memory between loads.
type wireVariant struct {
	Kind  variant.Kind
	Str   string                 `msgpack:",omitempty"`
	Strs  []string               `msgpack:",omitempty"`
	Slice []wireVariant          `msgpack:",omitempty"`
	Map   map[string]wireVariant `msgpack:",omitempty"`
	I64   int64                  `msgpack:",omitempty"`
	U64   uint64                 `msgpack:",omitempty"`
	F64   float64                `msgpack:",omitempty"`
	Bool  bool                   `msgpack:",omitempty"`
}

func toWire(v variant.Variant) wireVariant {
	w := wireVariant{Kind: v.Kind()}
	switch v.Kind() {
	case variant.KindString:
		w.Str = v.String()
	case variant.KindStringSlice:
		w.Strs = v.StringSlice()
	case variant.KindSlice:
		elems := v.Slice()
		w.Slice = make([]wireVariant, len(elems))
		for i, e := range elems {
			w.Slice[i] = toWire(e)
		}
	case variant.KindMap:
		m := v.Map()
		w.Map = make(map[string]wireVariant, len(m))
		for k, e := range m {
			w.Map[k] = toWire(e)
		}
	case variant.KindUint64, variant.KindUint32, variant.KindUint16:
		w.U64 = v.Uint()
	case variant.KindInt64, variant.KindInt32, variant.KindInt16:
		w.I64 = v.Int()
	case variant.KindFloat32, variant.KindFloat64:
		w.F64 = v.Float()
	case variant.KindBool:
		w.Bool = v.Bool()
	}
	return w
}

func fromWire(w wireVariant) variant.Variant {
	switch w.Kind {
	case variant.KindString:
		return variant.NewString(w.Str)
	case variant.KindStringSlice:
		return variant.NewStringSlice(w.Strs)
	case variant.KindSlice:
		out := make([]variant.Variant, len(w.Slice))
		for i, e := range w.Slice {
			out[i] = fromWire(e)
		}
		return variant.NewSlice(out)
	case variant.KindMap:
		out := make(map[string]variant.Variant, len(w.Map))
		for k, e := range w.Map {
			out[k] = fromWire(e)
		}
		return variant.NewMap(out)
	case variant.KindUint64:
		return variant.NewUint64(w.U64)
	case variant.KindUint32:
		return variant.NewUint32(uint32(w.U64))
	case variant.KindUint16:
		return variant.NewUint16(uint16(w.U64))
	case variant.KindInt64:
		return variant.NewInt64(w.I64)
	case variant.KindInt32:
		return variant.NewInt32(int32(w.I64))
	case variant.KindInt16:
		return variant.NewInt16(int16(w.I64))
	case variant.KindFloat32:
		return variant.NewFloat32(float32(w.F64))
	case variant.KindFloat64:
		return variant.NewFloat64(w.F64)
	case variant.KindBool:
		return variant.NewBool(w.Bool)
	default:
		return variant.Null()
	}
}

// MarshalMsgpack encodes v as a cache-friendly msgpack blob. Unlike the
// binary/JSON codecs, this is never written to the RSQAF0 config format; it
// exists solely so an in-memory settings cache can round-trip a tree faster
// than re-walking variant/codec's framed encoding.
func MarshalMsgpack(v variant.Variant) ([]byte, error) {
	return msgpack.Marshal(toWire(v))
}

// UnmarshalMsgpack decodes a blob produced by MarshalMsgpack.
func UnmarshalMsgpack(data []byte) (variant.Variant, error) {
	var w wireVariant
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return variant.Null(), err
	}
	return fromWire(w), nil
}
