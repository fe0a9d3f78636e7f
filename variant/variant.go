// Package variant implements the tagged-union value used as the payload
// currency throughout the worker runtime: command arguments, mailbox
// payloads, settings values, and query rows are all Variants.
package variant

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the concrete payload a Variant carries. Values are stable
// across persisted binary config files, so existing constants are never
// renumbered; new kinds are appended.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindStringSlice
	KindSlice
	KindMap
	KindUint64
	KindInt64
	KindUint32
	KindInt32
	KindUint16
	KindInt16
	KindQueryResult
	KindFloat32
	KindFloat64
	KindBool
	KindPointer
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindStringSlice:
		return "string_slice"
	case KindSlice:
		return "slice"
	case KindMap:
		return "map"
	case KindUint64:
		return "uint64"
	case KindInt64:
		return "int64"
	case KindUint32:
		return "uint32"
	case KindInt32:
		return "int32"
	case KindUint16:
		return "uint16"
	case KindInt16:
		return "int16"
	case KindQueryResult:
		return "query_result"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindPointer:
		return "pointer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// QueryResulter is implemented by the result type a Variant may carry. It is
// defined as an interface here (rather than importing connworker directly)
// so variant has no dependency on the package that produces query results –
// connworker.QueryResult satisfies it.
type QueryResulter interface {
	VariantUID() Variant
}

// Pointer is the payload for KindPointer: an externally-owned value plus the
// owned-or-borrowed flag from the original ArbitraryPointer design. The core
// never inspects Value; it only ever constructs owned pointers (see
// DESIGN.md).
type Pointer struct {
	Value any
	Owned bool
}

// Variant is an immutable tagged value. The zero Variant is KindNull.
type Variant struct {
	kind Kind
	// Exactly one of the following is meaningful, selected by kind.
	str   string
	strs  []string
	slice []Variant
	m     map[string]Variant
	i64   int64
	u64   uint64
	f64   float64
	b     bool
	qr    QueryResulter
	ptr   Pointer
}

// Null returns the null Variant.
func Null() Variant { return Variant{kind: KindNull} }

// NewString constructs a string Variant.
func NewString(s string) Variant { return Variant{kind: KindString, str: s} }

// NewStringSlice constructs a string-sequence Variant.
func NewStringSlice(ss []string) Variant {
	cp := make([]string, len(ss))
	copy(cp, ss)
	return Variant{kind: KindStringSlice, strs: cp}
}

// NewSlice constructs a Variant-sequence Variant.
func NewSlice(vs []Variant) Variant {
	cp := make([]Variant, len(vs))
	copy(cp, vs)
	return Variant{kind: KindSlice, slice: cp}
}

// NewMap constructs a string-to-Variant mapping Variant.
func NewMap(m map[string]Variant) Variant {
	cp := make(map[string]Variant, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Variant{kind: KindMap, m: cp}
}

// NewBool constructs a boolean Variant.
func NewBool(b bool) Variant { return Variant{kind: KindBool, b: b} }

// NewFloat32 constructs a 32-bit float Variant.
func NewFloat32(f float32) Variant { return Variant{kind: KindFloat32, f64: float64(f)} }

// NewFloat64 constructs a 64-bit float Variant.
func NewFloat64(f float64) Variant { return Variant{kind: KindFloat64, f64: f} }

// NewInt16, NewInt32, NewInt64, NewUint16, NewUint32, NewUint64 construct the
// fixed-width integer Variants named in the data model.
func NewInt16(v int16) Variant   { return Variant{kind: KindInt16, i64: int64(v)} }
func NewInt32(v int32) Variant   { return Variant{kind: KindInt32, i64: int64(v)} }
func NewInt64(v int64) Variant   { return Variant{kind: KindInt64, i64: v} }
func NewUint16(v uint16) Variant { return Variant{kind: KindUint16, u64: uint64(v)} }
func NewUint32(v uint32) Variant { return Variant{kind: KindUint32, u64: uint64(v)} }
func NewUint64(v uint64) Variant { return Variant{kind: KindUint64, u64: v} }

// NewQueryResult wraps a query result payload. The wrapped value is lossy
// across the binary and JSON codecs by design (spec §4.2/§9).
func NewQueryResult(qr QueryResulter) Variant {
	return Variant{kind: KindQueryResult, qr: qr}
}

// NewPointer wraps an externally-owned value. owned marks whether this
// Variant is responsible for the value's lifetime; the Go runtime's GC makes
// that distinction advisory rather than load-bearing, but it is preserved so
// callers mirroring the original ownership contract can still query it.
func NewPointer(value any, owned bool) Variant {
	return Variant{kind: KindPointer, ptr: Pointer{Value: value, Owned: owned}}
}

// Kind reports the Variant's tag.
func (v Variant) Kind() Kind { return v.kind }

// IsNull reports whether this Variant is null.
func (v Variant) IsNull() bool { return v.kind == KindNull }

// Clone returns a deep copy. Variant values are immutable to callers but
// slices/maps are defensively copied on construction and again here so a
// clone never aliases the source's backing storage.
func (v Variant) Clone() Variant {
	switch v.kind {
	case KindStringSlice:
		return NewStringSlice(v.strs)
	case KindSlice:
		cp := make([]Variant, len(v.slice))
		for i, e := range v.slice {
			cp[i] = e.Clone()
		}
		return Variant{kind: KindSlice, slice: cp}
	case KindMap:
		cp := make(map[string]Variant, len(v.m))
		for k, e := range v.m {
			cp[k] = e.Clone()
		}
		return Variant{kind: KindMap, m: cp}
	default:
		return v
	}
}

// String returns the string form of this Variant. Sequences return their
// first element's string form (or "" if empty); every other kind renders a
// reasonable decimal/boolean representation. Conversion never fails.
func (v Variant) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindStringSlice:
		if len(v.strs) == 0 {
			return ""
		}
		return v.strs[0]
	case KindSlice:
		if len(v.slice) == 0 {
			return ""
		}
		return v.slice[0].String()
	case KindMap:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindFloat32, KindFloat64:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.i64, 10)
	case KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(v.u64, 10)
	case KindQueryResult, KindPointer:
		return ""
	default:
		return ""
	}
}

// StringSlice returns the string-sequence form. A scalar string becomes a
// one-element slice; other scalars convert through String().
func (v Variant) StringSlice() []string {
	switch v.kind {
	case KindStringSlice:
		cp := make([]string, len(v.strs))
		copy(cp, v.strs)
		return cp
	case KindSlice:
		out := make([]string, len(v.slice))
		for i, e := range v.slice {
			out[i] = e.String()
		}
		return out
	case KindNull:
		return nil
	default:
		return []string{v.String()}
	}
}

// Slice returns the Variant-sequence form, promoting scalars and string
// slices into single/multi-element sequences.
func (v Variant) Slice() []Variant {
	switch v.kind {
	case KindSlice:
		cp := make([]Variant, len(v.slice))
		copy(cp, v.slice)
		return cp
	case KindStringSlice:
		out := make([]Variant, len(v.strs))
		for i, s := range v.strs {
			out[i] = NewString(s)
		}
		return out
	case KindNull:
		return nil
	default:
		return []Variant{v}
	}
}

// Map returns the mapping form, or an empty map for any other kind.
func (v Variant) Map() map[string]Variant {
	if v.kind != KindMap {
		return map[string]Variant{}
	}
	cp := make(map[string]Variant, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp
}

// Bool returns the boolean form. Numeric kinds are non-zero-is-true; strings
// parse "true"/"1" (case-insensitively "true") as true; everything else not
// explicitly true is false.
func (v Variant) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		s := strings.TrimSpace(strings.ToLower(v.str))
		return s == "true" || s == "1"
	case KindFloat32, KindFloat64:
		return v.f64 != 0
	case KindInt16, KindInt32, KindInt64:
		return v.i64 != 0
	case KindUint16, KindUint32, KindUint64:
		return v.u64 != 0
	default:
		return false
	}
}

// QueryResult returns the wrapped query result, or nil if this Variant does
// not carry one.
func (v Variant) QueryResult() QueryResulter {
	if v.kind != KindQueryResult {
		return nil
	}
	return v.qr
}

// Pointer returns the wrapped externally-owned value and its owned flag. ok
// is false for any other kind.
func (v Variant) Pointer() (value any, owned bool, ok bool) {
	if v.kind != KindPointer {
		return nil, false, false
	}
	return v.ptr.Value, v.ptr.Owned, true
}

// Float returns the Variant's value widened/narrowed to a float64, parsing
// strings leniently (whitespace-tolerant decimal; unparsable input yields 0,
// never an error, per the data model's numeric-parsing invariant).
func (v Variant) Float() float64 {
	switch v.kind {
	case KindFloat32, KindFloat64:
		return v.f64
	case KindInt16, KindInt32, KindInt64:
		return float64(v.i64)
	case KindUint16, KindUint32, KindUint64:
		return float64(v.u64)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Int returns the Variant's value as an int64, following the same lenient
// numeric-parsing rule as Float.
func (v Variant) Int() int64 {
	switch v.kind {
	case KindInt16, KindInt32, KindInt64:
		return v.i64
	case KindUint16, KindUint32, KindUint64:
		return int64(v.u64)
	case KindFloat32, KindFloat64:
		return int64(v.f64)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindString:
		s := strings.TrimSpace(v.str)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return n
	default:
		return 0
	}
}

// Uint returns the Variant's value as a uint64. Negative signed values wrap
// the same way a C-style numeric_cast would (matching the original's
// reinterpretation through a common numericCast<T>()).
func (v Variant) Uint() uint64 {
	switch v.kind {
	case KindUint16, KindUint32, KindUint64:
		return v.u64
	default:
		return uint64(v.Int())
	}
}
