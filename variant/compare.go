package variant

import "math"

// floatTolerance is the absolute tolerance Equal applies whenever a pair is
// compared under a float kind (float32/float64 against each other or against
// an integer), papering over the precision mismatch inherent to widening a
// float32 into a double (spec §3).
const floatTolerance = 1e-5

// rank orders Kinds for type promotion during comparison: floats outrank all
// integers, and within integers wider outranks narrower. Kinds not used for
// numeric promotion keep their declaration order, which only matters for the
// "left operand's type, strict weak order" fallback used outside the
// promoted numeric families.
func rank(k Kind) int {
	switch k {
	case KindFloat64:
		return 100
	case KindFloat32:
		return 99
	case KindInt64, KindUint64:
		return 80
	case KindInt32, KindUint32:
		return 70
	case KindInt16, KindUint16:
		return 60
	case KindBool:
		return 50
	default:
		return int(k)
	}
}

// promote picks the type family both operands will be compared under: null
// promotes to the other side's type; otherwise the higher-ranked side wins,
// defaulting to the left operand's type when neither outranks the other.
func promote(a, b Variant) Kind {
	if a.kind == KindNull {
		return b.kind
	}
	if b.kind == KindNull {
		return a.kind
	}
	if rank(b.kind) > rank(a.kind) {
		return b.kind
	}
	return a.kind
}

// Equal compares two Variants under the type-promotion table described in
// the data model: decimal types outrank integers, null equals only null, and
// float/double comparisons tolerate up to floatTolerance of drift.
func Equal(a, b Variant) bool {
	// Null promotes to the other side's type but only ever equals null, so
	// a mixed pair is settled before the promoted-family comparison runs.
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if (a.kind == KindFloat32 && b.kind == KindFloat64) ||
		(a.kind == KindFloat64 && b.kind == KindFloat32) {
		return math.Abs(a.Float()-b.Float()) < floatTolerance
	}

	switch promote(a, b) {
	case KindString:
		return a.String() == b.String()
	case KindStringSlice:
		return stringSliceEqual(a.StringSlice(), b.StringSlice())
	case KindSlice:
		return variantSliceEqual(a.Slice(), b.Slice())
	case KindMap:
		return mapEqual(a.Map(), b.Map())
	case KindBool:
		return a.Bool() == b.Bool()
	case KindFloat32, KindFloat64:
		return math.Abs(a.Float()-b.Float()) < floatTolerance
	case KindInt16, KindInt32, KindInt64:
		return a.Int() == b.Int()
	case KindUint16, KindUint32, KindUint64:
		return a.Uint() == b.Uint()
	case KindQueryResult:
		aq, bq := a.QueryResult(), b.QueryResult()
		if aq == nil || bq == nil {
			return aq == bq
		}
		return Equal(aq.VariantUID(), bq.VariantUID())
	case KindPointer:
		av, _, _ := a.Pointer()
		bv, _, _ := b.Pointer()
		return av == bv
	default:
		return false
	}
}

// Compare returns -1, 0, or 1 following the same type-promotion rule as
// Equal. It is a strict weak order within each promoted family; comparisons
// that fall back to the left operand's kind (cross-family, neither numeric)
// are only guaranteed to be consistent, not meaningful.
func Compare(a, b Variant) int {
	if Equal(a, b) {
		return 0
	}
	// Null is the least element; a mixed pair never reaches the promoted
	// comparison, where zero values would collide with it.
	if a.IsNull() {
		return -1
	}
	if b.IsNull() {
		return 1
	}

	switch promote(a, b) {
	case KindString:
		return stringCompare(a.String(), b.String())
	case KindStringSlice:
		return stringSliceCompare(a.StringSlice(), b.StringSlice())
	case KindSlice:
		return variantSliceCompare(a.Slice(), b.Slice())
	case KindMap:
		return mapCompare(a.Map(), b.Map())
	case KindBool:
		if !a.Bool() && b.Bool() {
			return -1
		}
		return 1
	case KindFloat32, KindFloat64:
		return floatCompare(a.Float(), b.Float())
	case KindInt16, KindInt32, KindInt64:
		return intCompare(a.Int(), b.Int())
	case KindUint16, KindUint32, KindUint64:
		return uintCompare(a.Uint(), b.Uint())
	default:
		return stringCompare(a.String(), b.String())
	}
}

func stringCompare(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func floatCompare(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func intCompare(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func uintCompare(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringSliceCompare(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := stringCompare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(a)), int64(len(b)))
}

func variantSliceEqual(a, b []Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func variantSliceCompare(a, b []Variant) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(a)), int64(len(b)))
}

// mapEqual and mapCompare canonicalise on key (insertion order is
// irrelevant to equality/ordering, per the data model).
func mapEqual(a, b map[string]Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

func mapCompare(a, b map[string]Variant) int {
	keysA, keysB := sortedKeys(a), sortedKeys(b)
	n := len(keysA)
	if len(keysB) < n {
		n = len(keysB)
	}
	for i := 0; i < n; i++ {
		if c := stringCompare(keysA[i], keysB[i]); c != 0 {
			return c
		}
		if c := Compare(a[keysA[i]], b[keysB[i]]); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(keysA)), int64(len(keysB)))
}

func sortedKeys(m map[string]Variant) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort: config maps are small, and it avoids an extra
	// import just to keep keys lexicographic (spec: "canonicalised by key").
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
