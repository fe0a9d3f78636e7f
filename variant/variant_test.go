package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariant_RoundTripThroughString(t *testing.T) {
	t.Run("int64", func(t *testing.T) {
		v := NewInt64(42)
		require.Equal(t, "42", v.String())
		assert.True(t, Equal(NewString(v.String()), NewInt64(42)))
	})

	t.Run("float64 within tolerance", func(t *testing.T) {
		v := NewFloat64(3.14159)
		parsed := NewString(v.String())
		assert.True(t, Equal(parsed, v))
	})

	t.Run("unparsable string yields zero, never an error", func(t *testing.T) {
		v := NewString("not-a-number")
		assert.Equal(t, int64(0), v.Int())
		assert.Equal(t, float64(0), v.Float())
	})
}

func TestVariant_Equal_TypePromotion(t *testing.T) {
	t.Run("float outranks int", func(t *testing.T) {
		assert.True(t, Equal(NewFloat64(1.0), NewInt32(1)))
	})

	t.Run("float32 vs float64 tolerates precision drift", func(t *testing.T) {
		a := NewFloat32(float32(0.1))
		b := NewFloat64(0.1)
		assert.True(t, Equal(a, b))
	})

	t.Run("null equals only null", func(t *testing.T) {
		assert.True(t, Equal(Null(), Null()))
		assert.False(t, Equal(Null(), NewInt64(0)))
		assert.False(t, Equal(NewInt64(0), Null()))
	})

	t.Run("wider integer outranks narrower", func(t *testing.T) {
		assert.True(t, Equal(NewInt64(7), NewInt16(7)))
	})

	t.Run("map comparison is order-invariant", func(t *testing.T) {
		a := NewMap(map[string]Variant{"a": NewInt64(1), "b": NewInt64(2)})
		b := NewMap(map[string]Variant{"b": NewInt64(2), "a": NewInt64(1)})
		assert.True(t, Equal(a, b))
	})

	t.Run("sequence comparison is lexicographic", func(t *testing.T) {
		a := NewSlice([]Variant{NewInt64(1), NewInt64(2)})
		b := NewSlice([]Variant{NewInt64(1), NewInt64(3)})
		assert.False(t, Equal(a, b))
		assert.Equal(t, -1, Compare(a, b))
	})
}

func TestVariant_Compare_StrictWeakOrder(t *testing.T) {
	values := []Variant{NewInt64(1), NewInt64(2), NewInt64(3)}
	for i := 0; i < len(values)-1; i++ {
		assert.Equal(t, -1, Compare(values[i], values[i+1]))
		assert.Equal(t, 1, Compare(values[i+1], values[i]))
	}
	assert.Equal(t, 0, Compare(values[0], values[0]))
}

func TestVariant_Clone_Deep(t *testing.T) {
	inner := NewSlice([]Variant{NewString("a")})
	outer := NewSlice([]Variant{inner})
	clone := outer.Clone()

	assert.True(t, Equal(outer, clone))

	// Mutating the clone's backing slice must not affect the original.
	cloneSlice := clone.Slice()
	cloneSlice[0] = NewString("mutated")
	assert.True(t, Equal(outer.Slice()[0], inner))
}

func TestVariant_Conversions_AreTotal(t *testing.T) {
	t.Run("map on non-map returns empty map, never panics", func(t *testing.T) {
		assert.Empty(t, NewInt64(1).Map())
	})

	t.Run("string slice on scalar promotes to one element", func(t *testing.T) {
		assert.Equal(t, []string{"5"}, NewInt64(5).StringSlice())
	})

	t.Run("bool parses common string forms", func(t *testing.T) {
		assert.True(t, NewString("true").Bool())
		assert.True(t, NewString("1").Bool())
		assert.False(t, NewString("false").Bool())
	})
}

type stubQueryResult struct{ uid Variant }

func (s stubQueryResult) VariantUID() Variant { return s.uid }

func TestVariant_QueryResult_EqualityByUID(t *testing.T) {
	a := NewQueryResult(stubQueryResult{uid: NewString("x")})
	b := NewQueryResult(stubQueryResult{uid: NewString("x")})
	c := NewQueryResult(stubQueryResult{uid: NewString("y")})

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}
