package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabidsql/rsqlworker/variant"
)

type fakeQueryResult struct{ uid variant.Variant }

func (f fakeQueryResult) VariantUID() variant.Variant { return f.uid }

func TestBinary_RoundTrip_AllKinds(t *testing.T) {
	DefaultQueryResult = func() variant.QueryResulter {
		return fakeQueryResult{uid: variant.NewString("default")}
	}
	defer func() { DefaultQueryResult = nil }()

	values := []variant.Variant{
		variant.Null(),
		variant.NewString("hello"),
		variant.NewStringSlice([]string{"a", "b"}),
		variant.NewSlice([]variant.Variant{variant.NewInt64(1), variant.NewString("x")}),
		variant.NewMap(map[string]variant.Variant{"a": variant.NewInt64(1), "b": variant.NewBool(true)}),
		variant.NewUint64(42),
		variant.NewInt64(-42),
		variant.NewUint32(7),
		variant.NewInt32(-7),
		variant.NewUint16(3),
		variant.NewInt16(-3),
		variant.NewFloat32(1.5),
		variant.NewFloat64(3.14159),
		variant.NewBool(true),
	}

	var buf bytes.Buffer
	bw, err := NewBinaryWriter(&buf)
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, bw.WriteVariant(v))
	}

	br, err := NewBinaryReader(&buf)
	require.NoError(t, err)
	for _, want := range values {
		got, err := br.ReadVariant()
		require.NoError(t, err)
		assert.True(t, variant.Equal(want, got), "expected %v got %v", want, got)
	}
}

func TestBinary_QueryResult_DecodesToDefault(t *testing.T) {
	DefaultQueryResult = func() variant.QueryResulter {
		return fakeQueryResult{uid: variant.NewString("default")}
	}
	defer func() { DefaultQueryResult = nil }()

	var buf bytes.Buffer
	bw, err := NewBinaryWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, bw.WriteVariant(variant.NewQueryResult(fakeQueryResult{uid: variant.NewString("whatever")})))

	br, err := NewBinaryReader(&buf)
	require.NoError(t, err)
	got, err := br.ReadVariant()
	require.NoError(t, err)
	require.Equal(t, variant.KindQueryResult, got.Kind())
	assert.True(t, variant.Equal(got.QueryResult().VariantUID(), variant.NewString("default")))
}

func TestBinary_EmptyStream_TreatedAsNewFile(t *testing.T) {
	br, err := NewBinaryReader(bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = br.ReadVariant()
	assert.Error(t, err)
}

func TestBinary_BadMagic_Rejected(t *testing.T) {
	_, err := NewBinaryReader(bytes.NewReader([]byte("NOTRSQL!!!")))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestBinary_MissingVersionByte_FallsBackToLegacyTagSet(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	// No version byte, no records: simulates a file from before the tag-set
	// version byte existed.
	br, err := NewBinaryReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, LegacyTagSet, br.tagSet)
}

func TestBinary_LegacyTagSet_HasNoMapTag(t *testing.T) {
	_, ok := tagFor(LegacyTagSet, variant.KindMap)
	assert.False(t, ok)
	_, ok = tagFor(CurrentTagSet, variant.KindMap)
	assert.True(t, ok)
}

func TestJSON_RoundTrip_Scalars(t *testing.T) {
	values := []variant.Variant{
		variant.Null(),
		variant.NewBool(true),
		variant.NewBool(false),
		variant.NewString("plain"),
		variant.NewInt64(123456789012),
		variant.NewInt16(-7),
		variant.NewFloat64(2.5),
	}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, NewJSONWriter(&buf).WriteVariant(v))
		got, err := NewJSONReader(&buf).ReadVariant()
		require.NoError(t, err)
		assert.True(t, variant.Equal(v, got), "expected %v got %v (wire %q)", v, got, buf.String())
	}
}

func TestJSON_RoundTrip_Composite(t *testing.T) {
	v := variant.NewMap(map[string]variant.Variant{
		"name": variant.NewString("widget"),
		"tags": variant.NewSlice([]variant.Variant{variant.NewString("x"), variant.NewString("y")}),
		"qty":  variant.NewInt32(3),
	})
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).WriteVariant(v))
	got, err := NewJSONReader(&buf).ReadVariant()
	require.NoError(t, err)
	assert.True(t, variant.Equal(v, got))
}

func TestJSON_QueryResult_WritesAsNull(t *testing.T) {
	v := variant.NewQueryResult(fakeQueryResult{uid: variant.NewString("x")})
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).WriteVariant(v))
	assert.Equal(t, "null", buf.String())
}

func TestJSON_UnicodeEscape_ParsedAsUTF8(t *testing.T) {
	got, err := NewJSONReader(bytes.NewReader([]byte(`"\u263a"`))).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, "☺", got.String())
}

func TestJSON_UnicodeEscape_RoundTrips(t *testing.T) {
	v := variant.NewString("smile ☺ done")
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).WriteVariant(v))
	got, err := NewJSONReader(&buf).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, v.String(), got.String())
}

func TestJSON_ControlCharacters_Escaped(t *testing.T) {
	v := variant.NewString("line1\nline2\ttabbed\"quoted\"")
	var buf bytes.Buffer
	require.NoError(t, NewJSONWriter(&buf).WriteVariant(v))
	wire := buf.String()
	assert.Contains(t, wire, `\n`)
	assert.Contains(t, wire, `\t`)
	assert.Contains(t, wire, `\"`)

	got, err := NewJSONReader(bytes.NewReader(buf.Bytes())).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, v.String(), got.String())
}

func TestMsgpack_RoundTrip_NestedValue(t *testing.T) {
	v := variant.NewMap(map[string]variant.Variant{
		"name": variant.NewString("test2"),
		"port": variant.NewInt32(3306),
		"tags": variant.NewStringSlice([]string{"a", "b"}),
		"nested": variant.NewSlice([]variant.Variant{
			variant.NewBool(true), variant.NewFloat64(1.5),
		}),
	})

	blob, err := MarshalMsgpack(v)
	require.NoError(t, err)

	got, err := UnmarshalMsgpack(blob)
	require.NoError(t, err)
	assert.True(t, variant.Equal(v, got))
}

func TestJSON_IntegerNarrowsToBestFittingKind(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("5")
	got, err := NewJSONReader(&buf).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, variant.KindInt16, got.Kind())

	buf.Reset()
	buf.WriteString("100000")
	got, err = NewJSONReader(&buf).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, variant.KindInt32, got.Kind())

	buf.Reset()
	buf.WriteString("9999999999")
	got, err = NewJSONReader(&buf).ReadVariant()
	require.NoError(t, err)
	assert.Equal(t, variant.KindInt64, got.Kind())
}
