package codec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rabidsql/rsqlworker/variant"
)

// JSONWriter streams a Variant tree to JSON without ever buffering a whole
// document, mirroring JsonFileStream::operator<< in the original
// implementation (a SAX-style writer driven recursively by Variant kind).
type JSONWriter struct {
	w *bufio.Writer
}

// NewJSONWriter wraps w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w)}
}

// WriteVariant writes one top-level JSON value and flushes the buffer.
func (jw *JSONWriter) WriteVariant(v variant.Variant) error {
	if err := jw.writeValue(v); err != nil {
		return err
	}
	return jw.w.Flush()
}

func (jw *JSONWriter) writeValue(v variant.Variant) error {
	switch v.Kind() {
	case variant.KindNull, variant.KindQueryResult, variant.KindPointer:
		// QueryResult writes as null: lossy by design (spec.md §4.2/§9).
		_, err := jw.w.WriteString("null")
		return err
	case variant.KindBool:
		if v.Bool() {
			_, err := jw.w.WriteString("true")
			return err
		}
		_, err := jw.w.WriteString("false")
		return err
	case variant.KindString:
		return jw.writeString(v.String())
	case variant.KindStringSlice, variant.KindSlice:
		return jw.writeArray(v.Slice())
	case variant.KindMap:
		return jw.writeObject(v.Map())
	case variant.KindFloat32, variant.KindFloat64:
		_, err := jw.w.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
		return err
	case variant.KindInt16, variant.KindInt32, variant.KindInt64,
		variant.KindUint16, variant.KindUint32, variant.KindUint64:
		// All integer variants widen to signed 64 on write (spec.md §4.2).
		_, err := jw.w.WriteString(strconv.FormatInt(v.Int(), 10))
		return err
	default:
		return fmt.Errorf("codec: unsupported kind %s", v.Kind())
	}
}

func (jw *JSONWriter) writeArray(elems []variant.Variant) error {
	if err := jw.w.WriteByte('['); err != nil {
		return err
	}
	for i, e := range elems {
		if i > 0 {
			if err := jw.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := jw.writeValue(e); err != nil {
			return err
		}
	}
	return jw.w.WriteByte(']')
}

func (jw *JSONWriter) writeObject(m map[string]variant.Variant) error {
	if err := jw.w.WriteByte('{'); err != nil {
		return err
	}
	for i, k := range sortedKeys(m) {
		if i > 0 {
			if err := jw.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := jw.writeString(k); err != nil {
			return err
		}
		if err := jw.w.WriteByte(':'); err != nil {
			return err
		}
		if err := jw.writeValue(m[k]); err != nil {
			return err
		}
	}
	return jw.w.WriteByte('}')
}

// writeString escapes \b \f \n \r \t \" \\ and emits \uXXXX for other control
// characters, matching spec.md §4.2's escape table.
func (jw *JSONWriter) writeString(s string) error {
	if err := jw.w.WriteByte('"'); err != nil {
		return err
	}
	for _, r := range s {
		switch r {
		case '\b':
			_, _ = jw.w.WriteString(`\b`)
		case '\f':
			_, _ = jw.w.WriteString(`\f`)
		case '\n':
			_, _ = jw.w.WriteString(`\n`)
		case '\r':
			_, _ = jw.w.WriteString(`\r`)
		case '\t':
			_, _ = jw.w.WriteString(`\t`)
		case '"':
			_, _ = jw.w.WriteString(`\"`)
		case '\\':
			_, _ = jw.w.WriteString(`\\`)
		default:
			if r < 0x20 {
				_, _ = fmt.Fprintf(jw.w, `\u%04x`, r)
			} else {
				_, _ = jw.w.WriteRune(r)
			}
		}
	}
	return jw.w.WriteByte('"')
}

// JSONReader streams a Variant tree back from JSON using a token-by-token
// decoder (encoding/json.Decoder.Token), so a deeply nested document is never
// buffered whole. Parse errors abort the current top-level value, leaving
// the stream positioned at the failure point, per spec.md §4.2.
type JSONReader struct {
	dec *json.Decoder
}

// NewJSONReader wraps r.
func NewJSONReader(r io.Reader) *JSONReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &JSONReader{dec: dec}
}

// ReadVariant decodes one top-level JSON value.
func (jr *JSONReader) ReadVariant() (variant.Variant, error) {
	tok, err := jr.dec.Token()
	if err != nil {
		return variant.Null(), err
	}
	return jr.readValue(tok)
}

func (jr *JSONReader) readValue(tok json.Token) (variant.Variant, error) {
	switch t := tok.(type) {
	case nil:
		return variant.Null(), nil
	case bool:
		return variant.NewBool(t), nil
	case string:
		return variant.NewString(t), nil
	case json.Number:
		return numberToVariant(t), nil
	case json.Delim:
		switch t {
		case '[':
			return jr.readArray()
		case '{':
			return jr.readObject()
		default:
			return variant.Null(), fmt.Errorf("codec: unexpected delimiter %q", t)
		}
	default:
		return variant.Null(), fmt.Errorf("codec: unexpected token %v", tok)
	}
}

func (jr *JSONReader) readArray() (variant.Variant, error) {
	var elems []variant.Variant
	for jr.dec.More() {
		tok, err := jr.dec.Token()
		if err != nil {
			return variant.Null(), err
		}
		v, err := jr.readValue(tok)
		if err != nil {
			return variant.Null(), err
		}
		elems = append(elems, v)
	}
	// Consume the closing ']'.
	if _, err := jr.dec.Token(); err != nil {
		return variant.Null(), err
	}
	return variant.NewSlice(elems), nil
}

func (jr *JSONReader) readObject() (variant.Variant, error) {
	m := make(map[string]variant.Variant)
	for jr.dec.More() {
		keyTok, err := jr.dec.Token()
		if err != nil {
			return variant.Null(), err
		}
		key, ok := keyTok.(string)
		if !ok {
			return variant.Null(), fmt.Errorf("codec: expected object key, got %v", keyTok)
		}
		valTok, err := jr.dec.Token()
		if err != nil {
			return variant.Null(), err
		}
		v, err := jr.readValue(valTok)
		if err != nil {
			return variant.Null(), err
		}
		m[key] = v
	}
	// Consume the closing '}'.
	if _, err := jr.dec.Token(); err != nil {
		return variant.Null(), err
	}
	return variant.NewMap(m), nil
}

// numberToVariant parses back as the narrowest fitting integer tag, falling
// back to a double, per spec.md §4.2.
func numberToVariant(n json.Number) variant.Variant {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		switch {
		case i >= -(1<<15) && i < 1<<15:
			return variant.NewInt16(int16(i))
		case i >= -(1<<31) && i < 1<<31:
			return variant.NewInt32(int32(i))
		default:
			return variant.NewInt64(i)
		}
	}
	f, err := n.Float64()
	if err != nil {
		return variant.NewFloat64(0)
	}
	return variant.NewFloat64(f)
}
