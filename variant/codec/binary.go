// Package codec implements the framed binary and streaming JSON
// serialisation of Variant trees described in spec.md §4.2/§6: a six-byte
// magic header, optional interior "SOL" markers, and a <u32 type tag><payload>
// encoding per Variant.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rabidsql/rsqlworker/variant"
)

// DefaultQueryResult, when non-nil, is used to materialise the zero-value
// QueryResult a decoded KindQueryResult tag resolves to (its payload is never
// written, per spec.md §4.2/§9). connworker registers this in its init() so
// codec needn't import it back.
var DefaultQueryResult func() variant.QueryResulter

// Magic is the binary file header. Binary-ness is asserted up front so a
// reader never mistakes a JSON config file for a corrupt binary one.
const Magic = "RSQAF0"

// Marker precedes each interior record in a binary config file.
const Marker = "SOL"

// ErrBadMagic is returned by NewBinaryReader when the stream's header does
// not match Magic and is non-empty (an empty stream is treated as "new
// file", per spec.md §4.2).
var ErrBadMagic = fmt.Errorf("codec: bad magic header, expected %q", Magic)

// BinaryWriter frames Variant values onto an io.Writer using the format in
// spec.md §4.2. NewBinaryWriter writes the header, so every BinaryWriter is
// ready for Mark/WriteVariant as soon as it is returned.
type BinaryWriter struct {
	w      io.Writer
	tagSet TagSet
}

// NewBinaryWriter wraps w. It always emits the magic header followed by a
// one-byte tag-set version (spec.md §9's suggested fix for tolerating both
// the legacy and current tag encodings).
func NewBinaryWriter(w io.Writer) (*BinaryWriter, error) {
	if _, err := io.WriteString(w, Magic); err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte{byte(CurrentTagSet)}); err != nil {
		return nil, err
	}
	return &BinaryWriter{w: w, tagSet: CurrentTagSet}, nil
}

// Mark writes an interior "SOL" record marker.
func (bw *BinaryWriter) Mark() error {
	_, err := io.WriteString(bw.w, Marker)
	return err
}

// WriteVariant encodes a single Variant value, recursively for sequences and
// mappings.
func (bw *BinaryWriter) WriteVariant(v variant.Variant) error {
	tag, ok := tagFor(bw.tagSet, v.Kind())
	if !ok {
		return fmt.Errorf("codec: kind %s has no tag in the current tag set", v.Kind())
	}
	if err := binary.Write(bw.w, binary.LittleEndian, tag); err != nil {
		return err
	}
	return bw.writePayload(v)
}

func (bw *BinaryWriter) writePayload(v variant.Variant) error {
	switch v.Kind() {
	case variant.KindNull, variant.KindPointer:
		// No payload: the pointer kind is never persisted meaningfully
		// (it is an in-process-only value), so only its tag round-trips.
		return nil
	case variant.KindString:
		return bw.writeString(v.String())
	case variant.KindStringSlice:
		ss := v.StringSlice()
		if err := bw.writeCount(len(ss)); err != nil {
			return err
		}
		for _, s := range ss {
			if err := bw.writeString(s); err != nil {
				return err
			}
		}
		return nil
	case variant.KindSlice:
		seq := v.Slice()
		if err := bw.writeCount(len(seq)); err != nil {
			return err
		}
		for _, e := range seq {
			if err := bw.WriteVariant(e); err != nil {
				return err
			}
		}
		return nil
	case variant.KindMap:
		m := v.Map()
		if err := bw.writeCount(len(m)); err != nil {
			return err
		}
		for _, k := range sortedKeys(m) {
			if err := bw.writeString(k); err != nil {
				return err
			}
			if err := bw.WriteVariant(m[k]); err != nil {
				return err
			}
		}
		return nil
	case variant.KindUint64, variant.KindUint32, variant.KindUint16:
		return binary.Write(bw.w, binary.LittleEndian, v.Uint())
	case variant.KindInt64, variant.KindInt32, variant.KindInt16:
		return binary.Write(bw.w, binary.LittleEndian, v.Int())
	case variant.KindBool:
		var b byte
		if v.Bool() {
			b = 1
		}
		_, err := bw.w.Write([]byte{b})
		return err
	case variant.KindFloat32:
		return binary.Write(bw.w, binary.LittleEndian, float32(v.Float()))
	case variant.KindFloat64:
		return binary.Write(bw.w, binary.LittleEndian, v.Float())
	case variant.KindQueryResult:
		// QueryResult payload is intentionally empty: it decodes to a
		// default QueryResult (lossy by design, spec.md §4.2/§9).
		return nil
	default:
		return fmt.Errorf("codec: unsupported kind %s", v.Kind())
	}
}

func (bw *BinaryWriter) writeString(s string) error {
	if err := bw.writeCount(len(s)); err != nil {
		return err
	}
	_, err := io.WriteString(bw.w, s)
	return err
}

func (bw *BinaryWriter) writeCount(n int) error {
	return binary.Write(bw.w, binary.LittleEndian, uint64(n))
}

// BinaryReader decodes a byte stream framed as above. It tolerates a trailing
// EOF after a complete top-level record (spec.md §4.2).
type BinaryReader struct {
	r      io.Reader
	tagSet TagSet
}

// NewBinaryReader validates the magic header. An empty stream (0 bytes read)
// is accepted and treated as having no records, matching "readers ...
// tolerate a trailing EOF" for the degenerate empty-file case used by the
// settings loader to fall back to a default node.
func NewBinaryReader(r io.Reader) (*BinaryReader, error) {
	header := make([]byte, len(Magic))
	n, err := io.ReadFull(r, header)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if n == 0 {
				return &BinaryReader{r: r, tagSet: CurrentTagSet}, nil
			}
			return nil, ErrBadMagic
		}
		return nil, err
	}
	if string(header) != Magic {
		return nil, ErrBadMagic
	}

	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		if err == io.EOF {
			// Pre-version-byte file: assume the legacy tag encoding.
			return &BinaryReader{r: r, tagSet: LegacyTagSet}, nil
		}
		return nil, err
	}
	ts := TagSet(version[0])
	if ts != CurrentTagSet && ts != LegacyTagSet {
		return nil, fmt.Errorf("codec: unknown tag-set version %d", version[0])
	}
	return &BinaryReader{r: r, tagSet: ts}, nil
}

// ExpectMark consumes a "SOL" marker, returning false (without error) if the
// stream is at EOF.
func (br *BinaryReader) ExpectMark() (bool, error) {
	marker := make([]byte, len(Marker))
	n, err := io.ReadFull(br.r, marker)
	if err != nil {
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			return false, nil
		}
		return false, err
	}
	return string(marker) == Marker, nil
}

// ReadVariant decodes one Variant value, recursively for sequences and maps.
func (br *BinaryReader) ReadVariant() (variant.Variant, error) {
	var tag uint32
	if err := binary.Read(br.r, binary.LittleEndian, &tag); err != nil {
		return variant.Null(), err
	}
	kind, ok := kindFor(br.tagSet, tag)
	if !ok {
		return variant.Null(), fmt.Errorf("codec: unknown type tag %d", tag)
	}
	return br.readPayload(kind)
}

func (br *BinaryReader) readPayload(kind variant.Kind) (variant.Variant, error) {
	switch kind {
	case variant.KindNull:
		return variant.Null(), nil
	case variant.KindPointer:
		return variant.NewPointer(nil, false), nil
	case variant.KindString:
		s, err := br.readString()
		if err != nil {
			return variant.Null(), err
		}
		return variant.NewString(s), nil
	case variant.KindStringSlice:
		count, err := br.readCount()
		if err != nil {
			return variant.Null(), err
		}
		out := make([]string, count)
		for i := range out {
			s, err := br.readString()
			if err != nil {
				return variant.Null(), err
			}
			out[i] = s
		}
		return variant.NewStringSlice(out), nil
	case variant.KindSlice:
		count, err := br.readCount()
		if err != nil {
			return variant.Null(), err
		}
		out := make([]variant.Variant, count)
		for i := range out {
			v, err := br.ReadVariant()
			if err != nil {
				return variant.Null(), err
			}
			out[i] = v
		}
		return variant.NewSlice(out), nil
	case variant.KindMap:
		count, err := br.readCount()
		if err != nil {
			return variant.Null(), err
		}
		out := make(map[string]variant.Variant, count)
		for i := 0; i < count; i++ {
			k, err := br.readString()
			if err != nil {
				return variant.Null(), err
			}
			v, err := br.ReadVariant()
			if err != nil {
				return variant.Null(), err
			}
			out[k] = v
		}
		return variant.NewMap(out), nil
	case variant.KindUint64:
		var u uint64
		if err := binary.Read(br.r, binary.LittleEndian, &u); err != nil {
			return variant.Null(), err
		}
		return variant.NewUint64(u), nil
	case variant.KindUint32:
		var u uint64
		if err := binary.Read(br.r, binary.LittleEndian, &u); err != nil {
			return variant.Null(), err
		}
		return variant.NewUint32(uint32(u)), nil
	case variant.KindUint16:
		var u uint64
		if err := binary.Read(br.r, binary.LittleEndian, &u); err != nil {
			return variant.Null(), err
		}
		return variant.NewUint16(uint16(u)), nil
	case variant.KindInt64:
		var n int64
		if err := binary.Read(br.r, binary.LittleEndian, &n); err != nil {
			return variant.Null(), err
		}
		return variant.NewInt64(n), nil
	case variant.KindInt32:
		var n int64
		if err := binary.Read(br.r, binary.LittleEndian, &n); err != nil {
			return variant.Null(), err
		}
		return variant.NewInt32(int32(n)), nil
	case variant.KindInt16:
		var n int64
		if err := binary.Read(br.r, binary.LittleEndian, &n); err != nil {
			return variant.Null(), err
		}
		return variant.NewInt16(int16(n)), nil
	case variant.KindBool:
		b := make([]byte, 1)
		if _, err := io.ReadFull(br.r, b); err != nil {
			return variant.Null(), err
		}
		return variant.NewBool(b[0] != 0), nil
	case variant.KindFloat32:
		var f float32
		if err := binary.Read(br.r, binary.LittleEndian, &f); err != nil {
			return variant.Null(), err
		}
		return variant.NewFloat32(f), nil
	case variant.KindFloat64:
		var f float64
		if err := binary.Read(br.r, binary.LittleEndian, &f); err != nil {
			return variant.Null(), err
		}
		return variant.NewFloat64(f), nil
	case variant.KindQueryResult:
		// Empty payload: decodes to the default Variant-wrapped QueryResult.
		if DefaultQueryResult != nil {
			return variant.NewQueryResult(DefaultQueryResult()), nil
		}
		return variant.Null(), nil
	default:
		return variant.Null(), fmt.Errorf("codec: unsupported kind %s", kind)
	}
}

func (br *BinaryReader) readString() (string, error) {
	n, err := br.readCount()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (br *BinaryReader) readCount() (int, error) {
	var n uint64
	if err := binary.Read(br.r, binary.LittleEndian, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

func sortedKeys(m map[string]variant.Variant) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
