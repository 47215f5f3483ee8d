package protocol

import "math"

// Pack encodes m field by field in schema order. Byte fields shorter than
// their resolved width are zero padded on the right; longer ones fail with
// ErrEncodeOverflow. On error no bytes are returned.
func Pack(s *Schema, m *Message) ([]byte, error) {
	widths, total, err := s.layout(m)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, total)
	offset := 0
	for i, f := range s.fields {
		out := buf[offset : offset+widths[i]]
		if f.Spec.kind == KindBytes {
			value, _ := m.values[i].([]byte)
			copy(out, value)
		} else {
			encodeInt(f.Spec.kind, f.order, out, m.values[i])
		}
		offset += widths[i]
	}
	return buf, nil
}

// Size reports the number of bytes Pack would produce for m.
func (s *Schema) Size(m *Message) (int, error) {
	_, total, err := s.layout(m)
	return total, err
}

// layout validates m for packing and resolves the width of every field.
func (s *Schema) layout(m *Message) ([]int, int, error) {
	if m == nil {
		return nil, 0, SchemaError{Reason: "nil message"}
	}
	if m.schema != s {
		return nil, 0, SchemaError{Reason: "message belongs to a different schema"}
	}

	widths := make([]int, len(s.fields))
	total := 0
	for i, f := range s.fields {
		if !m.set[i] {
			return nil, 0, &FieldError{Err: ErrUnsetField, Field: f.Name}
		}
		k := f.Spec.kind
		if k != KindBytes {
			if err := checkRange(k, m.values[i]); err != nil {
				return nil, 0, &FieldError{Err: ErrEncodeRange, Field: f.Name, Reason: err.Error()}
			}
			widths[i] = k.Size()
			total += widths[i]
			continue
		}

		n, err := m.width(i)
		if err != nil {
			return nil, 0, err
		}
		if err := s.checkWidth(f.Name, n); err != nil {
			return nil, 0, err
		}
		value, _ := m.values[i].([]byte)
		if uint64(len(value)) > n {
			return nil, 0, fieldErrorf(ErrEncodeOverflow, f.Name, "value is %d bytes, width is %d", len(value), n)
		}
		widths[i] = int(n)
		total += widths[i]
	}
	return widths, total, nil
}

// checkWidth applies the field length cap. Decode and pack share it so that
// every decoded message packs again.
func (s *Schema) checkWidth(name string, n uint64) error {
	if n > s.maxFieldLength || n > math.MaxInt32 {
		return fieldErrorf(ErrLengthTooLarge, name, "resolved width %d exceeds %d", n, s.maxFieldLength)
	}
	return nil
}

func encodeInt(k Kind, o ByteOrder, b []byte, v any) {
	var u uint64
	switch v := v.(type) {
	case uint64:
		u = v
	case int64:
		u = uint64(v)
	}
	bo := o.binary()
	switch k {
	case KindUint8, KindInt8:
		b[0] = byte(u)
	case KindUint16, KindInt16:
		bo.PutUint16(b, uint16(u))
	case KindUint32, KindInt32:
		bo.PutUint32(b, uint32(u))
	case KindUint64, KindInt64:
		bo.PutUint64(b, u)
	default:
		panic("unreachable")
	}
}
