package protocol

// Decode unpacks data against s. Bytes past the last field are ignored.
func Decode(s *Schema, data []byte) (*Message, error) {
	m, _, err := DecodePrefix(s, data)
	return m, err
}

// DecodePrefix is Decode that also reports how many bytes were consumed.
// No defaults are applied: on success every schema field is populated.
func DecodePrefix(s *Schema, data []byte) (*Message, int, error) {
	m := newMessage(s)
	offset := 0
	for i, f := range s.fields {
		remaining := len(data) - offset
		k := f.Spec.kind

		if k == KindBytes {
			n, err := m.width(i)
			if err != nil {
				return nil, 0, err
			}
			if n > uint64(remaining) {
				return nil, 0, DataSizeError{Field: f.Name, Offset: offset, Need: n, Remaining: remaining}
			}
			if err := s.checkWidth(f.Name, n); err != nil {
				return nil, 0, err
			}
			end := offset + int(n)
			value := make([]byte, n)
			copy(value, data[offset:end])
			m.values[i] = value
			m.set[i] = true
			offset = end
			continue
		}

		size := k.Size()
		if remaining < size {
			return nil, 0, DataSizeError{Field: f.Name, Offset: offset, Need: uint64(size), Remaining: remaining}
		}
		m.values[i] = decodeInt(k, f.order, data[offset:offset+size])
		m.set[i] = true
		offset += size
	}
	return m, offset, nil
}

// width resolves the byte count of the bytes field at index i from the
// literal length or the live value of the referenced field.
func (m *Message) width(i int) (uint64, error) {
	f := m.schema.fields[i]
	if f.lenIdx < 0 {
		return uint64(f.Spec.length.fixed), nil
	}
	ref := m.schema.fields[f.lenIdx]
	if !m.set[f.lenIdx] {
		return 0, fieldErrorf(ErrUnsetField, ref.Name, "length of %q", f.Name)
	}
	n, ok := m.values[f.lenIdx].(uint64)
	if !ok {
		return 0, fieldErrorf(ErrFieldTypeMismatch, ref.Name, "length of %q is not unsigned", f.Name)
	}
	return n, nil
}

func decodeInt(k Kind, o ByteOrder, b []byte) any {
	bo := o.binary()
	switch k {
	case KindUint8:
		return uint64(b[0])
	case KindUint16:
		return uint64(bo.Uint16(b))
	case KindUint32:
		return uint64(bo.Uint32(b))
	case KindUint64:
		return bo.Uint64(b)
	case KindInt8:
		return int64(int8(b[0]))
	case KindInt16:
		return int64(int16(bo.Uint16(b)))
	case KindInt32:
		return int64(int32(bo.Uint32(b)))
	case KindInt64:
		return int64(bo.Uint64(b))
	default:
		panic("unreachable")
	}
}
