package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/mapstructure"
)

// Message is a live set of field values conforming to one Schema. Unsigned
// fields hold uint64, signed fields hold int64 and byte fields hold []byte.
type Message struct {
	schema *Schema
	values []any
	set    []bool
}

// Value is one field of a message in serialization order.
type Value struct {
	Name  string
	Kind  Kind
	Value any
	Set   bool
}

func newMessage(s *Schema) *Message {
	return &Message{
		schema: s,
		values: make([]any, len(s.fields)),
		set:    make([]bool, len(s.fields)),
	}
}

// New returns a message holding only schema defaults.
func New(s *Schema) *Message {
	m := newMessage(s)
	for i, f := range s.fields {
		if f.hasDflt {
			m.values[i] = copyValue(f.dflt)
			m.set[i] = true
		}
	}
	return m
}

// Build merges values over schema defaults. Fields left without a value stay
// unset; only Pack requires every field to be populated.
func Build(s *Schema, values map[string]any) (*Message, error) {
	m := New(s)
	for name, v := range values {
		if err := m.Set(name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Schema returns the schema the message conforms to.
func (m *Message) Schema() *Schema { return m.schema }

func (m *Message) lookup(name string) (int, error) {
	i, ok := m.schema.index[name]
	if !ok {
		return 0, &FieldError{Err: ErrUnknownField, Field: name}
	}
	return i, nil
}

// Has reports whether name is a schema field holding a value.
func (m *Message) Has(name string) bool {
	i, ok := m.schema.index[name]
	return ok && m.set[i]
}

// Get returns the current value of name.
func (m *Message) Get(name string) (any, error) {
	i, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if !m.set[i] {
		return nil, &FieldError{Err: ErrUnsetField, Field: name}
	}
	return copyValue(m.values[i]), nil
}

// Set assigns v to name after coercing it to the field's storage type.
// Integers must fit the declared width.
func (m *Message) Set(name string, v any) error {
	i, err := m.lookup(name)
	if err != nil {
		return err
	}
	k := m.schema.fields[i].Spec.kind
	nv, err := normalize(k, v)
	var re rangeError
	if errors.As(err, &re) {
		return &FieldError{Err: ErrEncodeRange, Field: name, Reason: err.Error()}
	}
	if err != nil {
		return &FieldError{Err: ErrFieldTypeMismatch, Field: name, Reason: err.Error()}
	}
	if err := checkRange(k, nv); err != nil {
		return &FieldError{Err: ErrEncodeRange, Field: name, Reason: err.Error()}
	}
	m.values[i] = nv
	m.set[i] = true
	return nil
}

// Unset clears the value held for name.
func (m *Message) Unset(name string) error {
	i, err := m.lookup(name)
	if err != nil {
		return err
	}
	m.values[i] = nil
	m.set[i] = false
	return nil
}

// Uint returns an unsigned field, or a non-negative signed one.
func (m *Message) Uint(name string) (uint64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case uint64:
		return v, nil
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
		return 0, fieldErrorf(ErrFieldTypeMismatch, name, "negative value %d", v)
	default:
		return 0, fieldErrorf(ErrFieldTypeMismatch, name, "not an integer field")
	}
}

// Int returns a signed field, or an unsigned one that fits int64.
func (m *Message) Int(name string) (int64, error) {
	v, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case int64:
		return v, nil
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), nil
		}
		return 0, fieldErrorf(ErrFieldTypeMismatch, name, "value %d overflows int64", v)
	default:
		return 0, fieldErrorf(ErrFieldTypeMismatch, name, "not an integer field")
	}
}

// Bytes returns a copy of a byte field.
func (m *Message) Bytes(name string) ([]byte, error) {
	v, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fieldErrorf(ErrFieldTypeMismatch, name, "not a bytes field")
	}
	return b, nil
}

// String returns a byte field as a string.
func (m *Message) String(name string) (string, error) {
	b, err := m.Bytes(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Values returns every field in serialization order, set or not.
func (m *Message) Values() []Value {
	out := make([]Value, len(m.values))
	for i, f := range m.schema.fields {
		out[i] = Value{
			Name:  f.Name,
			Kind:  f.Spec.kind,
			Value: copyValue(m.values[i]),
			Set:   m.set[i],
		}
	}
	return out
}

// Map returns the set fields keyed by name.
func (m *Message) Map() map[string]any {
	out := make(map[string]any, len(m.values))
	for i, f := range m.schema.fields {
		if m.set[i] {
			out[f.Name] = copyValue(m.values[i])
		}
	}
	return out
}

// Bind copies set fields into out, a pointer to a struct or map. Struct
// fields are matched by their `wire` tag, falling back to a case-insensitive
// name match. Byte fields may bind to string or []byte.
func (m *Message) Bind(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "wire",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("protocol: bind: %w", err)
	}
	if err := dec.Decode(m.Map()); err != nil {
		return fmt.Errorf("protocol: bind: %w", err)
	}
	return nil
}

// Clone returns an independent deep copy sharing only the Schema.
func (m *Message) Clone() *Message {
	return &Message{
		schema: m.schema,
		values: copystructure.Must(copystructure.Copy(m.values)).([]any),
		set:    append([]bool(nil), m.set...),
	}
}

// Pack encodes the message according to its schema.
func (m *Message) Pack() ([]byte, error) {
	return Pack(m.schema, m)
}

func copyValue(v any) any {
	if b, ok := v.([]byte); ok {
		return append([]byte{}, b...)
	}
	return v
}

// normalize coerces v to the storage type of k without range checks.
func normalize(k Kind, v any) (any, error) {
	if k == KindBytes {
		switch v := v.(type) {
		case []byte:
			return append([]byte{}, v...), nil
		case string:
			return []byte(v), nil
		case nil:
			return []byte{}, nil
		default:
			return nil, fmt.Errorf("cannot use %T as bytes", v)
		}
	}
	if !k.Integer() {
		return nil, fmt.Errorf("invalid kind %s", k)
	}

	var (
		u   uint64
		i   int64
		neg bool
	)
	switch v := v.(type) {
	case int:
		i, neg = int64(v), v < 0
	case int8:
		i, neg = int64(v), v < 0
	case int16:
		i, neg = int64(v), v < 0
	case int32:
		i, neg = int64(v), v < 0
	case int64:
		i, neg = v, v < 0
	case uint:
		u = uint64(v)
	case uint8:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint32:
		u = uint64(v)
	case uint64:
		u = v
	case float32:
		return normalize(k, float64(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("non-integral number %v", v)
		}
		if v < 0 {
			if v < math.MinInt64 {
				return nil, rangeErrorf("number %v", v)
			}
			i, neg = int64(v), true
		} else {
			if v >= math.MaxUint64 {
				return nil, rangeErrorf("number %v", v)
			}
			u = uint64(v)
		}
	case json.Number:
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return normalize(k, n)
		}
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return nil, rangeErrorf("number %s", v.String())
		}
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", v.String())
		}
		return normalize(k, n)
	default:
		return nil, fmt.Errorf("cannot use %T as %s", v, k)
	}

	// Non-negative signed inputs are carried in u from here on.
	if !neg && i > 0 {
		u = uint64(i)
	}
	if k.Unsigned() {
		if neg {
			return nil, rangeErrorf("negative value %d for unsigned %s", i, k)
		}
		return u, nil
	}
	if neg {
		return i, nil
	}
	if u > math.MaxInt64 {
		return nil, rangeErrorf("value %d overflows %s", u, k)
	}
	return int64(u), nil
}

// rangeError marks coercion failures caused by magnitude rather than type.
type rangeError struct{ msg string }

func (e rangeError) Error() string { return e.msg }

func rangeErrorf(format string, a ...any) error {
	return rangeError{msg: fmt.Sprintf(format, a...)}
}

// checkRange verifies a normalized value fits the width of k.
func checkRange(k Kind, v any) error {
	bits := uint(k.Size() * 8)
	switch v := v.(type) {
	case uint64:
		if bits < 64 && v>>bits != 0 {
			return rangeErrorf("value %d does not fit %s", v, k)
		}
	case int64:
		if bits < 64 {
			lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
			if v < lo || v > hi {
				return rangeErrorf("value %d does not fit %s", v, k)
			}
		}
	}
	return nil
}
