package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultMaxFieldLength bounds the width a byte field may resolve to on
// decode and pack.
const DefaultMaxFieldLength uint64 = 64 * 1024 * 1024

// Fields is an unordered name to spec collection handed to NewSchema.
type Fields map[string]*FieldSpec

// Field is one resolved schema slot.
type Field struct {
	Name string
	Spec *FieldSpec

	order   ByteOrder
	dflt    any
	hasDflt bool
	lenIdx  int
}

// ByteOrder returns the effective order for this slot.
func (f Field) ByteOrder() ByteOrder { return f.order }

// LengthField returns the index of the field supplying this slot's width, or
// -1 when the width is literal or the slot is an integer.
func (f Field) LengthField() int { return f.lenIdx }

// Schema is an immutable ordered list of fields plus one byte order.
type Schema struct {
	order          ByteOrder
	fields         []Field
	index          map[string]int
	maxFieldLength uint64
}

// SchemaOption customizes schema assembly.
type SchemaOption func(*Schema)

// WithMaxFieldLength caps the resolved width of any byte field on decode and
// pack.
func WithMaxFieldLength(n uint64) SchemaOption {
	return func(s *Schema) {
		s.maxFieldLength = n
	}
}

// NewSchema orders fields by declaration ordinal and validates the result.
// The iteration order of fields is irrelevant.
func NewSchema(order ByteOrder, fields Fields, opts ...SchemaOption) (*Schema, error) {
	if !order.valid() {
		return nil, schemaErrorf("", "invalid byte order %d", int(order))
	}
	s := &Schema{
		order:          order,
		fields:         make([]Field, 0, len(fields)),
		index:          make(map[string]int, len(fields)),
		maxFieldLength: DefaultMaxFieldLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	for name, spec := range fields {
		if strings.TrimSpace(name) == "" {
			return nil, schemaErrorf(name, "empty field name")
		}
		if spec == nil {
			return nil, schemaErrorf(name, "nil field spec")
		}
		if _, ok := kindNames[spec.kind]; !ok {
			return nil, schemaErrorf(name, "invalid kind %d", int(spec.kind))
		}
		fieldOrder := order
		if spec.ordered {
			if !spec.order.valid() {
				return nil, schemaErrorf(name, "invalid byte order %d", int(spec.order))
			}
			fieldOrder = spec.order
		}
		s.fields = append(s.fields, Field{Name: name, Spec: spec, order: fieldOrder, lenIdx: -1})
	}

	sort.Slice(s.fields, func(i, j int) bool {
		return s.fields[i].Spec.ordinal < s.fields[j].Spec.ordinal
	})

	byPtr := make(map[*FieldSpec]int, len(s.fields))
	for i, f := range s.fields {
		if i > 0 && s.fields[i-1].Spec.ordinal == f.Spec.ordinal {
			return nil, schemaErrorf(f.Name, "declaration ordinal %d shared with field %q",
				f.Spec.ordinal, s.fields[i-1].Name)
		}
		s.index[f.Name] = i
		byPtr[f.Spec] = i
	}

	for i := range s.fields {
		if err := s.resolveLength(i, byPtr); err != nil {
			return nil, err
		}
		if err := s.resolveDefault(i); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustSchema is NewSchema for package-level declarations.
func MustSchema(order ByteOrder, fields Fields, opts ...SchemaOption) *Schema {
	s, err := NewSchema(order, fields, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) resolveLength(i int, byPtr map[*FieldSpec]int) error {
	f := &s.fields[i]
	if f.Spec.kind != KindBytes {
		return nil
	}
	l := f.Spec.length
	if !l.Dependent() {
		if l.fixed < 0 {
			return schemaErrorf(f.Name, "negative fixed length %d", l.fixed)
		}
		return nil
	}

	idx, ok := -1, false
	if l.ref != nil {
		idx, ok = byPtr[l.ref]
	} else {
		idx, ok = s.index[l.name]
	}
	if !ok {
		return schemaErrorf(f.Name, "length references a field outside the schema (%s)", l)
	}
	ref := s.fields[idx]
	if ref.Spec.ordinal >= f.Spec.ordinal {
		return schemaErrorf(f.Name, "length field %q is not declared before it", ref.Name)
	}
	if !ref.Spec.kind.Unsigned() {
		return schemaErrorf(f.Name, "length field %q has kind %s, want unsigned", ref.Name, ref.Spec.kind)
	}
	f.lenIdx = idx
	return nil
}

func (s *Schema) resolveDefault(i int) error {
	f := &s.fields[i]
	if !f.Spec.hasDflt {
		return nil
	}
	v, err := normalize(f.Spec.kind, f.Spec.dflt)
	if err != nil {
		return schemaErrorf(f.Name, "default: %v", err)
	}
	if err := checkRange(f.Spec.kind, v); err != nil {
		return schemaErrorf(f.Name, "default: %v", err)
	}
	if b, ok := v.([]byte); ok && f.lenIdx < 0 && len(b) > f.Spec.length.fixed {
		return schemaErrorf(f.Name, "default is %d bytes, field width is %d", len(b), f.Spec.length.fixed)
	}
	f.dflt = v
	f.hasDflt = true
	return nil
}

// Order returns the schema-wide byte order.
func (s *Schema) Order() ByteOrder { return s.order }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// MaxFieldLength returns the cap on resolved byte field widths.
func (s *Schema) MaxFieldLength() uint64 { return s.maxFieldLength }

// Fields returns the slots in serialization order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a slot by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Names returns field names in serialization order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// MinSize is the encoded width with every dependent byte field empty.
func (s *Schema) MinSize() int {
	n := 0
	for _, f := range s.fields {
		if f.Spec.kind == KindBytes {
			if f.lenIdx < 0 {
				n += f.Spec.length.fixed
			}
			continue
		}
		n += f.Spec.kind.Size()
	}
	return n
}

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString(s.order.String())
	b.WriteString(" {")
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(" ")
		b.WriteString(f.Name)
		b.WriteString(" ")
		if f.Spec.kind == KindBytes {
			if f.lenIdx >= 0 {
				fmt.Fprintf(&b, "bytes[%s]", s.fields[f.lenIdx].Name)
			} else {
				fmt.Fprintf(&b, "bytes[%d]", f.Spec.length.fixed)
			}
			continue
		}
		b.WriteString(f.Spec.kind.String())
		if f.order != s.order {
			b.WriteString("/")
			b.WriteString(f.order.String())
		}
	}
	b.WriteString(" }")
	return b.String()
}
