package protocol

import "fmt"

// FieldSpec describes one schema slot. It is purely descriptive: values held
// by messages are never written back into it, so one spec may back any number
// of messages.
type FieldSpec struct {
	kind    Kind
	ordinal uint64
	dflt    any
	hasDflt bool
	order   ByteOrder
	ordered bool
	length  LengthSpec
}

// Kind returns the field type.
func (f *FieldSpec) Kind() Kind { return f.kind }

// Ordinal returns the declaration ordinal assigned by the Builder.
func (f *FieldSpec) Ordinal() uint64 { return f.ordinal }

// Default returns a copy of the default value, if one was declared.
func (f *FieldSpec) Default() (any, bool) {
	if !f.hasDflt {
		return nil, false
	}
	return copyValue(f.dflt), true
}

// Length returns the length rule of a KindBytes field.
func (f *FieldSpec) Length() LengthSpec { return f.length }

// ByteOrder returns the per-field override and whether one was set.
func (f *FieldSpec) ByteOrder() (ByteOrder, bool) { return f.order, f.ordered }

func (f *FieldSpec) String() string {
	if f.kind == KindBytes {
		return fmt.Sprintf("%s[%s]#%d", f.kind, f.length, f.ordinal)
	}
	return fmt.Sprintf("%s#%d", f.kind, f.ordinal)
}

// LengthSpec is either a literal byte count or a reference to an earlier
// unsigned field whose live value supplies the byte count.
type LengthSpec struct {
	fixed int
	ref   *FieldSpec
	name  string
}

// Fixed declares a literal byte width. Negative widths are rejected when the
// schema is assembled.
func Fixed(n int) LengthSpec {
	return LengthSpec{fixed: n}
}

// Ref declares a width taken from the field declared as spec.
func Ref(spec *FieldSpec) LengthSpec {
	return LengthSpec{ref: spec}
}

// RefName declares a width taken from the field registered under name.
func RefName(name string) LengthSpec {
	return LengthSpec{name: name}
}

// Dependent reports whether the width comes from another field.
func (l LengthSpec) Dependent() bool {
	return l.ref != nil || l.name != ""
}

// FixedLen returns the literal width of a non-dependent spec.
func (l LengthSpec) FixedLen() int { return l.fixed }

func (l LengthSpec) String() string {
	switch {
	case l.name != "":
		return l.name
	case l.ref != nil:
		return fmt.Sprintf("#%d", l.ref.ordinal)
	default:
		return fmt.Sprintf("%d", l.fixed)
	}
}

// FieldOption customizes a FieldSpec at declaration time.
type FieldOption func(*FieldSpec)

// Default sets the value a field takes when Build is not given one.
func Default(v any) FieldOption {
	return func(f *FieldSpec) {
		f.dflt = v
		f.hasDflt = true
	}
}

// Order overrides the schema byte order for one field.
func Order(o ByteOrder) FieldOption {
	return func(f *FieldSpec) {
		f.order = o
		f.ordered = true
	}
}

// Builder stamps a strictly increasing declaration ordinal onto every
// FieldSpec it creates. Each Builder owns its own counter.
type Builder struct {
	next uint64
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) field(k Kind, l LengthSpec, opts []FieldOption) *FieldSpec {
	b.next++
	f := &FieldSpec{kind: k, ordinal: b.next, length: l}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (b *Builder) Uint8(opts ...FieldOption) *FieldSpec {
	return b.field(KindUint8, LengthSpec{}, opts)
}

func (b *Builder) Uint16(opts ...FieldOption) *FieldSpec {
	return b.field(KindUint16, LengthSpec{}, opts)
}

func (b *Builder) Uint32(opts ...FieldOption) *FieldSpec {
	return b.field(KindUint32, LengthSpec{}, opts)
}

func (b *Builder) Uint64(opts ...FieldOption) *FieldSpec {
	return b.field(KindUint64, LengthSpec{}, opts)
}

func (b *Builder) Int8(opts ...FieldOption) *FieldSpec {
	return b.field(KindInt8, LengthSpec{}, opts)
}

func (b *Builder) Int16(opts ...FieldOption) *FieldSpec {
	return b.field(KindInt16, LengthSpec{}, opts)
}

func (b *Builder) Int32(opts ...FieldOption) *FieldSpec {
	return b.field(KindInt32, LengthSpec{}, opts)
}

func (b *Builder) Int64(opts ...FieldOption) *FieldSpec {
	return b.field(KindInt64, LengthSpec{}, opts)
}

// Bytes declares a byte string whose width follows l.
func (b *Builder) Bytes(l LengthSpec, opts ...FieldOption) *FieldSpec {
	return b.field(KindBytes, l, opts)
}

// Field declares a field of any kind; l is ignored for integer kinds.
func (b *Builder) Field(k Kind, l LengthSpec, opts ...FieldOption) *FieldSpec {
	if k != KindBytes {
		l = LengthSpec{}
	}
	return b.field(k, l, opts)
}
