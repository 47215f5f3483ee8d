package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/instructor/internal/testutil/testlog"
)

func TestSchemaOrderIgnoresMapIteration(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder()
	specs := []struct {
		name string
		spec *FieldSpec
	}{
		{"magic", b.Uint8()},
		{"opcode", b.Uint8()},
		{"key_length", b.Uint16()},
		{"status", b.Uint16()},
		{"cas", b.Uint64()},
	}
	want := []string{"magic", "opcode", "key_length", "status", "cas"}

	// Insert in every rotation and reversed; Go map iteration is randomized
	// on top of that.
	for r := 0; r < len(specs)*2; r++ {
		fields := Fields{}
		for i := range specs {
			j := (i + r) % len(specs)
			if r >= len(specs) {
				j = len(specs) - 1 - j
			}
			fields[specs[j].name] = specs[j].spec
		}
		s, err := NewSchema(Network, fields)
		if err != nil {
			t.Fatalf("rotation %d: %v", r, err)
		}
		if got := s.Names(); !reflect.DeepEqual(got, want) {
			t.Fatalf("rotation %d: order = %v, want %v", r, got, want)
		}
	}
}

func TestSchemaFieldsAddedIncrementally(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder()
	fields := Fields{"protocol": b.Uint16(Default(9))}
	fields["length"] = b.Uint32(Default(5))
	fields["name"] = b.Bytes(Ref(fields["length"]))

	s, err := NewSchema(Network, fields)
	if err != nil {
		t.Fatalf("new schema: %v", err)
	}
	wire := []byte{0x00, 0x09, 0x00, 0x00, 0x00, 0x05, '0', '1', '2', '3', '4'}
	m, err := Decode(s, wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, _ := m.String("name"); v != "01234" {
		t.Fatalf("name = %q", v)
	}
}

func TestBuildersAreIndependent(t *testing.T) {
	testlog.Start(t)
	a, b := NewBuilder(), NewBuilder()
	if a.Uint8().Ordinal() != b.Uint8().Ordinal() {
		t.Fatalf("fresh builders should start from the same ordinal")
	}
}

func TestSchemaErrors(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder()
	shared := b.Uint8()
	signed := b.Int32()
	later := b.Uint32()
	earlyBytes := NewBuilder().Bytes(Ref(later))

	other := NewBuilder()
	outside := other.Uint32()

	cases := []struct {
		name   string
		fields Fields
		want   string
	}{
		{
			name:   "shared ordinal",
			fields: Fields{"a": shared, "b": shared},
			want:   "declaration ordinal",
		},
		{
			name:   "negative fixed length",
			fields: Fields{"data": b.Bytes(Fixed(-1))},
			want:   "negative fixed length",
		},
		{
			name:   "dangling name",
			fields: Fields{"data": b.Bytes(RefName("missing"))},
			want:   "outside the schema",
		},
		{
			name:   "dangling field object",
			fields: Fields{"data": b.Bytes(Ref(outside))},
			want:   "outside the schema",
		},
		{
			name:   "forward reference",
			fields: Fields{"later": later, "data": earlyBytes},
			want:   "not declared before",
		},
		{
			name:   "signed length",
			fields: Fields{"n": signed, "data": b.Bytes(Ref(signed))},
			want:   "want unsigned",
		},
		{
			name:   "empty name",
			fields: Fields{" ": b.Uint8()},
			want:   "empty field name",
		},
		{
			name:   "nil spec",
			fields: Fields{"x": nil},
			want:   "nil field spec",
		},
		{
			name:   "default out of range",
			fields: Fields{"x": b.Uint8(Default(256))},
			want:   "does not fit",
		},
		{
			name:   "default wrong type",
			fields: Fields{"x": b.Uint8(Default("one"))},
			want:   "cannot use string",
		},
		{
			name:   "default wider than fixed",
			fields: Fields{"x": b.Bytes(Fixed(2), Default("abc"))},
			want:   "field width is 2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSchema(BigEndian, tc.fields)
			if !errors.Is(err, ErrSchema) {
				t.Fatalf("expected ErrSchema, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestSchemaInvalidByteOrder(t *testing.T) {
	testlog.Start(t)
	if _, err := NewSchema(ByteOrder(9), Fields{}); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	b := NewBuilder()
	if _, err := NewSchema(BigEndian, Fields{"x": b.Uint16(Order(ByteOrder(-1)))}); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for field order, got %v", err)
	}
}

func TestMustSchemaPanics(t *testing.T) {
	testlog.Start(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustSchema(BigEndian, Fields{"x": nil})
}

func TestSchemaIntrospection(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	if s.Len() != 3 || s.Order() != BigEndian {
		t.Fatalf("unexpected schema: len=%d order=%s", s.Len(), s.Order())
	}
	if s.MinSize() != 6 {
		t.Fatalf("MinSize = %d, want 6", s.MinSize())
	}
	f, ok := s.Field("name")
	if !ok || f.LengthField() != 1 || f.Spec.Kind() != KindBytes {
		t.Fatalf("unexpected name field: %+v", f)
	}
	if got := s.String(); got != "be { protocol u2, length u4, name bytes[length] }" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseByteOrderAndKind(t *testing.T) {
	testlog.Start(t)
	for raw, want := range map[string]ByteOrder{"network": BigEndian, "LE": LittleEndian, "": Native, ">": BigEndian} {
		got, err := ParseByteOrder(raw)
		if err != nil || got != want {
			t.Fatalf("ParseByteOrder(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseByteOrder("middle"); err == nil {
		t.Fatalf("expected error for unknown order")
	}
	for raw, want := range map[string]Kind{"u4": KindUint32, "s8": KindInt64, "str": KindBytes} {
		got, err := ParseKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseKind("f4"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
