package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/instructor/internal/testutil/testlog"
)

func TestBuildAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)

	m, err := Build(s, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if v, _ := m.Uint("protocol"); v != 1 {
		t.Fatalf("protocol = %d, want default 1", v)
	}
	if m.Has("name") {
		t.Fatalf("name has no default and should be unset")
	}
	if _, err := m.Get("name"); !errors.Is(err, ErrUnsetField) {
		t.Fatalf("expected ErrUnsetField, got %v", err)
	}
}

func TestMessagesDoNotShareState(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder()
	tag := b.Bytes(Fixed(4), Default("abcd"))
	s := MustSchema(BigEndian, Fields{"tag": tag})

	one := New(s)
	two := New(s)
	if err := one.Set("tag", "zz"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := two.String("tag"); v != "abcd" {
		t.Fatalf("second message changed: %q", v)
	}

	// Mutating a returned slice must not reach the message or the spec.
	got, _ := two.Bytes("tag")
	got[0] = 'X'
	if v, _ := two.String("tag"); v != "abcd" {
		t.Fatalf("message aliased returned bytes: %q", v)
	}
	dflt, _ := tag.Default()
	if dflt != "abcd" {
		t.Fatalf("spec default changed: %v", dflt)
	}
}

func TestSetCoercion(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder()
	s := MustSchema(LittleEndian, Fields{
		"u8":   b.Uint8(),
		"s16":  b.Int16(),
		"u64":  b.Uint64(),
		"s64":  b.Int64(),
		"blob": b.Bytes(Fixed(3)),
	})
	m := New(s)

	ok := []struct {
		field string
		in    any
		want  any
	}{
		{"u8", 255, uint64(255)},
		{"u8", uint16(7), uint64(7)},
		{"u8", float64(12), uint64(12)},
		{"s16", -32768, int64(-32768)},
		{"s16", json.Number("32767"), int64(32767)},
		{"u64", json.Number("18446744073709551615"), uint64(18446744073709551615)},
		{"s64", int8(-1), int64(-1)},
		{"blob", "ab", []byte("ab")},
		{"blob", nil, []byte{}},
	}
	for _, tc := range ok {
		if err := m.Set(tc.field, tc.in); err != nil {
			t.Fatalf("set %s=%v: %v", tc.field, tc.in, err)
		}
		got, _ := m.Get(tc.field)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s = %#v, want %#v", tc.field, got, tc.want)
		}
	}

	bad := []struct {
		field string
		in    any
		want  error
	}{
		{"u8", 256, ErrEncodeRange},
		{"u8", -1, ErrEncodeRange},
		{"s16", 40000, ErrEncodeRange},
		{"s64", uint64(1 << 63), ErrEncodeRange},
		{"u64", json.Number("18446744073709551616"), ErrEncodeRange},
		{"u8", 1.5, ErrFieldTypeMismatch},
		{"u8", "1", ErrFieldTypeMismatch},
		{"blob", 3, ErrFieldTypeMismatch},
		{"nope", 1, ErrUnknownField},
	}
	for _, tc := range bad {
		err := m.Set(tc.field, tc.in)
		if !errors.Is(err, tc.want) {
			t.Fatalf("set %s=%v: expected %v, got %v", tc.field, tc.in, tc.want, err)
		}
	}
}

func TestBuildRejectsOutOfRange(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	_, err := Build(s, map[string]any{"protocol": 70000})
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "protocol" || !errors.Is(err, ErrEncodeRange) {
		t.Fatalf("expected range error on protocol, got %v", err)
	}
}

func TestUnset(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	m := New(s)
	if err := m.Unset("protocol"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if m.Has("protocol") {
		t.Fatalf("protocol still set")
	}
	if _, err := m.Pack(); !errors.Is(err, ErrUnsetField) {
		t.Fatalf("expected ErrUnsetField, got %v", err)
	}
	if err := m.Unset("nope"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestValuesAndMap(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	m, err := Build(s, map[string]any{"length": 2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	vals := m.Values()
	if len(vals) != 3 || vals[0].Name != "protocol" || vals[2].Name != "name" {
		t.Fatalf("unexpected values: %+v", vals)
	}
	if vals[2].Set || vals[2].Kind != KindBytes {
		t.Fatalf("name should be an unset bytes value: %+v", vals[2])
	}

	want := map[string]any{"protocol": uint64(1), "length": uint64(2)}
	if got := m.Map(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Map() = %#v, want %#v", got, want)
	}
}

func TestIntAndUintAccessors(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder()
	s := MustSchema(BigEndian, Fields{
		"neg": b.Int32(Default(-4)),
		"big": b.Uint64(Default(uint64(1 << 63))),
		"raw": b.Bytes(Fixed(1), Default("x")),
	})
	m := New(s)

	if _, err := m.Uint("neg"); !errors.Is(err, ErrFieldTypeMismatch) {
		t.Fatalf("expected mismatch for negative Uint, got %v", err)
	}
	if _, err := m.Int("big"); !errors.Is(err, ErrFieldTypeMismatch) {
		t.Fatalf("expected mismatch for huge Int, got %v", err)
	}
	if _, err := m.Int("raw"); !errors.Is(err, ErrFieldTypeMismatch) {
		t.Fatalf("expected mismatch for bytes Int, got %v", err)
	}
	if _, err := m.Bytes("neg"); !errors.Is(err, ErrFieldTypeMismatch) {
		t.Fatalf("expected mismatch for integer Bytes, got %v", err)
	}
	if v, err := m.Int("neg"); err != nil || v != -4 {
		t.Fatalf("Int(neg) = %d, %v", v, err)
	}
}

type helloRecord struct {
	Protocol uint16 `wire:"protocol"`
	Length   uint32 `wire:"length"`
	Name     string `wire:"name"`
}

func TestBindIntoStruct(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	m, err := Decode(s, helloWire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var rec helloRecord
	if err := m.Bind(&rec); err != nil {
		t.Fatalf("bind: %v", err)
	}
	want := helloRecord{Protocol: 1, Length: 12, Name: "Hello World!"}
	if rec != want {
		t.Fatalf("bind = %+v, want %+v", rec, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	m, err := Decode(s, helloWire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	c := m.Clone()
	if c.Schema() != s {
		t.Fatalf("clone should share the schema")
	}
	if err := c.Set("name", "Hello Gopher"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Unset("protocol"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if v, _ := m.String("name"); v != "Hello World!" {
		t.Fatalf("original changed: %q", v)
	}
	if !m.Has("protocol") {
		t.Fatalf("original lost protocol")
	}
}

func TestSchemaSize(t *testing.T) {
	testlog.Start(t)
	s := helloSchema(t)
	m, err := Decode(s, helloWire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	n, err := s.Size(m)
	if err != nil || n != len(helloWire) {
		t.Fatalf("Size = %d, %v; want %d", n, err, len(helloWire))
	}
	if _, err := s.Size(New(s)); !errors.Is(err, ErrUnsetField) {
		t.Fatalf("expected ErrUnsetField, got %v", err)
	}
}
