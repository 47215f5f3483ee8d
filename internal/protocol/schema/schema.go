// Package schema compiles declarative schema documents into protocol.Schema
// values. Documents are YAML or TOML:
//
//	id: hello
//	endian: be          # be | le | network | native
//	seq:
//	  - id: protocol
//	    type: u2        # u1 u2 u4 u8 s1 s2 s4 s8 bytes str
//	    default: 1
//	  - id: length
//	    type: u4
//	    endian: le      # per-field override
//	  - id: name
//	    type: bytes
//	    size: length    # literal width or an earlier field id
//
// The position of an entry in seq fixes its wire position.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/instructor/internal/protocol"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingID   = errors.New("schema: missing id")
	ErrDuplicateID = errors.New("schema: duplicate id")
	ErrUnknownKey  = errors.New("schema: unknown key")
	ErrSize        = errors.New("schema: invalid size")
)

// ValueError locates a document error. Line is 0 when the source format does
// not report positions.
type ValueError struct {
	Line int
	Err  error
}

func (v ValueError) Unwrap() error { return v.Err }

func (v ValueError) Error() string {
	if v.Line <= 0 {
		return v.Err.Error()
	}
	return fmt.Sprintf("%d: %s", v.Line, v.Err)
}

func valueErrorf(line int, format string, a ...any) ValueError {
	return ValueError{Line: line, Err: fmt.Errorf(format, a...)}
}

// Def is a parsed, not yet compiled, schema document.
type Def struct {
	ID     string     `yaml:"id" toml:"id" json:"id"`
	Doc    string     `yaml:"doc,omitempty" toml:"doc,omitempty" json:"doc,omitempty"`
	Endian Endian     `yaml:"endian,omitempty" toml:"endian,omitempty" json:"endian,omitempty"`
	Seq    []FieldDef `yaml:"seq" toml:"seq" json:"seq"`
}

// FieldDef is one seq entry.
type FieldDef struct {
	ID      string `yaml:"id" toml:"id" json:"id"`
	Type    string `yaml:"type" toml:"type" json:"type"`
	Size    Size   `yaml:"size,omitempty" toml:"size,omitempty" json:"size,omitempty"`
	Endian  Endian `yaml:"endian,omitempty" toml:"endian,omitempty" json:"endian,omitempty"`
	Default any    `yaml:"default,omitempty" toml:"default,omitempty" json:"default,omitempty"`
	Doc     string `yaml:"doc,omitempty" toml:"doc,omitempty" json:"doc,omitempty"`

	Line int `yaml:"-" toml:"-" json:"-"`
}

var fieldKeys = map[string]bool{
	"id": true, "type": true, "size": true, "endian": true, "default": true, "doc": true,
}

func (f *FieldDef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return valueErrorf(value.Line, "seq entry must be a mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		k := value.Content[i]
		if !fieldKeys[k.Value] {
			return ValueError{Line: k.Line, Err: fmt.Errorf("%w %q", ErrUnknownKey, k.Value)}
		}
	}
	type plain FieldDef
	if err := value.Decode((*plain)(f)); err != nil {
		return err
	}
	f.Line = value.Line
	return nil
}

// Endian is an optional byte order.
type Endian struct {
	Order protocol.ByteOrder
	Set   bool
}

func (e *Endian) UnmarshalText(text []byte) error {
	o, err := protocol.ParseByteOrder(string(text))
	if err != nil {
		return err
	}
	e.Order, e.Set = o, true
	return nil
}

func (e *Endian) UnmarshalYAML(value *yaml.Node) error {
	if err := e.UnmarshalText([]byte(value.Value)); err != nil {
		return valueErrorf(value.Line, "unknown endian %q", value.Value)
	}
	return nil
}

func (e Endian) MarshalText() ([]byte, error) {
	if !e.Set {
		return []byte{}, nil
	}
	return []byte(e.Order.String()), nil
}

func (e Endian) IsZero() bool { return !e.Set }

// Size is either a literal byte count or the id of an earlier field.
type Size struct {
	N   int
	Ref string
	Set bool
}

func (s *Size) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrSize)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		s.N, s.Set = n, true
		return nil
	}
	if raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9') {
		return fmt.Errorf("%w: %q", ErrSize, raw)
	}
	s.Ref, s.Set = raw, true
	return nil
}

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return ValueError{Line: value.Line, Err: fmt.Errorf("%w: want integer or field id", ErrSize)}
	}
	if err := s.parse(value.Value); err != nil {
		return ValueError{Line: value.Line, Err: err}
	}
	return nil
}

func (s *Size) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case int64:
		s.N, s.Set = int(v), true
		return nil
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("%w: want integer or field id, got %T", ErrSize, v)
	}
}

func (s Size) MarshalText() ([]byte, error) {
	if s.Ref != "" {
		return []byte(s.Ref), nil
	}
	return []byte(strconv.Itoa(s.N)), nil
}

func (s Size) IsZero() bool { return !s.Set }

func (s Size) length() protocol.LengthSpec {
	if s.Ref != "" {
		return protocol.RefName(s.Ref)
	}
	return protocol.Fixed(s.N)
}

// Compile assembles def into a Schema. Declaration order follows seq.
func Compile(def Def, opts ...protocol.SchemaOption) (*protocol.Schema, error) {
	b := protocol.NewBuilder()
	fields := make(protocol.Fields, len(def.Seq))
	lines := make(map[string]int, len(def.Seq))

	for i, fd := range def.Seq {
		if fd.ID == "" {
			return nil, ValueError{Line: fd.Line, Err: fmt.Errorf("seq[%d]: %w", i, ErrMissingID)}
		}
		if _, dup := fields[fd.ID]; dup {
			return nil, ValueError{Line: fd.Line, Err: fmt.Errorf("%w %q", ErrDuplicateID, fd.ID)}
		}
		kind, err := protocol.ParseKind(fd.Type)
		if err != nil {
			return nil, ValueError{Line: fd.Line, Err: err}
		}

		var l protocol.LengthSpec
		switch {
		case kind == protocol.KindBytes && !fd.Size.Set:
			return nil, valueErrorf(fd.Line, "%s: bytes field needs a size", fd.ID)
		case kind == protocol.KindBytes:
			l = fd.Size.length()
		case fd.Size.Set:
			return nil, valueErrorf(fd.Line, "%s: size only applies to bytes fields", fd.ID)
		}

		var fopts []protocol.FieldOption
		if fd.Default != nil {
			fopts = append(fopts, protocol.Default(fd.Default))
		}
		if fd.Endian.Set {
			fopts = append(fopts, protocol.Order(fd.Endian.Order))
		}
		fields[fd.ID] = b.Field(kind, l, fopts...)
		lines[fd.ID] = fd.Line
	}

	s, err := protocol.NewSchema(def.Endian.Order, fields, opts...)
	if err != nil {
		var se protocol.SchemaError
		if errors.As(err, &se) {
			return nil, ValueError{Line: lines[se.Field], Err: err}
		}
		return nil, err
	}
	log.Debug().Str("schema", def.ID).Int("fields", s.Len()).Msg("schema compiled")
	return s, nil
}
