// Package render converts messages to and from human-facing encodings.
//
// Byte fields render as plain strings when they are printable UTF-8. Anything
// else, including printable text that starts with the hex prefix, renders as
// "hex:" followed by lowercase hex so the output can be fed back to encode.
// MessagePack keeps bytes as native bin values.
package render

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/instructor/internal/protocol"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// HexPrefix marks a hex-encoded byte string in text formats.
const HexPrefix = "hex:"

// Format is an output or input encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatTOML    Format = "toml"
	FormatMsgPack Format = "msgpack"
)

var ErrUnknownFormat = errors.New("render: unknown format")

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatYAML, FormatTOML, FormatMsgPack}

func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "msgpack", "mp", "mpk":
		return FormatMsgPack, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, raw)
	}
}

// Field is one rendered name/value pair.
type Field struct {
	Name  string
	Value any
}

// Document is the set fields of a message in wire order.
type Document []Field

// FromMessage captures the set fields of m.
func FromMessage(m *protocol.Message) Document {
	vals := m.Values()
	doc := make(Document, 0, len(vals))
	for _, v := range vals {
		if v.Set {
			doc = append(doc, Field{Name: v.Name, Value: v.Value})
		}
	}
	return doc
}

// Text renders b for a text format.
func Text(b []byte) string {
	s := string(b)
	if utf8.ValidString(s) && !strings.HasPrefix(s, HexPrefix) && printable(s) {
		return s
	}
	return HexPrefix + hex.EncodeToString(b)
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func textValue(v any) any {
	if b, ok := v.([]byte); ok {
		return Text(b)
	}
	return v
}

// Map returns the document as a map with text-rendered bytes.
func (d Document) Map() map[string]any {
	out := make(map[string]any, len(d))
	for _, f := range d {
		out[f.Name] = textValue(f.Value)
	}
	return out
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(textValue(f.Value))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d Document) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range d {
		var val yaml.Node
		if err := val.Encode(textValue(f.Value)); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name},
			&val,
		)
	}
	return node, nil
}

var _ msgpack.CustomEncoder = Document(nil)

func (d Document) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(d)); err != nil {
		return err
	}
	for _, f := range d {
		if err := enc.EncodeString(f.Name); err != nil {
			return err
		}
		if err := enc.Encode(f.Value); err != nil {
			return err
		}
	}
	return nil
}

// Encode writes v in format f. Document values keep wire order in every
// format except TOML, whose tables are keyed. TOML has no top-level arrays,
// so a []Document is written as a "messages" table array.
func Encode(w io.Writer, v any, f Format) error {
	if f == FormatTOML {
		switch d := v.(type) {
		case Document:
			v = d.Map()
		case []Document:
			maps := make([]map[string]any, len(d))
			for i := range d {
				maps[i] = d[i].Map()
			}
			v = map[string]any{"messages": maps}
		}
	}
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(v)
	case FormatMsgPack:
		return msgpack.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
}

// Message renders the set fields of m.
func Message(w io.Writer, m *protocol.Message, f Format) error {
	return Encode(w, FromMessage(m), f)
}
