package render

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/instructor/internal/protocol"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// ParseValues decodes a flat name/value object. JSON numbers are kept as
// json.Number so 64-bit values survive.
func ParseValues(data []byte, f Format) (map[string]any, error) {
	out := map[string]any{}
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("render: parse json values: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("render: parse yaml values: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &out); err != nil {
			return nil, fmt.Errorf("render: parse toml values: %w", err)
		}
	case FormatMsgPack:
		if err := msgpack.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("render: parse msgpack values: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
	return out, nil
}

// Bytes reverses Text.
func Bytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, HexPrefix) {
		return []byte(s), nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, HexPrefix))
	if err != nil {
		return nil, fmt.Errorf("render: bad hex value: %w", err)
	}
	return b, nil
}

// Build creates a message from parsed values, decoding hex-prefixed strings
// held by byte fields. Unknown names fail with protocol.ErrUnknownField.
func Build(s *protocol.Schema, values map[string]any) (*protocol.Message, error) {
	prepared := make(map[string]any, len(values))
	for name, v := range values {
		f, ok := s.Field(name)
		if str, isStr := v.(string); ok && isStr && f.Spec.Kind() == protocol.KindBytes {
			b, err := Bytes(str)
			if err != nil {
				return nil, &protocol.FieldError{Err: protocol.ErrFieldTypeMismatch, Field: name, Reason: err.Error()}
			}
			v = b
		}
		prepared[name] = v
	}
	return protocol.Build(s, prepared)
}

// BuildFrom parses data in format f and builds a message from it.
func BuildFrom(s *protocol.Schema, data []byte, f Format) (*protocol.Message, error) {
	values, err := ParseValues(data, f)
	if err != nil {
		return nil, err
	}
	return Build(s, values)
}
