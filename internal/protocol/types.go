package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ByteOrder is the endianness policy applied to multi-byte integer fields.
type ByteOrder int

const (
	Native ByteOrder = iota
	BigEndian
	LittleEndian
)

// Network is the conventional name for big-endian wire order.
const Network = BigEndian

func (o ByteOrder) String() string {
	switch o {
	case Native:
		return "native"
	case BigEndian:
		return "be"
	case LittleEndian:
		return "le"
	default:
		return fmt.Sprintf("byteorder(%d)", int(o))
	}
}

func (o ByteOrder) valid() bool {
	return o == Native || o == BigEndian || o == LittleEndian
}

// binary returns the encoding/binary order backing o.
func (o ByteOrder) binary() binary.ByteOrder {
	switch o {
	case BigEndian:
		return binary.BigEndian
	case LittleEndian:
		return binary.LittleEndian
	default:
		return binary.NativeEndian
	}
}

// ParseByteOrder accepts the spellings used by schema documents and flags.
func ParseByteOrder(raw string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "native", "=":
		return Native, nil
	case "be", "big", "bigendian", "big-endian", "network", "!", ">":
		return BigEndian, nil
	case "le", "little", "littleendian", "little-endian", "<":
		return LittleEndian, nil
	default:
		return Native, fmt.Errorf("protocol: unknown byte order %q", raw)
	}
}

// Kind is the closed set of field types a schema slot can hold.
type Kind int

const (
	KindUint8 Kind = iota + 1
	KindUint16
	KindUint32
	KindUint64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindBytes
)

var kindNames = map[Kind]string{
	KindUint8:  "u1",
	KindUint16: "u2",
	KindUint32: "u4",
	KindUint64: "u8",
	KindInt8:   "s1",
	KindInt16:  "s2",
	KindInt32:  "s4",
	KindInt64:  "s8",
	KindBytes:  "bytes",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a schema document type name to a Kind.
func ParseKind(raw string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "str", "string":
		return KindBytes, nil
	}
	for k, s := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown field type %q", raw)
}

// Size is the encoded width in bytes, 0 for KindBytes.
func (k Kind) Size() int {
	switch k {
	case KindUint8, KindInt8:
		return 1
	case KindUint16, KindInt16:
		return 2
	case KindUint32, KindInt32:
		return 4
	case KindUint64, KindInt64:
		return 8
	default:
		return 0
	}
}

func (k Kind) Unsigned() bool {
	return k >= KindUint8 && k <= KindUint64
}

func (k Kind) Signed() bool {
	return k >= KindInt8 && k <= KindInt64
}

func (k Kind) Integer() bool {
	return k.Unsigned() || k.Signed()
}
