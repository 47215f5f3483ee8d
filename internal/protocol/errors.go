package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrSchema            = errors.New("protocol: invalid schema")
	ErrInvalidDataSize   = errors.New("protocol: invalid data size")
	ErrUnsetField        = errors.New("protocol: field is unset")
	ErrEncodeOverflow    = errors.New("protocol: value overflows field width")
	ErrEncodeRange       = errors.New("protocol: value out of range")
	ErrUnknownField      = errors.New("protocol: unknown field")
	ErrFieldTypeMismatch = errors.New("protocol: field type mismatch")
	ErrLengthTooLarge    = errors.New("protocol: field length too large")
)

// SchemaError reports a malformed schema at assembly time.
type SchemaError struct {
	Field  string
	Reason string
}

func (e SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: schema: %s", e.Reason)
	}
	return fmt.Sprintf("protocol: schema: field %q: %s", e.Field, e.Reason)
}

func (e SchemaError) Unwrap() error { return ErrSchema }

// DataSizeError reports a decode that needs more bytes than remain.
type DataSizeError struct {
	Field     string
	Offset    int
	Need      uint64
	Remaining int
}

func (e DataSizeError) Error() string {
	return fmt.Sprintf(
		"protocol: field %q at offset %d needs %d bytes, %d remaining",
		e.Field, e.Offset, e.Need, e.Remaining,
	)
}

func (e DataSizeError) Unwrap() error { return ErrInvalidDataSize }

// Shortfall is the number of extra bytes that would satisfy this field.
func (e DataSizeError) Shortfall() uint64 {
	return e.Need - uint64(e.Remaining)
}

// FieldError wraps a field-level sentinel with the field name and detail.
type FieldError struct {
	Err    error
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s (field %s)", e.Err.Error(), e.Field)
	}
	return fmt.Sprintf("%s (field %s): %s", e.Err.Error(), e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }

func schemaErrorf(field, format string, a ...any) error {
	return SchemaError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

func fieldErrorf(sentinel error, field, format string, a ...any) error {
	return &FieldError{Err: sentinel, Field: field, Reason: fmt.Sprintf(format, a...)}
}
