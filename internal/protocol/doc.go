// Package protocol owns the schema codec for fixed-plus-variable binary layouts.
//
// Ownership boundary:
// - field kinds, byte orders and primitive integer encoding
// - schema assembly ordered by declaration ordinal
// - dependent length resolution between fields of one schema
// - pack/unpack of messages and the codec error taxonomy
//
// A Schema is immutable and safe to share between goroutines. A Message is
// not safe for concurrent mutation.
package protocol
