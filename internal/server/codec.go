package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/instructor/internal/observability"
	"github.com/danmuck/instructor/internal/protocol"
	"github.com/danmuck/instructor/internal/protocol/frame"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/danmuck/instructor/internal/render"
	"github.com/rs/zerolog/log"
)

var (
	ErrSchemaNotFound = errors.New("schema not found")
	ErrBadInput       = errors.New("bad input")
)

// DecodeResult is one decoded message plus how much input it used.
type DecodeResult struct {
	Schema   string          `json:"schema"`
	Consumed int             `json:"consumed"`
	Trailing int             `json:"trailing"`
	Values   render.Document `json:"values"`

	Message *protocol.Message `json:"-"`
}

func (s *Server) entry(id string) (*schema.Entry, error) {
	e, ok := s.Registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, id)
	}
	return e, nil
}

// Decode unpacks data with schema id. Bytes after the message are reported,
// not rejected.
func (s *Server) Decode(id string, data []byte) (DecodeResult, error) {
	e, err := s.entry(id)
	if err != nil {
		return DecodeResult{}, err
	}
	if uint64(len(data)) > s.Limits.MaxMessageBytes {
		return DecodeResult{}, fmt.Errorf("%w: %d bytes", frame.ErrMessageTooLarge, len(data))
	}

	start := time.Now()
	m, n, err := protocol.DecodePrefix(e.Schema, data)
	observability.RecordCodec(id, observability.OpUnpack, n, time.Since(start), err)
	if err != nil {
		log.Debug().Err(err).Str("schema", id).Int("bytes", len(data)).Msg("decode failed")
		return DecodeResult{}, err
	}
	return DecodeResult{
		Schema:   id,
		Consumed: n,
		Trailing: len(data) - n,
		Values:   render.FromMessage(m),
		Message:  m,
	}, nil
}

// Encode builds a message of schema id from values and packs it.
func (s *Server) Encode(id string, values map[string]any) ([]byte, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := render.Build(e.Schema, values)
	if err != nil {
		observability.RecordCodec(id, observability.OpPack, 0, time.Since(start), err)
		return nil, err
	}
	size, err := e.Schema.Size(m)
	if err == nil && uint64(size) > s.Limits.MaxMessageBytes {
		err = fmt.Errorf("%w: %d bytes", frame.ErrMessageTooLarge, size)
	}
	var out []byte
	if err == nil {
		out, err = m.Pack()
	}
	observability.RecordCodec(id, observability.OpPack, len(out), time.Since(start), err)
	if err != nil {
		log.Debug().Err(err).Str("schema", id).Msg("encode failed")
		return nil, err
	}
	return out, nil
}
