// Package frame moves whole messages across byte streams. A schema carries no
// outer length prefix, so ReadMessage discovers the message size by decoding
// what it has and reading exactly the shortfall the decoder reports.
package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/instructor/internal/protocol"
)

var (
	ErrShortMessage    = errors.New("frame: short message")
	ErrMessageTooLarge = errors.New("frame: message too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxMessageBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes: 8 * 1024 * 1024,
	}
}

// ReadMessage reads exactly one message of schema s from r. A stream that
// ends before the first byte returns io.EOF; one that ends mid-message
// returns ErrShortMessage.
func ReadMessage(r io.Reader, s *protocol.Schema, limits Limits) (*protocol.Message, error) {
	buf := make([]byte, 0, s.MinSize())
	need := uint64(s.MinSize())
	for {
		if need > 0 {
			if uint64(len(buf))+need > limits.MaxMessageBytes {
				return nil, fmt.Errorf("%w: need %d bytes, limit %d", ErrMessageTooLarge, uint64(len(buf))+need, limits.MaxMessageBytes)
			}
			start := len(buf)
			buf = append(buf, make([]byte, need)...)
			if _, err := io.ReadFull(r, buf[start:]); err != nil {
				if errors.Is(err, io.EOF) && start == 0 {
					return nil, io.EOF
				}
				if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
					return nil, fmt.Errorf("%w: after %d bytes", ErrShortMessage, start)
				}
				return nil, err
			}
		}

		m, _, err := protocol.DecodePrefix(s, buf)
		if err == nil {
			return m, nil
		}
		var dse protocol.DataSizeError
		if !errors.As(err, &dse) {
			return nil, err
		}
		need = dse.Shortfall()
	}
}

// ReadAll reads messages until r is exhausted.
func ReadAll(r io.Reader, s *protocol.Schema, limits Limits) ([]*protocol.Message, error) {
	var out []*protocol.Message
	for {
		m, err := ReadMessage(r, s, limits)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, m)
		if s.MinSize() == 0 {
			// An empty layout never consumes input.
			return out, nil
		}
	}
}

// WriteMessage packs m and writes it to w.
func WriteMessage(w io.Writer, m *protocol.Message, limits Limits) error {
	size, err := m.Schema().Size(m)
	if err != nil {
		return err
	}
	if uint64(size) > limits.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, size, limits.MaxMessageBytes)
	}
	b, err := m.Pack()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
