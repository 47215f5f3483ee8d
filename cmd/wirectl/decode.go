package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/instructor/internal/protocol"
	"github.com/danmuck/instructor/internal/protocol/frame"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/danmuck/instructor/internal/render"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type decodeOpts struct {
	schemaPath string
	hexInput   string
	inPath     string
	output     string
	all        bool
	maxBytes   uint64
}

var exampleDecode = `
  wirectl decode -s hello.yaml --hex 00010000000c48656c6c6f20576f726c6421
  wirectl decode -s memcached.toml --in header.bin -o yaml
  cat capture.bin | wirectl decode -s hello.yaml --all -o msgpack > out.mp`

func newDecodeCmd() *cobra.Command {
	var opts decodeOpts
	cmd := &cobra.Command{
		Use:     "decode",
		Short:   "Decode binary input into field values",
		Args:    cobra.NoArgs,
		Example: exampleDecode,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.schemaPath, "schema", "s", "", "schema document (.yaml or .toml)")
	cmd.Flags().StringVar(&opts.hexInput, "hex", "", "hex-encoded input instead of a file")
	cmd.Flags().StringVarP(&opts.inPath, "in", "i", "-", "input file, - for stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "output format: json|yaml|toml|msgpack")
	cmd.Flags().BoolVar(&opts.all, "all", false, "decode back-to-back messages until input ends")
	cmd.Flags().Uint64Var(&opts.maxBytes, "max-bytes", frame.DefaultLimits().MaxMessageBytes, "largest message to read")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func runDecode(cmd *cobra.Command, opts decodeOpts) error {
	format, err := render.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	entry, err := schema.Load(opts.schemaPath)
	if err != nil {
		return err
	}

	var in io.Reader
	switch {
	case opts.hexInput != "":
		data, err := hex.DecodeString(strings.Join(strings.Fields(opts.hexInput), ""))
		if err != nil {
			return fmt.Errorf("decode hex input: %w", err)
		}
		in = bytes.NewReader(data)
	case opts.inPath == "-":
		in = cmd.InOrStdin()
	default:
		f, err := os.Open(opts.inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	limits := frame.Limits{MaxMessageBytes: opts.maxBytes}
	out := cmd.OutOrStdout()
	if opts.all {
		msgs, err := frame.ReadAll(in, entry.Schema, limits)
		if err != nil {
			return err
		}
		docs := make([]render.Document, len(msgs))
		for i, m := range msgs {
			docs[i] = render.FromMessage(m)
		}
		log.Debug().Str("schema", entry.ID).Int("messages", len(docs)).Msg("decoded stream")
		return render.Encode(out, docs, format)
	}

	data, err := io.ReadAll(io.LimitReader(in, int64(limits.MaxMessageBytes)+1))
	if err != nil {
		return err
	}
	if uint64(len(data)) > limits.MaxMessageBytes {
		return fmt.Errorf("%w: input exceeds %d bytes", frame.ErrMessageTooLarge, limits.MaxMessageBytes)
	}
	m, n, err := protocol.DecodePrefix(entry.Schema, data)
	if err != nil {
		var dse protocol.DataSizeError
		if errors.As(err, &dse) {
			log.Error().Str("field", dse.Field).Uint64("need", dse.Need).Int("remaining", dse.Remaining).Msg("input too short")
		}
		return err
	}
	if n < len(data) {
		log.Warn().Int("consumed", n).Int("trailing", len(data)-n).Msg("trailing bytes ignored")
	}
	return render.Message(out, m, format)
}
