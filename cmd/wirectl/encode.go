package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/instructor/internal/protocol"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/danmuck/instructor/internal/render"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type encodeOpts struct {
	schemaPath  string
	valuesPath  string
	valueFormat string
	sets        []string
	hexOut      bool
	outPath     string
}

var exampleEncode = `
  wirectl encode -s hello.yaml --values hello.json --hex
  wirectl encode -s hello.yaml --set length=5 --set name=hello --out hello.bin
  echo '{"length": 2, "name": "hi"}' | wirectl encode -s hello.yaml --values - > hi.bin`

func newEncodeCmd() *cobra.Command {
	var opts encodeOpts
	cmd := &cobra.Command{
		Use:     "encode",
		Short:   "Encode field values into a binary message",
		Args:    cobra.NoArgs,
		Example: exampleEncode,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.schemaPath, "schema", "s", "", "schema document (.yaml or .toml)")
	cmd.Flags().StringVar(&opts.valuesPath, "values", "", "values file (json|yaml|toml|msgpack), - for stdin")
	cmd.Flags().StringVar(&opts.valueFormat, "values-format", "", "values format when it cannot be inferred from the file name")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "field value as name=value, repeatable")
	cmd.Flags().BoolVar(&opts.hexOut, "hex", false, "print the message as hex")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "write the message to a file instead of stdout")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func runEncode(cmd *cobra.Command, opts encodeOpts) error {
	entry, err := schema.Load(opts.schemaPath)
	if err != nil {
		return err
	}

	values := map[string]any{}
	if opts.valuesPath != "" {
		values, err = readValues(cmd, opts)
		if err != nil {
			return err
		}
	}
	for _, kv := range opts.sets {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return fmt.Errorf("--set %q: want name=value", kv)
		}
		values[name] = scalar(entry.Schema, name, raw)
	}

	m, err := render.Build(entry.Schema, values)
	if err != nil {
		return err
	}
	out, err := m.Pack()
	if err != nil {
		return err
	}

	if opts.hexOut {
		out = []byte(hex.EncodeToString(out) + "\n")
	}
	if opts.outPath != "" {
		return os.WriteFile(opts.outPath, out, 0o644)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func readValues(cmd *cobra.Command, opts encodeOpts) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if opts.valuesPath == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(opts.valuesPath)
	}
	if err != nil {
		return nil, err
	}

	name := opts.valueFormat
	if name == "" && opts.valuesPath != "-" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.valuesPath)), ".")
	}
	format, err := render.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return render.ParseValues(data, format)
}

// scalar reads a --set value the way YAML would. Byte fields always get a
// string, so name=12345 stays text; quoting strips the quotes.
func scalar(s *protocol.Schema, name, raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	if str, ok := v.(string); ok {
		return str
	}
	if f, ok := s.Field(name); ok && f.Spec.Kind() == protocol.KindBytes {
		return raw
	}
	switch v.(type) {
	case int, uint64, float64:
		return v
	default:
		return raw
	}
}
