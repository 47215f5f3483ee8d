package main

import (
	"fmt"

	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var paths []string
	var dir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile schema documents and print their layout",
		Args:  cobra.NoArgs,
		Example: `
  wirectl validate -s hello.yaml -s memcached.toml
  wirectl validate --dir schemas`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(paths) == 0 && dir == "" {
				return fmt.Errorf("nothing to validate: pass --schema or --dir")
			}
			reg := schema.NewRegistry()
			for _, p := range paths {
				if _, err := reg.LoadFile(p); err != nil {
					return err
				}
			}
			if dir != "" {
				if _, err := reg.LoadDir(dir); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, e := range reg.List() {
				fmt.Fprintf(out, "%s\t%s\tmin=%d\n", e.ID, e.Schema, e.Schema.MinSize())
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "schema", "s", nil, "schema document, repeatable")
	cmd.Flags().StringVar(&dir, "dir", "", "directory of schema documents")
	return cmd
}
