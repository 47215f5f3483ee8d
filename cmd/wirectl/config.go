package main

import (
	"fmt"

	"github.com/danmuck/instructor/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check service configuration",
	}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config template to %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "wirectl.toml", "output path for config template")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")

	var input string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an existing config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(input); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated config at %s\n", input)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&input, "config", "c", "wirectl.toml", "config path")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
