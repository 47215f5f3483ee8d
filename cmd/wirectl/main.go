package main

import (
	"os"

	"github.com/danmuck/instructor/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const longDescription = `wirectl packs and unpacks fixed-layout binary messages described by
YAML or TOML schema documents, and can serve those schemas over HTTP.`

type rootOpts struct {
	debug bool
}

func newRootCmd() *cobra.Command {
	var opts rootOpts
	cmd := &cobra.Command{
		Use:           "wirectl",
		Short:         "Schema-driven binary message codec",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
			if opts.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	cmd.AddCommand(
		newDecodeCmd(),
		newEncodeCmd(),
		newValidateCmd(),
		newServeCmd(),
		newConfigCmd(),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("wirectl failed")
		os.Exit(1)
	}
}
