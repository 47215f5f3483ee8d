package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/instructor/internal/config"
	"github.com/danmuck/instructor/internal/logging"
	"github.com/danmuck/instructor/internal/protocol/schema"
	"github.com/danmuck/instructor/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve registered schemas over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
				log.Info().Str("path", configPath).Msg("loaded config")
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logging.Apply(serviceLogging(cmd, cfg))

			reg := schema.NewRegistry(cfg.SchemaOptions()...)
			if _, err := reg.LoadDir(cfg.SchemaDir); err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(cfg, reg)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "service config (TOML)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config")
	return cmd
}

// serviceLogging is the config's logging with the root --debug flag kept on
// top, since Apply replaces the global level.
func serviceLogging(cmd *cobra.Command, cfg config.Config) logging.Config {
	lc := cfg.Logging()
	if debug, err := cmd.Flags().GetBool("debug"); err == nil && debug {
		lc.Level = zerolog.DebugLevel
	}
	return lc
}
