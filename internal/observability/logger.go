package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceLogger tags the global logger with the service name. Call it after
// logging has been configured.
func ServiceLogger(app string) zerolog.Logger {
	return log.Logger.With().Str("app", app).Logger()
}
