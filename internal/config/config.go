package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/danmuck/instructor/internal/logging"
	"github.com/danmuck/instructor/internal/protocol"
	"github.com/danmuck/instructor/internal/protocol/frame"
)

// Config is the wirectl service configuration.
type Config struct {
	Name            string    `toml:"name" default:"wirectl"`
	Addr            string    `toml:"addr" default:":9200"`
	SchemaDir       string    `toml:"schema_dir" default:"schemas"`
	CorsOrigins     []string  `toml:"cors_origins" default:"[\"http://localhost:3000\"]"`
	MaxMessageBytes uint64    `toml:"max_message_bytes" default:"8388608"`
	MaxFieldLength  uint64    `toml:"max_field_length" default:"4194304"`
	TLSCertFile     string    `toml:"tls_cert_file"`
	TLSKeyFile      string    `toml:"tls_key_file"`
	Log             LogConfig `toml:"log"`
}

type LogConfig struct {
	Level     string `toml:"level" default:"info"`
	Timestamp bool   `toml:"timestamp" default:"true"`
	NoColor   bool   `toml:"no_color"`
}

// Default returns a Config holding only tag defaults.
func Default() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads path over the defaults and validates the result. Keys absent
// from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	md, err := toml.Decode(string(data), out)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return errors.New("config missing addr")
	}
	if strings.TrimSpace(cfg.SchemaDir) == "" {
		return errors.New("config missing schema_dir")
	}
	if cfg.MaxMessageBytes == 0 {
		return errors.New("max_message_bytes must be positive")
	}
	if cfg.MaxMessageBytes > math.MaxInt64 {
		return fmt.Errorf("max_message_bytes %d exceeds %d", cfg.MaxMessageBytes, int64(math.MaxInt64))
	}
	if cfg.MaxFieldLength == 0 {
		return errors.New("max_field_length must be positive")
	}
	if cfg.MaxFieldLength > cfg.MaxMessageBytes {
		return fmt.Errorf("max_field_length %d exceeds max_message_bytes %d", cfg.MaxFieldLength, cfg.MaxMessageBytes)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("tls_cert_file and tls_key_file must be set together")
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log level %q is not recognized", cfg.Log.Level)
	}
	return nil
}

// FrameLimits returns the stream limits the config implies.
func (c Config) FrameLimits() frame.Limits {
	return frame.Limits{MaxMessageBytes: c.MaxMessageBytes}
}

// SchemaOptions returns the options applied to every loaded schema.
func (c Config) SchemaOptions() []protocol.SchemaOption {
	return []protocol.SchemaOption{protocol.WithMaxFieldLength(c.MaxFieldLength)}
}

// Logging converts the [log] section, then lets the environment override it.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		cfg.Level = lvl
	}
	cfg.Timestamp = c.Log.Timestamp
	cfg.NoColor = c.Log.NoColor
	logging.ApplyEnvOverrides(&cfg)
	return cfg
}
