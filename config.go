package mcpwire

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML strings like "30s" decode into it.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ClientConfig defines how a client session launches and talks to its peer process.
type ClientConfig struct {
	// Command is the executable to launch as the protocol peer. It must be covered
	// by AllowedCommands.
	Command string `toml:"command"`
	// Args is the argument vector passed to Command.
	Args []string `toml:"args"`
	// AllowedCommands feeds the process-wide command allowlist.
	AllowedCommands []string `toml:"allowedCommands"`

	ReadTimeout    Duration `toml:"readTimeout"`
	WriteTimeout   Duration `toml:"writeTimeout"`
	TerminateGrace Duration `toml:"terminateGrace"`
}

// ServerConfig defines serving-side knobs.
type ServerConfig struct {
	// PageSize is the default number of items per list page. Clamped to MaxPageSize.
	PageSize int `toml:"pageSize"`
}

// Config aggregates client and server settings loaded from a TOML file.
type Config struct {
	Client ClientConfig `toml:"client"`
	Server ServerConfig `toml:"server"`
}

// LoadConfig reads a TOML config from path, validates it, and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Client.Command == "" {
		return fmt.Errorf("client.command required")
	}
	if cfg.Client.ReadTimeout.Duration <= 0 {
		cfg.Client.ReadTimeout.Duration = defaultReadTimeout
	}
	if cfg.Client.WriteTimeout.Duration <= 0 {
		cfg.Client.WriteTimeout.Duration = defaultWriteTimeout
	}
	if cfg.Client.TerminateGrace.Duration <= 0 {
		cfg.Client.TerminateGrace.Duration = defaultTerminateGrace
	}
	if cfg.Server.PageSize <= 0 {
		cfg.Server.PageSize = DefaultPageSize
	}
	if cfg.Server.PageSize > MaxPageSize {
		cfg.Server.PageSize = MaxPageSize
	}
	return nil
}
