package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. Gameplay constants that the client
// must agree on (grid size, max health, rune magnitudes) are compile-time
// constants in grid.go, not config.
type Config struct {
	Server struct {
		Port                int `yaml:"port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds"`
	} `yaml:"server"`

	Game struct {
		CountdownSeconds int `yaml:"countdown_seconds"`
		RoundsToWin      int `yaml:"rounds_to_win"`
	} `yaml:"game"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig returns the configuration used when a key is absent.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeoutSeconds = 15
	cfg.Server.WriteTimeoutSeconds = 15
	cfg.Server.IdleTimeoutSeconds = 60
	cfg.Game.CountdownSeconds = 3
	cfg.Game.RoundsToWin = 3
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig reads a yaml config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Game.CountdownSeconds < 0 {
		return nil, fmt.Errorf("invalid countdown_seconds: %d", cfg.Game.CountdownSeconds)
	}
	if cfg.Game.RoundsToWin < 1 {
		return nil, fmt.Errorf("invalid rounds_to_win: %d", cfg.Game.RoundsToWin)
	}
	return cfg, nil
}

// Countdown returns the ready countdown as a duration.
func (c *Config) Countdown() time.Duration {
	return time.Duration(c.Game.CountdownSeconds) * time.Second
}
