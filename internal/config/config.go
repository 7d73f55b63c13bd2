// Package config loads server settings from an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the match server. The TCP port is not
// here: it comes from the command line, which keeps the one mandatory
// setting impossible to misplace.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	MaxClients  int    `yaml:"max_clients"`

	// Websocket front end, disabled when the port is zero.
	WSPort int `yaml:"ws_port"`

	// Logging
	LogLevel   string `yaml:"log_level"`
	LogPackets bool   `yaml:"log_packets"`
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		BindAddress: "0.0.0.0",
		MaxClients:  64,
		WSPort:      0,
		LogLevel:    "info",
		LogPackets:  false,
	}
}

// LoadServer loads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SlogLevel maps the configured log level name to a slog level, defaulting
// to info for anything unrecognized.
func (s Server) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
