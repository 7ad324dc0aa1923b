// Package config loads and validates the bridge configuration.
// Values come from an optional TOML file, overridden by environment
// variables; validation is all-or-nothing at startup.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath  = "config.toml"
	DefaultHTTPAddr    = ":8080"
	DefaultReceiverURL = "http://localhost:3000/api/receiver/image"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Discord  DiscordConfig  `toml:"discord"`
	Receiver ReceiverConfig `toml:"receiver"`
	Bridge   BridgeConfig   `toml:"bridge"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT"`
}

type ServerConfig struct {
	Addr string `toml:"addr" env:"SERVER_ADDR"`
}

type DiscordConfig struct {
	Token string `toml:"token" env:"DISCORD_TOKEN" validate:"required"`
}

type ReceiverConfig struct {
	URL   string `toml:"url" env:"RECEIVER_URL" validate:"required,url"`
	Token string `toml:"token" env:"RECEIVER_TOKEN" validate:"required"`
}

type BridgeConfig struct {
	// AllowedChannels restricts guild-channel forwarding. Empty means
	// every guild channel is accepted; direct messages always bypass it.
	AllowedChannels []string `toml:"allowed_channels" env:"ALLOWED_CHANNELS"`
}

// Load reads the TOML file at path (missing file is fine, defaults apply),
// overlays environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Receiver: ReceiverConfig{
			URL: DefaultReceiverURL,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Bridge.AllowedChannels = normalizeList(cfg.Bridge.AllowedChannels)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate fails fast when any required value is absent or malformed.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := url.Parse(c.Receiver.URL); err != nil {
		return fmt.Errorf("invalid receiver url: %w", err)
	}
	return nil
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
