// Package config implements TOML configuration loading and validation for
// the GBA file service and its client. Defaults apply first, then the
// config file overrides them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration parsed from a TOML file.
type Config struct {
	Server ServerConfig `toml:"server"`
	Client ClientConfig `toml:"client"`
}

// ServerConfig configures the file service.
type ServerConfig struct {
	Listen    string `toml:"listen"`
	RomDir    string `toml:"rom_dir"`
	SaveDir   string `toml:"save_dir"`
	JWTSecret string `toml:"jwt_secret"`
}

// ClientConfig configures the CLI client and its token lifecycle.
type ClientConfig struct {
	APIURL          string `toml:"api_url"`
	AuthURL         string `toml:"auth_url"`
	RefreshURL      string `toml:"refresh_url"`
	RefreshInterval string `toml:"refresh_interval"`
	TokenPath       string `toml:"token_path"`
}

// Default returns the configuration defaults applied before any file is read.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:  ":8080",
			RomDir:  "roms",
			SaveDir: "saves",
		},
		Client: ClientConfig{
			RefreshInterval: "4m",
		},
	}
}

// DefaultPath returns the platform config file location,
// e.g. ~/.config/gb-emu/config.toml on Linux.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config dir: %w", err)
	}

	return filepath.Join(base, "gb-emu", "config.toml"), nil
}

// DefaultTokenPath returns where the client stores its token when
// token_path is not configured.
func DefaultTokenPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config dir: %w", err)
	}

	return filepath.Join(base, "gb-emu", "token.json"), nil
}

// Load reads the config file at path, layered over defaults. A missing file
// is not an error — the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}

	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// ValidateServer checks the fields the serve command needs.
func (c Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return errors.New("config: server.jwt_secret is required")
	}

	if c.Server.Listen == "" {
		return errors.New("config: server.listen must not be empty")
	}

	if c.Server.RomDir == "" || c.Server.SaveDir == "" {
		return errors.New("config: server.rom_dir and server.save_dir must not be empty")
	}

	return nil
}

// ValidateClient checks the fields the client commands need.
func (c Config) ValidateClient() error {
	if c.Client.APIURL == "" {
		return errors.New("config: client.api_url is required")
	}

	if _, err := c.RefreshInterval(); err != nil {
		return err
	}

	return nil
}

// RefreshInterval parses the configured refresh interval.
func (c Config) RefreshInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Client.RefreshInterval)
	if err != nil {
		return 0, fmt.Errorf("config: invalid client.refresh_interval %q: %w", c.Client.RefreshInterval, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("config: client.refresh_interval must be positive, got %q", c.Client.RefreshInterval)
	}

	return d, nil
}

// TokenPath returns the configured token path, or the platform default.
func (c Config) TokenPath() (string, error) {
	if c.Client.TokenPath != "" {
		return c.Client.TokenPath, nil
	}

	return DefaultTokenPath()
}
