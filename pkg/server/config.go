package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server TOMLServerSection `toml:"server"`
	Trust  TrustSection      `toml:"trust"`
	Limits LimitsSection     `toml:"limits"`
}

type TOMLServerSection struct {
	HTTPPort int `toml:"http_port"`
}

type TrustSection struct {
	// TrustedAddresses are additional remote addresses whose game
	// servers are listed as official, beyond the implicit loopback
	// and private ranges.
	TrustedAddresses []string `toml:"trusted_addresses"`
	// PublicAddress is the address advertised for official servers.
	// Self-detected at startup when empty.
	PublicAddress string `toml:"public_address"`
}

type LimitsSection struct {
	IdleTimeoutSeconds   int `toml:"idle_timeout_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	MaxFrameBytes        int `toml:"max_frame_bytes"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: TOMLServerSection{
			HTTPPort: 3000,
		},
		Trust: TrustSection{
			TrustedAddresses: []string{},
			PublicAddress:    "",
		},
		Limits: LimitsSection{
			IdleTimeoutSeconds:   300,
			SweepIntervalSeconds: 30,
			MaxFrameBytes:        4096,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return config, nil
		}
		return config, nil
	}

	// Load from file
	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create file
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	// Write header comment
	header := `# Game Server List Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	// Encode config as TOML
	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}

	if len(c.Trust.TrustedAddresses) > 0 {
		cfg.TrustedAddresses = c.Trust.TrustedAddresses
	}

	if strings.TrimSpace(c.Trust.PublicAddress) != "" {
		cfg.PublicAddress = c.Trust.PublicAddress
	}

	if c.Limits.IdleTimeoutSeconds != 0 {
		cfg.IdleTimeoutSeconds = c.Limits.IdleTimeoutSeconds
	}

	if c.Limits.SweepIntervalSeconds != 0 {
		cfg.SweepIntervalSeconds = c.Limits.SweepIntervalSeconds
	}

	if c.Limits.MaxFrameBytes != 0 {
		cfg.MaxFrameBytes = c.Limits.MaxFrameBytes
	}

	return cfg
}
