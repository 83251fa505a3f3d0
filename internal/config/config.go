// Package config loads the node configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meshradio/loralink/internal/serial"
)

// RadioConfig describes the serial link to the LoRa modem and the node's
// identity on the mesh.
type RadioConfig struct {
	// Port is the serial device path, e.g. /dev/ttyUSB0.
	Port    string             `yaml:"port"`
	Options serial.PortOptions `yaml:"options"`

	// NodeID is this node's address on the mesh.
	NodeID uint8 `yaml:"node_id"`
	// Gateway marks this node as an internet gateway in its announcements.
	Gateway bool `yaml:"gateway"`
	// GatewayIP is the announced IPv4 address, required when Gateway is set.
	GatewayIP string `yaml:"gateway_ip"`

	// TxSlotMs is the duty-cycle window in milliseconds. Three transmissions
	// are budgeted per window.
	TxSlotMs int `yaml:"tx_slot_ms"`
	// AnnounceIntervalS is the seconds between presence broadcasts; zero
	// disables the beacon.
	AnnounceIntervalS int `yaml:"announce_interval_s"`

	// InitFile optionally points at a file of radio setup commands, one per
	// line, replacing the built-in defaults.
	InitFile string `yaml:"init_file"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`
}

type Config struct {
	Radio RadioConfig `yaml:"radio"`
	DB    DBConfig    `yaml:"db"`
	API   APIConfig   `yaml:"api"`
	Log   LogConfig   `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Radio: RadioConfig{
			Port:              "/dev/ttyUSB0",
			NodeID:            1,
			TxSlotMs:          10000,
			AnnounceIntervalS: 60,
		},
		DB:  DBConfig{Path: "loralink.db"},
		API: APIConfig{Listen: ":8080"},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the configuration at path, filling omitted fields from the
// defaults. Partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints and normalizes the serial options.
func (c *Config) Validate() error {
	if c.Radio.Port == "" {
		return fmt.Errorf("radio.port must not be empty")
	}
	if c.Radio.TxSlotMs <= 0 {
		return fmt.Errorf("radio.tx_slot_ms must be positive, got %d", c.Radio.TxSlotMs)
	}
	if c.Radio.AnnounceIntervalS < 0 {
		return fmt.Errorf("radio.announce_interval_s must not be negative, got %d", c.Radio.AnnounceIntervalS)
	}
	if c.Radio.Gateway && c.Radio.GatewayIP == "" {
		return fmt.Errorf("radio.gateway_ip is required when radio.gateway is set")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	opts, err := c.Radio.Options.Normalize()
	if err != nil {
		return fmt.Errorf("radio.options: %w", err)
	}
	c.Radio.Options = opts
	return nil
}

// TxSlot returns the duty-cycle window as a duration.
func (c *Config) TxSlot() time.Duration {
	return time.Duration(c.Radio.TxSlotMs) * time.Millisecond
}

// AnnounceInterval returns the beacon period, or zero when disabled.
func (c *Config) AnnounceInterval() time.Duration {
	return time.Duration(c.Radio.AnnounceIntervalS) * time.Second
}
