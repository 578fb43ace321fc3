// CLAUDE:SUMMARY Defines tabkeeper config structs and parses YAML configuration files with defaults.
// Package config handles tabkeeper configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Browser modes.
const (
	ModeHeadless = "headless"
	ModeHeadful  = "headful"
)

// Config is the top-level tabkeeper configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
	// ArtifactsDir confines caller-supplied screenshot/PDF destinations.
	// Empty trusts the caller (loopback tool mode).
	ArtifactsDir string         `yaml:"artifacts_dir"`
	Browser      BrowserConfig  `yaml:"browser"`
	Store        StoreConfig    `yaml:"store"`
	Auth         AuthConfig     `yaml:"auth"`
	Snapshot     SnapshotConfig `yaml:"snapshot"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is the control URL of an already-running browser
	// (ws:// or http://host:port). When set, tabkeeper attaches instead
	// of launching its own Chrome.
	Remote       string `yaml:"remote"`
	DebugPort    int    `yaml:"debug_port"`
	ProfileDir   string `yaml:"profile_dir"` // persistent user data dir; empty = throwaway profile
	Mode         string `yaml:"mode"`        // headless | headful
	Stealth      bool   `yaml:"stealth"`
	NavTimeoutMs int64  `yaml:"nav_timeout_ms"`
}

// NavTimeout returns the navigation timeout as a duration.
func (b BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(b.NavTimeoutMs) * time.Millisecond
}

// StoreConfig controls session persistence. When Path is set, named pages
// are recorded in SQLite and re-opened on startup.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig controls bearer-token auth on the control port. Token is a
// plaintext token; TokenHash is a bcrypt hash and takes precedence when
// both are set. Empty means the port is open.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenHash string `yaml:"token_hash"`
}

// SnapshotConfig controls accessibility snapshot capture.
type SnapshotConfig struct {
	MaxNodes int `yaml:"max_nodes"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8377"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Browser.DebugPort <= 0 {
		c.Browser.DebugPort = 9222
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = ModeHeadless
	}
	if c.Browser.NavTimeoutMs <= 0 {
		c.Browser.NavTimeoutMs = 30_000
	}
	if c.Snapshot.MaxNodes <= 0 {
		c.Snapshot.MaxNodes = 4096
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Browser.Mode != ModeHeadless && c.Browser.Mode != ModeHeadful {
		return fmt.Errorf("config: browser.mode must be %q or %q, got %q",
			ModeHeadless, ModeHeadful, c.Browser.Mode)
	}
	if c.Browser.DebugPort > 65535 {
		return fmt.Errorf("config: browser.debug_port out of range: %d", c.Browser.DebugPort)
	}
	return nil
}
