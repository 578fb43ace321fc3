// CLAUDE:SUMMARY Re-exports the tabkeeper configuration types and YAML loader for cmd/ and embedding callers.
package tabkeeper

import "github.com/hazyhaar/tabkeeper/internal/config"

// Re-exported configuration types.
type (
	Config         = config.Config
	BrowserConfig  = config.BrowserConfig
	StoreConfig    = config.StoreConfig
	AuthConfig     = config.AuthConfig
	SnapshotConfig = config.SnapshotConfig
)

// Browser modes.
const (
	ModeHeadless = config.ModeHeadless
	ModeHeadful  = config.ModeHeadful
)

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the built-in defaults, for running without a
// config file.
func DefaultConfig() *Config {
	return config.Default()
}
