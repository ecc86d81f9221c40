// Package config provides configuration loading and management for turdusctl.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The defaults mirror the stock
// turdus_m3rula layout (tools under ./turdus_m3rula/bin, work under
// ./downgrade_work) and work out of the box.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//
// Configuration priority (highest to lowest):
//  1. Environment variables (TURDUSCTL_ prefix)
//  2. Config file specified by TURDUSCTL_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/turdusctl/config.yaml
//     - macOS: ~/Library/Application Support/turdusctl/config.yaml
//  4. ./turdusctl.yaml
//  5. [DefaultConfig] defaults
package config

import "time"

// Config represents the root configuration structure.
type Config struct {
	// Tools contains the paths to the two external binaries.
	Tools ToolsConfig `mapstructure:"tools"`

	// WorkDir is the session working directory, holding ipsw/, block/ and
	// logs/ subdirectories.
	WorkDir string `mapstructure:"work_dir"`

	// Session contains process-supervision tuning.
	Session SessionConfig `mapstructure:"session"`

	// PreserveProgress keeps Completed/Failed step statuses when the
	// operator switches device class or mode. Off by default: a switch
	// fully resets step state, which is the safer behavior.
	PreserveProgress bool `mapstructure:"preserve_progress"`
}

// ToolsConfig contains the external tool binary paths.
type ToolsConfig struct {
	// DFU is the path to the DFU/exploit tool binary.
	// Can be overridden with TURDUSCTL_TOOLS_DFU.
	DFU string `mapstructure:"dfu"`

	// Restore is the path to the restore tool binary.
	// Can be overridden with TURDUSCTL_TOOLS_RESTORE.
	Restore string `mapstructure:"restore"`
}

// SessionConfig tunes process supervision. The defaults match the behavior
// the toolchain was calibrated against; they rarely need changing.
type SessionConfig struct {
	// StallBudget is how long the DFU-entry command may go silent before a
	// restart-in-place is performed.
	StallBudget time.Duration `mapstructure:"stall_budget"`

	// CheckInterval is how often the stall monitor samples output activity.
	CheckInterval time.Duration `mapstructure:"check_interval"`

	// GracePeriod is how long a terminated child gets to exit before it is
	// force-killed.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// DefaultConfig returns a new [Config] with the stock toolchain layout and
// supervision defaults.
func DefaultConfig() *Config {
	return &Config{
		Tools: ToolsConfig{
			DFU:     "./turdus_m3rula/bin/turdusra1n",
			Restore: "./turdus_m3rula/bin/turdus_merula",
		},
		WorkDir: "./downgrade_work",
		Session: SessionConfig{
			StallBudget:   5 * time.Second,
			CheckInterval: 1 * time.Second,
			GracePeriod:   500 * time.Millisecond,
		},
	}
}
