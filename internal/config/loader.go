package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads configuration with Viper, layering environment variables and
// an optional config file over [DefaultConfig].
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a configured Loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("TURDUSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load reads configuration from the standard locations.
//
// A file named by TURDUSCTL_CONFIG_PATH wins; otherwise config.yaml in the
// platform user config dir under turdusctl/, then ./turdusctl.yaml. A
// missing config file is not an error — defaults plus environment overrides
// apply.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv("TURDUSCTL_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "turdusctl", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return l.LoadFromFile(candidate)
		}
	}

	if _, err := os.Stat("turdusctl.yaml"); err == nil {
		return l.LoadFromFile("turdusctl.yaml")
	}

	return l.finish()
}

// LoadFromFile reads configuration from an explicit file path, layered over
// the defaults. Environment variables still take priority.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.finish()
}

func (l *Loader) finish() (*Config, error) {
	l.setDefaults()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	def := DefaultConfig()
	l.v.SetDefault("tools.dfu", def.Tools.DFU)
	l.v.SetDefault("tools.restore", def.Tools.Restore)
	l.v.SetDefault("work_dir", def.WorkDir)
	l.v.SetDefault("session.stall_budget", def.Session.StallBudget)
	l.v.SetDefault("session.check_interval", def.Session.CheckInterval)
	l.v.SetDefault("session.grace_period", def.Session.GracePeriod)
	l.v.SetDefault("preserve_progress", def.PreserveProgress)
}
