// Package config loads screendiff settings.
//
// Precedence: defaults < config file < SCREENDIFF_* environment < CLI flags.
// CLI flags are applied by the caller on top of the loaded Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/junsooki/screendiff/internal/capture"
)

// Config holds all runtime configuration.
type Config struct {
	Capture capture.Config `mapstructure:"capture"`
	Host    HostConfig     `mapstructure:"host"`
	Viewer  ViewerConfig   `mapstructure:"viewer"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// HostConfig configures the capture host.
type HostConfig struct {
	Listen        string        `mapstructure:"listen"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	Format        string        `mapstructure:"format"`
	Quality       int           `mapstructure:"quality"`
}

// ViewerConfig configures the viewer window.
type ViewerConfig struct {
	URL string `mapstructure:"url"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Capture: capture.DefaultConfig(),
		Host: HostConfig{
			Listen:        "127.0.0.1:8750",
			WatchInterval: time.Second,
			Format:        "png",
			Quality:       80,
		},
		Viewer: ViewerConfig{
			URL: "ws://127.0.0.1:8750/ws",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks settings the host cannot run without. Capture thresholds
// are deliberately left unchecked.
func (c *Config) Validate() error {
	var errs []error
	if c.Host.Listen == "" {
		errs = append(errs, errors.New("host.listen must not be empty"))
	}
	if c.Host.WatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("host.watch_interval must be positive, got %s", c.Host.WatchInterval))
	}
	switch strings.ToLower(c.Host.Format) {
	case "png", "jpeg", "jpg":
	default:
		errs = append(errs, fmt.Errorf("host.format must be png or jpeg, got %q", c.Host.Format))
	}
	if c.Capture.ScreenIndex < 0 {
		errs = append(errs, fmt.Errorf("capture.screen_index must not be negative, got %d", c.Capture.ScreenIndex))
	}
	return errors.Join(errs...)
}

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load reads defaults, the config file and the environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setup(cfg)

	if err := l.readConfigFile(); err != nil {
		return nil, err
	}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setup(cfg *Config) {
	v := l.v
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "screendiff"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		v.AddConfigPath(filepath.Join(home, ".config", "screendiff"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCREENDIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("capture.screen_index", cfg.Capture.ScreenIndex)
	v.SetDefault("capture.diff_threshold", cfg.Capture.DiffThreshold)
	v.SetDefault("capture.change_threshold_percent", cfg.Capture.ChangeThresholdPercent)
	v.SetDefault("capture.max_width", *cfg.Capture.MaxWidth)
	v.SetDefault("host.listen", cfg.Host.Listen)
	v.SetDefault("host.watch_interval", cfg.Host.WatchInterval)
	v.SetDefault("host.format", cfg.Host.Format)
	v.SetDefault("host.quality", cfg.Host.Quality)
	v.SetDefault("viewer.url", cfg.Viewer.URL)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

// readConfigFile is lenient about a missing default file but not about an
// explicitly requested one.
func (l *Loader) readConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		return nil
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to load config file: %w", err)
	}
	return nil
}
