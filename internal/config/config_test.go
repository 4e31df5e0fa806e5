package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/screendiff/internal/capture"
)

func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(home)
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, capture.DefaultConfig(), cfg.Capture)
	assert.Equal(t, "127.0.0.1:8750", cfg.Host.Listen)
	assert.Equal(t, time.Second, cfg.Host.WatchInterval)
	assert.Equal(t, "png", cfg.Host.Format)
	assert.Equal(t, "ws://127.0.0.1:8750/ws", cfg.Viewer.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "screendiff.yaml")
	content := `
capture:
  screen_index: 1
  diff_threshold: 12
  change_threshold_percent: 2.5
  max_width: 800
  region:
    x: 10
    y: 20
    width: 300
    height: 200
host:
  listen: 0.0.0.0:9000
  watch_interval: 250ms
  format: jpeg
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, path, loader.ConfigFileUsed())
	assert.Equal(t, 1, cfg.Capture.ScreenIndex)
	assert.Equal(t, uint8(12), cfg.Capture.DiffThreshold)
	assert.Equal(t, float32(2.5), cfg.Capture.ChangeThresholdPercent)
	require.NotNil(t, cfg.Capture.MaxWidth)
	assert.Equal(t, 800, *cfg.Capture.MaxWidth)
	assert.Equal(t, &capture.Region{X: 10, Y: 20, Width: 300, Height: 200}, cfg.Capture.Region)
	assert.Equal(t, "0.0.0.0:9000", cfg.Host.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.Host.WatchInterval)
	assert.Equal(t, "jpeg", cfg.Host.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)

	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "screendiff")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("host:\n  listen: 127.0.0.1:1111\n"), 0o644))
	t.Setenv("SCREENDIFF_HOST_LISTEN", "127.0.0.1:2222")
	t.Setenv("SCREENDIFF_CAPTURE_DIFF_THRESHOLD", "5")

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2222", cfg.Host.Listen)
	assert.Equal(t, uint8(5), cfg.Capture.DiffThreshold)
	assert.NotEmpty(t, loader.ConfigFileUsed())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loader.Load()
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Capture.ChangeThresholdPercent = -10
	cfg.Capture.DiffThreshold = 255
	assert.NoError(t, cfg.Validate(), "thresholds are accepted as given")

	cfg.Host.Listen = ""
	cfg.Host.WatchInterval = 0
	cfg.Host.Format = "gif"
	cfg.Capture.ScreenIndex = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "host.listen")
	assert.ErrorContains(t, err, "host.watch_interval")
	assert.ErrorContains(t, err, "host.format")
	assert.ErrorContains(t, err, "capture.screen_index")
}
