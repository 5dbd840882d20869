package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func loadFrom(path string) func() (*Config, error) {
	return func() (*Config, error) {
		cfg := Default()
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.resolveVariant()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
}

func TestWatcherWithoutFileNeverFires(t *testing.T) {
	initial := Default()
	w, err := NewWatcher(initial, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.Same(t, initial, w.Config())
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	load := loadFrom(path)
	initial, err := load()
	require.NoError(t, err)

	w, err := newWatcher(initial, load, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var notified atomic.Int32
	w.OnChange(func(c *Config) {
		if c.LogLevel == "debug" {
			notified.Add(1)
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o600))

	assert.Eventually(t, func() bool {
		return w.Config().LogLevel == "debug" && notified.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	load := loadFrom(path)
	initial, err := load()
	require.NoError(t, err)

	w, err := newWatcher(initial, load, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("variant: nowhere\n"), 0o600))
	w.reload()

	assert.Same(t, initial, w.Config())
}

func TestLevelUpdater(t *testing.T) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	update := LevelUpdater(level, zap.NewNop())

	update(&Config{LogLevel: "debug"})
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	update(&Config{LogLevel: "loud"})
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}
