package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const debounceDelay = 250 * time.Millisecond

// Watcher reloads the configuration when its YAML file changes.
type Watcher struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	load      func() (*Config, error)
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewWatcher starts watching initial.ConfigFile. Without a file it returns a
// watcher that never fires.
func NewWatcher(initial *Config, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(initial, LoadConfig, logger)
}

func newWatcher(initial *Config, load func() (*Config, error), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		config: initial,
		load:   load,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if initial.ConfigFile == "" {
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors often replace the file, so watch its directory
	if err := fsWatcher.Add(filepath.Dir(initial.ConfigFile)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}
	w.watcher = fsWatcher

	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled", zap.String("file", initial.ConfigFile))
	return w, nil
}

// Config returns the current configuration
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback run after every successful reload
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Stop ends watching
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) watchLoop() {
	defer w.watcher.Close()

	target := filepath.Clean(w.config.ConfigFile)
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Info("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := w.load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.config = next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(next)
	}
	w.logger.Info("Configuration reloaded", zap.Int("callbacks_notified", len(callbacks)))
}

// LevelUpdater returns a callback that applies the reloaded log level to level
func LevelUpdater(level zap.AtomicLevel, logger *zap.Logger) func(*Config) {
	return func(c *Config) {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
			logger.Warn("Ignoring unknown log level", zap.String("level", c.LogLevel))
			return
		}
		if level.Level() != l {
			level.SetLevel(l)
			logger.Info("Log level changed", zap.String("level", l.String()))
		}
	}
}
