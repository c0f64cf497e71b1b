package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// WatcherConfig tunes a Watcher.
type WatcherConfig struct {
	Debounce time.Duration
	// OnReload is called after every reload attempt with its outcome.
	OnReload func(err error)
	Options  []Option
}

// Watcher rebuilds the Service when an artifact file changes on disk.
type Watcher struct {
	artifacts Artifacts
	provider  *Provider
	config    WatcherConfig
	logger    *zap.Logger
}

// NewWatcher watches artifacts and publishes rebuilt services to provider.
func NewWatcher(provider *Provider, artifacts Artifacts, config WatcherConfig, logger *zap.Logger) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{artifacts: artifacts, provider: provider, config: config, logger: logger}
}

// Reload builds a fresh Service and publishes it. On failure the current
// Service stays in place.
func (w *Watcher) Reload() error {
	service, err := Load(w.artifacts, w.config.Options...)
	if w.config.OnReload != nil {
		w.config.OnReload(err)
	}
	if err != nil {
		w.logger.Error("artifact reload failed, keeping current model", zap.Error(err))
		return err
	}
	w.provider.Swap(service)
	w.logger.Info("artifacts reloaded",
		zap.String("model", w.artifacts.ModelPath),
		zap.String("means", w.artifacts.MeansPath),
		zap.Int("features", service.Means().Len()),
	)
	return nil
}

// Run watches the artifact directories until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	targets := make(map[string]bool, 2)
	dirs := make(map[string]bool, 2)
	for _, path := range []string{w.artifacts.ModelPath, w.artifacts.MeansPath} {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.logger.Info("watching artifacts", zap.Duration("debounce", w.config.Debounce))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				resetTimer(timer, w.config.Debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			_ = w.Reload()
		}
	}
}

// resetTimer restarts t for d, discarding an expiry nobody received yet.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
