package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/standardbeagle/themescan/internal/debug"
)

// DefaultWatchDebounce collapses the burst of events editors emit on save
const DefaultWatchDebounce = 300 * time.Millisecond

// Watcher reloads a config file when it changes on disk
type Watcher struct {
	path     string
	load     func() (*Config, error)
	onChange func(*Config)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	reloads int
}

// Watch starts watching path. load is called after every change and, when it
// yields a valid config, onChange receives it. The parent directory is watched
// so that editors replacing the file by rename are noticed.
func Watch(ctx context.Context, path string, debounce time.Duration, load func() (*Config, error), onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:     abs,
		load:     load,
		onChange: onChange,
		debounce: debounce,
		watcher:  fw,
		logger:   debug.Component("config"),
		cancel:   cancel,
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Debug("watching config file", zap.String("path", abs))
	return w, nil
}

// Stop ends the watch and waits for the event loop to exit
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Reloads returns how many times a changed config was delivered
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err == nil && cfg == nil {
		return
	}
	if err == nil {
		err = ValidateConfig(cfg)
	}
	if err != nil {
		w.logger.Warn("keeping previous config", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.path))
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
