package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback is invoked after the config file changes and reloads
// successfully. Callback errors are logged; the reload still stands.
type ReloadCallback func(*Config) error

// ErrWatcherClosed is returned when an operation is attempted on a closed watcher.
var ErrWatcherClosed = errors.New("config: watcher already closed")

// Watcher monitors the config file and triggers reload callbacks.
// Rapid events are debounced, and the parent directory is watched so that
// atomic writes (temp file + rename) are detected.
type Watcher struct {
	ctx           context.Context
	cancel        context.CancelFunc
	fsWatcher     *fsnotify.Watcher
	path          string
	callbacks     []ReloadCallback
	debounceDelay time.Duration
	mu            sync.RWMutex
	closed        bool
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		ctx:           ctx,
		cancel:        cancel,
		fsWatcher:     fsWatcher,
		path:          absPath,
		debounceDelay: 100 * time.Millisecond,
	}

	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		if closeErr := fsWatcher.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close watcher after add failure")
		}
		return nil, err
	}

	return w, nil
}

// OnReload registers a callback invoked with each successfully reloaded config.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Watch blocks, processing file events until ctx is canceled.
// Only Write and Create events on the config file trigger a reload.
func (w *Watcher) Watch(ctx context.Context) error {
	var (
		timer      *time.Timer
		timerMu    sync.Mutex
		targetFile = filepath.Base(w.path)
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != targetFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceDelay, func() {
				select {
				case <-w.ctx.Done():
					return
				default:
				}
				w.triggerReload()
			})
			timerMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) triggerReload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("failed to reload config")
		return
	}

	log.Info().Str("path", w.path).Msg("config file reloaded")

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			log.Error().Err(err).Msg("config reload callback error")
		}
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	w.closed = true
	w.cancel()
	return w.fsWatcher.Close()
}
