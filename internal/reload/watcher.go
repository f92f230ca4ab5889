// ABOUTME: fsnotify-based watcher that reloads the agents file after it settles
// ABOUTME: Debounces bursts of filesystem events into a single reload call

package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// ErrAlreadyStarted is returned by Start on a second call.
var ErrAlreadyStarted = errors.New("watcher already started")

// Func performs one reload. Errors are logged; the watcher keeps running.
type Func func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	// Path is the file to watch.
	Path     string
	Debounce time.Duration
	Reload   Func
	Logger   *slog.Logger
}

// Watcher triggers Reload whenever Path is written, created, renamed or removed.
type Watcher struct {
	path     string
	debounce time.Duration
	reload   Func
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	timerMu sync.Mutex
	timer   *time.Timer

	stopCh  chan struct{}
	doneCh  chan struct{}
	stopMu  sync.Mutex
	started bool
	stopped bool
}

// New creates a Watcher. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("reload watcher requires a path")
	}
	if cfg.Reload == nil {
		return nil, fmt.Errorf("reload watcher requires a reload func")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", cfg.Path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		debounce: cfg.Debounce,
		reload:   cfg.Reload,
		watcher:  fw,
		logger:   cfg.Logger.With("component", "reload"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The watch loop ends when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.started = true

	w.logger.Info("watching agents file", "path", w.path, "debounce", w.debounce)
	go w.watchLoop(ctx)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	w.logger.Debug("agents file changed", "op", event.Op.String())
	w.schedule(ctx)
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-w.stopCh:
			return
		default:
		}
		if err := w.reload(ctx); err != nil {
			w.logger.Error("reload after file change failed", "path", w.path, "error", err)
		}
	})
}

// Stop stops the watcher. It is safe to call multiple times.
func (w *Watcher) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	if w.started {
		select {
		case <-w.doneCh:
		case <-time.After(5 * time.Second):
			w.logger.Warn("reload watcher stop timed out")
		}
	}

	return w.watcher.Close()
}
