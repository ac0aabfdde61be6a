package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"dropzone/internal/logging"
)

// Watcher turns filesystem events in the storage directory into debounced
// change notifications.
type Watcher struct {
	root     string
	onChange func(ctx context.Context)
	interval time.Duration
	logger   logging.Logger

	watcher *fsnotify.Watcher
}

// NewWatcher prepares a watch on root. onChange runs on the watcher
// goroutine once per burst of relevant events.
func NewWatcher(root string, interval time.Duration, onChange func(ctx context.Context), logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		root:     root,
		onChange: onChange,
		interval: interval,
		logger:   logger,
		watcher:  fsw,
	}, nil
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
// Watch errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	w.logger.Info(ctx, "watching storage directory", "path", w.root, "debounce", w.interval)

	debounce := newDebouncer(w.interval)
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.changesListing(event) {
				w.logger.Debug(ctx, "directory event", "name", event.Name, "op", event.Op.String())
				debounce.Trigger()
			}
		case <-debounce.C():
			debounce.Fired()
			w.onChange(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", "error", err)
			// Lost events may have hidden a change, so refresh anyway.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				debounce.Trigger()
			}
		}
	}
}
