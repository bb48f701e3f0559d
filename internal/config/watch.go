package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watcher reports edits to a fixed set of files. It watches the parent
// directories so atomic replacements (rename over the original) are seen.
type Watcher struct {
	fs      *fsnotify.Watcher
	files   map[string]struct{}
	changes chan string
	logger  *slog.Logger
}

// NewWatcher starts watching the given files. Files whose directory cannot be
// watched are logged and ignored.
func NewWatcher(logger *slog.Logger, files ...string) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:      fsw,
		files:   make(map[string]struct{}, len(files)),
		changes: make(chan string, 1),
		logger:  logger,
	}
	dirs := make(map[string]struct{})
	for _, file := range files {
		if file == "" {
			continue
		}
		clean := filepath.Clean(file)
		w.files[clean] = struct{}{}
		dir := filepath.Dir(clean)
		if _, ok := dirs[dir]; ok {
			continue
		}
		dirs[dir] = struct{}{}
		if err := fsw.Add(dir); err != nil {
			logger.Warn("file watch unavailable",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
				slog.String("event_type", "watch_add_failed"),
				slog.String("impact", "changes are picked up on the next poll"),
			)
		}
	}
	return w, nil
}

// Changes delivers the path of a watched file after its edits settle. At most
// one notification is buffered.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Run processes filesystem events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if _, watched := w.files[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			pending = filepath.Clean(event.Name)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			select {
			case w.changes <- pending:
			default:
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
