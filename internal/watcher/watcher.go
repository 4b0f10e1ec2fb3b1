// Package watcher ingests files dropped into a directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a new file must stay unwritten before it is
// handed over, so that files still being copied are not read half way.
const DefaultSettle = 500 * time.Millisecond

// Handler processes one settled file. Errors are logged.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	Settle time.Duration
	// Filter selects the files to handle. nil accepts every file.
	Filter func(path string) bool
}

// Watcher hands newly created files to a Handler once. Later writes to an
// already handled file are ignored.
type Watcher struct {
	fsw    *fsnotify.Watcher
	opts   Options
	logger *slog.Logger
}

// New creates a Watcher.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Filter == nil {
		opts.Filter = func(string) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{fsw: fsw, opts: opts, logger: logger}, nil
}

// Run watches dir and calls handle for every file created in it, one file
// at a time. It blocks until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, dir string, handle Handler) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Info("Watching directory", "dir", dir, "settle", w.opts.Settle)

	s := newSettler(w.opts.Settle)
	defer s.stop()
	handled := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if handled[event.Name] || !w.opts.Filter(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				s.schedule(ctx, event.Name)
			case event.Has(fsnotify.Write):
				s.extend(event.Name)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				s.cancel(event.Name)
			}

		case e := <-s.ready:
			if !s.take(e) || handled[e.path] {
				continue
			}
			handled[e.path] = true
			if err := handle(ctx, e.path); err != nil {
				w.logger.Warn("Failed to handle file", "path", e.path, "error", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// settling is one scheduled file. A timer that already fired cannot be
// stopped, so the loop checks the entry is still pending when it arrives.
type settling struct {
	path  string
	timer *time.Timer
}

// settler delays files until they have been quiet for delay. It is owned
// by the Run loop and is not safe for concurrent use.
type settler struct {
	delay   time.Duration
	pending map[string]*settling
	ready   chan *settling
}

func newSettler(delay time.Duration) *settler {
	return &settler{
		delay:   delay,
		pending: make(map[string]*settling),
		ready:   make(chan *settling),
	}
}

// schedule starts the settle timer for path, or restarts it.
func (s *settler) schedule(ctx context.Context, path string) {
	if e, ok := s.pending[path]; ok {
		e.timer.Reset(s.delay)
		return
	}
	e := &settling{path: path}
	e.timer = time.AfterFunc(s.delay, func() {
		select {
		case s.ready <- e:
		case <-ctx.Done():
		}
	})
	s.pending[path] = e
}

// extend restarts the timer of a pending path and ignores any other.
func (s *settler) extend(path string) {
	if e, ok := s.pending[path]; ok {
		e.timer.Reset(s.delay)
	}
}

func (s *settler) cancel(path string) {
	if e, ok := s.pending[path]; ok {
		e.timer.Stop()
		delete(s.pending, path)
	}
}

// take reports whether e is still the pending entry for its path and
// clears it. Entries cancelled after their timer fired are rejected.
func (s *settler) take(e *settling) bool {
	if s.pending[e.path] != e {
		return false
	}
	delete(s.pending, e.path)
	return true
}

func (s *settler) stop() {
	for _, e := range s.pending {
		e.timer.Stop()
	}
}
