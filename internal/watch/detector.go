// Package watch commits file-backed databases when they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
)

// DefaultDebounce is how long a file must stay quiet before a change is
// reported.
const DefaultDebounce = 2 * time.Second

// Event reports that the watched database settled after a change.
type Event struct {
	// Path is the watched database file.
	Path string

	// Timestamp is when the change settled.
	Timestamp time.Time
}

// Detector reports changes to one database file and its journal files.
type Detector struct {
	path     string
	watcher  *fsnotify.Watcher
	events   chan Event
	stop     chan struct{}
	debounce time.Duration
	logger   *logging.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDebounce sets the quiet period. Zero reports every change at once.
func WithDebounce(d time.Duration) DetectorOption {
	return func(det *Detector) { det.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) DetectorOption {
	return func(det *Detector) { det.logger = l }
}

// NewDetector creates a detector for the database file at path.
func NewDetector(path string, opts ...DetectorOption) (*Detector, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	d := &Detector{
		path:     abs,
		watcher:  watcher,
		events:   make(chan Event, 1),
		stop:     make(chan struct{}),
		debounce: DefaultDebounce,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("watch")
	return d, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself because SQLite replaces and truncates journal files.
func (d *Detector) Start(ctx context.Context) error {
	if _, err := os.Stat(d.path); err != nil {
		return fmt.Errorf("watching %s: %w", d.path, err)
	}
	if err := d.watcher.Add(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(d.path), err)
	}

	go d.processEvents(ctx)
	return nil
}

// Stop stops the detector and cleans up resources.
func (d *Detector) Stop() {
	select {
	case <-d.stop:
		return
	default:
		close(d.stop)
		_ = d.watcher.Close()
	}
}

// Events returns the channel of settled changes. At most one event is
// pending at a time; further changes fold into it.
func (d *Detector) Events() <-chan Event {
	return d.events
}

// relevant reports whether name is the database or one of its journals.
func (d *Detector) relevant(name string) bool {
	if name == d.path {
		return true
	}
	return strings.HasPrefix(name, d.path+"-") // -wal, -shm, -journal
}

func (d *Detector) processEvents(ctx context.Context) {
	var (
		timer   *time.Timer
		settled <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.relevant(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			d.logger.Trace(ctx, "database file changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()),
			)
			if d.debounce <= 0 {
				d.emit()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(d.debounce)
			} else {
				timer.Reset(d.debounce)
			}
			settled = timer.C

		case <-settled:
			settled = nil
			d.emit()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

// emit sends an event without blocking.
func (d *Detector) emit() {
	select {
	case d.events <- Event{Path: d.path, Timestamp: time.Now()}:
	default:
	}
}
