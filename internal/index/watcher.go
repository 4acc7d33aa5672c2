package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/73ai/dirwalk/internal/walker"
)

// ChangeOp classifies a file system change
type ChangeOp int

const (
	// ChangeWrite covers created and modified paths
	ChangeWrite ChangeOp = iota + 1
	// ChangeRemove covers removed and renamed-away paths
	ChangeRemove
)

func (op ChangeOp) String() string {
	switch op {
	case ChangeWrite:
		return "write"
	case ChangeRemove:
		return "remove"
	}
	return fmt.Sprintf("ChangeOp(%d)", int(op))
}

func (op ChangeOp) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// Change is one file system change seen by a Watcher
type Change struct {
	Path string    `json:"path" yaml:"path"`
	Op   ChangeOp  `json:"op" yaml:"op"`
	Seen time.Time `json:"seen" yaml:"seen"`
}

// ChangeSet is a debounced group of changes together with what applying
// it did to the catalog.
type ChangeSet struct {
	Changes   []Change    `json:"changes" yaml:"changes"`
	Forgotten []string    `json:"forgotten,omitempty" yaml:"forgotten,omitempty"`
	Rescanned []string    `json:"rescanned,omitempty" yaml:"rescanned,omitempty"`
	Build     *BuildStats `json:"build,omitempty" yaml:"build,omitempty"`
}

type WatcherConfig struct {
	// Debounce is the quiet period after the last change before pending
	// changes are applied
	Debounce time.Duration

	// MaxPending forces an early apply once this many changes are queued
	MaxPending int

	OnApply func(ChangeSet)
	OnError func(error)
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Debounce:   300 * time.Millisecond,
		MaxPending: 64,
	}
}

// Watcher keeps the catalog current by applying file system changes below
// the watched roots. It reads through the builder, which must use the OS
// file system since fsnotify reports OS paths.
type Watcher struct {
	builder *Builder
	config  WatcherConfig
	notify  *fsnotify.Watcher

	mu     sync.Mutex
	roots  []string           // set by Start
	cancel context.CancelFunc // non-nil while running
	done   chan struct{}
	closed bool
}

func NewWatcher(builder *Builder, config WatcherConfig) (*Watcher, error) {
	defaults := DefaultWatcherConfig()
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.MaxPending <= 0 {
		config.MaxPending = defaults.MaxPending
	}

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{builder: builder, config: config, notify: notify}, nil
}

// Start watches every directory below roots that the builder would descend
// into, then applies changes in the background until ctx ends or Stop is
// called. A stopped Watcher cannot be started again.
func (w *Watcher) Start(ctx context.Context, roots ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return errors.New("watcher already started")
	}
	if w.closed {
		return errors.New("watcher stopped")
	}
	for _, root := range roots {
		if err := w.watchTree(root); err != nil {
			w.closed = true
			w.notify.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		w.roots = append(w.roots, filepath.Clean(root))
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)

	w.logger().WithField("dirs", len(w.notify.WatchList())).Info("watching for changes")
	return nil
}

// Stop ends the background loop, dropping changes not yet applied, and
// releases the fsnotify watcher. It may be called whether or not Start
// succeeded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		<-w.done
		w.cancel = nil
	}
	if w.closed {
		return nil
	}
	w.closed = true
	return w.notify.Close()
}

func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// WatchedDirectories returns the directories currently registered
func (w *Watcher) WatchedDirectories() []string {
	return w.notify.WatchList()
}

// watchTree registers root and its subdirectories. Every directory answers
// SKIP_FILES, so only directories reach the handler; skipped directories are
// pruned before they are registered.
func (w *Watcher) watchTree(root string) error {
	register := walker.HandlerFunc(func(entry walker.Entry) (walker.Signal, error) {
		if !entry.IsDir() {
			return walker.Continue, nil
		}
		if signal := w.builder.skip[entry.Name()]; signal.IsSet() {
			return signal, nil
		}
		if err := w.notify.Add(entry.Path); err != nil {
			w.fail(fmt.Errorf("failed to watch directory %s: %w", entry.Path, err))
		}
		return walker.SkipFiles, nil
	})

	engine, err := walker.New(register,
		walker.WithFs(w.builder.config.Fs),
		walker.WithFollowSymlinks(w.builder.config.FollowSymlinks),
		walker.WithLogger(w.logger()))
	if err != nil {
		return err
	}
	return engine.Process(root)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var pending []Change
	quiet := time.NewTimer(w.config.Debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}
			change, ok := toChange(event)
			if !ok {
				continue
			}
			pending = append(pending, change)
			if len(pending) >= w.config.MaxPending {
				quiet.Stop()
				w.apply(ctx, pending)
				pending = nil
				continue
			}
			quiet.Reset(w.config.Debounce)

		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			w.fail(fmt.Errorf("fsnotify: %w", err))

		case <-quiet.C:
			w.apply(ctx, pending)
			pending = nil
		}
	}
}

func toChange(event fsnotify.Event) (Change, bool) {
	change := Change{Path: event.Name, Seen: time.Now()}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		change.Op = ChangeRemove
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		change.Op = ChangeWrite
	default:
		return change, false
	}
	return change, true
}

// apply updates the catalog for one batch. A path removed at any point in
// the batch is forgotten first; whatever exists afterwards is rescanned, and
// new directories are registered.
func (w *Watcher) apply(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}

	set := ChangeSet{Changes: changes}
	var paths []string
	removed := make(map[string]bool)
	for _, change := range changes {
		if _, seen := removed[change.Path]; !seen {
			paths = append(paths, change.Path)
			removed[change.Path] = false
		}
		if change.Op == ChangeRemove {
			removed[change.Path] = true
		}
	}

	for _, path := range paths {
		if w.ignored(path) {
			continue
		}
		if removed[path] {
			if err := w.builder.store.Forget(ctx, path); err != nil {
				w.fail(fmt.Errorf("failed to forget %s: %w", path, err))
				continue
			}
			set.Forgotten = append(set.Forgotten, path)
		}

		info, err := w.builder.config.Fs.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if err := w.watchTree(path); err != nil {
				w.fail(err)
			}
		}
		set.Rescanned = append(set.Rescanned, path)
	}

	if len(set.Rescanned) > 0 {
		stats, err := w.builder.BuildIndex(ctx, set.Rescanned...)
		set.Build = stats
		if err != nil && !errors.Is(err, context.Canceled) {
			w.fail(fmt.Errorf("failed to rescan changed paths: %w", err))
		}
	}

	w.logger().WithFields(logrus.Fields{
		"changes":   len(changes),
		"forgotten": len(set.Forgotten),
		"rescanned": len(set.Rescanned),
	}).Debug("applied changes")

	if w.config.OnApply != nil {
		w.config.OnApply(set)
	}
}

// ignored reports whether path lies inside a directory the builder skips.
// Only the part of path below its watched root is considered. roots is
// fixed before the loop starts, so it is read without the lock.
func (w *Watcher) ignored(path string) bool {
	rel := path
	for _, root := range w.roots {
		if r, err := filepath.Rel(root, path); err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			rel = r
			break
		}
	}
	return w.builder.skipped(rel)
}

func (w *Watcher) fail(err error) {
	if w.config.OnError != nil {
		w.config.OnError(err)
		return
	}
	w.logger().WithError(err).Warn("watcher")
}

func (w *Watcher) logger() logrus.FieldLogger {
	return w.builder.config.Logger
}
