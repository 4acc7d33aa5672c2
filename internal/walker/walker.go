// Package walker provides a recursive file tree traversal driven by a
// caller-supplied Handler. The Signal returned for each visited entry
// controls how the rest of the current subtree is traversed.
package walker

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Entry is a visited file or directory
type Entry struct {
	Path string      // Path as built from the traversal root
	Info fs.FileInfo // File information, resolved through symlinks when following them
}

// Name returns the base name of the entry.
func (e Entry) Name() string {
	if e.Info == nil {
		return filepath.Base(e.Path)
	}
	return e.Info.Name()
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Info != nil && e.Info.IsDir()
}

// Handler is invoked once for every visited entry, the root included.
// A returned error aborts the traversal and is passed back from Process.
type Handler interface {
	Handle(entry Entry) (Signal, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(entry Entry) (Signal, error)

func (f HandlerFunc) Handle(entry Entry) (Signal, error) {
	return f(entry)
}

// Config holds configuration for the engine
type Config struct {
	Order          Order
	SortByName     bool
	FollowSymlinks bool
	Fs             afero.Fs
	Logger         logrus.FieldLogger
}

func DefaultConfig() *Config {
	return &Config{
		Order:          Natural,
		SortByName:     false,
		FollowSymlinks: false,
		Fs:             afero.NewOsFs(),
		Logger:         logrus.StandardLogger(),
	}
}

// Option adjusts the configuration passed to New.
type Option func(*Config)

func WithOrder(order Order) Option {
	return func(c *Config) { c.Order = order }
}

func WithSortByName(sortByName bool) Option {
	return func(c *Config) { c.SortByName = sortByName }
}

// WithFollowSymlinks classifies symlinked children by their targets. There
// is no cycle detection.
func WithFollowSymlinks(follow bool) Option {
	return func(c *Config) { c.FollowSymlinks = follow }
}

func WithFs(fsys afero.Fs) Option {
	return func(c *Config) { c.Fs = fsys }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Engine walks file trees. It holds no per-traversal state, so one Engine
// may run any number of Process calls, concurrently or not.
type Engine struct {
	handler Handler
	config  Config
}

// New creates an engine with the Natural order and no sorting unless
// options say otherwise.
func New(handler Handler, opts ...Option) (*Engine, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return NewConfigured(handler, config)
}

// NewConfigured creates an engine from an explicit configuration. A nil
// config means DefaultConfig; a nil Fs or Logger falls back to the default.
func NewConfigured(handler Handler, config *Config) (*Engine, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: handler is required", ErrInvalidArgument)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Order.IsSet() {
		return nil, fmt.Errorf("%w: order is required", ErrInvalidArgument)
	}

	cfg := *config
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Engine{handler: handler, config: cfg}, nil
}

// Order returns the child ordering used by the engine.
func (e *Engine) Order() Order {
	return e.config.Order
}

// SortByName reports whether siblings are sorted by name.
func (e *Engine) SortByName() bool {
	return e.config.SortByName
}

// Process traverses root. A file root is handed to the handler once; a
// directory root is walked recursively. The signal computed for the root
// is discarded since there is nothing above it to act on.
func (e *Engine) Process(root string) error {
	if root == "" {
		return fmt.Errorf("%w: root path is empty", ErrInvalidArgument)
	}

	info, err := e.config.Fs.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: root %s: %w", ErrInvalidArgument, root, err)
	}

	entry := Entry{Path: root, Info: info}
	if !info.IsDir() {
		_, err := e.handle(entry)
		return err
	}

	_, err = e.visitDir(entry)
	return err
}

func (e *Engine) handle(entry Entry) (Signal, error) {
	signal, err := e.handler.Handle(entry)
	if err != nil {
		return 0, &HandlerError{Path: entry.Path, Err: err}
	}
	return signal, nil
}

// visitDir visits dir and its children. It returns Stop when the traversal
// must end and Continue otherwise; SkipAll never leaves the directory that
// received it.
func (e *Engine) visitDir(dir Entry) (Signal, error) {
	dirSignal, err := e.handle(dir)
	if err != nil {
		return 0, err
	}

	switch dirSignal {
	case Stop:
		return Stop, nil
	case SkipAll:
		return Continue, nil
	}

	children, err := e.readDir(dir.Path)
	if err != nil {
		e.config.Logger.WithFields(logrus.Fields{
			"path":  dir.Path,
			"error": err,
		}).Debug("directory listing unavailable, treating it as empty")
		return Continue, nil
	}

	for _, info := range arrange(children, e.config.Order, e.config.SortByName) {
		child := Entry{Path: filepath.Join(dir.Path, info.Name()), Info: info}

		var result Signal
		switch {
		case info.IsDir():
			if dirSignal == SkipSubdirs {
				continue
			}
			result, err = e.visitDir(child)
		case info.Mode().IsRegular():
			if dirSignal == SkipFiles {
				continue
			}
			result, err = e.handle(child)
		default:
			// sockets, devices and symlinks that are not followed
			continue
		}
		if err != nil {
			return 0, err
		}

		switch result {
		case Stop:
			return Stop, nil
		case SkipAll:
			return Continue, nil
		}
	}

	return Continue, nil
}

// readDir lists the direct children of dir in the order the file system
// yields them.
func (e *Engine) readDir(dir string) ([]fs.FileInfo, error) {
	f, err := e.config.Fs.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	children, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}

	if !e.config.FollowSymlinks {
		return children, nil
	}

	for i, info := range children {
		if info.Mode()&fs.ModeSymlink == 0 {
			continue
		}
		target, err := e.config.Fs.Stat(filepath.Join(dir, info.Name()))
		if err != nil {
			// dangling link, left unvisited
			continue
		}
		children[i] = target
	}
	return children, nil
}
