package index

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/73ai/dirwalk/internal/walker"
)

// Builder walks roots and records matching files, and matching members of
// archives, into the Store
type Builder struct {
	store    *Store
	config   BuilderConfig
	files    walker.Predicate
	archives walker.Predicate
	members  walker.Predicate
	skip     walker.Rules
}

// BuilderConfig configures the index builder behavior
type BuilderConfig struct {
	// Extensions of files to record, with leading dot
	Extensions []string

	// ArchiveExtensions of zip archives whose members are recorded
	ArchiveExtensions []string

	// SkipDirs are directory names pruned with SKIP_ALL
	SkipDirs []string

	// Order and SortByName control the traversal of each root
	Order      walker.Order
	SortByName bool

	FollowSymlinks bool

	// Number of roots scanned concurrently
	Workers int

	Fs     afero.Fs
	Logger logrus.FieldLogger
}

// DefaultBuilderConfig returns sensible defaults for the builder
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Extensions:        []string{".class"},
		ArchiveExtensions: []string{".jar", ".zip"},
		SkipDirs:          []string{".git", ".svn", ".hg", "node_modules"},
		Order:             walker.Natural,
		SortByName:        true,
		Workers:           runtime.GOMAXPROCS(0),
		Fs:                afero.NewOsFs(),
		Logger:            logrus.StandardLogger(),
	}
}

// BuildStats provides statistics about one build
type BuildStats struct {
	Roots         int64         `json:"roots" yaml:"roots"`
	DirsTraversed int64         `json:"dirs_traversed" yaml:"dirs_traversed"`
	DirsSkipped   int64         `json:"dirs_skipped" yaml:"dirs_skipped"`
	FilesIndexed  int64         `json:"files_indexed" yaml:"files_indexed"`
	Archives      int64         `json:"archives" yaml:"archives"`
	Records       int64         `json:"records" yaml:"records"`
	Unchanged     int64         `json:"unchanged" yaml:"unchanged"`
	Errors        int64         `json:"errors" yaml:"errors"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

type buildCounters struct {
	roots, dirs, skipped, files, archives, records, unchanged, errors atomic.Int64
}

func (c *buildCounters) snapshot(d time.Duration) *BuildStats {
	return &BuildStats{
		Roots:         c.roots.Load(),
		DirsTraversed: c.dirs.Load(),
		DirsSkipped:   c.skipped.Load(),
		FilesIndexed:  c.files.Load(),
		Archives:      c.archives.Load(),
		Records:       c.records.Load(),
		Unchanged:     c.unchanged.Load(),
		Errors:        c.errors.Load(),
		Duration:      d,
	}
}

// NewBuilder creates a new index builder
func NewBuilder(store *Store, config BuilderConfig) *Builder {
	defaults := DefaultBuilderConfig()
	if config.Order == 0 {
		config.Order = defaults.Order
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.Fs == nil {
		config.Fs = defaults.Fs
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	b := &Builder{
		store:    store,
		config:   config,
		files:    walker.And(walker.IsFile, walker.HasExtension(config.Extensions...)),
		archives: walker.And(walker.IsFile, walker.HasExtension(config.ArchiveExtensions...)),
		members:  walker.HasExtension(config.Extensions...),
		skip:     make(walker.Rules, len(config.SkipDirs)),
	}
	for _, name := range config.SkipDirs {
		b.skip[name] = walker.SkipAll
	}
	return b
}

// Config returns the builder configuration
func (b *Builder) Config() BuilderConfig {
	return b.config
}

// BuildIndex scans roots concurrently. Files whose modification time is
// unchanged since they were last processed are skipped. The first storage
// failure or a cancelled context ends the build.
func (b *Builder) BuildIndex(ctx context.Context, roots ...string) (*BuildStats, error) {
	start := time.Now()
	roots = uniqueRoots(roots)
	counters := &buildCounters{}

	g, gctx := errgroup.WithContext(ctx)
	engine, err := b.newEngine(gctx, counters)
	if err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(b.config.Workers))
	for _, root := range roots {
		root := root
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			counters.roots.Add(1)
			b.config.Logger.WithField("root", root).Debug("scanning root")
			if err := engine.Process(root); err != nil {
				return fmt.Errorf("failed to scan %s: %w", root, err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return counters.snapshot(time.Since(start)), err
}

func (b *Builder) newEngine(ctx context.Context, counters *buildCounters) (*walker.Engine, error) {
	handler := walker.HandlerFunc(func(entry walker.Entry) (walker.Signal, error) {
		if err := ctx.Err(); err != nil {
			return walker.Stop, err
		}

		if entry.IsDir() {
			if b.skip[entry.Name()] == walker.SkipAll {
				counters.skipped.Add(1)
			} else {
				counters.dirs.Add(1)
			}
			return walker.Continue, nil
		}

		if b.archives(entry) {
			return walker.Continue, b.indexArchive(ctx, entry, counters)
		}
		return walker.Continue, b.indexFile(ctx, entry, counters)
	})

	// only directories and matching files reach handler
	matched := walker.FilterHandler(walker.Or(walker.IsDir, b.archives, b.files), handler)
	return walker.NewConfigured(walker.RuleHandler(b.skip, matched), &walker.Config{
		Order:          b.config.Order,
		SortByName:     b.config.SortByName,
		FollowSymlinks: b.config.FollowSymlinks,
		Fs:             b.config.Fs,
		Logger:         b.config.Logger,
	})
}

func (b *Builder) unchanged(ctx context.Context, entry walker.Entry, counters *buildCounters) (bool, error) {
	done, err := b.store.IsProcessed(ctx, entry.Path, entry.Info.ModTime())
	if err != nil {
		return false, err
	}
	if done {
		counters.unchanged.Add(1)
	}
	return done, nil
}

func (b *Builder) indexFile(ctx context.Context, entry walker.Entry, counters *buildCounters) error {
	if done, err := b.unchanged(ctx, entry, counters); done || err != nil {
		return err
	}

	rec := Record{
		Source:  entry.Path,
		Name:    entry.Name(),
		Size:    entry.Info.Size(),
		ModTime: entry.Info.ModTime(),
	}
	if err := b.store.Replace(ctx, entry.Path, entry.Info.ModTime(), []Record{rec}); err != nil {
		return err
	}

	counters.files.Add(1)
	counters.records.Add(1)
	return nil
}

// indexArchive records the matching members of a zip archive. An archive
// that cannot be read is logged and counted, not fatal.
func (b *Builder) indexArchive(ctx context.Context, entry walker.Entry, counters *buildCounters) error {
	if done, err := b.unchanged(ctx, entry, counters); done || err != nil {
		return err
	}

	records, err := b.readArchive(entry)
	if err != nil {
		counters.errors.Add(1)
		b.config.Logger.WithFields(logrus.Fields{
			"archive": entry.Path,
			"error":   err,
		}).Warn("skipping unreadable archive")
		return nil
	}

	if err := b.store.Replace(ctx, entry.Path, entry.Info.ModTime(), records); err != nil {
		return err
	}

	counters.archives.Add(1)
	counters.records.Add(int64(len(records)))
	return nil
}

func (b *Builder) readArchive(entry walker.Entry) ([]Record, error) {
	f, err := b.config.Fs.Open(entry.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zip.NewReader(f, entry.Info.Size())
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if !b.members(walker.Entry{Path: member.Name}) {
			continue
		}
		records = append(records, Record{
			Source:  entry.Path,
			Name:    member.Name,
			Size:    int64(member.UncompressedSize64),
			ModTime: member.Modified,
			Archive: true,
		})
	}
	return records, nil
}

// uniqueRoots drops repeated roots, keeping the first spelling of each
func uniqueRoots(roots []string) []string {
	seen := make(map[string]bool, len(roots))
	unique := roots[:0:0]
	for _, root := range roots {
		clean := filepath.Clean(root)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		unique = append(unique, root)
	}
	return unique
}

// skipped reports whether any element of the relative path rel names a
// directory the builder never descends into.
func (b *Builder) skipped(rel string) bool {
	for _, name := range strings.Split(filepath.ToSlash(rel), "/") {
		if b.skip[name].IsSet() {
			return true
		}
	}
	return false
}
