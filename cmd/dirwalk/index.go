package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/73ai/dirwalk/internal/index"
)

func newIndexCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the file catalog",
		Long: `Manage the catalog of files and archive members found by walking directory
trees. Files whose modification time has not changed since the last scan are
not read again.`,
	}

	pf := cmd.PersistentFlags()
	pf.String("index-path", "", "Catalog location (default ~/.cache/dirwalk/index)")
	pf.StringSliceP("extensions", "e", nil, "Extensions of files to catalog (default .class)")
	pf.StringSlice("archive-extensions", nil, "Extensions of zip archives whose members are cataloged (default .jar,.zip)")
	pf.StringSlice("skip-dirs", nil, "Directory names never descended into (default .git,.svn,.hg,node_modules)")
	pf.IntP("workers", "w", 0, "Number of roots scanned in parallel (0 = auto)")

	cmd.AddCommand(
		newScanCommand(a),
		newListCommand(a),
		newStatusCommand(a),
		newClearCommand(a),
		newWatchCommand(a),
	)
	return cmd
}

func newScanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [path...]",
		Short: "Catalog files below the given paths",
		Long: `Walk each path and record matching files and archive members. Unchanged
files are skipped, so repeated scans only read what changed.

If no paths are specified, the current directory is used.

EXAMPLES:
    dirwalk index scan
    dirwalk index scan ./build ./lib --workers 8
    dirwalk index scan -e .class -e .properties ~/.m2/repository`,
		RunE: a.runScan,
	}
}

func newListCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [source]",
		Short: "List cataloged records",
		Long: `List every record, the records of one source file or archive, or with
--find the records whose base name matches exactly.

EXAMPLES:
    dirwalk index list
    dirwalk index list ./lib/app.jar
    dirwalk index list --find Main.class --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runList,
	}
	cmd.Flags().String("find", "", "Only records with this base name")
	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog location and size",
		Args:  cobra.NoArgs,
		RunE:  a.runStatus,
	}
}

func newClearCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all catalog data",
		Args:  cobra.NoArgs,
		RunE:  a.runClear,
	}
	cmd.Flags().BoolP("force", "f", false, "Clear without confirmation")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Scan paths and keep the catalog current as files change",
		Long: `Scan each path, then watch its directories and apply changes to the
catalog until interrupted. New directories are watched as they appear and
removed files are dropped from the catalog.`,
		RunE: a.runWatch,
	}
	cmd.Flags().Duration("debounce", index.DefaultWatcherConfig().Debounce, "Time to wait for changes to settle")
	return cmd
}

func (a *app) indexPath() string {
	if path := a.v.GetString("index-path"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".dirwalk-index"
	}
	return filepath.Join(homeDir, ".cache", "dirwalk", "index")
}

// openStore opens the on-disk catalog. Closing the returned Store closes
// the storage as well.
func (a *app) openStore() (*index.BadgerStorage, *index.Store, error) {
	path := a.indexPath()
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	storage, err := index.NewBadgerStorage(index.DefaultBadgerOptions(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	return storage, index.NewStore(storage), nil
}

func (a *app) builderConfig() (index.BuilderConfig, error) {
	config := index.DefaultBuilderConfig()

	opts, err := loadWalkOptions(a.v)
	if err != nil {
		return config, err
	}
	config.Order = opts.Order
	config.SortByName = opts.SortByName
	config.FollowSymlinks = opts.FollowSymlinks

	if exts := a.v.GetStringSlice("extensions"); len(exts) > 0 {
		config.Extensions = exts
	}
	if exts := a.v.GetStringSlice("archive-extensions"); len(exts) > 0 {
		config.ArchiveExtensions = exts
	}
	if a.v.IsSet("skip-dirs") {
		config.SkipDirs = a.v.GetStringSlice("skip-dirs")
	}
	if workers := a.v.GetInt("workers"); workers > 0 {
		config.Workers = workers
	}
	config.Fs = a.fs
	config.Logger = a.logger
	return config, nil
}

// absPaths resolves paths so catalog keys match what the watcher reports
func absPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	abs := make([]string, 0, len(paths))
	for _, path := range paths {
		p, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		abs = append(abs, p)
	}
	return abs, nil
}

func (a *app) runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := a.newPrinter(cmd)
	if err != nil {
		return err
	}
	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	config, err := a.builderConfig()
	if err != nil {
		return err
	}

	_, store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	a.logger.WithFields(logrus.Fields{
		"paths":   strings.Join(paths, ", "),
		"workers": config.Workers,
	}).Info("scanning")

	stats, err := index.NewBuilder(store, config).BuildIndex(ctx, paths...)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return out.buildStats(stats)
}

func (a *app) runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	out, err := a.newPrinter(cmd)
	if err != nil {
		return err
	}

	_, store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var records []index.Record
	if name := a.v.GetString("find"); name != "" {
		records, err = store.Find(ctx, name)
	} else {
		var source string
		if len(args) == 1 {
			if source, err = filepath.Abs(args[0]); err != nil {
				return err
			}
		}
		records, err = store.Records(ctx, source)
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	return out.records(records)
}

func (a *app) runStatus(cmd *cobra.Command, _ []string) error {
	out, err := a.newPrinter(cmd)
	if err != nil {
		return err
	}

	storage, store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	return out.status(indexStatus{
		Path:  a.indexPath(),
		Size:  storage.Size(),
		Store: stats,
	})
}

func (a *app) runClear(cmd *cobra.Command, _ []string) error {
	if !a.v.GetBool("force") {
		fmt.Fprint(cmd.OutOrStdout(), "This will permanently delete all index data. Continue? (y/N): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled.")
			return nil
		}
	}

	_, store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	if err := store.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d records from %d sources\n", stats.Records, stats.Sources)
	return nil
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := a.newPrinter(cmd)
	if err != nil {
		return err
	}
	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	config, err := a.builderConfig()
	if err != nil {
		return err
	}

	_, store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	builder := index.NewBuilder(store, config)
	stats, err := builder.BuildIndex(ctx, paths...)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := out.buildStats(stats); err != nil {
		return err
	}

	watcher, err := index.NewWatcher(builder, index.WatcherConfig{
		Debounce: a.v.GetDuration("debounce"),
		OnApply: func(set index.ChangeSet) {
			fields := logrus.Fields{
				"changes":   len(set.Changes),
				"forgotten": len(set.Forgotten),
			}
			if set.Build != nil {
				fields["records"] = set.Build.Records
			}
			a.logger.WithFields(fields).Info("index updated")
		},
	})
	if err != nil {
		return err
	}
	defer watcher.Stop()

	if err := watcher.Start(ctx, paths...); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d directories (Ctrl+C to stop)\n", len(watcher.WatchedDirectories()))
	<-ctx.Done()

	return watcher.Stop()
}
