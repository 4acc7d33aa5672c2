package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/73ai/dirwalk/internal/walker"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// app holds what every command shares: the merged configuration and the logger
type app struct {
	v       *viper.Viper
	logger  *logrus.Logger
	cfgFile string
	fs      afero.Fs
}

// walkOptions are the traversal settings resolved from flags, environment
// and config file
type walkOptions struct {
	Order          walker.Order
	SortByName     bool
	FollowSymlinks bool
	Rules          walker.Rules
}

func newRootCommand() *cobra.Command {
	a := &app{
		v:      viper.New(),
		logger: logrus.New(),
		fs:     afero.NewOsFs(),
	}

	cmd := &cobra.Command{
		Use:   "dirwalk [path...]",
		Short: "Walk directory trees under handler control",
		Long: `dirwalk walks each path depth-first and prints every entry it visits.
Rules map entry names to control signals that prune or stop the walk.

SIGNALS:
    CONTINUE       keep going
    SKIP_ALL       skip the rest of the parent directory (or this directory's contents)
    SKIP_FILES     do not visit the files of this directory
    SKIP_SUBDIRS   do not visit the subdirectories of this directory
    STOP           end the walk

EXAMPLES:
    dirwalk .
    dirwalk --order DIRS_FIRST --sort src/
    dirwalk --rule node_modules=SKIP_ALL --rule .git=SKIP_ALL .
    dirwalk --json --rule build=SKIP_FILES ./project
    dirwalk --ext .go --hidden=false --min-size 1024 .`,
		Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
		RunE:              a.runWalk,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (default .dirwalk.yaml in . or $HOME)")
	pf.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	pf.String("color", "auto", "When to use colors (never, auto, always)")
	pf.Bool("json", false, "Output in JSON format")
	pf.Bool("yaml", false, "Output in YAML format")
	pf.String("order", walker.Natural.String(), "Child order (NATURAL, FILES_FIRST, DIRS_FIRST)")
	pf.Bool("sort", false, "Sort children by name")
	pf.Bool("follow-symlinks", false, "Visit the targets of symbolic links")

	f := cmd.Flags()
	f.StringArray("rule", nil, "Signal for an entry name as NAME=SIGNAL (repeatable)")
	f.StringSlice("ext", nil, "Only print files with these extensions")
	f.Bool("hidden", true, "Visit entries whose name starts with a dot")
	f.Int64("min-size", 0, "Only print files of at least this many bytes")
	f.Int64("max-size", 0, "Only print files of at most this many bytes (0 = no limit)")

	cmd.AddCommand(newIndexCommand(a))
	return cmd
}

// initConfig merges the config file and DIRWALK_ environment variables under
// the flags of the command being run.
func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName(".dirwalk")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		a.v.AddConfigPath("$HOME")
	}

	a.v.SetEnvPrefix("DIRWALK")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	a.logger.SetLevel(level)
	a.logger.SetOutput(cmd.ErrOrStderr())

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.WithField("file", used).Debug("using config file")
	}
	return nil
}

// loadWalkOptions resolves traversal settings. Rules from the config file
// come first; --rule flags override them name by name.
func loadWalkOptions(v *viper.Viper) (walkOptions, error) {
	opts := walkOptions{
		Order:          walker.Natural,
		SortByName:     v.GetBool("sort"),
		FollowSymlinks: v.GetBool("follow-symlinks"),
		Rules:          make(walker.Rules),
	}

	order, err := walker.ParseOrder(strings.ToUpper(v.GetString("order")))
	if err != nil {
		return opts, err
	}
	if order.IsSet() {
		opts.Order = order
	}

	for name, value := range v.GetStringMapString("rules") {
		signal, err := parseRuleSignal(name, value)
		if err != nil {
			return opts, err
		}
		opts.Rules[name] = signal
	}

	flagged, err := parseRules(v.GetStringSlice("rule"))
	if err != nil {
		return opts, err
	}
	for name, signal := range flagged {
		opts.Rules[name] = signal
	}
	return opts, nil
}

// parseRules parses NAME=SIGNAL pairs
func parseRules(specs []string) (walker.Rules, error) {
	rules := make(walker.Rules, len(specs))
	for _, pair := range specs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid rule %q: expected NAME=SIGNAL", pair)
		}
		signal, err := parseRuleSignal(name, value)
		if err != nil {
			return nil, err
		}
		rules[name] = signal
	}
	return rules, nil
}

func parseRuleSignal(name, value string) (walker.Signal, error) {
	signal, err := walker.ParseSignal(strings.ToUpper(strings.TrimSpace(value)))
	if err != nil {
		return 0, fmt.Errorf("invalid rule for %s: %w", name, err)
	}
	if !signal.IsSet() {
		return 0, fmt.Errorf("invalid rule for %s: missing signal", name)
	}
	return signal, nil
}

// entryFilter selects the entries a walk prints. Directories always match so
// the tree stays readable; files must pass every size and extension flag.
func entryFilter(v *viper.Viper) walker.Predicate {
	var files []walker.Predicate
	if exts := v.GetStringSlice("ext"); len(exts) > 0 {
		files = append(files, walker.HasExtension(exts...))
	}
	if size := v.GetInt64("min-size"); size > 0 {
		files = append(files, walker.MinSize(size))
	}
	if size := v.GetInt64("max-size"); size > 0 {
		files = append(files, walker.MaxSize(size))
	}
	return walker.Or(walker.IsDir, walker.And(files...))
}

// Execute runs the root command
func Execute() error {
	return newRootCommand().Execute()
}

func (a *app) runWalk(cmd *cobra.Command, args []string) error {
	opts, err := loadWalkOptions(a.v)
	if err != nil {
		return err
	}
	out, err := a.newPrinter(cmd)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	report := &walkReport{Roots: paths}
	visit := walker.HandlerFunc(func(entry walker.Entry) (walker.Signal, error) {
		if out.format == formatText {
			out.entry(entry)
		} else {
			report.Entries = append(report.Entries, newEntryView(entry))
		}
		return walker.Continue, nil
	})

	shown := walker.FilterHandler(entryFilter(a.v), visit)
	handler := walker.Handler(shown)
	if !a.v.GetBool("hidden") {
		roots := make(map[string]bool, len(paths))
		for _, path := range paths {
			roots[path] = true
		}
		handler = walker.HandlerFunc(func(entry walker.Entry) (walker.Signal, error) {
			if roots[entry.Path] || !walker.IsHidden(entry) {
				return shown.Handle(entry)
			}
			if entry.IsDir() {
				return walker.SkipAll, nil
			}
			return walker.Continue, nil
		})
	}

	stats := walker.NewStatsHandler(walker.RuleHandler(opts.Rules, handler))
	engine, err := walker.NewConfigured(stats, &walker.Config{
		Order:          opts.Order,
		SortByName:     opts.SortByName,
		FollowSymlinks: opts.FollowSymlinks,
		Fs:             a.fs,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"order":  opts.Order,
		"sort":   opts.SortByName,
		"rules":  len(opts.Rules),
		"hidden": a.v.GetBool("hidden"),
	}).Debug("starting walk")

	for _, path := range paths {
		if err := engine.Process(path); err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
	}

	report.Stats = newStatsView(stats.Stats())
	return out.walkReport(report)
}
