package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/73ai/dirwalk/internal/index"
	"github.com/73ai/dirwalk/internal/walker"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// printer renders command results as coloured text, JSON or YAML
type printer struct {
	w      io.Writer
	format string

	dir   *color.Color
	label *color.Color
	value *color.Color
	warn  *color.Color
}

// walkReport is the structured result of a walk
type walkReport struct {
	Roots   []string    `json:"roots" yaml:"roots"`
	Entries []entryView `json:"entries,omitempty" yaml:"entries,omitempty"`
	Stats   statsView   `json:"stats" yaml:"stats"`
}

type entryView struct {
	Path string `json:"path" yaml:"path"`
	Dir  bool   `json:"dir,omitempty" yaml:"dir,omitempty"`
	Size int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

type statsView struct {
	Files    int64            `json:"files" yaml:"files"`
	Dirs     int64            `json:"dirs" yaml:"dirs"`
	Bytes    int64            `json:"bytes" yaml:"bytes"`
	Failures int64            `json:"failures,omitempty" yaml:"failures,omitempty"`
	Signals  map[string]int64 `json:"signals,omitempty" yaml:"signals,omitempty"`
}

func newEntryView(entry walker.Entry) entryView {
	view := entryView{Path: entry.Path, Dir: entry.IsDir()}
	if !view.Dir {
		view.Size = entry.Info.Size()
	}
	return view
}

func newStatsView(stats walker.Stats) statsView {
	view := statsView{
		Files:    stats.FilesVisited,
		Dirs:     stats.DirsVisited,
		Bytes:    stats.BytesVisited,
		Failures: stats.Failures,
	}
	if len(stats.Signals) > 0 {
		view.Signals = make(map[string]int64, len(stats.Signals))
		for signal, n := range stats.Signals {
			view.Signals[signal.String()] = n
		}
	}
	return view
}

// outputFormat picks the format from --json and --yaml
func outputFormat(v *viper.Viper) (string, error) {
	asJSON, asYAML := v.GetBool("json"), v.GetBool("yaml")
	switch {
	case asJSON && asYAML:
		return "", fmt.Errorf("--json and --yaml cannot be used together")
	case asJSON:
		return formatJSON, nil
	case asYAML:
		return formatYAML, nil
	}
	return formatText, nil
}

func (a *app) newPrinter(cmd *cobra.Command) (*printer, error) {
	format, err := outputFormat(a.v)
	if err != nil {
		return nil, err
	}
	return newPrinter(cmd.OutOrStdout(), format, a.v.GetString("color"))
}

func newPrinter(w io.Writer, format, colorMode string) (*printer, error) {
	p := &printer{
		w:      w,
		format: format,
		dir:    color.New(color.FgBlue, color.Bold),
		label:  color.New(color.FgCyan, color.Bold),
		value:  color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
	}

	switch colorMode {
	case "always":
		p.setColor(true)
	case "never":
		p.setColor(false)
	case "auto", "":
		// color decides for stdout; anything else is not a terminal
		if w != os.Stdout {
			p.setColor(false)
		}
	default:
		return nil, fmt.Errorf("invalid color mode %q: expected never, auto or always", colorMode)
	}
	return p, nil
}

func (p *printer) setColor(on bool) {
	for _, c := range []*color.Color{p.dir, p.label, p.value, p.warn} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (p *printer) encode(v any) error {
	switch p.format {
	case formatJSON:
		encoder := json.NewEncoder(p.w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case formatYAML:
		encoder := yaml.NewEncoder(p.w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	}
	return fmt.Errorf("unsupported output format %q", p.format)
}

// entry prints one visited entry; directories end with a separator
func (p *printer) entry(entry walker.Entry) {
	if entry.IsDir() {
		p.dir.Fprintln(p.w, entry.Path+string(filepath.Separator))
		return
	}
	fmt.Fprintln(p.w, entry.Path)
}

func (p *printer) walkReport(report *walkReport) error {
	if p.format != formatText {
		return p.encode(report)
	}

	fmt.Fprintln(p.w)
	p.value.Fprintf(p.w, "%d", report.Stats.Dirs)
	fmt.Fprint(p.w, " directories, ")
	p.value.Fprintf(p.w, "%d", report.Stats.Files)
	fmt.Fprintf(p.w, " files, %s\n", formatBytes(report.Stats.Bytes))
	return nil
}

func (p *printer) buildStats(stats *index.BuildStats) error {
	if p.format != formatText {
		return p.encode(stats)
	}

	p.label.Fprintln(p.w, "Index build")
	p.row("Roots", stats.Roots)
	p.row("Directories", stats.DirsTraversed)
	p.row("Directories skipped", stats.DirsSkipped)
	p.row("Files indexed", stats.FilesIndexed)
	p.row("Archives indexed", stats.Archives)
	p.row("Records written", stats.Records)
	p.row("Unchanged", stats.Unchanged)
	if stats.Errors > 0 {
		fmt.Fprintf(p.w, "  %-20s ", "Errors:")
		p.warn.Fprintf(p.w, "%d\n", stats.Errors)
	}
	fmt.Fprintf(p.w, "  %-20s %v\n", "Duration:", stats.Duration.Round(time.Millisecond))
	return nil
}

func (p *printer) records(records []index.Record) error {
	if p.format != formatText {
		if records == nil {
			records = []index.Record{}
		}
		return p.encode(records)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Source != records[j].Source {
			return records[i].Source < records[j].Source
		}
		return records[i].Name < records[j].Name
	})
	for _, rec := range records {
		if rec.Archive {
			fmt.Fprintf(p.w, "%s!%s", rec.Source, rec.Name)
		} else {
			fmt.Fprint(p.w, rec.Source)
		}
		fmt.Fprintf(p.w, "  %s\n", formatBytes(rec.Size))
	}
	return nil
}

// indexStatus describes the catalog for `index status`
type indexStatus struct {
	Path  string           `json:"path" yaml:"path"`
	Size  int64            `json:"size" yaml:"size"`
	Store index.StoreStats `json:"store" yaml:"store"`
}

func (p *printer) status(status indexStatus) error {
	if p.format != formatText {
		return p.encode(status)
	}

	p.label.Fprintln(p.w, "Index status")
	fmt.Fprintf(p.w, "  %-20s %s\n", "Location:", status.Path)
	fmt.Fprintf(p.w, "  %-20s %s\n", "Size on disk:", formatBytes(status.Size))
	p.row("Records", int64(status.Store.Records))
	p.row("Sources", int64(status.Store.Sources))
	p.row("Processed files", int64(status.Store.Processed))
	return nil
}

func (p *printer) row(name string, n int64) {
	fmt.Fprintf(p.w, "  %-20s ", name+":")
	p.value.Fprintf(p.w, "%d\n", n)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
