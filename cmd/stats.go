package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/bundlr/internal/build"
	"github.com/conneroisu/bundlr/internal/errors"
)

// statsReport is the --stats document.
type statsReport struct {
	BuildID    string                  `yaml:"build_id"`
	Mode       string                  `yaml:"mode"`
	DurationMs int64                   `yaml:"duration_ms"`
	Modules    int                     `yaml:"modules"`
	TotalBytes int64                   `yaml:"total_bytes"`
	Chunks     []chunkStats            `yaml:"chunks"`
	Files      []fileStats             `yaml:"files"`
	Warnings   []errors.LintDiagnostic `yaml:"warnings,omitempty"`
	Cycles     []string                `yaml:"cycles,omitempty"`
	Failures   []failureStats          `yaml:"failures,omitempty"`
}

type chunkStats struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Entries []string `yaml:"entries,omitempty"`
	Files   []string `yaml:"files"`
	Modules []string `yaml:"modules"`
}

type fileStats struct {
	Path string `yaml:"path"`
	Kind string `yaml:"kind"`
	Size int    `yaml:"size"`
}

type failureStats struct {
	Module string `yaml:"module"`
	Error  string `yaml:"error"`
}

func newStatsReport(res *build.Result) *statsReport {
	report := &statsReport{
		BuildID:    res.BuildID,
		Mode:       string(res.Mode),
		DurationMs: res.Duration.Milliseconds(),
		TotalBytes: res.TotalBytes(),
	}
	if res.Graph != nil {
		report.Modules = len(res.Graph.Nodes)
	}
	for _, c := range res.Chunks {
		files := res.Files[c.Name]
		cs := chunkStats{Name: c.Name, Kind: string(c.Kind), Entries: c.Entries, Modules: moduleIDs(res, c.Modules)}
		for _, f := range []string{files.Script, files.Style, files.SourceMap} {
			if f != "" {
				cs.Files = append(cs.Files, f)
			}
		}
		report.Chunks = append(report.Chunks, cs)
	}
	for _, p := range res.Paths() {
		a := res.Artifacts[p]
		report.Files = append(report.Files, fileStats{Path: p, Kind: string(a.Kind), Size: len(a.Data)})
	}
	if res.Report != nil {
		report.Warnings = res.Report.Diagnostics()
		for _, c := range res.Report.Cycles() {
			report.Cycles = append(report.Cycles, strings.Join(c.Path, " -> "))
		}
		for _, f := range res.Report.Failures() {
			report.Failures = append(report.Failures, failureStats{Module: f.Module, Error: f.Err.Error()})
		}
	}
	return report
}

// moduleIDs maps graph keys to the root-relative ids shown to users.
func moduleIDs(res *build.Result, keys []string) []string {
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if res.Graph != nil {
			if n, ok := res.Graph.Nodes[k]; ok {
				ids = append(ids, n.ID)
				continue
			}
		}
		ids = append(ids, k)
	}
	return ids
}

func writeStats(fs afero.Fs, path string, res *build.Result) error {
	data, err := yaml.Marshal(newStatsReport(res))
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

// printSummary lists every emitted file with its size, then the total.
func printSummary(w io.Writer, res *build.Result) {
	paths := res.Paths()
	width := 0
	for _, p := range paths {
		if len(p) > width {
			width = len(p)
		}
	}
	for _, p := range paths {
		fmt.Fprintf(w, "  %-*s  %s\n", width, p, humanSize(len(res.Artifacts[p].Data)))
	}
	fmt.Fprintf(w, "\n%d files, %s in %dms\n", len(paths), humanSize(int(res.TotalBytes())), res.Duration.Milliseconds())
}

func humanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
