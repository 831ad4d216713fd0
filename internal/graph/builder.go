package graph

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/logging"
	"github.com/conneroisu/bundlr/internal/pool"
)

// Resolver maps a specifier imported from fromDir to an absolute path.
type Resolver interface {
	Resolve(specifier, fromDir string) (string, error)
}

// forgetter is implemented by resolvers that cache what they read.
type forgetter interface {
	Forget(p string)
}

// Builder constructs module graphs with a wavefront traversal: every
// resolved child is submitted to the worker pool as soon as it is found, so
// independent subtrees load in parallel.
type Builder struct {
	fs       afero.Fs
	resolver Resolver
	root     string
	workers  int
	logger   logging.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(fs afero.Fs, resolver Resolver, root string, workers int, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Builder{
		fs:       fs,
		resolver: resolver,
		root:     root,
		workers:  workers,
		logger:   logger.WithComponent("graph"),
	}
}

// Delta describes what an incremental update changed. All lists hold keys
// in sorted order.
type Delta struct {
	// Changed modules have new bytes or re-resolved imports.
	Changed []string
	// Affected is Changed plus every transitive importer, plus added modules.
	Affected []string
	Added    []string
	Removed  []string
	// Resplit is set when chunk membership could differ from the previous graph.
	Resplit bool
}

// Build resolves every entry and everything reachable from it. Resolution
// and read failures are recorded in the report and attached to the module
// that owns them; siblings keep loading. The error is non-nil only when ctx
// is cancelled.
func (b *Builder) Build(ctx context.Context, entries map[string]string) (*Graph, *errors.Report, error) {
	perf := logging.StartOperation(b.logger, "graph_build")
	g := New(b.root)
	report := errors.NewReport()

	w := b.newWalker(ctx, g, report)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key, err := b.resolver.Resolve(entries[name], b.root)
		if err != nil {
			attributeImporter(err, "entry "+name)
			report.AddFailure("entry "+name, err)
			continue
		}
		g.Entries[name] = key
		w.visit(key)
	}
	w.pool.Close()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	b.finish(g, report)
	perf.End(ctx, "modules", len(g.Nodes), "entries", len(g.Entries))
	return g, report, nil
}

// Update applies file changes to a copy of prev. prev is never modified.
//
// Changed files whose bytes are identical are ignored. Deleted files are
// removed and their importers resolve their imports again, as does every
// module that had an unresolved import. A path outside the graph, such as
// a new file or a package.json, re-resolves every module with an import
// it could now satisfy. Newly reachable modules are loaded and unreachable
// ones pruned.
func (b *Builder) Update(ctx context.Context, prev *Graph, changed []string) (*Graph, *Delta, *errors.Report, error) {
	perf := logging.StartOperation(b.logger, "graph_update")
	g := prev.Clone()
	report := errors.NewReport()
	delta := &Delta{}
	reverse := g.Dependents()

	changedSet := make(map[string]bool)
	relink := make(map[string]bool)
	var deleted []string
	shadows := make(map[string]bool)

	for _, p := range changed {
		key := filepath.Clean(p)
		if f, ok := b.resolver.(forgetter); ok {
			f.Forget(key)
		}
		n, ok := g.Nodes[key]
		if !ok {
			for _, name := range shadowNames(key) {
				shadows[name] = true
			}
			continue
		}
		data, err := afero.ReadFile(b.fs, key)
		switch {
		case err != nil && os.IsNotExist(err):
			deleted = append(deleted, key)
			delete(g.Nodes, key)
			for _, importer := range reverse[key] {
				relink[importer] = true
			}
		case err != nil:
			n.Err = errors.NewIOError(errors.ErrCodeReadFailed, "cannot read module", err).WithModule(n.ID)
			report.AddFailure(n.ID, n.Err)
			changedSet[key] = true
		case bytes.Equal(data, n.Source) && n.Err == nil:
		default:
			n.Source = data
			n.Err = nil
			changedSet[key] = true
			relink[key] = true
		}
	}
	for key, n := range g.Nodes {
		if len(n.Unresolved) > 0 {
			relink[key] = true
			continue
		}
		for _, imp := range n.Imports {
			if shadows[specifierName(imp.Specifier)] {
				relink[key] = true
				break
			}
		}
	}

	for _, key := range sortedSet(relink) {
		n, ok := g.Nodes[key]
		if !ok {
			continue
		}
		before := n.Deps
		b.link(n, report)
		if !sameEdges(before, n.Deps) {
			delta.Resplit = true
			changedSet[key] = true
		}
	}

	var frontier []string
	for _, key := range g.Keys() {
		for _, e := range g.Nodes[key].Deps {
			frontier = append(frontier, e.Key)
		}
	}
	w := b.newWalker(ctx, g, report)
	for _, key := range frontier {
		w.visit(key)
	}
	w.pool.Close()
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	// Unchanged modules keep their earlier failures.
	for _, key := range g.Keys() {
		n := g.Nodes[key]
		if !changedSet[key] && !relink[key] && n.Err != nil && !errors.IsTransformError(n.Err) {
			report.AddFailure(n.ID, n.Err)
		}
	}

	removed := g.Prune()
	delta.Removed = append(deleted, removed...)
	sort.Strings(delta.Removed)
	delta.Added = w.addedKeys()
	for _, key := range delta.Removed {
		delete(changedSet, key)
	}
	delta.Changed = sortedSet(changedSet)
	if len(delta.Added) > 0 || len(delta.Removed) > 0 {
		delta.Resplit = true
	}

	affected := make(map[string]bool)
	for _, key := range g.DependentsClosure(delta.Changed) {
		if _, ok := g.Nodes[key]; ok {
			affected[key] = true
		}
	}
	for _, key := range delta.Added {
		affected[key] = true
	}
	delta.Affected = sortedSet(affected)
	for _, key := range delta.Affected {
		g.Nodes[key].Invalidate()
	}

	b.finish(g, report)
	perf.End(ctx,
		"changed", len(delta.Changed),
		"affected", len(delta.Affected),
		"added", len(delta.Added),
		"removed", len(delta.Removed),
	)
	return g, delta, report, nil
}

func (b *Builder) finish(g *Graph, report *errors.Report) {
	for _, key := range g.Entries {
		if n, ok := g.Nodes[key]; ok {
			n.Entry = true
		}
	}
	for _, cycle := range g.DetectCycles() {
		report.AddCycle(errors.CycleWarning{Path: cycle})
	}
	if err := g.Validate(); err != nil {
		report.AddFailure("graph", err)
	}
}

// load reads one module and resolves its imports.
func (b *Builder) load(key string, report *errors.Report) *Node {
	n := &Node{
		Key:  key,
		Type: DetectType(key),
	}
	n.ID = moduleID(b.root, key)

	data, err := afero.ReadFile(b.fs, key)
	if err != nil {
		n.Err = errors.NewIOError(errors.ErrCodeReadFailed, "cannot read module", err).WithModule(n.ID)
		report.AddFailure(n.ID, n.Err)
		return n
	}
	n.Source = data
	b.link(n, report)
	return n
}

// link scans the module's imports and resolves each one. An import that
// fails to resolve gets no edge and is attributed to this module.
func (b *Builder) link(n *Node, report *errors.Report) {
	imports, err := ScanImports(n.Key, n.Type, n.Source)
	if err != nil {
		// The transform chain reports the syntax error with its location.
		b.logger.Debug(context.Background(), "Cannot scan imports", "module", n.ID, "error", err)
	}
	n.Imports = imports
	n.Deps = nil
	n.Unresolved = nil

	dir := filepath.Dir(n.Key)
	for _, imp := range n.Imports {
		key, err := b.resolver.Resolve(imp.Specifier, dir)
		if err != nil {
			attributeImporter(err, n.ID)
			report.AddFailure(n.ID, err)
			n.Unresolved = append(n.Unresolved, imp.Specifier)
			b.logger.Debug(context.Background(), "Unresolved import",
				"module", n.ID, "specifier", imp.Specifier, "line", imp.Line)
			continue
		}
		n.Deps = append(n.Deps, Edge{Specifier: imp.Specifier, Key: key, Async: imp.Async})
	}
}

type walker struct {
	b      *Builder
	g      *Graph
	report *errors.Report
	pool   *pool.Pool

	mu    sync.Mutex
	seen  map[string]bool
	added []string
}

func (b *Builder) newWalker(ctx context.Context, g *Graph, report *errors.Report) *walker {
	return &walker{
		b:      b,
		g:      g,
		report: report,
		pool:   pool.New(ctx, b.workers),
		seen:   make(map[string]bool),
	}
}

// visit claims key and schedules it unless it is already known.
func (w *walker) visit(key string) {
	w.mu.Lock()
	_, exists := w.g.Nodes[key]
	if exists || w.seen[key] {
		w.mu.Unlock()
		return
	}
	w.seen[key] = true
	w.mu.Unlock()

	w.pool.Submit(func(ctx context.Context) {
		n := w.b.load(key, w.report)

		w.mu.Lock()
		w.g.Nodes[key] = n
		w.added = append(w.added, key)
		w.mu.Unlock()

		for _, e := range n.Deps {
			w.visit(e.Key)
		}
	})
}

func (w *walker) addedKeys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var keys []string
	for _, k := range w.added {
		if _, ok := w.g.Nodes[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func attributeImporter(err error, importer string) {
	if re, ok := err.(*errors.ResolutionError); ok {
		re.Importer = importer
	}
}

func moduleID(root, key string) string {
	rel, err := filepath.Rel(root, key)
	if err != nil {
		return filepath.ToSlash(key)
	}
	return filepath.ToSlash(rel)
}

// shadowNames lists the names an import must end with for a file at p to
// change how it resolves: the file stem, and the directory name for index
// files and package manifests.
func shadowNames(p string) []string {
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	names := []string{stem}
	if stem == "index" || base == "package.json" {
		names = append(names, filepath.Base(filepath.Dir(p)))
	}
	return names
}

// specifierName is the last segment of an import specifier without its
// extension or query: "@/layouts/Header.vue?x" gives "Header".
func specifierName(spec string) string {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		spec = spec[:i]
	}
	name := path.Base(strings.TrimSuffix(spec, "/"))
	return strings.TrimSuffix(name, path.Ext(name))
}

func sortedSet(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String summarizes the delta for logs.
func (d *Delta) String() string {
	return fmt.Sprintf("changed=%d affected=%d added=%d removed=%d resplit=%t",
		len(d.Changed), len(d.Affected), len(d.Added), len(d.Removed), d.Resplit)
}
