// Package chunk partitions a module graph into output chunks.
//
// Splitting is deterministic: entries are visited in name order, edges in
// import order, and every tie is broken by declaration or visit order, so
// an identical graph and configuration always yield identical chunks.
package chunk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/graph"
)

// Kind classifies a chunk.
type Kind string

const (
	KindEntry        Kind = "entry"
	KindVendorShared Kind = "vendor-shared"
	KindRuntime      Kind = "runtime"
	KindOnDemand     Kind = "on-demand"
)

// RuntimePrefix names the per-entry bootstrap chunks.
const RuntimePrefix = "runtime~"

// SharedPrefix names chunks hoisted out of two or more entries.
const SharedPrefix = "shared~"

// Chunk is one output unit. Modules holds node keys in first-visit order.
type Chunk struct {
	ID       int
	Name     string
	Kind     Kind
	Modules  []string
	Filename string
	// Entries lists, sorted, the entries that load the chunk at startup.
	// On-demand chunks and async-only groups have none.
	Entries []string
	// Entry is the owning entry of entry and runtime chunks.
	Entry string
}

// Initial reports whether the chunk is loaded at startup by some entry.
func (c *Chunk) Initial() bool {
	return len(c.Entries) > 0
}

// Splitter holds the compiled chunk-group rules and filename templates.
type Splitter struct {
	rules         []config.ChunkGroupRule
	filename      string
	chunkFilename string
}

// New creates a splitter from a finalized configuration.
func New(cfg *config.Config) *Splitter {
	return &Splitter{
		rules:         cfg.ChunkGroups,
		filename:      cfg.Output.Filename,
		chunkFilename: cfg.Output.ChunkFilename,
	}
}

// reach is the result of traversing the graph from every entry.
type reach struct {
	order      map[string]int
	initialBy  map[string][]string
	reachedBy  map[string][]string
	any        map[string]bool
	asyncRoots []string
	asyncSync  map[string]map[string]bool
}

// Split assigns every module reachable from an entry to exactly one chunk
// and adds one runtime chunk per entry. Chunks are sorted by name and
// numbered in that order.
func (s *Splitter) Split(g *graph.Graph) []*Chunk {
	r := traverse(g)
	entries := g.EntryNames()

	chunks := make(map[string]*Chunk)
	get := func(name string, kind Kind, entry string) *Chunk {
		c, ok := chunks[name]
		if !ok {
			tmpl := s.chunkFilename
			if kind == KindEntry || kind == KindRuntime {
				tmpl = s.filename
			}
			c = &Chunk{Name: name, Kind: kind, Filename: tmpl, Entry: entry}
			chunks[name] = c
		}
		return c
	}

	for _, e := range entries {
		get(e, KindEntry, e).Entries = []string{e}
		get(RuntimePrefix+e, KindRuntime, e).Entries = []string{e}
	}

	taken := make(map[string]bool)
	for _, e := range entries {
		taken[e] = true
	}
	for _, rule := range s.rules {
		taken[rule.Name] = true
	}
	onDemand := make(map[string]string)
	// nameFor names the chunk of an async root on first use. A name already
	// held by an entry, a rule or an earlier root gets a numeric suffix.
	nameFor := func(root string) string {
		if name, ok := onDemand[root]; ok {
			return name
		}
		base := OnDemandName(g.Nodes[root].ID)
		name := base
		for i := 2; taken[name]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		taken[name] = true
		onDemand[root] = name
		return name
	}

	entrySets := make(map[string]map[string]bool)
	addEntries := func(c *Chunk, es []string) {
		set, ok := entrySets[c.Name]
		if !ok {
			set = make(map[string]bool)
			entrySets[c.Name] = set
		}
		for _, e := range es {
			set[e] = true
		}
	}

	for _, key := range r.sorted() {
		n := g.Nodes[key]
		initialBy := r.initialBy[key]
		reachedBy := r.reachedBy[key]

		if rule, ok := s.claim(n.Key, len(initialBy) > 0); ok {
			c := get(rule.Name, KindVendorShared, "")
			c.Modules = append(c.Modules, key)
			addEntries(c, initialBy)
			continue
		}

		// A module another entry can load asynchronously cannot live in an
		// entry chunk: installing that chunk starts its entry.
		switch {
		case len(initialBy) == 1 && len(reachedBy) == 1:
			c := get(initialBy[0], KindEntry, initialBy[0])
			c.Modules = append(c.Modules, key)
		case len(initialBy) > 0:
			c := get(SharedPrefix+strings.Join(reachedBy, "~"), KindVendorShared, "")
			c.Modules = append(c.Modules, key)
			addEntries(c, initialBy)
		default:
			c := get(nameFor(r.asyncOwner(key)), KindOnDemand, "")
			c.Modules = append(c.Modules, key)
		}
	}

	for name, set := range entrySets {
		es := lo.Keys(set)
		sort.Strings(es)
		chunks[name].Entries = es
	}

	out := lo.Values(chunks)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for i, c := range out {
		c.ID = i
	}
	return out
}

// claim returns the winning rule for a module: the highest priority among
// matching rules whose scope admits it, first-declared on ties.
func (s *Splitter) claim(key string, initial bool) (config.ChunkGroupRule, bool) {
	best := -1
	for i := range s.rules {
		rule := &s.rules[i]
		if rule.Chunks == config.ScopeInitial && !initial {
			continue
		}
		if !rule.Matches(key) {
			continue
		}
		if best < 0 || rule.Priority > s.rules[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return config.ChunkGroupRule{}, false
	}
	return s.rules[best], true
}

// OnDemandName derives a chunk name from the id of the module an async
// import points at: "src/pages/About.vue" becomes "src_pages_About".
// Split suffixes it when two roots or a root and an entry share a name.
func OnDemandName(id string) string {
	if i := strings.LastIndex(id, "."); i > strings.LastIndex(id, "/") {
		id = id[:i]
	}
	return strings.NewReplacer("/", "_", "~", "_", "..", "_").Replace(id)
}

func traverse(g *graph.Graph) *reach {
	r := &reach{
		order:     make(map[string]int),
		initialBy: make(map[string][]string),
		reachedBy: make(map[string][]string),
		any:       make(map[string]bool),
		asyncSync: make(map[string]map[string]bool),
	}
	asyncSeen := make(map[string]bool)

	var visit func(key string, entry string, initial bool, seen map[string]bool)
	visit = func(key string, entry string, initial bool, seen map[string]bool) {
		n, ok := g.Nodes[key]
		if !ok || seen[key] {
			return
		}
		seen[key] = true
		if _, ok := r.order[key]; !ok {
			r.order[key] = len(r.order)
		}
		r.any[key] = true
		if initial {
			r.initialBy[key] = append(r.initialBy[key], entry)
		}
		for _, e := range n.Deps {
			if e.Async {
				if !asyncSeen[e.Key] {
					asyncSeen[e.Key] = true
					r.asyncRoots = append(r.asyncRoots, e.Key)
				}
				continue
			}
			visit(e.Key, entry, initial, seen)
		}
	}

	// Initial pass: sync edges only, per entry in name order.
	for _, name := range g.EntryNames() {
		visit(g.Entries[name], name, true, make(map[string]bool))
	}
	// Every entry that can reach a module through any mix of edges.
	for _, name := range g.EntryNames() {
		r.walkAll(g, g.Entries[name], name, make(map[string]bool))
	}
	// Async roots in discovery order; traversing one can discover more.
	for i := 0; i < len(r.asyncRoots); i++ {
		root := r.asyncRoots[i]
		seen := make(map[string]bool)
		visit(root, "", false, seen)
		r.asyncSync[root] = seen
	}
	return r
}

func (r *reach) walkAll(g *graph.Graph, key, entry string, seen map[string]bool) {
	n, ok := g.Nodes[key]
	if !ok || seen[key] {
		return
	}
	seen[key] = true
	r.reachedBy[key] = append(r.reachedBy[key], entry)
	for _, e := range n.Deps {
		r.walkAll(g, e.Key, entry, seen)
	}
}

// sorted returns every reached key in first-visit order.
func (r *reach) sorted() []string {
	keys := lo.Keys(r.any)
	sort.Slice(keys, func(i, j int) bool { return r.order[keys[i]] < r.order[keys[j]] })
	return keys
}

// asyncOwner is the first async root, in discovery order, that reaches key
// through sync edges.
func (r *reach) asyncOwner(key string) string {
	for _, root := range r.asyncRoots {
		if r.asyncSync[root][key] {
			return root
		}
	}
	return key
}

// AsyncTargets maps the id of every async import target to the names of
// the chunks that must be loaded before it can run, in chunk id order.
func AsyncTargets(g *graph.Graph, chunks []*Chunk) map[string][]string {
	owner := make(map[string]*Chunk)
	for _, c := range chunks {
		for _, m := range c.Modules {
			owner[m] = c
		}
	}
	r := traverse(g)

	targets := make(map[string][]string)
	for _, root := range r.asyncRoots {
		need := make(map[int]*Chunk)
		for key := range r.asyncSync[root] {
			// Entry chunks are only ever needed on their own page, where
			// they are already installed.
			if c, ok := owner[key]; ok && c.Kind != KindEntry && c.Kind != KindRuntime {
				need[c.ID] = c
			}
		}
		ids := lo.Keys(need)
		sort.Ints(ids)
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, need[id].Name)
		}
		targets[g.Nodes[root].ID] = names
	}
	return targets
}

// Owners maps every module key to the name of the chunk that holds it.
func Owners(chunks []*Chunk) map[string]string {
	owners := make(map[string]string)
	for _, c := range chunks {
		for _, m := range c.Modules {
			owners[m] = c.Name
		}
	}
	return owners
}
