package graph

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/samber/lo"

	"github.com/conneroisu/bundlr/internal/errors"
)

// Graph is the module graph of one build. Nodes reference each other only
// by key, so circular imports need no special representation.
type Graph struct {
	Root    string
	Nodes   map[string]*Node
	Entries map[string]string
}

// New creates an empty graph.
func New(root string) *Graph {
	return &Graph{
		Root:    root,
		Nodes:   make(map[string]*Node),
		Entries: make(map[string]string),
	}
}

// ModuleID returns the runtime id for an absolute path.
func (g *Graph) ModuleID(key string) string {
	rel, err := filepath.Rel(g.Root, key)
	if err != nil {
		return filepath.ToSlash(key)
	}
	return filepath.ToSlash(rel)
}

// Keys returns all node keys in sorted order.
func (g *Graph) Keys() []string {
	keys := lo.Keys(g.Nodes)
	sort.Strings(keys)
	return keys
}

// EntryNames returns entry names in sorted order.
func (g *Graph) EntryNames() []string {
	names := lo.Keys(g.Entries)
	sort.Strings(names)
	return names
}

// Node looks up a node by key.
func (g *Graph) Node(key string) (*Node, bool) {
	n, ok := g.Nodes[key]
	return n, ok
}

// Dependents returns the reverse edge index: key to the sorted keys of
// every module that imports it.
func (g *Graph) Dependents() map[string][]string {
	reverse := make(map[string][]string)
	for _, key := range g.Keys() {
		for _, e := range g.Nodes[key].Deps {
			reverse[e.Key] = append(reverse[e.Key], key)
		}
	}
	for k, v := range reverse {
		reverse[k] = lo.Uniq(v)
	}
	return reverse
}

// DependentsClosure returns keys plus every module that transitively
// imports one of them, sorted. Keys absent from the graph are kept.
func (g *Graph) DependentsClosure(keys []string) []string {
	reverse := g.Dependents()
	seen := make(map[string]bool, len(keys))
	queue := append([]string(nil), keys...)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true
		queue = append(queue, reverse[k]...)
	}
	closure := lo.Keys(seen)
	sort.Strings(closure)
	return closure
}

// Validate checks that every edge points at a node of the graph.
func (g *Graph) Validate() error {
	var errs []error
	for _, key := range g.Keys() {
		n := g.Nodes[key]
		for _, e := range n.Deps {
			if _, ok := g.Nodes[e.Key]; !ok {
				errs = append(errs, errors.NewInternalError(errors.ErrCodeDanglingEdge,
					fmt.Sprintf("edge %q points at missing module", e.Specifier),
					&errors.ResolutionError{Specifier: e.Specifier, FromDir: filepath.Dir(key), Importer: n.ID}).
					WithModule(n.ID))
			}
		}
	}
	for _, name := range g.EntryNames() {
		if _, ok := g.Nodes[g.Entries[name]]; !ok {
			errs = append(errs, errors.NewInternalError(errors.ErrCodeDanglingEdge,
				fmt.Sprintf("entry %s points at missing module", name), nil))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("graph has %d dangling reference(s): %w", len(errs), joinErrors(errs))
}

// Clone copies the graph and every node.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Root:    g.Root,
		Nodes:   make(map[string]*Node, len(g.Nodes)),
		Entries: make(map[string]string, len(g.Entries)),
	}
	for k, n := range g.Nodes {
		c.Nodes[k] = n.Clone()
	}
	for k, v := range g.Entries {
		c.Entries[k] = v
	}
	return c
}

// Reachable returns the keys reachable from any entry over any edge.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool, len(g.Nodes))
	var stack []string
	for _, name := range g.EntryNames() {
		stack = append(stack, g.Entries[name])
	}
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[k] {
			continue
		}
		n, ok := g.Nodes[k]
		if !ok {
			continue
		}
		seen[k] = true
		for _, e := range n.Deps {
			stack = append(stack, e.Key)
		}
	}
	return seen
}

// Prune removes nodes unreachable from every entry and returns their keys, sorted.
func (g *Graph) Prune() []string {
	reachable := g.Reachable()
	var removed []string
	for _, key := range g.Keys() {
		if !reachable[key] {
			delete(g.Nodes, key)
			removed = append(removed, key)
		}
	}
	return removed
}

// DetectCycles finds circular imports with a depth-first search in sorted
// key order. Each cycle is a list of module ids that starts at its smallest
// id and ends where it started.
func (g *Graph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(key string, path []string)
	visit = func(key string, path []string) {
		visited[key] = true
		onStack[key] = true
		path = append(path, key)

		for _, e := range g.Nodes[key].Deps {
			if _, ok := g.Nodes[e.Key]; !ok {
				continue
			}
			if !visited[e.Key] {
				visit(e.Key, path)
			} else if onStack[e.Key] {
				start := lo.IndexOf(path, e.Key)
				cycle := make([]string, 0, len(path)-start)
				for _, k := range path[start:] {
					cycle = append(cycle, g.Nodes[k].ID)
				}
				cycles = append(cycles, rotate(cycle))
			}
		}
		onStack[key] = false
	}

	for _, key := range g.Keys() {
		if !visited[key] {
			visit(key, nil)
		}
	}
	return cycles
}

// rotate turns an open cycle into a closed path starting at its smallest id.
func rotate(cycle []string) []string {
	first := 0
	for i, id := range cycle {
		if id < cycle[first] {
			first = i
		}
	}
	out := make([]string, 0, len(cycle)+1)
	out = append(out, cycle[first:]...)
	out = append(out, cycle[:first]...)
	return append(out, cycle[first])
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%w (and %d more)", errs[0], len(errs)-1)
}
