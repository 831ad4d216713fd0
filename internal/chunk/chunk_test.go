package chunk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/graph"
)

const root = "/app"

type dep struct {
	to    string
	async bool
}

func syncDep(to string) dep  { return dep{to: to} }
func asyncDep(to string) dep { return dep{to: to, async: true} }

// buildGraph creates a graph from id -> deps; entries map entry names to ids.
func buildGraph(entries map[string]string, mods map[string][]dep) *graph.Graph {
	g := graph.New(root)
	for id, deps := range mods {
		n := &graph.Node{Key: filepath.Join(root, id), ID: id, Type: graph.DetectType(id)}
		for _, d := range deps {
			n.Deps = append(n.Deps, graph.Edge{Specifier: "./" + d.to, Key: filepath.Join(root, d.to), Async: d.async})
		}
		g.Nodes[n.Key] = n
	}
	for name, id := range entries {
		g.Entries[name] = filepath.Join(root, id)
		g.Nodes[filepath.Join(root, id)].Entry = true
	}
	return g
}

func testConfig(t *testing.T, rules []config.ChunkGroupRule) *config.Config {
	t.Helper()
	cfg := &config.Config{Root: root, Mode: config.ModeProduction, ChunkGroups: rules}
	require.NoError(t, cfg.Finalize())
	return cfg
}

func byName(chunks []*Chunk) map[string]*Chunk {
	m := make(map[string]*Chunk)
	for _, c := range chunks {
		m[c.Name] = c
	}
	return m
}

func ids(c *Chunk) []string {
	out := make([]string, 0, len(c.Modules))
	for _, k := range c.Modules {
		rel, _ := filepath.Rel(root, k)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	g := buildGraph(
		map[string]string{"main": "src/main.js", "admin": "src/admin.js"},
		map[string][]dep{
			"src/main.js":                    {syncDep("src/layouts/Header.vue"), syncDep("node_modules/util-lib/index.js")},
			"src/admin.js":                   {syncDep("src/shared.js")},
			"src/layouts/Header.vue":         {syncDep("src/shared.js")},
			"src/shared.js":                  nil,
			"node_modules/util-lib/index.js": nil,
		},
	)

	chunks := New(testConfig(t, nil)).Split(g)
	m := byName(chunks)

	names := make([]string, 0, len(chunks))
	for _, c := range chunks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"admin", "chunk-libs", "layouts", "main", "runtime~admin", "runtime~main", "shared~admin~main"}, names)

	assert.Equal(t, []string{"src/layouts/Header.vue"}, ids(m["layouts"]))
	assert.Equal(t, []string{"node_modules/util-lib/index.js"}, ids(m["chunk-libs"]))
	assert.Equal(t, []string{"src/shared.js"}, ids(m["shared~admin~main"]))
	assert.Equal(t, KindVendorShared, m["shared~admin~main"].Kind)
	assert.Equal(t, []string{"admin", "main"}, m["shared~admin~main"].Entries)

	assert.Equal(t, []string{"src/main.js"}, ids(m["main"]))
	assert.Equal(t, KindEntry, m["main"].Kind)
	assert.Equal(t, "static/js/[name].[contenthash:10].js", m["main"].Filename)
	assert.Equal(t, "static/js/[name].[contenthash].chunk.js", m["layouts"].Filename)

	for _, e := range []string{"main", "admin"} {
		rt := m["runtime~"+e]
		require.NotNil(t, rt)
		assert.Equal(t, KindRuntime, rt.Kind)
		assert.Empty(t, rt.Modules)
		assert.Equal(t, e, rt.Entry)
	}

	for i, c := range chunks {
		assert.Equal(t, i, c.ID)
	}
}

func TestEveryModuleHasOneOwner(t *testing.T) {
	g := buildGraph(
		map[string]string{"main": "src/main.js", "admin": "src/admin.js"},
		map[string][]dep{
			"src/main.js":      {syncDep("src/a.js"), syncDep("src/b.js"), asyncDep("src/page.js")},
			"src/admin.js":     {syncDep("src/b.js")},
			"src/a.js":         {syncDep("src/b.js")},
			"src/b.js":         {syncDep("src/a.js")},
			"src/page.js":      {syncDep("src/a.js"), syncDep("src/page-only.js")},
			"src/page-only.js": nil,
		},
	)

	chunks := New(testConfig(t, []config.ChunkGroupRule{})).Split(g)
	owners := Owners(chunks)
	assert.Len(t, owners, len(g.Nodes))

	seen := make(map[string]int)
	for _, c := range chunks {
		for _, k := range c.Modules {
			seen[k]++
		}
	}
	for k, count := range seen {
		assert.Equal(t, 1, count, k)
	}

	m := byName(chunks)
	// admin is visited first, so b and a are recorded in that order and
	// both end up shared once main reaches them too.
	assert.Equal(t, []string{"src/main.js"}, ids(m["main"]))
	assert.Equal(t, []string{"src/b.js", "src/a.js"}, ids(m["shared~admin~main"]))
	assert.Equal(t, []string{"src/page.js", "src/page-only.js"}, ids(m["src_page"]))
	assert.Equal(t, KindOnDemand, m["src_page"].Kind)
	assert.False(t, m["src_page"].Initial())

	targets := AsyncTargets(g, chunks)
	assert.Equal(t, []string{"shared~admin~main", "src_page"}, targets["src/page.js"])
}

func TestSyncAndAsyncReachFromDifferentEntries(t *testing.T) {
	tests := []struct {
		name    string
		mods    map[string][]dep
		shared  []string
		main    []string
		targets map[string][]string
	}{
		{
			name: "sync from main, async from admin",
			mods: map[string][]dep{
				"src/main.js":  {syncDep("src/x.js")},
				"src/admin.js": {asyncDep("src/x.js")},
				"src/x.js":     {syncDep("src/y.js")},
				"src/y.js":     nil,
			},
			shared:  []string{"src/x.js", "src/y.js"},
			main:    []string{"src/main.js"},
			targets: map[string][]string{"src/x.js": {"shared~admin~main"}},
		},
		{
			name: "admin loads the main entry module lazily",
			mods: map[string][]dep{
				"src/main.js":  {syncDep("src/x.js")},
				"src/admin.js": {asyncDep("src/main.js")},
				"src/x.js":     nil,
			},
			shared:  []string{"src/main.js", "src/x.js"},
			main:    []string{},
			targets: map[string][]string{"src/main.js": {"shared~admin~main"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGraph(map[string]string{"main": "src/main.js", "admin": "src/admin.js"}, tt.mods)
			chunks := New(testConfig(t, []config.ChunkGroupRule{})).Split(g)
			m := byName(chunks)

			require.Contains(t, m, "shared~admin~main")
			shared := m["shared~admin~main"]
			assert.Equal(t, tt.shared, ids(shared))
			// Only main loads it at startup; admin fetches it on demand.
			assert.Equal(t, []string{"main"}, shared.Entries)
			assert.Equal(t, tt.main, ids(m["main"]))
			assert.Equal(t, []string{"src/admin.js"}, ids(m["admin"]))

			targets := AsyncTargets(g, chunks)
			assert.Equal(t, tt.targets, targets)
			for id, names := range targets {
				for _, name := range names {
					assert.NotEqual(t, KindEntry, m[name].Kind, "%s needs entry chunk %s", id, name)
				}
			}
		})
	}
}

func TestAsyncImportWithinOneEntryStaysInEntryChunk(t *testing.T) {
	g := buildGraph(
		map[string]string{"main": "src/main.js"},
		map[string][]dep{
			"src/main.js": {syncDep("src/x.js"), asyncDep("src/x.js")},
			"src/x.js":    nil,
		},
	)

	chunks := New(testConfig(t, []config.ChunkGroupRule{})).Split(g)
	m := byName(chunks)
	assert.Equal(t, []string{"src/main.js", "src/x.js"}, ids(m["main"]))
	assert.Empty(t, AsyncTargets(g, chunks)["src/x.js"])
}

func TestOnDemandNamesAreUnique(t *testing.T) {
	g := buildGraph(
		map[string]string{"main": "src/main.js", "src_home": "src/start.js"},
		map[string][]dep{
			"src/main.js":  {asyncDep("src/a_b.js"), asyncDep("src/a/b.js"), asyncDep("src/page.js"), asyncDep("src/home.vue")},
			"src/start.js": nil,
			"src/a_b.js":   nil,
			"src/a/b.js":   nil,
			"src/page.js":  nil,
			"src/home.vue": nil,
		},
	)
	rules := []config.ChunkGroupRule{{Name: "src_page", Test: "vendor", Priority: 1}}

	chunks := New(testConfig(t, rules)).Split(g)
	owners := Owners(chunks)
	names := make(map[string]bool)
	for _, c := range chunks {
		assert.False(t, names[c.Name], "duplicate chunk %s", c.Name)
		names[c.Name] = true
	}

	assert.Equal(t, "src_a_b", owners[filepath.Join(root, "src/a_b.js")])
	assert.Equal(t, "src_a_b_2", owners[filepath.Join(root, "src/a/b.js")])
	assert.Equal(t, "src_page_2", owners[filepath.Join(root, "src/page.js")])
	assert.Equal(t, "src_home_2", owners[filepath.Join(root, "src/home.vue")])
	assert.Equal(t, "src_home", owners[filepath.Join(root, "src/start.js")])
	assert.Equal(t, KindEntry, byName(chunks)["src_home"].Kind)

	targets := AsyncTargets(g, chunks)
	assert.Equal(t, []string{"src_a_b_2"}, targets["src/a/b.js"])
	assert.Equal(t, []string{"src_page_2"}, targets["src/page.js"])
}

func TestRulePriorityAndTies(t *testing.T) {
	g := buildGraph(
		map[string]string{"main": "src/main.js"},
		map[string][]dep{
			"src/main.js":      {syncDep("src/ui/button.js")},
			"src/ui/button.js": nil,
		},
	)

	tests := []struct {
		name     string
		rules    []config.ChunkGroupRule
		expected string
	}{
		{
			name: "higher priority wins regardless of order",
			rules: []config.ChunkGroupRule{
				{Name: "low", Test: "src", Priority: 1},
				{Name: "high", Test: "src/ui", Priority: 9},
			},
			expected: "high",
		},
		{
			name: "tie goes to first declared",
			rules: []config.ChunkGroupRule{
				{Name: "first", Test: "src/ui", Priority: 5},
				{Name: "second", Test: `ui[\\/]button`, Match: config.MatchPattern, Priority: 5},
			},
			expected: "first",
		},
		{
			name: "initial scope admits initially reached modules",
			rules: []config.ChunkGroupRule{
				{Name: "initial-only", Test: "src/ui", Priority: 5, Chunks: config.ScopeInitial},
			},
			expected: "initial-only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := New(testConfig(t, tt.rules)).Split(g)
			owners := Owners(chunks)
			assert.Equal(t, tt.expected, owners[filepath.Join(root, "src/ui/button.js")])
		})
	}
}

func TestInitialScopeSkipsAsyncModules(t *testing.T) {
	g := buildGraph(
		map[string]string{"main": "src/main.js"},
		map[string][]dep{
			"src/main.js":                 {asyncDep("src/page.js")},
			"src/page.js":                 {syncDep("node_modules/chart/index.js")},
			"node_modules/chart/index.js": nil,
		},
	)

	// chunk-libs is initial-only by default, so an async-only dependency
	// stays with the on-demand chunk that needs it.
	chunks := New(testConfig(t, nil)).Split(g)
	m := byName(chunks)
	assert.NotContains(t, m, "chunk-libs")
	assert.Equal(t, []string{"src/page.js", "node_modules/chart/index.js"}, ids(m["src_page"]))

	allScope := []config.ChunkGroupRule{{Name: "libs", Test: `[\\/]node_modules[\\/]`, Match: config.MatchPattern, Priority: 10, Chunks: config.ScopeAll}}
	chunks = New(testConfig(t, allScope)).Split(g)
	m = byName(chunks)
	require.Contains(t, m, "libs")
	assert.False(t, m["libs"].Initial())
}

func TestSplitIsDeterministic(t *testing.T) {
	mods := map[string][]dep{
		"src/main.js":             {syncDep("src/a.js"), asyncDep("src/lazy.js"), syncDep("node_modules/x/index.js")},
		"src/admin.js":            {syncDep("src/a.js"), syncDep("src/layouts/L.vue")},
		"src/a.js":                {syncDep("src/b.js")},
		"src/b.js":                nil,
		"src/lazy.js":             {syncDep("src/b.js"), asyncDep("src/lazier.js")},
		"src/lazier.js":           nil,
		"src/layouts/L.vue":       nil,
		"node_modules/x/index.js": nil,
	}
	entries := map[string]string{"main": "src/main.js", "admin": "src/admin.js"}
	cfg := testConfig(t, nil)

	first := New(cfg).Split(buildGraph(entries, mods))
	for i := 0; i < 20; i++ {
		again := New(cfg).Split(buildGraph(entries, mods))
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, *first[j], *again[j])
		}
	}
}

func TestOnDemandName(t *testing.T) {
	assert.Equal(t, "src_pages_About", OnDemandName("src/pages/About.vue"))
	assert.Equal(t, "node_modules_lib_v1.2_index", OnDemandName("node_modules/lib/v1.2/index.js"))
	assert.Equal(t, "src_noext", OnDemandName("src/noext"))
}
