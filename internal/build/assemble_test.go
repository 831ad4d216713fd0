package build

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/graph"
)

func TestAppendVLQ(t *testing.T) {
	tests := []struct {
		value    int
		expected string
	}{
		{0, "A"},
		{1, "C"},
		{-1, "D"},
		{15, "e"},
		{16, "gB"},
		{-17, "jB"},
		{1000, "w+B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, string(appendVLQ(nil, tt.value)), "value %d", tt.value)
	}
}

func TestMapBuilder(t *testing.T) {
	m := newMapBuilder(true)
	m.skip(1)
	m.module("bundlr:///src/a.js", []byte("a\nb"), 2)
	m.skip(1)
	m.module("bundlr:///src/b.js", []byte("c"), 3)

	data, err := m.build("main.js")
	require.NoError(t, err)

	var sm sourceMap
	require.NoError(t, json.Unmarshal(data, &sm))
	assert.Equal(t, 3, sm.Version)
	assert.Equal(t, []string{"bundlr:///src/a.js", "bundlr:///src/b.js"}, sm.Sources)
	assert.Equal(t, []string{"a\nb", "c"}, sm.SourcesContent)
	// Lines of b.js past its end clamp to its last line.
	assert.Equal(t, ";AAAA;AACA;;ACDA;AAAA;AAAA", sm.Mappings)
}

func TestESBuildMinifier(t *testing.T) {
	var m ESBuildMinifier

	t.Run("css keeps rules after comment-like strings", func(t *testing.T) {
		out, err := m.CSS([]byte("a::before { content: \"/*\"; }\nb { color: red; }\n/* note */\n"))
		require.NoError(t, err)
		assert.Contains(t, string(out), `content:"/*"`)
		assert.Contains(t, string(out), "b{color:red}")
		assert.NotContains(t, string(out), "note")
	})

	t.Run("js without a map", func(t *testing.T) {
		src := "function add(first, second) {\n  return first + second\n}\nwindow.sum = add(1, 2)\n"
		code, outMap, err := m.JS([]byte(src), nil)
		require.NoError(t, err)
		assert.Nil(t, outMap)
		assert.Contains(t, string(code), "window.sum=")
		assert.Less(t, len(code), len(src))
	})

	t.Run("js map points at the original modules", func(t *testing.T) {
		mb := newMapBuilder(true)
		mb.module("bundlr:///src/a.js", []byte("var a = 1;\nvar b = a + 1;"), 2)
		inMap, err := mb.build("")
		require.NoError(t, err)

		_, outMap, err := m.JS([]byte("var a = 1;\nvar b = a + 1;\n"), inMap)
		require.NoError(t, err)
		var sm sourceMap
		require.NoError(t, json.Unmarshal(outMap, &sm))
		assert.Equal(t, []string{"bundlr:///src/a.js"}, sm.Sources)
	})

	t.Run("syntax errors are returned", func(t *testing.T) {
		_, _, err := m.JS([]byte("var = ;"), nil)
		assert.Error(t, err)
	})
}

func TestSetMapFile(t *testing.T) {
	data, err := setMapFile([]byte(`{"version":3,"sources":["a"],"mappings":"AAAA"}`), "main.js")
	require.NoError(t, err)
	var sm sourceMap
	require.NoError(t, json.Unmarshal(data, &sm))
	assert.Equal(t, "main.js", sm.File)
	assert.Equal(t, []string{"a"}, sm.Sources)
}

func TestRenderDocument(t *testing.T) {
	t.Run("default document", func(t *testing.T) {
		doc, err := renderDocument(nil, documentInput{PublicPath: "/app/", Scripts: []string{"a.js", "b.js"}, Styles: []string{"a.css"}})
		require.NoError(t, err)
		out := string(doc)
		assert.Contains(t, out, `<div id="app"></div>`)
		assert.Contains(t, out, `<link href="/app/a.css" rel="stylesheet"/></head>`)
		assert.Less(t, strings.Index(out, `src="/app/a.js"`), strings.Index(out, `src="/app/b.js"`))
	})

	t.Run("template without body still gets one", func(t *testing.T) {
		doc, err := renderDocument([]byte("<title>x</title>"), documentInput{PublicPath: "/", Scripts: []string{"a.js"}})
		require.NoError(t, err)
		assert.Contains(t, string(doc), `<body><script defer="" src="/a.js"></script></body>`)
	})
}

func TestRenderRuntime(t *testing.T) {
	table := runtimeTable{
		PublicPath: "/",
		Chunks:     map[string]string{"b": "b.js", "a": "a.js"},
		Targets:    map[string][]string{"src/x.js": {"a", "b"}},
	}
	first, err := renderRuntime(table)
	require.NoError(t, err)
	second, err := renderRuntime(table)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), `rt.configure({"publicPath":"/","chunks":{"a":"a.js","b":"b.js"},"styles":{},"targets":{"src/x.js":["a","b"]}});`)
	assert.NotContains(t, string(first), "/*TABLE*/")
}

func TestRewriteURLs(t *testing.T) {
	g := graph.New("/app")
	img := &graph.Node{Key: "/app/src/a.png", ID: "src/a.png", Type: graph.AssetModule, Source: []byte("x"),
		Emit: &graph.Emission{SourcePath: "/app/src/a.png", OutputName: "static/media/abc.png"}}
	script := &graph.Node{Key: "/app/src/b.js", ID: "src/b.js", Type: graph.ScriptModule}
	css := &graph.Node{Key: "/app/src/s.css", ID: "src/s.css", Type: graph.StyleModule, Deps: []graph.Edge{
		{Specifier: "./a.png", Key: img.Key},
		{Specifier: "./b.js", Key: script.Key},
	}}
	for _, n := range []*graph.Node{img, script, css} {
		g.Nodes[n.Key] = n
	}

	cfg := &config.Config{Output: config.OutputConfig{PublicPath: "/cdn/"}}
	a := &assembler{cfg: cfg, minifier: ESBuildMinifier{}}
	out := a.rewriteURLs(g, css, []byte(`.a{background:url('a.png')} .b{background:url(https://x.test/y.png)} .c{x:url(./b.js)} .d{x:url(#f)}`))

	assert.Equal(t, `.a{background:url("/cdn/static/media/abc.png")} .b{background:url(https://x.test/y.png)} .c{x:url(./b.js)} .d{x:url(#f)}`, string(out))
}

func TestCleanRefusesProjectRoot(t *testing.T) {
	o, _ := newProject(t, config.ModeProduction, Options{})
	assert.Error(t, o.clean(root))
	assert.Error(t, o.clean("/"))
	assert.NoError(t, o.clean(root+"/dist"))
}
