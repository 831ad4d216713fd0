package transform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
)

func testConfig(t *testing.T, mode config.Mode) *config.Config {
	t.Helper()
	cfg, err := config.Default(t.TempDir(), mode)
	require.NoError(t, err)
	cfg.Workers = 4
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, extra ...Stage) *Pipeline {
	t.Helper()
	registry := NewRegistry(cfg)
	for _, s := range extra {
		registry.Register(s)
	}
	p, err := NewPipeline(cfg, registry, nil, nil)
	require.NoError(t, err)
	return p
}

func node(id, src string) *graph.Node {
	key := "/app/" + id
	return &graph.Node{Key: key, ID: id, Type: graph.DetectType(key), Source: []byte(src)}
}

func TestChainOrderAndIdentity(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) Stage {
		return Stage{Name: name, Version: "1", Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return Result{Output: append(src, name...)}, nil
		}}
	}

	style := &Chain{Stages: []Stage{record("css"), record("less")}, Reverse: true}
	res, err := style.Run(context.Background(), []byte(">"), Meta{ID: "a.less"})
	require.NoError(t, err)
	assert.Equal(t, []string{"less", "css"}, order)
	assert.Equal(t, ">lesscss", string(res.Output))

	a := &Chain{Stages: []Stage{{Name: "x", Version: "1", Options: Options{"b": "2", "a": "1"}}}}
	b := &Chain{Stages: []Stage{{Name: "x", Version: "1", Options: Options{"a": "1", "b": "2"}}}}
	assert.Equal(t, a.Identity(config.ModeDevelopment), b.Identity(config.ModeDevelopment))
	assert.NotEqual(t, a.Identity(config.ModeDevelopment), a.Identity(config.ModeProduction))

	c := &Chain{Stages: []Stage{{Name: "x", Version: "2", Options: Options{"a": "1", "b": "2"}}}}
	assert.NotEqual(t, a.Identity(config.ModeDevelopment), c.Identity(config.ModeDevelopment))
}

func TestTransformIsIdempotentThroughStore(t *testing.T) {
	cfg := testConfig(t, config.ModeDevelopment)
	p := newPipeline(t, cfg)

	first := node("src/util.js", "export const answer = process.env.NODE_ENV")
	hit, err := p.Transform(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEmpty(t, first.Hash)
	assert.Contains(t, string(first.Output), `"development"`)

	runs := p.Runs()
	second := node("src/util.js", "export const answer = process.env.NODE_ENV")
	hit, err = p.Transform(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, runs, p.Runs(), "a store hit runs no stage")
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Hash, second.Hash)

	changed := node("src/util.js", "export const answer = 42")
	_, err = p.Transform(context.Background(), changed)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, changed.Hash)
}

func TestConcurrentMissesRunOnce(t *testing.T) {
	cfg := testConfig(t, config.ModeDevelopment)
	p := newPipeline(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Transform(context.Background(), node("src/same.js", "export default 1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.Store().Len())
	assert.Equal(t, int64(1), p.Runs())
}

func TestTransformAllReportsEveryBrokenModule(t *testing.T) {
	cfg := testConfig(t, config.ModeDevelopment)
	p := newPipeline(t, cfg)

	g := graph.New("/app")
	for _, n := range []*graph.Node{
		node("src/ok.js", "export default 1"),
		node("src/bad.json", "{ nope"),
		node("src/bad.css", ".a { color: red;"),
		node("src/good.css", "@import './base.css';\n.a { color: red; }"),
		node("src/logo.png", "png"),
	} {
		g.Nodes[n.Key] = n
	}

	report, err := p.TransformAll(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"src/bad.css", "src/bad.json"}, report.BrokenModules())
	for _, f := range report.Failures() {
		assert.True(t, errors.IsTransformError(f.Err), f.Err.Error())
	}

	assert.NotEmpty(t, g.Nodes["/app/src/ok.js"].Hash)
	assert.Equal(t, ".a { color: red; }", string(g.Nodes["/app/src/good.css"].Output))
	assert.Nil(t, g.Nodes["/app/src/logo.png"].Output, "assets are not transformed")

	// A fixed module is picked up again on the next pass.
	g.Nodes["/app/src/bad.json"].Source = []byte(`{"ok": true}`)
	report, err = p.TransformAll(context.Background(), g, []string{"/app/src/bad.json"})
	require.NoError(t, err)
	assert.Empty(t, report.Failures())
	assert.Equal(t, "module.exports = {\"ok\":true};\n", string(g.Nodes["/app/src/bad.json"].Output))
}

func TestLintDiagnostics(t *testing.T) {
	src := "debugger\n// debugger in comment\nconsole.log('x')\n"

	dev := newPipeline(t, testConfig(t, config.ModeDevelopment))
	n := node("src/a.js", src)
	_, err := dev.Transform(context.Background(), n)
	require.NoError(t, err)
	require.Len(t, n.Diagnostics, 2)
	assert.Equal(t, errors.SeverityWarning, n.Diagnostics[0].Severity)
	assert.Equal(t, 1, n.Diagnostics[0].Line)
	assert.Equal(t, "no-console", n.Diagnostics[1].Rule)
	assert.Equal(t, 3, n.Diagnostics[1].Line)

	prod := newPipeline(t, testConfig(t, config.ModeProduction))
	n = node("src/a.js", src)
	_, err = prod.Transform(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, errors.SeverityError, n.Diagnostics[0].Severity)

	// Identical source under another id keeps its own module name.
	other := node("src/b.js", src)
	_, err = prod.Transform(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, "src/b.js", other.Diagnostics[0].Module)
}

func TestDefineReplacesWholeIdentifiers(t *testing.T) {
	stage := DefineStage(map[string]string{
		"process.env.NODE_ENV": `"production"`,
		"__DEV__":              "false",
	})
	src := "if (process.env.NODE_ENV !== 'x' && !__DEV__ && my.__DEV__ && __DEV__X) {}"
	res, err := stage.Run(context.Background(), []byte(src), Meta{}, stage.Options)
	require.NoError(t, err)
	assert.Equal(t, `if ("production" !== 'x' && !false && my.__DEV__ && __DEV__X) {}`, string(res.Output))
}

func TestESMRewrite(t *testing.T) {
	src := strings.Join([]string{
		`import Vue from 'vue'`,
		`import { ref, computed as c } from "vue"`,
		`import * as util from './util'`,
		`import './side.css'`,
		`export * from './all'`,
		`export { a as b } from './named'`,
		`export const answer = 42`,
		`export function hello() {}`,
		`const x = 1`,
		`export { x as y }`,
		`const page = () => import('./About')`,
		`export default { name: 'App' }`,
	}, "\n")

	stage := ESMStage()
	meta := Meta{Key: "/app/src/main.js", ID: "src/main.js", Type: graph.ScriptModule}
	res, err := stage.Run(context.Background(), []byte(src), meta, stage.Options)
	require.NoError(t, err)

	out := string(res.Output)
	for _, want := range []string{
		`module.exports = __toCommonJS(`,
		`require("vue")`,
		`require("./util")`,
		`require("./side.css")`,
		`require("./all")`,
		`require("./named")`,
		`answer: () => answer`,
		`hello: () => hello`,
		`y: () => x`,
		`require.async("./About")`,
	} {
		assert.Contains(t, out, want)
	}
	for _, line := range strings.Split(out, "\n") {
		assert.False(t, strings.HasPrefix(strings.TrimSpace(line), "import "), line)
		assert.False(t, strings.HasPrefix(strings.TrimSpace(line), "export "), line)
	}
	assert.NotContains(t, out, "import(")

	plain, err := stage.Run(context.Background(), []byte("module.exports = 1"), meta, stage.Options)
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1;\n", string(plain.Output))

	_, err = stage.Run(context.Background(), []byte("export const = 1"), meta, stage.Options)
	var te *errors.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "esm", te.Stage)
	assert.Equal(t, 1, te.Line)
}

func TestSFCStage(t *testing.T) {
	cfg := testConfig(t, config.ModeDevelopment)
	upper := Stage{Name: "upper", Version: "1", Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
		assert.Equal(t, graph.StyleModule, meta.Type)
		return Result{Output: []byte(strings.ToUpper(string(src)))}, nil
	}}
	for i, rule := range cfg.Loaders {
		if rule.Extensions[0] == ".less" {
			cfg.Loaders[i].Stages = []string{"css", "upper"}
		}
	}
	p := newPipeline(t, cfg, upper)

	src := `<template>
  <div class="app"><img src="./logo.png"></div>
</template>
<script>
import Header from './Header.vue'
export default {
  components: { Header }
}
</script>
<style>
.app { color: red; }
</style>
<style lang="less">
.b { x: y }
</style>`

	n := node("src/App.vue", src)
	_, err := p.Transform(context.Background(), n)
	require.NoError(t, err)

	out := string(n.Output)
	assert.Contains(t, out, `require("./Header.vue")`)
	assert.Contains(t, out, `const __component__ = {`)
	assert.Contains(t, out, `<div class="app"><img src="./logo.png"></div>`)
	assert.Contains(t, out, `require("./logo.png")`)
	assert.Contains(t, out, `module.exports = __toCommonJS(`)
	assert.Contains(t, out, `default: () => `)
	assert.Contains(t, string(n.Style), ".app { color: red; }")
	assert.Contains(t, string(n.Style), ".B { X: Y }")

	broken := node("src/Broken.vue", "<script></script><style lang=\"stylus2\">a{}</style>")
	_, err = p.Transform(context.Background(), broken)
	require.Error(t, err)
	assert.True(t, errors.IsTransformError(err))
	assert.Equal(t, err, broken.Err)
}

func TestExecStage(t *testing.T) {
	stage := ExecStage(config.StageConfig{Name: "cat", Command: []string{"cat"}})
	res, err := stage.Run(context.Background(), []byte("a { }"), Meta{Key: "/tmp/a.less", ID: "a.less"}, nil)
	if err != nil {
		t.Skipf("cat unavailable: %v", err)
	}
	assert.Equal(t, "a { }", string(res.Output))

	bad := ExecStage(config.StageConfig{Name: "bad", Command: []string{"sh", "-c", "exit 1; rm"}})
	_, err = bad.Run(context.Background(), nil, Meta{Key: "/tmp/a.less", ID: "a.less"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shell metacharacters")

	missing := ExecStage(config.StageConfig{Name: "missing", Command: []string{"bundlr-no-such-tool"}})
	_, err = missing.Run(context.Background(), nil, Meta{Key: "/tmp/a.less", ID: "a.less"}, nil)
	require.Error(t, err)
	var te *errors.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "missing", te.Stage)
}

func TestUnknownStageRejected(t *testing.T) {
	cfg := testConfig(t, config.ModeDevelopment)
	cfg.Loaders = []config.LoaderRule{{Extensions: []string{".ts"}, Stages: []string{"tsc"}}}
	_, err := NewPipeline(cfg, NewRegistry(cfg), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%q", "tsc"))
}
