package build

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/conneroisu/bundlr/internal/asset"
	"github.com/conneroisu/bundlr/internal/chunk"
	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
	"github.com/conneroisu/bundlr/internal/naming"
)

var cssURLRef = regexp.MustCompile(`url\(\s*(["']?)([^"')]+?)(["']?)\s*\)`)

// assembler turns a split graph into chunk files.
type assembler struct {
	cfg      *config.Config
	minifier Minifier
}

// assembly is the output of one assemble call.
type assembly struct {
	files      map[string]ChunkFiles
	artifacts  []*Artifact
	signatures map[string]string
	scripts    []string
	styles     []string
	reused     int
}

// assemble renders every chunk. Chunks whose signature matches prev are
// copied from it instead of being rendered again; runtime chunks are always
// rendered since they carry every other chunk's filename.
func (a *assembler) assemble(g *graph.Graph, chunks []*chunk.Chunk, prev *Result) (*assembly, error) {
	out := &assembly{
		files:      make(map[string]ChunkFiles),
		signatures: make(map[string]string),
	}

	for _, c := range chunks {
		if c.Kind == chunk.KindRuntime {
			continue
		}
		sig := a.signature(g, c)
		out.signatures[c.Name] = sig
		if prev != nil && prev.signatures[c.Name] == sig {
			if files, ok := prev.Files[c.Name]; ok && a.copyFrom(prev, files, out) {
				out.files[c.Name] = files
				out.reused++
				continue
			}
		}
		files, arts, err := a.renderChunk(g, c)
		if err != nil {
			return nil, err
		}
		out.files[c.Name] = files
		out.artifacts = append(out.artifacts, arts...)
	}

	table := runtimeTable{
		PublicPath: a.cfg.Output.PublicPath,
		Chunks:     make(map[string]string),
		Styles:     make(map[string]string),
		Targets:    chunk.AsyncTargets(g, chunks),
	}
	for name, f := range out.files {
		table.Chunks[name] = f.Script
		if f.Style != "" {
			table.Styles[name] = f.Style
		}
	}
	for _, c := range chunks {
		if c.Kind != chunk.KindRuntime {
			continue
		}
		body, err := renderRuntime(table)
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot render runtime", err)
		}
		if a.cfg.ShouldMinify() {
			if body, _, err = a.minifier.JS(body, nil); err != nil {
				return nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot minify runtime", err)
			}
		}
		p := naming.Expand(c.Filename, naming.Vars{Name: c.Name, Hash: naming.ContentHash(body)})
		out.files[c.Name] = ChunkFiles{Script: p}
		out.artifacts = append(out.artifacts, &Artifact{Path: p, Kind: KindScript, Chunk: c.Name, Data: body})
	}

	for _, key := range g.Keys() {
		n := g.Nodes[key]
		if n.Emit != nil {
			out.artifacts = append(out.artifacts, &Artifact{Path: n.Emit.OutputName, Kind: KindAsset, Data: n.Source})
		}
	}

	out.scripts, out.styles = a.loadOrder(g, chunks, out.files)
	return out, nil
}

// loadOrder lists the initial files of every entry: runtime first, then
// shared chunks in id order, then the entry chunk itself.
func (a *assembler) loadOrder(g *graph.Graph, chunks []*chunk.Chunk, files map[string]ChunkFiles) (scripts, styles []string) {
	for _, e := range g.EntryNames() {
		order := []string{chunk.RuntimePrefix + e}
		for _, c := range chunks {
			if c.Kind == chunk.KindVendorShared && lo.Contains(c.Entries, e) {
				order = append(order, c.Name)
			}
		}
		order = append(order, e)
		for _, name := range order {
			f := files[name]
			if f.Script != "" {
				scripts = append(scripts, f.Script)
			}
			if f.Style != "" {
				styles = append(styles, f.Style)
			}
		}
	}
	return lo.Uniq(scripts), lo.Uniq(styles)
}

// signature identifies everything a chunk's files are rendered from.
func (a *assembler) signature(g *graph.Graph, c *chunk.Chunk) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\x00%s\x00%s\x00%s\x00%t\x00%s\x00%s\x00", c.Name, c.Kind, c.Filename,
		a.cfg.Mode, a.cfg.ShouldMinify(), a.cfg.SourceMap, a.cfg.Output.PublicPath)
	for _, key := range c.Modules {
		n := g.Nodes[key]
		fmt.Fprintf(&b, "%s\x00%s\x00", n.ID, n.Hash)
		for _, e := range n.Deps {
			dep := g.Nodes[e.Key]
			// Rewritten url() references embed the asset's emitted name.
			fmt.Fprintf(&b, "%s=%s", e.Specifier, dep.ID)
			if dep.Type == graph.AssetModule {
				b.WriteString("@" + dep.Hash)
			}
			b.WriteByte(0)
		}
	}
	return naming.ContentHash(b.Bytes())
}

func (a *assembler) copyFrom(prev *Result, files ChunkFiles, out *assembly) bool {
	var arts []*Artifact
	for _, p := range []string{files.Script, files.Style, files.SourceMap} {
		if p == "" {
			continue
		}
		art, ok := prev.Artifacts[p]
		if !ok {
			return false
		}
		arts = append(arts, art)
	}
	out.artifacts = append(out.artifacts, arts...)
	return true
}

// renderChunk writes the JS file of a chunk and, in production, its
// extracted stylesheet and source map.
func (a *assembler) renderChunk(g *graph.Graph, c *chunk.Chunk) (ChunkFiles, []*Artifact, error) {
	prod := a.cfg.IsProduction()
	maps := newMapBuilder(true)

	var js bytes.Buffer
	fmt.Fprintf(&js, chunkHeader, jsString([]string{c.Name}))
	maps.skip(1)

	var css bytes.Buffer
	for _, key := range c.Modules {
		n := g.Nodes[key]
		deps := make(map[string]string, len(n.Deps))
		for _, e := range n.Deps {
			deps[e.Specifier] = g.Nodes[e.Key].ID
		}
		fmt.Fprintf(&js, "%s: [%s, function (module, exports, require) {\n", jsString(n.ID), jsString(deps))
		maps.skip(1)

		var style []byte
		var code []byte
		switch n.Type {
		case graph.StyleModule:
			style = n.Output
		case graph.AssetModule:
			code = n.Output
		default:
			style = n.Style
			code = n.Output
		}
		if len(style) > 0 {
			style = a.rewriteURLs(g, n, style)
			if prod {
				fmt.Fprintf(&css, "/* %s */\n", n.ID)
				css.Write(bytes.TrimRight(style, "\n"))
				css.WriteByte('\n')
			} else {
				fmt.Fprintf(&js, "require.css(%s, %s);\n", jsString(n.ID), jsString(string(style)))
				maps.skip(1)
			}
		}
		if len(code) > 0 {
			code = bytes.TrimRight(code, "\n")
			js.Write(code)
			js.WriteByte('\n')
			maps.module(a.sourceName(n), n.Source, bytes.Count(code, []byte("\n"))+1)
		}
		js.WriteString("}],\n")
		maps.skip(1)
	}

	start := "null"
	if c.Kind == chunk.KindEntry {
		if key, ok := g.Entries[c.Entry]; ok {
			start = jsString(g.Nodes[key].ID)
		}
	}
	fmt.Fprintf(&js, chunkFooter, start)

	var files ChunkFiles
	var arts []*Artifact

	body := js.Bytes()
	var mapData []byte
	if a.cfg.SourceMap != config.SourceMapNone {
		data, err := maps.build("")
		if err != nil {
			return files, nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode source map", err)
		}
		mapData = data
	}
	if a.cfg.ShouldMinify() {
		code, data, err := a.minifier.JS(body, mapData)
		if err != nil {
			return files, nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot minify chunk "+c.Name, err)
		}
		body, mapData = code, data
	}
	files.Script = naming.Expand(c.Filename, naming.Vars{Name: c.Name, Hash: naming.ContentHash(body)})

	if mapData != nil {
		data, err := setMapFile(mapData, path.Base(files.Script))
		if err != nil {
			return files, nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode source map", err)
		}
		switch a.cfg.SourceMap {
		case config.SourceMapFile:
			files.SourceMap = files.Script + ".map"
			body = append(body, "//# sourceMappingURL="+path.Base(files.SourceMap)+"\n"...)
			arts = append(arts, &Artifact{Path: files.SourceMap, Kind: KindSourceMap, Chunk: c.Name, Data: data})
		case config.SourceMapInline, config.SourceMapCheap:
			body = append(body, inlineMapComment(data)...)
		}
	}
	arts = append(arts, &Artifact{Path: files.Script, Kind: KindScript, Chunk: c.Name, Data: body})

	if css.Len() > 0 {
		data := css.Bytes()
		if a.cfg.ShouldMinify() {
			min, err := a.minifier.CSS(data)
			if err != nil {
				return files, nil, errors.NewInternalError(errors.ErrCodeInternalError, "cannot minify stylesheet of "+c.Name, err)
			}
			data = min
		}
		tmpl := a.cfg.Output.CSSChunkFilename
		if c.Kind == chunk.KindEntry {
			tmpl = a.cfg.Output.CSSFilename
		}
		files.Style = naming.Expand(tmpl, naming.Vars{Name: c.Name, Hash: naming.ContentHash(data)})
		arts = append(arts, &Artifact{Path: files.Style, Kind: KindStyle, Chunk: c.Name, Data: data})
	}
	return files, arts, nil
}

// rewriteURLs points url() references at the URL of the asset module they
// resolved to. References that did not resolve to an asset are left alone.
func (a *assembler) rewriteURLs(g *graph.Graph, n *graph.Node, css []byte) []byte {
	return cssURLRef.ReplaceAllFunc(css, func(m []byte) []byte {
		sub := cssURLRef.FindSubmatch(m)
		spec := strings.TrimSpace(string(sub[2]))
		if !graph.IsLocalURL(spec) {
			return m
		}
		e, ok := n.Dep(graph.StyleSpecifier(spec))
		if !ok {
			return m
		}
		target, ok := g.Nodes[e.Key]
		if !ok || target.Type != graph.AssetModule {
			return m
		}
		return []byte(`url("` + asset.URLOf(target, a.cfg.Output.PublicPath) + `")`)
	})
}

func (a *assembler) sourceName(n *graph.Node) string {
	return "bundlr:///" + n.ID
}

// jsString encodes a string, string slice or string map as a JS literal.
// encoding/json sorts map keys.
func jsString(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
