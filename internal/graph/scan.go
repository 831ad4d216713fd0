package graph

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	// Preprocessed stylesheets are not CSS, so their references are found
	// with patterns instead of the esbuild CSS parser.
	preprocessedImport = regexp.MustCompile(`@(?:import|use|forward)\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?[^;]*;`)
	preprocessedURL    = regexp.MustCompile(`url\(\s*["']?([^"')]+?)["']?\s*\)`)
	blockComment       = regexp.MustCompile(`(?s)/\*.*?\*/`)

	templateSrc = regexp.MustCompile(`\bsrc\s*=\s*["'](\.{1,2}/[^"']+|@/[^"']+)["']`)
)

// SyntaxError is a parse failure found while scanning a module.
type SyntaxError struct {
	Line int
	Text string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Text)
	}
	return e.Text
}

type match struct {
	offset int
	imp    Import
}

// ScanImports returns the imports of a module at path in source order. Each
// specifier appears once; it is async only if every occurrence is a
// dynamic import.
func ScanImports(path string, typ ModuleType, src []byte) ([]Import, error) {
	switch typ {
	case ScriptModule:
		found, err := scanScript(string(src), ScriptLoader(path), 0)
		if err != nil {
			return nil, err
		}
		return collect(found), nil
	case StyleModule:
		found, err := scanStyle(string(src), strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."), 0)
		if err != nil {
			return nil, err
		}
		return collect(found), nil
	case ComponentModule:
		sfc := ParseSFC(src)
		found, err := scanScript(sfc.Script, api.LoaderJS, sfc.ScriptLine-1)
		if err != nil {
			return nil, err
		}
		found = append(found, scanTemplate(sfc.Template, sfc.TemplateLine-1)...)
		for _, style := range sfc.Styles {
			more, err := scanStyle(style.Content, style.Lang, style.Line-1)
			if err != nil {
				return nil, err
			}
			found = append(found, more...)
		}
		return collect(found), nil
	default:
		return nil, nil
	}
}

// ScriptLoader picks the esbuild loader for a script file.
func ScriptLoader(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsx":
		return api.LoaderJSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	default:
		return api.LoaderJS
	}
}

// record is one import esbuild asked to resolve.
type record struct {
	path string
	kind api.ResolveKind
}

// importRecords parses src with esbuild and returns its import records in
// source order. Every import is marked external, so nothing is read from
// disk.
func importRecords(src string, loader api.Loader) ([]record, error) {
	var (
		mu      sync.Mutex
		records []record
	)
	collector := api.Plugin{
		Name: "bundlr-imports",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					mu.Lock()
					records = append(records, record{path: args.Path, kind: args.Kind})
					mu.Unlock()
					return api.OnResolveResult{Path: args.Path, External: true}, nil
				})
		},
	}

	result := api.Build(api.BuildOptions{
		Stdin:    &api.StdinOptions{Contents: src, Sourcefile: "module", Loader: loader},
		Bundle:   true,
		Write:    false,
		LogLevel: api.LogLevelSilent,
		Plugins:  []api.Plugin{collector},
	})
	if len(result.Errors) > 0 {
		return nil, syntaxError(result.Errors[0])
	}
	return records, nil
}

func syntaxError(msg api.Message) *SyntaxError {
	se := &SyntaxError{Text: msg.Text}
	if msg.Location != nil {
		se.Line = msg.Location.Line
	}
	return se
}

func scanScript(src string, loader api.Loader, lineOffset int) ([]match, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	records, err := importRecords(src, loader)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok && se.Line > 0 {
			se.Line += lineOffset
		}
		return nil, err
	}
	var found []match
	for _, r := range records {
		var async bool
		switch r.kind {
		case api.ResolveJSImportStatement, api.ResolveJSRequireCall:
		case api.ResolveJSDynamicImport:
			async = true
		default:
			continue
		}
		found = append(found, locate(src, r.path, lineOffset, async, len(found)))
	}
	return found, nil
}

func scanStyle(src, lang string, lineOffset int) ([]match, error) {
	if lang != "css" {
		return scanPreprocessed(src, lineOffset), nil
	}
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	records, err := importRecords(src, api.LoaderCSS)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok && se.Line > 0 {
			se.Line += lineOffset
		}
		return nil, err
	}
	var found []match
	for _, r := range records {
		switch r.kind {
		case api.ResolveCSSImportRule, api.ResolveCSSComposesFrom:
		case api.ResolveCSSURLToken:
			if !IsLocalURL(strings.TrimSpace(r.path)) {
				continue
			}
		default:
			continue
		}
		m := locate(src, r.path, lineOffset, false, len(found))
		m.imp.Specifier = StyleSpecifier(strings.TrimSpace(r.path))
		found = append(found, m)
	}
	return found, nil
}

// scanPreprocessed finds @import rules and url() references in less, scss
// and sass sources.
func scanPreprocessed(src string, lineOffset int) []match {
	code := blockComment.ReplaceAllStringFunc(src, blank)
	var found []match
	imported := make(map[int]bool)
	for _, m := range preprocessedImport.FindAllStringSubmatchIndex(code, -1) {
		imported[m[2]] = true
		found = append(found, match{
			offset: m[2],
			imp:    Import{Specifier: StyleSpecifier(code[m[2]:m[3]]), Line: lineOffset + lineAt(code, m[2])},
		})
	}
	for _, m := range preprocessedURL.FindAllStringSubmatchIndex(code, -1) {
		spec := strings.TrimSpace(code[m[2]:m[3]])
		if imported[m[2]] || !IsLocalURL(spec) {
			continue
		}
		found = append(found, match{
			offset: m[2],
			imp:    Import{Specifier: StyleSpecifier(spec), Line: lineOffset + lineAt(code, m[2])},
		})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].offset < found[j].offset })
	return found
}

func scanTemplate(src string, lineOffset int) []match {
	var found []match
	for _, m := range templateSrc.FindAllStringSubmatchIndex(src, -1) {
		found = append(found, match{
			offset: m[2],
			imp:    Import{Specifier: src[m[2]:m[3]], Line: lineOffset + lineAt(src, m[2])},
		})
	}
	return found
}

// locate builds a match for an esbuild record. Records carry no position,
// so the line is that of the first quoted occurrence of the specifier.
func locate(src, spec string, lineOffset int, async bool, seq int) match {
	line := 1
	for _, q := range []string{`"`, `'`, "`", "("} {
		needle := q + spec
		if i := strings.Index(src, needle); i >= 0 {
			line = lineAt(src, i)
			break
		}
	}
	return match{
		offset: seq,
		imp:    Import{Specifier: spec, Async: async, Line: lineOffset + line},
	}
}

// collect merges repeated specifiers, keeping the first occurrence. Input
// is already in source order.
func collect(found []match) []Import {
	index := make(map[string]int, len(found))
	var imports []Import
	for _, m := range found {
		if i, ok := index[m.imp.Specifier]; ok {
			if !m.imp.Async {
				imports[i].Async = false
			}
			continue
		}
		index[m.imp.Specifier] = len(imports)
		imports = append(imports, m.imp)
	}
	return imports
}

// IsLocalURL reports whether a stylesheet url() refers to a bundled file
// rather than a remote resource, data URI or fragment.
func IsLocalURL(spec string) bool {
	lower := strings.ToLower(spec)
	for _, prefix := range []string{"data:", "http:", "https:", "//", "#", "about:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return spec != ""
}

// StyleSpecifier normalizes stylesheet references: "~pkg" names a package
// and a bare "img/a.png" is relative.
func StyleSpecifier(spec string) string {
	switch {
	case strings.HasPrefix(spec, "~"):
		return spec[1:]
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"),
		strings.HasPrefix(spec, "/"), strings.HasPrefix(spec, "@"):
		return spec
	default:
		return "./" + spec
	}
}

// blank replaces everything but newlines with spaces so line numbers
// survive.
func blank(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c != '\n' {
			b[i] = ' '
		}
	}
	return string(b)
}
