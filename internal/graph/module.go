// Package graph models the module dependency graph and builds it from a set
// of entries.
package graph

import (
	"path/filepath"
	"strings"

	"github.com/conneroisu/bundlr/internal/errors"
)

// ModuleType tags a module with the kind of source it holds.
type ModuleType string

const (
	ScriptModule    ModuleType = "script"
	ComponentModule ModuleType = "component"
	StyleModule     ModuleType = "style"
	AssetModule     ModuleType = "asset"
)

var styleExtensions = map[string]bool{
	".css": true, ".less": true, ".scss": true, ".sass": true,
}

// ImageExtensions are inlined when small enough.
var ImageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true,
}

// FontExtensions are always emitted.
var FontExtensions = map[string]bool{
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
}

// MediaExtensions are always emitted.
var MediaExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".ogg": true, ".mp3": true, ".wav": true,
}

// DetectType classifies a file by extension. Anything unknown is a script.
func DetectType(path string) ModuleType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".vue":
		return ComponentModule
	case styleExtensions[ext]:
		return StyleModule
	case ImageExtensions[ext], FontExtensions[ext], MediaExtensions[ext]:
		return AssetModule
	default:
		return ScriptModule
	}
}

// Import is a raw import found in a module's source.
type Import struct {
	Specifier string
	Async     bool
	Line      int
}

// Edge is a resolved dependency. Order within Node.Deps is import order.
type Edge struct {
	Specifier string
	Key       string
	Async     bool
}

// Emission records an asset that is copied to the output instead of inlined.
type Emission struct {
	SourcePath string
	OutputName string
}

// Node is one module. Key is the absolute resolved path; ID is the
// root-relative slash path used as the runtime module id.
type Node struct {
	Key     string
	ID      string
	Type    ModuleType
	Source  []byte
	Imports []Import
	Deps    []Edge
	Entry   bool

	// Set by the transform pipeline; nil and empty until it runs. Style holds
	// stylesheet text emitted by a script or component module.
	Output      []byte
	Style       []byte
	Hash        string
	Diagnostics []errors.LintDiagnostic

	// Err is the module's own fatal error. Unresolved lists imports that
	// failed to resolve; they have no edge.
	Err        error
	Unresolved []string

	Emit *Emission
}

// Ext returns the lowercased file extension of the module.
func (n *Node) Ext() string {
	return strings.ToLower(filepath.Ext(n.Key))
}

// Dep returns the edge for a raw specifier.
func (n *Node) Dep(specifier string) (Edge, bool) {
	for _, e := range n.Deps {
		if e.Specifier == specifier {
			return e, true
		}
	}
	return Edge{}, false
}

// Invalidate clears everything the transform pipeline produced.
func (n *Node) Invalidate() {
	n.Output = nil
	n.Style = nil
	n.Hash = ""
	n.Diagnostics = nil
	n.Emit = nil
	if errors.IsTransformError(n.Err) {
		n.Err = nil
	}
}

// Clone copies the node. Source and Output are shared since neither is ever
// mutated in place.
func (n *Node) Clone() *Node {
	c := *n
	c.Imports = append([]Import(nil), n.Imports...)
	c.Deps = append([]Edge(nil), n.Deps...)
	c.Diagnostics = append([]errors.LintDiagnostic(nil), n.Diagnostics...)
	c.Unresolved = append([]string(nil), n.Unresolved...)
	if n.Emit != nil {
		e := *n.Emit
		c.Emit = &e
	}
	return &c
}

func sameEdges(a, b []Edge) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
