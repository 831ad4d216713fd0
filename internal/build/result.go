package build

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/conneroisu/bundlr/internal/chunk"
	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
)

// ArtifactKind classifies an output file.
type ArtifactKind string

const (
	KindScript    ArtifactKind = "script"
	KindStyle     ArtifactKind = "style"
	KindSourceMap ArtifactKind = "sourcemap"
	KindAsset     ArtifactKind = "asset"
	KindDocument  ArtifactKind = "document"
	KindStatic    ArtifactKind = "static"
	KindManifest  ArtifactKind = "manifest"
)

// Artifact is one file of a build, held in memory until Emit writes it.
// Path is relative to the output directory and uses forward slashes.
type Artifact struct {
	Path  string
	Kind  ArtifactKind
	Chunk string
	Data  []byte
}

// ChunkFiles are the output paths assembled for one chunk.
type ChunkFiles struct {
	Script    string
	Style     string
	SourceMap string
}

// Result is a complete in-memory build.
type Result struct {
	BuildID   string
	Mode      config.Mode
	Graph     *graph.Graph
	Chunks    []*chunk.Chunk
	Files     map[string]ChunkFiles
	Artifacts map[string]*Artifact
	Document  []byte
	Manifest  map[string]string
	Report    *errors.Report
	Delta     *graph.Delta
	// Changed lists the ids of modules whose output differs from the
	// previous build, sorted.
	Changed  []string
	Started  time.Time
	Duration time.Duration

	signatures map[string]string
}

// Artifact looks up an artifact by output path.
func (r *Result) Artifact(path string) (*Artifact, bool) {
	a, ok := r.Artifacts[path]
	return a, ok
}

// Paths returns every artifact path in sorted order.
func (r *Result) Paths() []string {
	paths := lo.Keys(r.Artifacts)
	sort.Strings(paths)
	return paths
}

// Chunk returns the chunk with the given name.
func (r *Result) Chunk(name string) (*chunk.Chunk, bool) {
	return lo.Find(r.Chunks, func(c *chunk.Chunk) bool { return c.Name == name })
}

// TotalBytes sums the size of every artifact.
func (r *Result) TotalBytes() int64 {
	var n int64
	for _, a := range r.Artifacts {
		n += int64(len(a.Data))
	}
	return n
}

func (r *Result) add(a *Artifact) {
	if r.Artifacts == nil {
		r.Artifacts = make(map[string]*Artifact)
	}
	r.Artifacts[a.Path] = a
}
