// Package asset decides whether binary modules are inlined as data URIs or
// emitted as separate files, and turns them into modules exporting their URL.
package asset

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
	"github.com/conneroisu/bundlr/internal/logging"
	"github.com/conneroisu/bundlr/internal/naming"
)

// Outcome is the decision for one asset: exactly one of Inline or Emit is set.
type Outcome struct {
	Inline string
	Emit   *graph.Emission
}

// URL is what importing modules receive.
func (o Outcome) URL(publicPath string) string {
	if o.Emit != nil {
		return publicPath + o.Emit.OutputName
	}
	return o.Inline
}

// Pipeline applies the inline threshold and the asset filename template.
type Pipeline struct {
	limit      int64
	publicPath string
	template   string
	logger     logging.Logger
}

// New creates an asset pipeline from the configuration.
func New(cfg *config.Config, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pipeline{
		limit:      cfg.InlineLimit(),
		publicPath: cfg.Output.PublicPath,
		template:   cfg.Output.AssetFilename,
		logger:     logger.WithComponent("asset"),
	}
}

// Inlinable reports whether the extension is an image type.
func Inlinable(ext string) bool {
	return graph.ImageExtensions[ext]
}

// Resolve decides how n is delivered. Images no larger than a nonzero
// threshold are inlined; larger images, fonts and media are emitted.
func (p *Pipeline) Resolve(n *graph.Node) (Outcome, error) {
	if n.Type != graph.AssetModule {
		return Outcome{}, fmt.Errorf("module %s is not an asset", n.ID)
	}
	ext := n.Ext()
	if p.limit > 0 && Inlinable(ext) && int64(len(n.Source)) <= p.limit {
		return Outcome{Inline: DataURI(ext, n.Source)}, nil
	}
	return Outcome{Emit: &graph.Emission{
		SourcePath: n.Key,
		OutputName: naming.Expand(p.template, naming.AssetVars(n.ID, n.Source)),
	}}, nil
}

// DataURI encodes data with the MIME type of ext, sniffing the content when
// the extension is unknown.
func DataURI(ext string, data []byte) string {
	typ := mime.TypeByExtension(ext)
	if typ == "" {
		typ = mimetype.Detect(data).String()
	}
	typ, _, _ = strings.Cut(typ, ";")
	return "data:" + strings.TrimSpace(typ) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Apply resolves every asset node among keys (all nodes when keys is nil)
// that has not been resolved yet, setting its Output, Hash and Emit.
func (p *Pipeline) Apply(ctx context.Context, g *graph.Graph, keys []string) *errors.Report {
	report := errors.NewReport()
	if keys == nil {
		keys = g.Keys()
	}
	inlined, emitted := 0, 0
	for _, k := range keys {
		n, ok := g.Nodes[k]
		if !ok || n.Type != graph.AssetModule || n.Hash != "" || n.Err != nil {
			continue
		}
		outcome, err := p.Resolve(n)
		if err != nil {
			report.AddFailure(n.ID, err)
			continue
		}
		n.Emit = outcome.Emit
		n.Output = []byte("module.exports = " + strconv.Quote(outcome.URL(p.publicPath)) + ";\n")
		n.Hash = naming.ContentHash([]byte(p.template), []byte(strconv.FormatInt(p.limit, 10)), n.Source)
		if outcome.Emit != nil {
			emitted++
		} else {
			inlined++
		}
	}
	p.logger.Debug(ctx, "Assets resolved", "inlined", inlined, "emitted", emitted)
	return report
}

// URLOf returns the URL of an asset node that Apply has already resolved.
func URLOf(n *graph.Node, publicPath string) string {
	if n.Emit != nil {
		return publicPath + n.Emit.OutputName
	}
	return DataURI(n.Ext(), n.Source)
}
