package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
	"github.com/conneroisu/bundlr/internal/logging"
	"github.com/conneroisu/bundlr/internal/metrics"
	"github.com/conneroisu/bundlr/internal/pool"
)

// Registry maps stage names to stages.
type Registry struct {
	stages map[string]Stage
}

// NewRegistry registers the built-in stages and every configured external stage.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{stages: make(map[string]Stage)}
	r.Register(DefineStage(cfg.Defines()))
	r.Register(JSONStage())
	r.Register(CSSStage())
	r.Register(LintStage())
	r.Register(ESMStage())
	for _, sc := range cfg.Stages {
		r.Register(ExecStage(sc))
	}
	return r
}

// Register adds or replaces a stage.
func (r *Registry) Register(s Stage) {
	r.stages[s.Name] = s
}

// Lookup returns the stage registered under name.
func (r *Registry) Lookup(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Pipeline transforms graph nodes through the chain selected by their
// extension, consulting the content-addressed store first.
type Pipeline struct {
	chains   map[string]*Chain
	mode     config.Mode
	store    *Store
	workers  int
	logger   logging.Logger
	recorder metrics.Recorder

	runs atomic.Int64
}

// NewPipeline builds the chains of every loader rule. Script files without a
// rule pass through unchanged. It fails on a rule naming an unknown stage.
func NewPipeline(cfg *config.Config, registry *Registry, store *Store, logger logging.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if store == nil {
		store = NewStore()
	}
	p := &Pipeline{
		chains:   make(map[string]*Chain),
		mode:     cfg.Mode,
		store:    store,
		workers:  cfg.Workers,
		logger:   logger.WithComponent("transform"),
		recorder: metrics.NoopRecorder{},
	}

	// Component chains depend on the style chains, so those come first.
	var deferred []config.LoaderRule
	for _, rule := range cfg.Loaders {
		if lo.Contains(rule.Stages, "sfc") {
			deferred = append(deferred, rule)
			continue
		}
		if err := p.addRule(rule, registry); err != nil {
			return nil, err
		}
	}
	if len(deferred) > 0 {
		identity := make(Options)
		for ext, chain := range p.chains {
			if chain.Reverse {
				identity["style"+ext] = chain.Identity(cfg.Mode)
			}
		}
		registry.Register(SFCStage(p.styleChain, identity))
		for _, rule := range deferred {
			if err := p.addRule(rule, registry); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *Pipeline) addRule(rule config.LoaderRule, registry *Registry) error {
	chain := &Chain{}
	for _, name := range rule.Stages {
		stage, ok := registry.Lookup(name)
		if !ok {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("loader for %s names unknown stage %q", strings.Join(rule.Extensions, ","), name))
		}
		chain.Stages = append(chain.Stages, stage)
	}
	for _, ext := range rule.Extensions {
		c := *chain
		c.Reverse = graph.DetectType("x"+ext) == graph.StyleModule
		p.chains[strings.ToLower(ext)] = &c
	}
	return nil
}

func (p *Pipeline) styleChain(lang string) (*Chain, bool) {
	c, ok := p.chains["."+strings.ToLower(lang)]
	if !ok || !c.Reverse {
		return nil, false
	}
	return c, true
}

// SetRecorder reports every transform to r.
func (p *Pipeline) SetRecorder(r metrics.Recorder) {
	if r != nil {
		p.recorder = r
	}
}

// ChainFor returns the chain for an extension; unknown extensions get the
// empty pass-through chain.
func (p *Pipeline) ChainFor(ext string) *Chain {
	if c, ok := p.chains[strings.ToLower(ext)]; ok {
		return c
	}
	return &Chain{}
}

// Store returns the content-addressed store.
func (p *Pipeline) Store() *Store {
	return p.store
}

// Runs returns how many chains actually executed, excluding store hits.
func (p *Pipeline) Runs() int64 {
	return p.runs.Load()
}

// InputHash is the content address of a module: the chain identity and the
// raw bytes.
func InputHash(identity string, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(identity))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// Transform runs one node. On success it sets Output, Style, Diagnostics and
// Hash; on failure it sets Err. hit reports a store hit.
func (p *Pipeline) Transform(ctx context.Context, n *graph.Node) (hit bool, err error) {
	chain := p.ChainFor(n.Ext())
	hash := InputHash(chain.Identity(p.mode), n.Source)
	meta := Meta{Key: n.Key, ID: n.ID, Type: n.Type, Mode: p.mode}

	entry, hit, err := p.store.Do(hash, func() (*Entry, error) {
		p.runs.Add(1)
		res, err := chain.Run(ctx, n.Source, meta)
		if err != nil {
			return nil, err
		}
		return &Entry{Output: res.Output, Style: res.Style, Diagnostics: res.Diagnostics}, nil
	})
	if err != nil {
		n.Hash = ""
		if ctx.Err() == nil {
			n.Err = err
		}
		return false, err
	}

	n.Output = entry.Output
	n.Style = entry.Style
	n.Diagnostics = make([]errors.LintDiagnostic, len(entry.Diagnostics))
	for i, d := range entry.Diagnostics {
		// Identical sources share an entry; diagnostics belong to this module.
		d.Module = n.ID
		n.Diagnostics[i] = d
	}
	n.Hash = hash
	n.Err = nil
	return hit, nil
}

// Pending reports whether a node still needs the pipeline.
func Pending(n *graph.Node) bool {
	if n.Type == graph.AssetModule || n.Hash != "" {
		return false
	}
	return n.Err == nil || errors.IsTransformError(n.Err)
}

// TransformAll runs every pending node among keys (all nodes when keys is
// nil) on the worker pool. Each broken module is reported; the others
// still finish.
func (p *Pipeline) TransformAll(ctx context.Context, g *graph.Graph, keys []string) (*errors.Report, error) {
	perf := logging.StartOperation(p.logger, "transform_all")
	if keys == nil {
		keys = g.Keys()
	}
	var pending []*graph.Node
	for _, k := range keys {
		if n, ok := g.Nodes[k]; ok && Pending(n) {
			pending = append(pending, n)
		}
	}

	report := errors.NewReport()
	var hits atomic.Int64
	err := pool.ForEach(ctx, p.workers, pending, func(ctx context.Context, n *graph.Node) {
		hit, err := p.Transform(ctx, n)
		if err != nil {
			if ctx.Err() == nil {
				report.AddFailure(n.ID, err)
			}
			return
		}
		p.recorder.IncTransform(hit)
		if hit {
			hits.Add(1)
		}
	})
	if err != nil {
		return nil, err
	}

	perf.End(ctx, "modules", len(pending), "store_hits", hits.Load(), "failures", len(report.Failures()))
	return report, nil
}
