// Package build runs the bundling pipeline: it resolves the module graph,
// transforms modules, splits chunks, assembles chunk files and the root
// document, and writes them out.
package build

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/conneroisu/bundlr/internal/asset"
	"github.com/conneroisu/bundlr/internal/chunk"
	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
	"github.com/conneroisu/bundlr/internal/logging"
	"github.com/conneroisu/bundlr/internal/metrics"
	"github.com/conneroisu/bundlr/internal/resolve"
	"github.com/conneroisu/bundlr/internal/transform"
)

// Options carries the collaborators of an Orchestrator. Zero values get
// defaults: the OS filesystem, a nop logger, no metrics and ESBuildMinifier.
type Options struct {
	Fs       afero.Fs
	Logger   logging.Logger
	Recorder metrics.Recorder
	Minifier Minifier
	// Stages are registered in addition to the built-in and configured ones.
	Stages []transform.Stage
	// Inline scripts are appended to the root document.
	Inline []string
}

// Orchestrator owns the pipeline components and the build state machine.
type Orchestrator struct {
	cfg      *config.Config
	fs       afero.Fs
	logger   logging.Logger
	recorder metrics.Recorder

	builder  *graph.Builder
	pipeline *transform.Pipeline
	assets   *asset.Pipeline
	splitter *chunk.Splitter
	asm      *assembler
	inline   []string

	mu         sync.Mutex
	state      State
	stateSince time.Time
	last       *Result
}

// New wires an orchestrator for a finalized configuration. It fails when a
// loader names an unknown stage.
func New(cfg *config.Config, opts Options) (*Orchestrator, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Minifier == nil {
		opts.Minifier = ESBuildMinifier{}
	}

	registry := transform.NewRegistry(cfg)
	fileEnv, err := config.ReadEnv(opts.Fs, cfg.Root, cfg.Mode)
	if err != nil {
		return nil, err
	}
	registry.Register(transform.DefineStage(lo.Assign(config.EnvDefines(fileEnv, os.Environ()), cfg.Defines())))
	for _, s := range opts.Stages {
		registry.Register(s)
	}
	pipeline, err := transform.NewPipeline(cfg, registry, transform.NewStore(), opts.Logger)
	if err != nil {
		return nil, err
	}
	pipeline.SetRecorder(opts.Recorder)

	return &Orchestrator{
		cfg:        cfg,
		fs:         opts.Fs,
		logger:     opts.Logger.WithComponent("build"),
		recorder:   opts.Recorder,
		builder:    graph.NewBuilder(opts.Fs, resolve.New(opts.Fs, cfg), cfg.Root, cfg.Workers, opts.Logger),
		pipeline:   pipeline,
		assets:     asset.New(cfg, opts.Logger),
		splitter:   chunk.New(cfg),
		asm:        &assembler{cfg: cfg, minifier: opts.Minifier},
		inline:     opts.Inline,
		state:      StateIdle,
		stateSince: time.Now(),
	}, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Last returns the latest successful result, or nil.
func (o *Orchestrator) Last() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) transition(ctx context.Context, next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.CanTransition(next) {
		return &TransitionError{From: o.state, To: next}
	}
	now := time.Now()
	o.recorder.ObserveStateDuration(string(o.state), now.Sub(o.stateSince))
	o.logger.Debug(ctx, "Build state changed", "from", o.state, "to", next)
	o.state, o.stateSince = next, now
	return nil
}

// Build produces a complete result in memory without writing anything.
func (o *Orchestrator) Build(ctx context.Context) (*Result, error) {
	return o.execute(ctx, nil, nil, false)
}

// Run builds and emits: the production entry point.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	return o.execute(ctx, nil, nil, true)
}

// Rebuild updates prev for the changed files. Only the dependents closure
// of the changes is transformed again, chunks are re-split only when
// membership could change, and unchanged chunk files are reused. Without a
// usable prev it performs a full build.
func (o *Orchestrator) Rebuild(ctx context.Context, prev *Result, changed []string) (*Result, error) {
	if prev == nil || prev.Graph == nil || !sameEntries(prev.Graph, o.cfg) {
		return o.execute(ctx, nil, nil, false)
	}
	return o.execute(ctx, prev, changed, false)
}

func sameEntries(g *graph.Graph, cfg *config.Config) bool {
	if len(g.Entries) != len(cfg.Entries) {
		return false
	}
	for name := range cfg.Entries {
		if _, ok := g.Entries[name]; !ok {
			return false
		}
	}
	return true
}

func (o *Orchestrator) execute(ctx context.Context, prev *Result, changed []string, write bool) (*Result, error) {
	res := &Result{
		BuildID: uuid.NewString(),
		Mode:    o.cfg.Mode,
		Started: time.Now(),
		Report:  errors.NewReport(),
	}
	ctx = logging.ContextWithBuildID(ctx, res.BuildID)
	incremental := prev != nil

	fail := func(err error) (*Result, error) {
		_ = o.transition(ctx, StateError)
		res.Duration = time.Since(res.Started)
		outcome := metrics.OutcomeFailed
		if ctx.Err() != nil {
			outcome = metrics.OutcomeCanceled
		} else {
			o.logger.Error(ctx, err, "Build failed", "broken_modules", len(res.Report.BrokenModules()))
		}
		o.recorder.IncBuildOutcome(outcome)
		o.recorder.ObserveBuildDuration(incremental, res.Duration)
		return res, err
	}

	if err := o.transition(ctx, StateResolving); err != nil {
		return nil, err
	}
	var (
		g      *graph.Graph
		report *errors.Report
		err    error
	)
	if incremental {
		g, res.Delta, report, err = o.builder.Update(ctx, prev.Graph, changed)
		if err == nil {
			o.logger.Debug(ctx, "Graph updated", "delta", res.Delta.String())
		}
	} else {
		g, report, err = o.builder.Build(ctx, o.cfg.Entries)
	}
	if err != nil {
		return fail(err)
	}
	res.Graph = g
	res.Report.Merge(report)
	o.recorder.SetModules(len(g.Nodes))

	if err := o.transition(ctx, StateTransforming); err != nil {
		return fail(err)
	}
	transformed, err := o.pipeline.TransformAll(ctx, g, nil)
	if err != nil {
		return fail(err)
	}
	res.Report.Merge(transformed)
	res.Report.Merge(o.assets.Apply(ctx, g, nil))
	for _, k := range g.Keys() {
		res.Report.AddDiagnostics(g.Nodes[k].Diagnostics...)
	}
	if err := res.Report.Err(o.cfg.LintFatal); err != nil {
		return fail(err)
	}

	if err := o.transition(ctx, StateSplitting); err != nil {
		return fail(err)
	}
	if incremental && !res.Delta.Resplit && prev.Chunks != nil {
		res.Chunks = prev.Chunks
	} else {
		res.Chunks = o.splitter.Split(g)
	}
	o.recorder.SetChunks(len(res.Chunks))

	if err := o.transition(ctx, StateEmitting); err != nil {
		return fail(err)
	}
	if err := o.assemble(ctx, res, prev); err != nil {
		return fail(err)
	}
	if write {
		if err := o.Emit(ctx, res); err != nil {
			return fail(err)
		}
	}
	res.Changed = changedModules(g, prev)

	if err := o.transition(ctx, StateDone); err != nil {
		return fail(err)
	}
	res.Duration = time.Since(res.Started)
	outcome := metrics.OutcomeSuccess
	if len(res.Report.Diagnostics()) > 0 || len(res.Report.Cycles()) > 0 {
		outcome = metrics.OutcomeWarning
	}
	o.recorder.IncBuildOutcome(outcome)
	o.recorder.ObserveBuildDuration(incremental, res.Duration)

	o.mu.Lock()
	o.last = res
	o.mu.Unlock()

	for _, w := range res.Report.Cycles() {
		o.logger.Warn(ctx, w, "Circular import")
	}
	o.logger.Info(ctx, "Build complete",
		"incremental", incremental,
		"modules", len(g.Nodes),
		"chunks", len(res.Chunks),
		"files", len(res.Artifacts),
		"changed", len(res.Changed),
		"warnings", len(res.Report.Diagnostics()),
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// assemble fills the chunk files, the static copy, the root document and
// the asset manifest of res.
func (o *Orchestrator) assemble(ctx context.Context, res *Result, prev *Result) error {
	out, err := o.asm.assemble(res.Graph, res.Chunks, prev)
	if err != nil {
		return err
	}
	if out.reused > 0 {
		o.logger.Debug(ctx, "Reused unchanged chunks", "count", out.reused)
	}

	static, err := collectStatic(o.fs, o.cfg.PublicDir)
	if err != nil {
		return err
	}
	for _, a := range static {
		res.add(a)
	}
	for _, a := range out.artifacts {
		res.add(a)
	}
	res.Files = out.files
	res.signatures = out.signatures

	tmpl, err := afero.ReadFile(o.fs, o.cfg.Template)
	if err != nil && !os.IsNotExist(err) {
		return errors.NewIOError(errors.ErrCodeReadFailed, "cannot read document template", err).WithLocation(o.cfg.Template, 0, 0)
	}
	doc, err := renderDocument(tmpl, documentInput{
		PublicPath: o.cfg.Output.PublicPath,
		Scripts:    out.scripts,
		Styles:     out.styles,
		Inline:     o.inline,
	})
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot render document", err).WithLocation(o.cfg.Template, 0, 0)
	}
	res.Document = doc
	res.add(&Artifact{Path: "index.html", Kind: KindDocument, Data: doc})

	emitted := make(map[string]string)
	for _, n := range res.Graph.Nodes {
		if n.Emit != nil {
			emitted[n.ID] = n.Emit.OutputName
		}
	}
	res.Manifest = buildManifest(o.cfg.Output.PublicPath, out.files, emitted)
	entrypoints := lo.Map(append(append([]string(nil), out.styles...), out.scripts...), func(p string, _ int) string {
		return o.cfg.Output.PublicPath + p
	})
	data, err := renderManifest(res.Manifest, entrypoints)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode asset manifest", err)
	}
	res.add(&Artifact{Path: ManifestFile, Kind: KindManifest, Data: data})
	return nil
}

// changedModules lists the ids of modules that are new or whose output
// hash differs from prev, sorted.
func changedModules(g *graph.Graph, prev *Result) []string {
	var ids []string
	for _, k := range g.Keys() {
		n := g.Nodes[k]
		if prev != nil {
			if p, ok := prev.Graph.Nodes[k]; ok && p.Hash == n.Hash {
				continue
			}
		}
		ids = append(ids, n.ID)
	}
	return ids
}
