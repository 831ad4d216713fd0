package build

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/logging"
)

// Emit writes every artifact of res under the output directory. In
// production the directory is emptied first. It is the only step that
// writes files.
func (o *Orchestrator) Emit(ctx context.Context, res *Result) error {
	perf := logging.StartOperation(o.logger, "emit")
	dir := o.cfg.Output.Dir

	if o.cfg.ShouldClean() {
		if err := o.clean(dir); err != nil {
			perf.EndWithError(ctx, err)
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, p := range res.Paths() {
		art := res.Artifacts[p]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeArtifact(o.fs, dir, art)
		})
	}
	if err := g.Wait(); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}

	bytes := res.TotalBytes()
	o.recorder.AddEmittedBytes(bytes)
	perf.End(ctx, "files", len(res.Artifacts), "bytes", bytes, "dir", dir)
	return nil
}

func writeArtifact(fs afero.Fs, dir string, art *Artifact) error {
	target := filepath.Join(dir, filepath.FromSlash(art.Path))
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot create output directory", err).WithLocation(target, 0, 0)
	}
	if err := afero.WriteFile(fs, target, art.Data, 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot write artifact", err).WithLocation(target, 0, 0)
	}
	return nil
}

// clean removes the contents of the output directory. It refuses to touch
// the project root or anything above it.
func (o *Orchestrator) clean(dir string) error {
	dir = filepath.Clean(dir)
	if rel, err := filepath.Rel(dir, o.cfg.Root); err != nil || !strings.HasPrefix(rel, "..") {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "refusing to clean the project root").
			WithContext("output_dir", dir)
	}
	entries, err := afero.ReadDir(o.fs, dir)
	if err != nil {
		if ok, _ := afero.DirExists(o.fs, dir); !ok {
			return nil
		}
		return errors.NewIOError(errors.ErrCodeReadFailed, "cannot list output directory", err).WithLocation(dir, 0, 0)
	}
	for _, e := range entries {
		if err := o.fs.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return errors.NewIOError(errors.ErrCodeWriteFailed, "cannot clean output directory", err).WithLocation(dir, 0, 0)
		}
	}
	return nil
}
