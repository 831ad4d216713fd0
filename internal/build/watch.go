package build

import (
	"context"
	"sort"

	"github.com/samber/lo"
)

// PublishFunc receives the outcome of every rebuild that ran to completion.
// On failure res carries the report and err is non-nil.
type PublishFunc func(res *Result, err error)

type rebuildOutcome struct {
	res *Result
	err error
	ctx context.Context
}

// Watch rebuilds on every change batch until batches is closed or ctx is
// done. A batch that arrives while a rebuild is running cancels it and a
// new rebuild starts with the union of both change sets. Changes stay
// pending until a rebuild succeeds, so a failed rebuild is retried with
// them on the next batch. Cancelled rebuilds are never published.
func (o *Orchestrator) Watch(ctx context.Context, batches <-chan []string, publish PublishFunc) error {
	if err := o.transition(ctx, StateWatching); err != nil {
		return err
	}

	dirty := make(map[string]bool)
	done := make(chan rebuildOutcome, 1)
	var cancel context.CancelFunc
	running := false

	start := func() {
		changed := lo.Keys(dirty)
		sort.Strings(changed)
		rctx, c := context.WithCancel(ctx)
		cancel = c
		running = true
		prev := o.Last()
		o.logger.Debug(ctx, "Rebuild started", "changed", len(changed))
		go func() {
			res, err := o.Rebuild(rctx, prev, changed)
			done <- rebuildOutcome{res: res, err: err, ctx: rctx}
		}()
	}
	stop := func() {
		if running {
			cancel()
			<-done
			running = false
		}
	}
	finish := func(out rebuildOutcome) {
		running = false
		cancelled := out.ctx.Err() != nil
		cancel()
		if cancelled {
			return
		}
		if out.err == nil {
			dirty = make(map[string]bool)
		}
		publish(out.res, out.err)
		_ = o.transition(ctx, StateWatching)
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				if running {
					finish(<-done)
				}
				return nil
			}
			for _, k := range batch {
				dirty[k] = true
			}
			if running {
				o.logger.Debug(ctx, "Rebuild superseded", "changed", len(batch))
			}
			stop()
			start()
		case out := <-done:
			finish(out)
		}
	}
}
