// Package transform runs per-extension stage chains over module sources and
// caches the results by content hash.
package transform

import (
	"context"
	"sort"
	"strings"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
)

// Meta describes the module a stage is working on.
type Meta struct {
	Key  string
	ID   string
	Type graph.ModuleType
	Mode config.Mode
}

// Options are a stage's string options. They are part of the chain identity.
type Options map[string]string

// Result is a stage's output. Style carries stylesheet text produced by a
// stage that otherwise outputs script, such as component style blocks.
type Result struct {
	Output      []byte
	Style       []byte
	Diagnostics []errors.LintDiagnostic
}

// Func is the stage contract. A returned error is fatal for the module only.
type Func func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error)

// Stage is a named, versioned transform.
type Stage struct {
	Name    string
	Version string
	Options Options
	Run     Func
}

// Chain is the ordered list of stages selected for one extension.
type Chain struct {
	Stages []Stage
	// Reverse runs the stages last-declared first, as style chains do.
	Reverse bool
}

// Ordered returns the stages in execution order.
func (c *Chain) Ordered() []Stage {
	if !c.Reverse {
		return c.Stages
	}
	out := make([]Stage, len(c.Stages))
	for i, s := range c.Stages {
		out[len(c.Stages)-1-i] = s
	}
	return out
}

// Identity is the stable description of the chain used in content hashes:
// stage names, versions, sorted options and the build mode.
func (c *Chain) Identity(mode config.Mode) string {
	var b strings.Builder
	b.WriteString("mode=")
	b.WriteString(string(mode))
	if c.Reverse {
		b.WriteString(";reverse")
	}
	for _, s := range c.Stages {
		b.WriteString(";")
		b.WriteString(s.Name)
		b.WriteString("@")
		b.WriteString(s.Version)
		keys := make([]string, 0, len(s.Options))
		for k := range s.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(",")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(s.Options[k])
		}
	}
	return b.String()
}

// Run executes the chain. Each stage receives the previous stage's output;
// style text and diagnostics accumulate.
func (c *Chain) Run(ctx context.Context, src []byte, meta Meta) (Result, error) {
	acc := Result{Output: src}
	for _, stage := range c.Ordered() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := stage.Run(ctx, acc.Output, meta, stage.Options)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			if te, ok := err.(*errors.TransformError); ok {
				return Result{}, te
			}
			return Result{}, &errors.TransformError{Module: meta.ID, Stage: stage.Name, Cause: err}
		}
		acc.Output = res.Output
		acc.Style = append(acc.Style, res.Style...)
		acc.Diagnostics = append(acc.Diagnostics, res.Diagnostics...)
	}
	return acc, nil
}
