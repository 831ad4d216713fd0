package transform

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
)

var (
	sfcExportDefault = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
	sfcTemplateSrc   = regexp.MustCompile(`\bsrc\s*=\s*["'](\.{1,2}/[^"']+|@/[^"']+)["']`)
)

// StyleChains looks up the chain for a style block language such as "less".
type StyleChains func(lang string) (*Chain, bool)

// SFCStage compiles a single-file component into a script module: the
// script block's default export gains the template string and the URLs of
// the template's local assets, and style blocks run through the chain of
// their language into Result.Style.
func SFCStage(styles StyleChains, styleIdentity Options) Stage {
	return Stage{
		Name:    "sfc",
		Version: builtinVersion,
		Options: styleIdentity,
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			sfc := graph.ParseSFC(src)
			var out strings.Builder
			var res Result

			refs := sfcTemplateSrc.FindAllStringSubmatch(sfc.Template, -1)
			seen := make(map[string]bool)
			var assets []string
			for _, ref := range refs {
				if !seen[ref[1]] {
					seen[ref[1]] = true
					assets = append(assets, ref[1])
				}
			}
			for i, spec := range assets {
				fmt.Fprintf(&out, "import __asset_%d__ from %q;\n", i, spec)
			}

			script := sfc.Script
			if loc := sfcExportDefault.FindStringSubmatchIndex(script); loc != nil {
				script = script[:loc[0]] + script[loc[2]:loc[3]] + "const __component__ = " + script[loc[1]:]
				out.WriteString(script)
				out.WriteString("\n")
			} else {
				out.WriteString(script)
				out.WriteString("\nconst __component__ = {};\n")
			}

			if sfc.Template != "" {
				fmt.Fprintf(&out, "__component__.template = %s;\n", strconv.Quote(sfc.Template))
			}
			if len(assets) > 0 {
				out.WriteString("__component__.assets = {")
				for i, spec := range assets {
					if i > 0 {
						out.WriteString(",")
					}
					fmt.Fprintf(&out, " %q: __asset_%d__", spec, i)
				}
				out.WriteString(" };\n")
			}
			out.WriteString("export default __component__;\n")

			for _, block := range sfc.Styles {
				chain, ok := styles(block.Lang)
				if !ok {
					return Result{}, &errors.TransformError{
						Module: meta.ID, Stage: "sfc", Line: block.Line,
						Cause: fmt.Errorf("no loader for style language %q", block.Lang),
					}
				}
				styleMeta := meta
				styleMeta.Type = graph.StyleModule
				css, err := chain.Run(ctx, []byte(block.Content), styleMeta)
				if err != nil {
					if te, ok := err.(*errors.TransformError); ok && te.Line > 0 {
						te.Line += block.Line - 1
					}
					return Result{}, err
				}
				res.Style = append(res.Style, css.Output...)
				res.Diagnostics = append(res.Diagnostics, css.Diagnostics...)
			}

			res.Output = []byte(out.String())
			return res, nil
		},
	}
}
