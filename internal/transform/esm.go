package transform

import (
	"context"
	"fmt"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/graph"
)

// esbuild leaves import() alone for targets that support it and always
// prints the specifier as a plain string literal.
var dynamicImport = regexp.MustCompile(`\bimport\((["'][^"'\n]+["'])\)`)

// ESMStage converts a module to CommonJS with esbuild and points dynamic
// imports at require.async, so the module runs inside the chunk loader.
// Modules that are already CommonJS pass through unchanged.
func ESMStage() Stage {
	return Stage{
		Name:    "esm",
		Version: "2",
		Run: func(ctx context.Context, src []byte, meta Meta, opts Options) (Result, error) {
			loader := api.LoaderJS
			if meta.Type == graph.ScriptModule {
				loader = graph.ScriptLoader(meta.Key)
			}
			result := api.Transform(string(src), api.TransformOptions{
				Loader:     loader,
				Format:     api.FormatCommonJS,
				Target:     api.ESNext,
				Sourcefile: meta.ID,
				LogLevel:   api.LogLevelSilent,
			})
			if len(result.Errors) > 0 {
				msg := result.Errors[0]
				te := &errors.TransformError{Module: meta.ID, Stage: "esm", Cause: fmt.Errorf("%s", msg.Text)}
				if msg.Location != nil {
					te.Line = msg.Location.Line
				}
				return Result{}, te
			}
			return Result{Output: dynamicImport.ReplaceAll(result.Code, []byte("require.async($1)"))}, nil
		},
	}
}
