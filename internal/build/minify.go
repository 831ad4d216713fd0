package build

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// Minifier shrinks assembled chunk files. When JS is given the chunk's
// source map it returns a map of the minified code against the same
// sources.
type Minifier interface {
	JS(src, inMap []byte) (code, outMap []byte, err error)
	CSS(src []byte) ([]byte, error)
}

// ESBuildMinifier minifies chunks with esbuild's transform API.
type ESBuildMinifier struct{}

func (ESBuildMinifier) JS(src, inMap []byte) ([]byte, []byte, error) {
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	}
	code := string(src)
	if inMap != nil {
		// esbuild follows an inline input map, so the output map points
		// at the original modules rather than the unminified chunk.
		code += "\n" + inlineMapComment(inMap)
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
	}
	result := api.Transform(code, opts)
	if err := transformErr(result); err != nil {
		return nil, nil, err
	}
	if inMap == nil {
		return result.Code, nil, nil
	}
	return result.Code, result.Map, nil
}

func (ESBuildMinifier) CSS(src []byte) ([]byte, error) {
	result := api.Transform(string(src), api.TransformOptions{
		Loader:           api.LoaderCSS,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LegalComments:    api.LegalCommentsNone,
		LogLevel:         api.LogLevelSilent,
	})
	if err := transformErr(result); err != nil {
		return nil, err
	}
	return result.Code, nil
}

func transformErr(result api.TransformResult) error {
	if len(result.Errors) == 0 {
		return nil
	}
	msg := result.Errors[0]
	if msg.Location != nil {
		return fmt.Errorf("line %d: %s", msg.Location.Line, msg.Text)
	}
	return fmt.Errorf("%s", msg.Text)
}
