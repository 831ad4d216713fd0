package asset

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/graph"
	"github.com/conneroisu/bundlr/internal/naming"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg, err := config.Default(t.TempDir(), config.ModeProduction)
	require.NoError(t, err)
	return New(cfg, nil)
}

func assetNode(id string, size int) *graph.Node {
	key := "/app/" + id
	return &graph.Node{
		Key:    key,
		ID:     id,
		Type:   graph.DetectType(key),
		Source: bytes.Repeat([]byte{0x89}, size),
	}
}

func TestInlineThresholdBoundary(t *testing.T) {
	p := newPipeline(t)

	tests := []struct {
		name   string
		id     string
		size   int
		inline bool
	}{
		{"image at threshold is inlined", "src/assets/at.png", 10240, true},
		{"image one byte over is emitted", "src/assets/over.png", 10241, false},
		{"small svg inlined", "src/assets/icon.svg", 100, true},
		{"webp counts as image", "src/assets/photo.webp", 100, true},
		{"small font always emitted", "src/fonts/a.woff2", 10, false},
		{"small media always emitted", "src/media/clip.mp4", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := p.Resolve(assetNode(tt.id, tt.size))
			require.NoError(t, err)
			if tt.inline {
				assert.Nil(t, outcome.Emit)
				assert.True(t, strings.HasPrefix(outcome.Inline, "data:"), outcome.Inline)
				assert.Contains(t, outcome.Inline, ";base64,")
			} else {
				require.NotNil(t, outcome.Emit)
				assert.Empty(t, outcome.Inline)
				assert.True(t, strings.HasPrefix(outcome.Emit.OutputName, "static/media/"))
			}
		})
	}
}

func TestZeroInlineLimitDisablesInlining(t *testing.T) {
	cfg, err := config.Default(t.TempDir(), config.ModeProduction)
	require.NoError(t, err)
	zero := int64(0)
	cfg.Assets.InlineLimit = &zero
	p := New(cfg, nil)

	for _, size := range []int{0, 1, 100} {
		outcome, err := p.Resolve(assetNode("src/assets/tiny.png", size))
		require.NoError(t, err)
		assert.Empty(t, outcome.Inline, "size %d", size)
		require.NotNil(t, outcome.Emit, "size %d", size)
	}
}

func TestEmittedName(t *testing.T) {
	p := newPipeline(t)
	n := assetNode("src/fonts/a.woff2", 10)

	outcome, err := p.Resolve(n)
	require.NoError(t, err)
	hash := naming.ContentHash(n.Source)
	assert.Equal(t, "static/media/"+hash[:10]+".woff2", outcome.Emit.OutputName)
	assert.Equal(t, n.Key, outcome.Emit.SourcePath)
	assert.Equal(t, "/static/media/"+hash[:10]+".woff2", outcome.URL("/"))
}

func TestDataURIMime(t *testing.T) {
	assert.True(t, strings.HasPrefix(DataURI(".svg", []byte("<svg/>")), "data:image/svg+xml;base64,"))
	assert.True(t, strings.HasPrefix(DataURI(".png", []byte{1}), "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(DataURI(".unknownext", []byte{1}), "data:application/octet-stream;base64,"))
	assert.True(t, strings.HasPrefix(DataURI(".unknownext", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")), "data:image/png;base64,"))
}

func TestApply(t *testing.T) {
	p := newPipeline(t)
	g := graph.New("/app")
	small := assetNode("src/assets/a.png", 10)
	big := assetNode("src/assets/b.png", 20000)
	script := &graph.Node{Key: "/app/src/main.js", ID: "src/main.js", Type: graph.ScriptModule}
	for _, n := range []*graph.Node{small, big, script} {
		g.Nodes[n.Key] = n
	}

	report := p.Apply(context.Background(), g, nil)
	assert.Empty(t, report.Failures())

	assert.Contains(t, string(small.Output), `module.exports = "data:image/png;base64,`)
	assert.Nil(t, small.Emit)
	require.NotNil(t, big.Emit)
	assert.Equal(t, "module.exports = \"/"+big.Emit.OutputName+"\";\n", string(big.Output))
	assert.NotEmpty(t, big.Hash)
	assert.Nil(t, script.Output)
}
