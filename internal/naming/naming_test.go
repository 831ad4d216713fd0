package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	hash := ContentHash([]byte("console.log(1)"))
	vars := Vars{Name: "main", Hash: hash, Ext: ".png"}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"name only", "static/js/[name].js", "static/js/main.js"},
		{"truncated hash", "static/js/[name].[contenthash:10].js", "static/js/main." + hash[:10] + ".js"},
		{"default hash length", "static/js/[name].[contenthash].chunk.js", "static/js/main." + hash[:20] + ".chunk.js"},
		{"asset template", "static/media/[hash:10][ext][query]", "static/media/" + hash[:10] + ".png"},
		{"unknown placeholder kept", "[name].[id].js", "main.[id].js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Expand(tt.template, vars))
		})
	}
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash([]byte("a"), []byte("b"))
	b := ContentHash([]byte("ab"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ContentHash([]byte("ba")))
}

func TestUsesHash(t *testing.T) {
	assert.True(t, UsesHash("static/js/[name].[contenthash:10].js"))
	assert.True(t, UsesHash("static/media/[hash:10][ext]"))
	assert.False(t, UsesHash("static/js/[name].js"))
}

func TestAssetVars(t *testing.T) {
	v := AssetVars("src/assets/logo.svg", []byte("<svg/>"))
	assert.Equal(t, "logo", v.Name)
	assert.Equal(t, ".svg", v.Ext)
	assert.Equal(t, ContentHash([]byte("<svg/>")), v.Hash)
}
