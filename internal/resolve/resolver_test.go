package resolve

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bundlr/internal/errors"
	"github.com/conneroisu/bundlr/internal/testutils"
)

const root = "/project"

func setupFS(t *testing.T) afero.Fs {
	t.Helper()
	return testutils.MemProject(t, root, map[string]string{
		"src/main.js":                            "import App from './App'",
		"src/App.vue":                            "<template></template>",
		"src/App.js":                             "shadowed by .vue",
		"src/utils/index.js":                     "export default 1",
		"src/data.json":                          "{}",
		"src/components/Header.vue":              "",
		"node_modules/vue/package.json":          `{"main": "index.js", "module": "dist/vue.esm.js"}`,
		"node_modules/vue/dist/vue.esm.js":       "",
		"node_modules/vue/index.js":              "",
		"node_modules/lodash/package.json":       `{"main": "lodash.js"}`,
		"node_modules/lodash/lodash.js":          "",
		"node_modules/lodash/fp.js":              "",
		"node_modules/@scope/pkg/index.js":       "",
		"src/nested/node_modules/local/index.js": "",
	})
}

func newResolver(fs afero.Fs) *Resolver {
	return NewWithOptions(fs, root, []string{".vue", ".js", ".json"}, map[string]string{
		"@":      filepath.Join(root, "src"),
		"@comps": filepath.Join(root, "src/components"),
	})
}

func TestResolve(t *testing.T) {
	r := newResolver(setupFS(t))
	src := filepath.Join(root, "src")

	tests := []struct {
		name      string
		specifier string
		fromDir   string
		expected  string
	}{
		{"relative with extension priority", "./App", src, "src/App.vue"},
		{"literal path wins", "./App.js", src, "src/App.js"},
		{"directory index", "./utils", src, "src/utils/index.js"},
		{"json", "./data", src, "src/data.json"},
		{"alias prefix", "@/utils", filepath.Join(root, "src/components"), "src/utils/index.js"},
		{"longest alias first", "@comps/Header", src, "src/components/Header.vue"},
		{"package module field", "vue", src, "node_modules/vue/dist/vue.esm.js"},
		{"package main field", "lodash", src, "node_modules/lodash/lodash.js"},
		{"package subpath", "lodash/fp", src, "node_modules/lodash/fp.js"},
		{"scoped package index", "@scope/pkg", src, "node_modules/@scope/pkg/index.js"},
		{"nearest node_modules", "local", filepath.Join(root, "src/nested/deeper"), "src/nested/node_modules/local/index.js"},
		{"query stripped", "./App.vue?vue&type=style", src, "src/App.vue"},
		{"absolute", filepath.Join(root, "src/main"), "/elsewhere", "src/main.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.specifier, tt.fromDir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, tt.expected), got)
		})
	}
}

func TestResolveFailure(t *testing.T) {
	r := newResolver(setupFS(t))

	for _, spec := range []string{"./missing", "not-installed", "@/nope", ""} {
		t.Run(spec, func(t *testing.T) {
			_, err := r.Resolve(spec, filepath.Join(root, "src"))
			require.Error(t, err)

			var re *errors.ResolutionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, spec, re.Specifier)
			assert.Equal(t, filepath.Join(root, "src"), re.FromDir)
		})
	}
}

func TestResolveConcurrent(t *testing.T) {
	r := newResolver(setupFS(t))
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve("vue", filepath.Join(root, "src"))
			assert.NoError(t, err)
			assert.Equal(t, filepath.Join(root, "node_modules/vue/dist/vue.esm.js"), got)
		}()
	}
	wg.Wait()
}

func TestForgetPackageMain(t *testing.T) {
	fs := setupFS(t)
	r := newResolver(fs)
	src := filepath.Join(root, "src")
	manifest := filepath.Join(root, "node_modules/vue/package.json")

	got, err := r.Resolve("vue", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "node_modules/vue/dist/vue.esm.js"), got)

	require.NoError(t, afero.WriteFile(fs, manifest, []byte(`{"main": "index.js"}`), 0o644))
	got, err = r.Resolve("vue", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "node_modules/vue/dist/vue.esm.js"), got, "main field is cached")

	r.Forget(filepath.Join(root, "src/main.js"))
	got, _ = r.Resolve("vue", src)
	assert.Equal(t, filepath.Join(root, "node_modules/vue/dist/vue.esm.js"), got, "other paths keep the cache")

	r.Forget(manifest)
	got, err = r.Resolve("vue", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "node_modules/vue/index.js"), got)
}

func TestSplitPackage(t *testing.T) {
	tests := []struct{ spec, name, sub string }{
		{"vue", "vue", ""},
		{"lodash/fp", "lodash", "fp"},
		{"@scope/pkg", "@scope/pkg", ""},
		{"@scope/pkg/a/b", "@scope/pkg", "a/b"},
	}
	for _, tt := range tests {
		name, sub := splitPackage(tt.spec)
		assert.Equal(t, tt.name, name, tt.spec)
		assert.Equal(t, tt.sub, sub, tt.spec)
	}
}
