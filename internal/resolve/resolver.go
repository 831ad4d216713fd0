// Package resolve maps import specifiers to absolute file paths.
//
// Resolution order: alias substitution (longest alias wins), then relative,
// absolute or node_modules lookup, then a file search with the configured
// extensions and directory index files. The resolver only reads the
// filesystem and is safe for concurrent use.
package resolve

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/errors"
)

// Resolver resolves specifiers against a project root.
type Resolver struct {
	fs         afero.Fs
	root       string
	extensions []string
	aliases    []alias

	// package.json main fields keyed by package directory; "" means none.
	mains sync.Map
}

type alias struct {
	prefix string
	target string
}

// New creates a resolver from the configured root, aliases and extensions.
func New(fs afero.Fs, cfg *config.Config) *Resolver {
	return NewWithOptions(fs, cfg.Root, cfg.Resolve.Extensions, cfg.Resolve.Alias)
}

// NewWithOptions creates a resolver without a full configuration. Alias
// targets must be absolute.
func NewWithOptions(fs afero.Fs, root string, extensions []string, aliases map[string]string) *Resolver {
	r := &Resolver{
		fs:         fs,
		root:       filepath.Clean(root),
		extensions: append([]string(nil), extensions...),
	}
	for prefix, target := range aliases {
		r.aliases = append(r.aliases, alias{prefix: prefix, target: target})
	}
	sort.Slice(r.aliases, func(i, j int) bool {
		if len(r.aliases[i].prefix) != len(r.aliases[j].prefix) {
			return len(r.aliases[i].prefix) > len(r.aliases[j].prefix)
		}
		return r.aliases[i].prefix < r.aliases[j].prefix
	})
	return r
}

// Root returns the project root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps specifier, imported from a module in fromDir, to an absolute
// path. A failure is always a *errors.ResolutionError.
func (r *Resolver) Resolve(specifier, fromDir string) (string, error) {
	fail := &errors.ResolutionError{Specifier: specifier, FromDir: fromDir}

	spec := stripQuery(specifier)
	if spec == "" {
		return "", fail
	}
	spec = r.applyAlias(spec)

	switch {
	case filepath.IsAbs(spec):
		if p, ok := r.lookup(filepath.Clean(spec)); ok {
			return p, nil
		}
	case isRelative(spec):
		if p, ok := r.lookup(filepath.Join(fromDir, filepath.FromSlash(spec))); ok {
			return p, nil
		}
	default:
		if p, ok := r.resolvePackage(spec, fromDir); ok {
			return p, nil
		}
	}
	return "", fail
}

func (r *Resolver) applyAlias(spec string) string {
	for _, a := range r.aliases {
		if spec == a.prefix {
			return a.target
		}
		if strings.HasPrefix(spec, a.prefix+"/") {
			return filepath.Join(a.target, filepath.FromSlash(spec[len(a.prefix)+1:]))
		}
	}
	return spec
}

// resolvePackage searches node_modules directories from fromDir up to the root.
func (r *Resolver) resolvePackage(spec, fromDir string) (string, bool) {
	name, subpath := splitPackage(spec)
	dir := filepath.Clean(fromDir)
	for {
		pkgDir := filepath.Join(dir, "node_modules", filepath.FromSlash(name))
		if subpath != "" {
			if p, ok := r.lookup(filepath.Join(pkgDir, filepath.FromSlash(subpath))); ok {
				return p, true
			}
		} else if p, ok := r.resolvePackageDir(pkgDir); ok {
			return p, true
		}

		if dir == r.root || !strings.HasPrefix(dir, r.root) {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (r *Resolver) resolvePackageDir(pkgDir string) (string, bool) {
	if ok, _ := afero.IsDir(r.fs, pkgDir); !ok {
		return "", false
	}
	if main := r.packageMain(pkgDir); main != "" {
		if p, ok := r.lookup(filepath.Join(pkgDir, filepath.FromSlash(main))); ok {
			return p, true
		}
	}
	return r.lookup(pkgDir)
}

// Forget drops what the resolver cached about path. Watch mode calls it for
// every changed file so an edited package.json takes effect.
func (r *Resolver) Forget(path string) {
	if filepath.Base(path) == "package.json" {
		r.mains.Delete(filepath.Dir(filepath.Clean(path)))
	}
}

type packageJSON struct {
	Module string `json:"module"`
	Main   string `json:"main"`
}

func (r *Resolver) packageMain(pkgDir string) string {
	if v, ok := r.mains.Load(pkgDir); ok {
		return v.(string)
	}
	main := ""
	data, err := afero.ReadFile(r.fs, filepath.Join(pkgDir, "package.json"))
	if err == nil {
		var pkg packageJSON
		if json.Unmarshal(data, &pkg) == nil {
			main = pkg.Module
			if main == "" {
				main = pkg.Main
			}
		}
	}
	r.mains.Store(pkgDir, main)
	return main
}

// lookup tries the literal path, then each extension, then directory index files.
func (r *Resolver) lookup(p string) (string, bool) {
	if r.isFile(p) {
		return p, true
	}
	for _, ext := range r.extensions {
		if r.isFile(p + ext) {
			return p + ext, true
		}
	}
	if ok, _ := afero.IsDir(r.fs, p); ok {
		for _, ext := range r.extensions {
			index := filepath.Join(p, "index"+ext)
			if r.isFile(index) {
				return index, true
			}
		}
	}
	return "", false
}

func (r *Resolver) isFile(p string) bool {
	info, err := r.fs.Stat(p)
	return err == nil && !info.IsDir()
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// splitPackage separates "@scope/pkg/sub/path" into "@scope/pkg" and "sub/path".
func splitPackage(spec string) (name, subpath string) {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			subpath = parts[2]
		}
		return name, subpath
	}
	name, subpath, _ = strings.Cut(spec, "/")
	return name, subpath
}

func stripQuery(spec string) string {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		return spec[:i]
	}
	return spec
}
