package watcher

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFilter rejects paths under root that match any of the patterns.
// Patterns are matched against the slash-separated path relative to root,
// so "**/node_modules/**" also rejects the node_modules directory itself.
func IgnoreFilter(root string, patterns []string) FileFilter {
	return func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return true
		}
		rel = filepath.ToSlash(rel)
		for _, p := range patterns {
			if match(p, rel) || match(p, rel+"/") {
				return false
			}
		}
		return true
	}
}

func match(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}

// ExcludeDir rejects dir and everything below it.
func ExcludeDir(dir string) FileFilter {
	dir = filepath.Clean(dir)
	return func(path string) bool {
		path = filepath.Clean(path)
		return path != dir && !strings.HasPrefix(path, dir+string(filepath.Separator))
	}
}

// NoHiddenFilter rejects editor swap and lock files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, ".swp") && !strings.HasPrefix(base, ".#") && !strings.HasSuffix(base, "~")
}
