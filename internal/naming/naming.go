// Package naming expands output filename templates such as
// "static/js/[name].[contenthash:10].js".
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// DefaultHashLength is used by [contenthash] and [hash] without an explicit length.
const DefaultHashLength = 20

var placeholder = regexp.MustCompile(`\[(name|contenthash|hash|ext|query)(?::(\d+))?\]`)

// Vars are the values substituted into a template.
type Vars struct {
	Name string
	// Hash is the full hex content hash; placeholders truncate it.
	Hash  string
	Ext   string
	Query string
}

// Expand substitutes every placeholder of tmpl. Unknown placeholders are kept.
func Expand(tmpl string, v Vars) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := placeholder.FindStringSubmatch(m)
		switch sub[1] {
		case "name":
			return v.Name
		case "ext":
			return v.Ext
		case "query":
			return v.Query
		default:
			n := DefaultHashLength
			if sub[2] != "" {
				if parsed, err := strconv.Atoi(sub[2]); err == nil && parsed > 0 {
					n = parsed
				}
			}
			return truncate(v.Hash, n)
		}
	})
}

// UsesHash reports whether a template depends on content.
func UsesHash(tmpl string) bool {
	return strings.Contains(tmpl, "[contenthash") || strings.Contains(tmpl, "[hash")
}

// ContentHash returns the hex sha256 of the concatenated parts.
func ContentHash(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AssetVars builds the variables for an emitted asset from its source path.
func AssetVars(sourcePath string, data []byte) Vars {
	ext := path.Ext(sourcePath)
	return Vars{
		Name: strings.TrimSuffix(path.Base(sourcePath), ext),
		Hash: ContentHash(data),
		Ext:  ext,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
