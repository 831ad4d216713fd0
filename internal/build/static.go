package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/conneroisu/bundlr/internal/errors"
)

// staticIgnore excludes the document template from the passthrough copy.
const staticIgnore = "**/index.html"

// collectStatic reads every file under dir except index.html files, keyed
// by slash path relative to dir. A missing dir yields nothing.
func collectStatic(fs afero.Fs, dir string) ([]*Artifact, error) {
	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		return nil, nil
	}
	var arts []*Artifact
	err := afero.Walk(fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(staticIgnore, rel); ok {
			return nil
		}
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return errors.NewIOError(errors.ErrCodeReadFailed, "cannot read public file", err).WithLocation(p, 0, 0)
		}
		arts = append(arts, &Artifact{Path: rel, Kind: KindStatic, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].Path < arts[j].Path })
	return arts, nil
}

// ManifestFile is the name of the asset manifest in the output root.
const ManifestFile = "asset-manifest.json"

// manifest maps logical names to public URLs.
type manifest struct {
	Files       map[string]string `json:"files"`
	Entrypoints []string          `json:"entrypoints"`
}

func buildManifest(publicPath string, files map[string]ChunkFiles, assets map[string]string) map[string]string {
	m := make(map[string]string)
	for name, f := range files {
		if f.Script != "" {
			m[name+".js"] = publicPath + f.Script
		}
		if f.Style != "" {
			m[name+".css"] = publicPath + f.Style
		}
		if f.SourceMap != "" {
			m[name+".js.map"] = publicPath + f.SourceMap
		}
	}
	for id, out := range assets {
		m[id] = publicPath + out
	}
	m["index.html"] = publicPath + "index.html"
	return m
}

func renderManifest(files map[string]string, entrypoints []string) ([]byte, error) {
	if entrypoints == nil {
		entrypoints = []string{}
	}
	return json.MarshalIndent(manifest{Files: files, Entrypoints: entrypoints}, "", "  ")
}
