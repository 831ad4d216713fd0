package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// StatusResponse is the body of StatusPath.
type StatusResponse struct {
	State      string      `json:"state"`
	BuildID    string      `json:"buildId,omitempty"`
	Mode       string      `json:"mode"`
	Started    *time.Time  `json:"started,omitempty"`
	DurationMs int64       `json:"durationMs"`
	Modules    int         `json:"modules"`
	Chunks     int         `json:"chunks"`
	Files      int         `json:"files"`
	Warnings   int         `json:"warnings"`
	Clients    int         `json:"clients"`
	Errors     []ErrorInfo `json:"errors"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := StatusResponse{
		State:   string(s.orch.State()),
		Mode:    string(s.cfg.Mode),
		Clients: s.hub.ClientCount(),
		Errors:  []ErrorInfo{},
	}
	if res := s.Current(); res != nil {
		started := res.Started
		status.BuildID = res.BuildID
		status.Started = &started
		status.DurationMs = res.Duration.Milliseconds()
		status.Modules = len(res.Graph.Nodes)
		status.Chunks = len(res.Chunks)
		status.Files = len(res.Artifacts)
		status.Warnings = len(res.Report.Diagnostics()) + len(res.Report.Cycles())
	}
	if f := s.failed.Load(); f != nil {
		status.Errors = f.info
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode status response")
	}
}

// handleBuild serves build artifacts, then public dir files, then the root
// document for any other GET.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res := s.Current()
	if res == nil {
		s.writeUnavailable(w)
		return
	}

	name, ok := s.relativePath(r.URL.Path)
	if ok {
		if name == "" {
			name = "index.html"
		}
		if art, found := res.Artifact(name); found {
			w.Header().Set("Cache-Control", "no-cache")
			http.ServeContent(w, r, name, res.Started, bytes.NewReader(art.Data))
			return
		}
		if s.servePublic(w, r, name) {
			return
		}
	}

	if !s.cfg.HistoryFallback() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", res.Started, bytes.NewReader(res.Document))
}

// relativePath strips the public path from an URL path. It reports false
// for paths outside the public path.
func (s *Server) relativePath(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	base := "/"
	if strings.HasPrefix(s.cfg.Output.PublicPath, "/") {
		base = s.cfg.Output.PublicPath
	}
	base = strings.TrimSuffix(base, "/")
	if clean == base || clean == "/" && base == "" {
		return "", true
	}
	if !strings.HasPrefix(clean, base+"/") {
		return "", false
	}
	return strings.TrimPrefix(clean, base+"/"), true
}

// servePublic serves a file of the public dir that was added after the last
// build.
func (s *Server) servePublic(w http.ResponseWriter, r *http.Request, name string) bool {
	if name == "" {
		return false
	}
	full := filepath.Join(s.cfg.PublicDir, filepath.FromSlash(name))
	info, err := s.fs.Stat(full)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := s.fs.Open(full)
	if err != nil {
		return false
	}
	defer f.Close()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return true
}

func (s *Server) writeUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	msg := "bundlr: no successful build yet\n"
	if f := s.failed.Load(); f != nil {
		for _, e := range f.info {
			if e.Module != "" {
				msg += e.Module + ": "
			}
			msg += e.Message + "\n"
		}
	}
	_, _ = w.Write([]byte(msg))
}
