// Package server is the development server: it serves the latest good
// in-memory build, rebuilds on file changes and notifies browsers over a
// websocket.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/bundlr/internal/build"
	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/logging"
	"github.com/conneroisu/bundlr/internal/metrics"
	"github.com/conneroisu/bundlr/internal/watcher"
)

// Reserved paths.
const (
	WebSocketPath = "/__bundlr/ws"
	StatusPath    = "/__bundlr/status"
	MetricsPath   = "/__bundlr/metrics"
)

// Options carries the collaborators of a Server.
type Options struct {
	Fs       afero.Fs
	Logger   logging.Logger
	Recorder metrics.Recorder
	// Metrics serves MetricsPath when set.
	Metrics http.Handler
}

type failure struct {
	info []ErrorInfo
}

// Server serves one orchestrator's builds.
type Server struct {
	cfg     *config.Config
	orch    *build.Orchestrator
	fs      afero.Fs
	logger  logging.Logger
	hub     *Hub
	metrics http.Handler

	current atomic.Pointer[build.Result]
	failed  atomic.Pointer[failure]

	httpServer   *http.Server
	serverMutex  sync.Mutex
	shutdownOnce sync.Once
}

// New creates a server for orch.
func New(orch *build.Orchestrator, opts Options) *Server {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	cfg := orch.Config()
	port := strconv.Itoa(cfg.Server.Port)
	origins := []string{
		net.JoinHostPort(cfg.Server.Host, port),
		"localhost:" + port,
		"127.0.0.1:" + port,
	}
	return &Server{
		cfg:     cfg,
		orch:    orch,
		fs:      opts.Fs,
		logger:  opts.Logger.WithComponent("server"),
		hub:     NewHub(origins, opts.Recorder, opts.Logger),
		metrics: opts.Metrics,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Current returns the build being served, or nil before the first success.
func (s *Server) Current() *build.Result {
	return s.current.Load()
}

// Publish records a finished build. A good build replaces the served one
// and is announced as an update; a failed build is announced as errors
// and the previous good build stays in place.
func (s *Server) Publish(res *build.Result, err error) {
	ctx := context.Background()
	if err != nil {
		f := &failure{info: buildErrors(res, err)}
		s.failed.Store(f)
		if berr := s.hub.Broadcast(TypeErrors, newErrorsMessage(res, err)); berr != nil {
			s.logger.Error(ctx, berr, "Failed to broadcast build errors")
		}
		return
	}
	s.current.Store(res)
	s.failed.Store(nil)
	if berr := s.hub.Broadcast(TypeUpdate, newUpdateMessage(res)); berr != nil {
		s.logger.Error(ctx, berr, "Failed to broadcast update")
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, s.hub)
	mux.HandleFunc(StatusPath, s.handleStatus)
	if s.metrics != nil {
		mux.Handle(MetricsPath, s.metrics)
	}
	mux.HandleFunc("/", s.handleBuild)
	return s.logRequests(mux)
}

// Start runs the initial build, starts watching the project and serves
// HTTP until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)

	res, err := s.orch.Build(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.Publish(res, err)

	fw, err := s.newWatcher()
	if err != nil {
		return err
	}
	defer fw.Stop()
	batches := fw.Batches(ctx)
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- s.orch.Watch(ctx, batches, s.Publish)
	}()

	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Dev server listening", "url", s.cfg.ServerURL())
		serveErr <- server.ListenAndServe()
	}()
	if s.cfg.Server.Open {
		s.openBrowser(ctx, s.cfg.ServerURL())
	}

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case err := <-watchErr:
		_ = s.Shutdown(context.Background())
		if err != nil {
			return fmt.Errorf("watch failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) newWatcher() (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(s.cfg.Root, s.cfg.Server.Debounce, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw.AddFilter(watcher.IgnoreFilter(fw.Root(), s.cfg.Server.Ignore))
	fw.AddFilter(watcher.ExcludeDir(s.cfg.Output.Dir))
	fw.AddFilter(watcher.NoHiddenFilter)
	if err := fw.AddRecursive(fw.Root()); err != nil {
		fw.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", fw.Root(), err)
	}
	return fw, nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down dev server")
		s.serverMutex.Lock()
		server := s.httpServer
		s.serverMutex.Unlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
