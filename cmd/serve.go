package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/bundlr/internal/build"
	"github.com/conneroisu/bundlr/internal/config"
	"github.com/conneroisu/bundlr/internal/metrics"
	"github.com/conneroisu/bundlr/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server with live reload",
	Long: `Build the project in memory and serve it. Changed files trigger an
incremental rebuild; connected browsers reload when it succeeds and show an
error overlay when it fails, while the last good build keeps being served.

Endpoints:
  /__bundlr/ws        live reload websocket
  /__bundlr/status    current build as JSON
  /__bundlr/metrics   Prometheus metrics

Examples:
  bundlr serve                  # http://localhost:3001/
  bundlr serve --port 8080`,
	RunE: runServe,
}

var serveFlags flagKeys

func init() {
	rootCmd.AddCommand(serveCmd)

	serveFlags = addModeFlag(serveCmd.Flags(), config.ModeDevelopment).merge(addServerFlags(serveCmd.Flags()))
}

func runServe(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if err := bindFlags(v, cmd.Flags(), serveFlags); err != nil {
		return err
	}
	logger, err := newLogger(v)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	recorder := metrics.NewPrometheusRecorder(nil)
	orch, err := build.New(cfg, build.Options{
		Fs:       fs,
		Logger:   logger,
		Recorder: recorder,
		Inline:   []string{server.ClientScript()},
	})
	if err != nil {
		return err
	}

	srv := server.New(orch, server.Options{
		Fs:       fs,
		Logger:   logger,
		Recorder: recorder,
		Metrics:  recorder.Handler(),
	})
	return srv.Start(ctx)
}
