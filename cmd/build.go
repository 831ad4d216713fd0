package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/bundlr/internal/build"
	"github.com/conneroisu/bundlr/internal/config"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Bundle the project into the output directory",
	Long: `Bundle the project: resolve every entry, transform all modules, split
chunks and write the bundles, stylesheets, assets, static files and root
document. Production builds clean the output directory first. Nothing is
written when any module fails.

Examples:
  bundlr build                        # production build into dist/
  bundlr build --mode development     # unhashed, unminified build
  bundlr build --stats stats.yaml     # also write a build report`,
	RunE: runBuild,
}

var buildFlags flagKeys

func init() {
	rootCmd.AddCommand(buildCmd)

	buildFlags = addModeFlag(buildCmd.Flags(), config.ModeProduction).merge(addOutputFlags(buildCmd.Flags()))
	buildCmd.Flags().String("stats", "", "write a YAML build report to this file")
}

func runBuild(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if err := bindFlags(v, cmd.Flags(), buildFlags); err != nil {
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
	orch, err := build.New(cfg, build.Options{Fs: fs, Logger: logger})
	if err != nil {
		return err
	}

	res, buildErr := orch.Run(ctx)
	if statsPath, _ := cmd.Flags().GetString("stats"); statsPath != "" && res != nil {
		if err := writeStats(fs, statsPath, res); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	if buildErr != nil {
		if res != nil && res.Report != nil {
			for _, f := range res.Report.Failures() {
				fmt.Fprintf(cmd.ErrOrStderr(), "ERROR in %s: %v\n", f.Module, f.Err)
			}
		}
		return fmt.Errorf("build failed: %w", buildErr)
	}

	for _, d := range res.Report.Diagnostics() {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING %v\n", d)
	}
	for _, c := range res.Report.Cycles() {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING %v\n", c)
	}
	fmt.Fprintf(out, "Built %s bundle into %s\n\n", cfg.Mode, cfg.Output.Dir)
	printSummary(out, res)
	return nil
}
