// Package cmd is the bundlr command line.
//
// Configuration comes from, highest priority first:
//
//  1. command-line flags (--mode, --port, ...)
//  2. BUNDLR_* environment variables, e.g. BUNDLR_OUTPUT_DIR or BUNDLR_SERVER_PORT
//  3. the config file: --config, else BUNDLR_CONFIG_FILE, else .bundlr.yml
//     in the working directory
//  4. built-in defaults, which depend on the mode
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/bundlr/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bundlr",
	Short: "A frontend module bundler",
	Long: `bundlr builds a browser application from its entry modules: it resolves
the import graph, runs loader stages over every module, splits the graph into
chunks and writes hashed bundles, stylesheets, assets and the root HTML document.

Quick Start:
  bundlr build                    Production build into dist/
  bundlr serve                    Development server with live reload
  bundlr version                  Show version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .bundlr.yml, can also use BUNDLR_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("BUNDLR_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".bundlr")
	}

	viper.SetEnvPrefix("BUNDLR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Cannot read config file %s: %v\n", cfgFile, err)
	}
}

// newLogger builds the process logger from the log.* keys.
func newLogger(v *viper.Viper) (logging.Logger, error) {
	cfg := logging.DefaultConfig()
	if s := v.GetString("log.level"); s != "" {
		level, err := logging.ParseLevel(s)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	format, err := logging.ParseFormat(v.GetString("log.format"))
	if err != nil {
		return nil, err
	}
	cfg.Format = format
	cfg.Output = os.Stderr
	return logging.NewLogger(cfg), nil
}
