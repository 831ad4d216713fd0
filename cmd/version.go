package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/bundlr/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the bundlr version, commit, build time, Go version and platform.

Examples:
  bundlr version                 # human readable
  bundlr version --short         # version only
  bundlr version --format json   # machine readable`,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringP("format", "f", "text", "output format (text, json, yaml)")
	versionCmd.Flags().Bool("short", false, "show the short version only")
}

func runVersion(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	short, _ := cmd.Flags().GetBool("short")
	info := version.Get()
	out := cmd.OutOrStdout()

	switch format {
	case "text":
		if short {
			fmt.Fprintln(out, info.Short())
		} else {
			fmt.Fprintln(out, info.String())
		}
		return nil
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		return yaml.NewEncoder(out).Encode(info)
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}
}
