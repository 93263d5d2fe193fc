package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "oneiros",
	Short: "Dream recorder and interpreter",
	Long: `Oneiros records a spoken dream, transcribes it, reads it as a Jungian
analyst would and paints it, then lets you talk about it.

Configuration comes from an optional file (--config) and ONEIROS_* environment
variables, e.g. ONEIROS_LLM_API_KEY, ONEIROS_MODE=cloud, ONEIROS_PORT.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(interpretCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
