// Package cmd implements the pojie command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pojie",
	Short: "Dictionary-driven WiFi credential auditing",
	Long: `pojie tries the candidates of a wordlist against one or more WiFi
networks, one connection attempt at a time, and reports the credential that
connected.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (environment and defaults only when empty)")
}
