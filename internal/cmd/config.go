package cmd

import (
	"fmt"

	pojie "github.com/Pojie/pojie-go"
	"github.com/Pojie/pojie-go/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after applying the file, POJIE_* environment variables and defaults.`,
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	if _, err := loader.Load(); err != nil {
		return err
	}
	enc := &pojie.JSONEncoder{Indent: "  "}
	out, err := enc.Encode(loader.Settings())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
