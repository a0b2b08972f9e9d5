package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voltmetric/billscan/internal/config"
)

// configCmd groups configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:          "init",
	Short:        "Write a default configuration file",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		if err := config.WriteDefaultConfigFile(out); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		if out == "" {
			out = "billscan.yaml"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("output", "", "destination file (default billscan.yaml)")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
