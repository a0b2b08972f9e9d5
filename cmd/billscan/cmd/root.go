package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/voltmetric/billscan/internal/config"
	"github.com/voltmetric/billscan/internal/version"
)

var (
	globalConfig *config.Config
	cfgFile      string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "billscan",
	Short: "Extract electricity consumption from utility bill photos",
	Long: `billscan reads the monthly consumption history bar chart printed on
electricity bills and turns it into an average monthly kWh figure for
solar PV and battery sizing.

This tool provides:
- Chart zone detection and bar segmentation from phone photos
- Digit recognition via an offline ONNX model, Tesseract, or Google Vision
- Temporal fusion of up to twelve monthly readings
- PV array and battery sizing from the fused estimate
- Both CLI and server modes

Examples:
  billscan scan bill.jpg
  billscan scan bill.pdf --pages 1-2
  billscan serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.PersistentFlags().GetBool("version"); v {
			ver, commit, date := version.Info()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "billscan %s (commit: %s, built: %s)\n", ver, commit, date)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command so tests can execute commands
// without os.Exit.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

// GetConfig returns the resolved configuration, loading it on first use.
func GetConfig() *config.Config {
	if globalConfig == nil {
		initConfig()
	}
	return globalConfig
}

func initConfig() {
	loader := config.NewLoader()
	cfg, err := loader.LoadWithFile(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	globalConfig = cfg
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/billscan, /etc/billscan)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()

		level := slog.LevelInfo
		if cfg.Verbose {
			level = slog.LevelDebug
		} else {
			switch cfg.LogLevel {
			case "debug":
				level = slog.LevelDebug
			case "warn":
				level = slog.LevelWarn
			case "error":
				level = slog.LevelError
			}
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}
}
