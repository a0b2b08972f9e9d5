package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/voltmetric/billscan/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP scanning API",
	Long: `Start an HTTP server exposing the bill scanning pipeline.

Endpoints:
  POST /v1/scan     - scan an uploaded bill photo
  POST /v1/scan/pdf - scan an uploaded bill PDF
  GET  /healthz     - liveness check
  GET  /metrics     - Prometheus metrics

Examples:
  billscan serve
  billscan serve --port 8080
  billscan serve --host 0.0.0.0 --port 3000`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		srv, err := server.NewServer(server.Config{
			Host:               host,
			Port:               port,
			MaxUploadMB:        int64(cfg.Server.MaxUploadMB),
			TimeoutSec:         cfg.Server.TimeoutSec,
			ShutdownTimeoutSec: cfg.Server.ShutdownTimeoutSec,
			RateLimitPerMin:    cfg.Server.RateLimitPerMin,
			Pipeline:           cfg.PipelineConfig(),
			Sizing:             cfg.SizingParameters(),
		})
		if err != nil {
			return fmt.Errorf("initialize server: %w", err)
		}
		defer func() { _ = srv.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "", "host interface to bind")
	serveCmd.Flags().Int("port", 0, "port to listen on")

	rootCmd.AddCommand(serveCmd)
}
