package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/voltmetric/billscan/internal/fusion"
	"github.com/voltmetric/billscan/internal/pdfbill"
	"github.com/voltmetric/billscan/internal/pipeline"
	"github.com/voltmetric/billscan/internal/sizing"
)

// ScanResult is the per-file CLI output.
type ScanResult struct {
	File     string                     `json:"file"`
	Estimate fusion.ConsumptionEstimate `json:"estimate"`
	Sizing   *sizing.Recommendation     `json:"sizing,omitempty"`
	Report   *pipeline.Report           `json:"report,omitempty"`
}

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan [files...]",
	Short: "Scan bill photos or PDFs for monthly consumption",
	Long: `Scan one or more bill images (JPEG, PNG, BMP) or PDFs, extract the
consumption history chart and print the fused estimate as JSON.

Examples:
  billscan scan bill.jpg
  billscan scan bill.pdf --pages 1
  billscan scan bill.jpg --manual-kwh 420
  billscan scan bill.jpg --engine tesseract --debug`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files provided")
		}

		cfg := GetConfig()
		pcfg := cfg.PipelineConfig()

		builder := pipeline.NewBuilder().WithConfig(pcfg)
		if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
			builder = builder.WithEngine(engine)
		}
		if model, _ := cmd.Flags().GetString("model"); model != "" {
			builder = builder.WithModelPath(model)
		}
		scanner, err := builder.Build()
		if err != nil {
			return fmt.Errorf("initialize scanner: %w", err)
		}
		defer func() { _ = scanner.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		manualKwh, _ := cmd.Flags().GetFloat64("manual-kwh")
		pages, _ := cmd.Flags().GetString("pages")
		debug, _ := cmd.Flags().GetBool("debug")

		results := make([]ScanResult, 0, len(args))
		for _, path := range args {
			res, err := scanOne(ctx, scanner, path, pages)
			if err != nil {
				return err
			}
			if rec, err := sizing.Recommend(res.Estimate, manualKwh, cfg.SizingParameters()); err == nil {
				res.Sizing = &rec
			}
			if !debug {
				res.Report = nil
			}
			results = append(results, res)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	},
}

// scanOne handles a single input file, dispatching PDFs to page-image
// extraction.
func scanOne(ctx context.Context, scanner *pipeline.Scanner, path, pages string) (ScanResult, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return scanPDF(ctx, scanner, path, pages)
	}
	est, report, err := scanner.ScanFile(ctx, path)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan %s: %w", path, err)
	}
	return ScanResult{File: path, Estimate: est, Report: report}, nil
}

// scanPDF scans extracted page rasters biggest-first until one reads
// cleanly.
func scanPDF(ctx context.Context, scanner *pipeline.Scanner, path, pages string) (ScanResult, error) {
	candidates, err := pdfbill.Extract(path, pages)
	if err != nil {
		return ScanResult{}, fmt.Errorf("extract %s: %w", path, err)
	}

	best := fusion.ErrorEstimate("pdf contains no page images")
	var bestReport *pipeline.Report
	for _, page := range candidates {
		est, report, err := scanner.ScanImage(ctx, page.Image)
		if err != nil {
			return ScanResult{}, fmt.Errorf("scan %s page %d: %w", path, page.Page, err)
		}
		if est.Status == fusion.StatusOk {
			return ScanResult{File: path, Estimate: est, Report: report}, nil
		}
		if best.Status == fusion.StatusError && est.Status == fusion.StatusInsufficient {
			best, bestReport = est, report
		}
	}
	return ScanResult{File: path, Estimate: best, Report: bestReport}, nil
}

func init() {
	scanCmd.Flags().String("engine", "", "recognition engine (onnx, tesseract, vision)")
	scanCmd.Flags().String("model", "", "path to the ONNX digit recognition model")
	scanCmd.Flags().String("pages", "", "PDF pages to consider, e.g. \"1\" or \"1-2\"")
	scanCmd.Flags().Float64("manual-kwh", 0, "manually entered average monthly kWh (overrides the scan)")
	scanCmd.Flags().Bool("debug", false, "include per-stage diagnostics in the output")

	rootCmd.AddCommand(scanCmd)
}
