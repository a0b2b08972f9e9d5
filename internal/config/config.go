package config

import (
	"fmt"
	"time"

	"github.com/voltmetric/billscan/internal/pipeline"
	"github.com/voltmetric/billscan/internal/recognize"
	"github.com/voltmetric/billscan/internal/sizing"
)

// DefaultConfig returns the configuration used when no file, environment
// variable or flag says otherwise. The scan section mirrors the pipeline
// defaults so a dumped config file is self-describing.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	s := sizing.DefaultParameters()
	return Config{
		LogLevel: "info",
		Scan: ScanConfig{
			Engine:            p.Recognize.Engine,
			ModelPath:         p.Recognize.ONNX.ModelPath,
			TesseractLanguage: p.Recognize.Tesseract.Language,
			MaxImageWidth:     p.MaxImageWidth,
			MaxInFlight:       p.Parallel.MaxInFlight,
			ROITimeoutSec:     int(p.Parallel.ROITimeout / time.Second),
			MinMonths:         p.Fusion.MinMonths,
			MaxMonths:         p.Fusion.MaxMonths,
		},
		Sizing: SizingConfig{
			PanelWattPeak:  s.PanelWattPeak,
			YieldKwhPerKwp: s.YieldKwhPerKwp,
			CoverageTarget: s.CoverageTarget,
			AutonomyDays:   s.AutonomyDays,
			BatteryStepKwh: s.BatteryStepKwh,
			MinBatteryKwh:  s.MinBatteryKwh,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			MaxUploadMB:        20,
			TimeoutSec:         120,
			ShutdownTimeoutSec: 10,
			RateLimitPerMin:    30,
		},
	}
}

// Validate rejects configurations no component could run with.
func (c *Config) Validate() error {
	switch c.Scan.Engine {
	case "", recognize.EngineONNX, recognize.EngineTesseract, recognize.EngineVision:
	default:
		return fmt.Errorf("scan.engine: unknown engine %q", c.Scan.Engine)
	}
	if c.Scan.MaxImageWidth < 0 {
		return fmt.Errorf("scan.max_image_width: must be >= 0, got %d", c.Scan.MaxImageWidth)
	}
	if c.Scan.MinMonths < 0 || c.Scan.MaxMonths < 0 {
		return fmt.Errorf("scan month bounds must be >= 0")
	}
	if c.Scan.MinMonths > 0 && c.Scan.MaxMonths > 0 && c.Scan.MinMonths > c.Scan.MaxMonths {
		return fmt.Errorf("scan.min_months %d exceeds scan.max_months %d", c.Scan.MinMonths, c.Scan.MaxMonths)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: out of range: %d", c.Server.Port)
	}
	if c.Sizing.PanelWattPeak < 0 {
		return fmt.Errorf("sizing.panel_watt_peak: must be >= 0")
	}
	if c.Sizing.YieldKwhPerKwp < 0 {
		return fmt.Errorf("sizing.yield_kwh_per_kwp: must be >= 0")
	}
	return nil
}

// PipelineConfig projects the scan section onto the pipeline configuration,
// leaving defaults in place for unset keys.
func (c *Config) PipelineConfig() pipeline.Config {
	p := pipeline.DefaultConfig()
	if c.Scan.Engine != "" {
		p.Recognize.Engine = c.Scan.Engine
	}
	if c.Scan.ModelPath != "" {
		p.Recognize.ONNX.ModelPath = c.Scan.ModelPath
	}
	if c.Scan.OnnxLibraryPath != "" {
		p.Recognize.ONNX.LibraryPath = c.Scan.OnnxLibraryPath
	}
	if c.Scan.TesseractLanguage != "" {
		p.Recognize.Tesseract.Language = c.Scan.TesseractLanguage
	}
	if c.Scan.MaxImageWidth > 0 {
		p.MaxImageWidth = c.Scan.MaxImageWidth
	}
	if c.Scan.MaxInFlight > 0 {
		p.Parallel.MaxInFlight = c.Scan.MaxInFlight
	}
	if c.Scan.ROITimeoutSec > 0 {
		p.Parallel.ROITimeout = time.Duration(c.Scan.ROITimeoutSec) * time.Second
	}
	if c.Scan.MinMonths > 0 {
		p.Fusion.MinMonths = c.Scan.MinMonths
	}
	if c.Scan.MaxMonths > 0 {
		p.Fusion.MaxMonths = c.Scan.MaxMonths
	}
	if c.Scan.NumThreads > 0 {
		p.Recognize.ONNX.NumThreads = c.Scan.NumThreads
	}
	return p
}

// SizingParameters projects the sizing section onto the calculator
// parameters.
func (c *Config) SizingParameters() sizing.Parameters {
	s := sizing.DefaultParameters()
	if c.Sizing.PanelWattPeak > 0 {
		s.PanelWattPeak = c.Sizing.PanelWattPeak
	}
	if c.Sizing.YieldKwhPerKwp > 0 {
		s.YieldKwhPerKwp = c.Sizing.YieldKwhPerKwp
	}
	if c.Sizing.CoverageTarget > 0 {
		s.CoverageTarget = c.Sizing.CoverageTarget
	}
	if c.Sizing.AutonomyDays > 0 {
		s.AutonomyDays = c.Sizing.AutonomyDays
	}
	if c.Sizing.BatteryStepKwh > 0 {
		s.BatteryStepKwh = c.Sizing.BatteryStepKwh
	}
	if c.Sizing.MinBatteryKwh > 0 {
		s.MinBatteryKwh = c.Sizing.MinBatteryKwh
	}
	if c.Sizing.MaxPanels > 0 {
		s.MaxPanels = c.Sizing.MaxPanels
	}
	return s
}
