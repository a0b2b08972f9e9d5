package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltmetric/billscan/internal/recognize"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, recognize.EngineONNX, cfg.Scan.Engine)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Engine = "paddle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Scan.MinMonths = 10
	cfg.Scan.MaxMonths = 6
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestPipelineConfigProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Engine = recognize.EngineTesseract
	cfg.Scan.MaxImageWidth = 1200
	cfg.Scan.ROITimeoutSec = 15
	cfg.Scan.MinMonths = 6

	p := cfg.PipelineConfig()
	assert.Equal(t, recognize.EngineTesseract, p.Recognize.Engine)
	assert.Equal(t, 1200, p.MaxImageWidth)
	assert.Equal(t, 15*time.Second, p.Parallel.ROITimeout)
	assert.Equal(t, 6, p.Fusion.MinMonths)
	// Untouched keys keep pipeline defaults.
	assert.Equal(t, 3, p.Parallel.MaxInFlight)
}

func TestSizingParametersProjection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sizing.PanelWattPeak = 500
	cfg.Sizing.MaxPanels = 14

	s := cfg.SizingParameters()
	assert.Equal(t, 500, s.PanelWattPeak)
	assert.Equal(t, 14, s.MaxPanels)
	assert.InDelta(t, 1000, s.YieldKwhPerKwp, 1e-9)
}

func TestLoaderReadsYamlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billscan.yaml")
	content := []byte(`
log_level: debug
scan:
  engine: tesseract
  max_in_flight: 5
sizing:
  panel_watt_peak: 415
server:
  port: 9090
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	loader := NewLoaderWith(viper.New())
	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, recognize.EngineTesseract, cfg.Scan.Engine)
	assert.Equal(t, 5, cfg.Scan.MaxInFlight)
	assert.Equal(t, 415, cfg.Sizing.PanelWattPeak)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, DefaultConfig().Server.MaxUploadMB, cfg.Server.MaxUploadMB)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan:\n  engine: paddle\n"), 0o600))

	_, err := NewLoaderWith(viper.New()).LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoaderMissingExplicitFile(t *testing.T) {
	_, err := NewLoaderWith(viper.New()).LoadWithFile("/nonexistent/billscan.yaml")
	require.Error(t, err)
}

func TestLoaderEnvironmentOverride(t *testing.T) {
	t.Setenv("BILLSCAN_SCAN_ENGINE", recognize.EngineVision)
	t.Setenv("BILLSCAN_SERVER_PORT", "7070")

	loader := NewLoaderWith(viper.New())
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, recognize.EngineVision, cfg.Scan.Engine)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestWriteDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, WriteDefaultConfigFile(path))

	cfg, err := NewLoaderWith(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scan.Engine, cfg.Scan.Engine)
}
