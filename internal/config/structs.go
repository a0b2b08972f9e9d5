package config

// Config is the complete billscan configuration, loadable from file,
// environment variables and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Scan   ScanConfig   `mapstructure:"scan" yaml:"scan" json:"scan"`
	Sizing SizingConfig `mapstructure:"sizing" yaml:"sizing" json:"sizing"`
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// ScanConfig tunes the chart extraction pipeline. Zero values fall back to
// the pipeline defaults, so a config file only needs the keys it changes.
type ScanConfig struct {
	Engine            string `mapstructure:"engine" yaml:"engine" json:"engine"`
	ModelPath         string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	OnnxLibraryPath   string `mapstructure:"onnx_library_path" yaml:"onnx_library_path" json:"onnx_library_path"`
	TesseractLanguage string `mapstructure:"tesseract_language" yaml:"tesseract_language" json:"tesseract_language"`
	MaxImageWidth     int    `mapstructure:"max_image_width" yaml:"max_image_width" json:"max_image_width"`
	MaxInFlight       int    `mapstructure:"max_in_flight" yaml:"max_in_flight" json:"max_in_flight"`
	ROITimeoutSec     int    `mapstructure:"roi_timeout_sec" yaml:"roi_timeout_sec" json:"roi_timeout_sec"`
	MinMonths         int    `mapstructure:"min_months" yaml:"min_months" json:"min_months"`
	MaxMonths         int    `mapstructure:"max_months" yaml:"max_months" json:"max_months"`
	NumThreads        int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// SizingConfig tunes the PV and battery recommendation.
type SizingConfig struct {
	PanelWattPeak  int     `mapstructure:"panel_watt_peak" yaml:"panel_watt_peak" json:"panel_watt_peak"`
	YieldKwhPerKwp float64 `mapstructure:"yield_kwh_per_kwp" yaml:"yield_kwh_per_kwp" json:"yield_kwh_per_kwp"`
	CoverageTarget float64 `mapstructure:"coverage_target" yaml:"coverage_target" json:"coverage_target"`
	AutonomyDays   float64 `mapstructure:"autonomy_days" yaml:"autonomy_days" json:"autonomy_days"`
	BatteryStepKwh float64 `mapstructure:"battery_step_kwh" yaml:"battery_step_kwh" json:"battery_step_kwh"`
	MinBatteryKwh  float64 `mapstructure:"min_battery_kwh" yaml:"min_battery_kwh" json:"min_battery_kwh"`
	MaxPanels      int     `mapstructure:"max_panels" yaml:"max_panels" json:"max_panels"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string `mapstructure:"host" yaml:"host" json:"host"`
	Port               int    `mapstructure:"port" yaml:"port" json:"port"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec         int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
	RateLimitPerMin    int    `mapstructure:"rate_limit_per_min" yaml:"rate_limit_per_min" json:"rate_limit_per_min"`
}
