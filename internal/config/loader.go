package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "billscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "BILLSCAN"
)

// Loader resolves configuration from files, environment variables and
// bound flags, in that order of increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings made in the command layer take effect.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on a private viper instance, for tests.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load resolves and validates the configuration. A missing config file is
// fine; defaults and environment variables carry it.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.resolve("")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFile is like Load but reads the given config file, which must
// exist.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}
	cfg, err := l.resolve(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) resolve(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file actually read.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}
	l.v.AddConfigPath("/etc/billscan")
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "billscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "billscan"))
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("scan.engine", defaults.Scan.Engine)
	l.v.SetDefault("scan.model_path", defaults.Scan.ModelPath)
	l.v.SetDefault("scan.tesseract_language", defaults.Scan.TesseractLanguage)
	l.v.SetDefault("scan.max_image_width", defaults.Scan.MaxImageWidth)
	l.v.SetDefault("scan.max_in_flight", defaults.Scan.MaxInFlight)
	l.v.SetDefault("scan.roi_timeout_sec", defaults.Scan.ROITimeoutSec)
	l.v.SetDefault("scan.min_months", defaults.Scan.MinMonths)
	l.v.SetDefault("scan.max_months", defaults.Scan.MaxMonths)

	l.v.SetDefault("sizing.panel_watt_peak", defaults.Sizing.PanelWattPeak)
	l.v.SetDefault("sizing.yield_kwh_per_kwp", defaults.Sizing.YieldKwhPerKwp)
	l.v.SetDefault("sizing.coverage_target", defaults.Sizing.CoverageTarget)
	l.v.SetDefault("sizing.autonomy_days", defaults.Sizing.AutonomyDays)
	l.v.SetDefault("sizing.battery_step_kwh", defaults.Sizing.BatteryStepKwh)
	l.v.SetDefault("sizing.min_battery_kwh", defaults.Sizing.MinBatteryKwh)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout_sec", defaults.Server.ShutdownTimeoutSec)
	l.v.SetDefault("server.rate_limit_per_min", defaults.Server.RateLimitPerMin)
}

// WriteDefaultConfigFile writes the default configuration to filename as a
// starting point for site-specific tuning.
func WriteDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = "billscan.yaml"
	}
	v := viper.New()
	l := &Loader{v: v}
	l.setDefaults()
	return v.WriteConfigAs(filename)
}
