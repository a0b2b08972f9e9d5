package pipeline

import (
	"errors"
	"time"

	"github.com/voltmetric/billscan/internal/bars"
	"github.com/voltmetric/billscan/internal/fusion"
	"github.com/voltmetric/billscan/internal/locator"
	"github.com/voltmetric/billscan/internal/recognize"
)

// Config holds configuration for the bill scanning pipeline and its stages.
type Config struct {
	// MaxImageWidth bounds the working resolution. Phone photos arrive at
	// 3000+ px wide; the chart geometry survives downscaling and every
	// stage gets cheaper.
	MaxImageWidth int

	Locator   locator.Config
	Axis      locator.AxisConfig
	Bars      bars.Config
	LabelROI  bars.ROIConfig
	Recognize recognize.Config
	Fusion    fusion.Config

	Parallel ParallelConfig
}

// ParallelConfig bounds per-scan label recognition concurrency.
type ParallelConfig struct {
	MaxInFlight int           // concurrent Recognize calls per scan
	ROITimeout  time.Duration // per-label recognition deadline
}

// DefaultParallelConfig returns the default concurrency settings.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxInFlight: 3,
		ROITimeout:  30 * time.Second,
	}
}

// DefaultConfig returns a default pipeline config with stage defaults.
func DefaultConfig() Config {
	return Config{
		MaxImageWidth: 1600,
		Locator:       locator.DefaultConfig(),
		Axis:          locator.DefaultAxisConfig(),
		Bars:          bars.DefaultConfig(),
		LabelROI:      bars.DefaultROIConfig(),
		Recognize:     recognize.DefaultConfig(),
		Fusion:        fusion.DefaultConfig(),
		Parallel:      DefaultParallelConfig(),
	}
}

// Builder constructs a Scanner with fluent configuration.
type Builder struct {
	cfg      Config
	provider *recognize.Provider
}

// NewBuilder creates a new scanner builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithEngine selects the recognition backend by name
// (recognize.EngineONNX, EngineTesseract or EngineVision).
func (b *Builder) WithEngine(name string) *Builder {
	if name != "" {
		b.cfg.Recognize.Engine = name
	}
	return b
}

// WithModelPath overrides the ONNX digit model path directly.
func (b *Builder) WithModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Recognize.ONNX.ModelPath = path
	}
	return b
}

// WithProvider injects a shared recognition provider. The scanner then
// borrows engines from it and leaves shutdown to the owner.
func (b *Builder) WithProvider(p *recognize.Provider) *Builder {
	b.provider = p
	return b
}

// WithMaxImageWidth sets the working resolution bound (if >0).
func (b *Builder) WithMaxImageWidth(w int) *Builder {
	if w > 0 {
		b.cfg.MaxImageWidth = w
	}
	return b
}

// WithMaxInFlight sets the concurrent recognition bound per scan (if >0).
func (b *Builder) WithMaxInFlight(n int) *Builder {
	if n > 0 {
		b.cfg.Parallel.MaxInFlight = n
	}
	return b
}

// WithROITimeout sets the per-label recognition deadline (if >0).
func (b *Builder) WithROITimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.Parallel.ROITimeout = d
	}
	return b
}

// WithThreads sets the ONNX intra-op thread count (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Recognize.ONNX.NumThreads = n
	}
	return b
}

// WithConfig replaces the whole config, for callers that load it from file.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration is coherent.
func (b *Builder) Validate() error {
	switch b.cfg.Recognize.Engine {
	case recognize.EngineONNX, recognize.EngineTesseract, recognize.EngineVision:
	default:
		return errors.New("unknown recognition engine: " + b.cfg.Recognize.Engine)
	}
	if b.cfg.MaxImageWidth <= 0 {
		return errors.New("max image width must be > 0")
	}
	if b.cfg.Parallel.MaxInFlight <= 0 {
		return errors.New("max in-flight recognitions must be > 0")
	}
	if b.cfg.Parallel.ROITimeout <= 0 {
		return errors.New("recognition timeout must be > 0")
	}
	if b.cfg.Fusion.MinMonths < 1 || b.cfg.Fusion.MaxMonths < b.cfg.Fusion.MinMonths {
		return errors.New("fusion month bounds are inconsistent")
	}
	return nil
}

// Scanner runs the chart extraction pipeline on decoded bill images.
// A Scanner is safe for concurrent use; the recognition engine behind it
// is shared across runs through the provider.
type Scanner struct {
	cfg          Config
	provider     *recognize.Provider
	ownsProvider bool
}

// Build initializes the scanner. The recognition engine itself is
// constructed lazily on the first scan.
func (b *Builder) Build() (*Scanner, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{cfg: b.cfg, provider: b.provider}
	if s.provider == nil {
		s.provider = recognize.NewProvider(b.cfg.Recognize)
		s.ownsProvider = true
	}
	return s, nil
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config { return s.cfg }

// Close releases the recognition engine if the scanner owns it.
func (s *Scanner) Close() error {
	if s.ownsProvider && s.provider != nil {
		return s.provider.Shutdown()
	}
	return nil
}
