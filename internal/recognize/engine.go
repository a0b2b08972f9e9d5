// Package recognize defines the character-recognition engine boundary and
// turns raw engine output into validated label candidates.
package recognize

import (
	"context"
	"fmt"
	"image"
)

// Word is a recognized token with its bounding box in ROI coordinates.
type Word struct {
	Text        string
	Confidence  float64 // 0-100
	BoundingBox image.Rectangle
}

// Result is the raw output of one recognition call.
type Result struct {
	Text       string
	Confidence float64 // 0-100
	Words      []Word
}

// Engine converts a label ROI image into text. Implementations wrap one
// concrete recognition backend each; the backend is chosen at construction
// time, never probed at call time.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (Result, error)
	Close() error
}

// Engine names accepted by NewEngine.
const (
	EngineONNX      = "onnx"
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
)

// Config selects and configures a recognition engine.
type Config struct {
	Engine    string // one of EngineONNX, EngineTesseract, EngineVision
	ONNX      ONNXConfig
	Tesseract TesseractConfig
	Vision    VisionConfig
}

// DefaultConfig returns the default engine configuration (offline ONNX).
func DefaultConfig() Config {
	return Config{
		Engine:    EngineONNX,
		ONNX:      DefaultONNXConfig(),
		Tesseract: DefaultTesseractConfig(),
		Vision:    DefaultVisionConfig(),
	}
}

// NewEngine constructs the configured engine. Construction is expensive for
// every backend (model load, native client, network client); callers should
// hold the instance for the process lifetime via a Provider rather than
// recreate it per image.
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	switch cfg.Engine {
	case EngineONNX, "":
		return NewONNXEngine(cfg.ONNX)
	case EngineTesseract:
		return NewTesseractEngine(cfg.Tesseract)
	case EngineVision:
		return NewVisionEngine(ctx, cfg.Vision)
	default:
		return nil, fmt.Errorf("unknown recognition engine %q", cfg.Engine)
	}
}
