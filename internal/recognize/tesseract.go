package recognize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig configures the Tesseract engine adapter.
type TesseractConfig struct {
	Language string // traineddata language, digits only need "eng"
}

// DefaultTesseractConfig returns the default Tesseract configuration.
func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{Language: "eng"}
}

// TesseractEngine recognizes label ROIs with a local Tesseract instance,
// restricted to a digit whitelist and single-line segmentation. The native
// client is not safe for concurrent use, so calls are serialized.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine creates and configures a reusable Tesseract client.
func NewTesseractEngine(cfg TesseractConfig) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tesseract language: %w", err)
		}
	}
	if err := client.SetWhitelist(digitCharset); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set tesseract whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set tesseract page segmentation mode: %w", err)
	}
	return &TesseractEngine{client: client}, nil
}

// Recognize runs Tesseract on an enhanced label ROI.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("encode roi: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return Result{}, errors.New("tesseract client is closed")
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("set tesseract image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	res := Result{Text: text}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err == nil {
		var sum float64
		for _, b := range boxes {
			res.Words = append(res.Words, Word{
				Text:        b.Word,
				Confidence:  b.Confidence,
				BoundingBox: b.Box,
			})
			sum += b.Confidence
		}
		if len(boxes) > 0 {
			res.Confidence = sum / float64(len(boxes))
		}
	}
	return res, nil
}

// Close releases the native Tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
