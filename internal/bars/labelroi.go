package bars

import (
	"errors"
	"fmt"
	"image"

	"github.com/voltmetric/billscan/internal/utils"
)

// ROIConfig holds tuning constants for label region extraction and
// enhancement.
type ROIConfig struct {
	WidenFrac         float64 // horizontal widening on each side of the bar span
	HeightFrac        float64 // ROI height as a fraction of chart height
	Gap               int     // pixels between bar top and ROI bottom
	UpscaleFactor     int     // nearest-neighbor upscale before recognition
	BinarizeThreshold uint8   // gray cutoff rendering digits solid black
}

// DefaultROIConfig returns the default label ROI configuration.
func DefaultROIConfig() ROIConfig {
	return ROIConfig{
		WidenFrac:         0.18,
		HeightFrac:        0.16,
		Gap:               2,
		UpscaleFactor:     3,
		BinarizeThreshold: 185,
	}
}

// LabelROI crops the region immediately above the bar's top edge, where the
// numeric label is printed, and enhances it for digit recognition: upscale
// with nearest-neighbor to keep edges sharp, grayscale, contrast stretch,
// then binarize.
func LabelROI(img image.Image, seg BarSegment, cfg ROIConfig) (image.Image, image.Rectangle, error) {
	if img == nil {
		return nil, image.Rectangle{}, errors.New("input image is nil")
	}
	b := img.Bounds()

	widen := int(float64(seg.XRight-seg.XLeft) * cfg.WidenFrac)
	height := int(float64(b.Dy()) * cfg.HeightFrac)
	if height < 4 {
		height = 4
	}
	bottom := seg.TopY - cfg.Gap
	roi := image.Rect(seg.XLeft-widen, bottom-height, seg.XRight+widen, bottom)

	clamped, ok := utils.ClampRect(roi, b)
	if !ok {
		return nil, image.Rectangle{}, fmt.Errorf("label region %v lies outside chart bounds %v", roi, b)
	}

	patch, err := utils.CropRect(img, clamped)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	scaled, err := utils.UpscaleNearest(patch, cfg.UpscaleFactor)
	if err != nil {
		return nil, image.Rectangle{}, err
	}
	gray := utils.Grayscale(scaled)
	enhanced := utils.Binarize(utils.ContrastStretch(gray), cfg.BinarizeThreshold)
	return enhanced, clamped, nil
}
