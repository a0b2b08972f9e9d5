package locator

import (
	"errors"
	"image"
	"log/slog"

	"github.com/voltmetric/billscan/internal/profile"
	"github.com/voltmetric/billscan/internal/utils"
)

// AxisConfig holds tuning constants for Y-axis exclusion.
type AxisConfig struct {
	InkThreshold uint8   // luminance below this counts as ink
	SmoothWindow int     // moving-average window for the column profile
	BandTop      float64 // vertical band where bars are expected, avoiding headers
	BandBottom   float64
	OnsetFrac    float64 // density fraction of the profile max marking ink onset
	MaxAxisFrac  float64 // widest leading run still treated as axis, fraction of width
	AxisZoneFrac float64 // axis candidates must start within this left fraction
	BarPeakFrac  float64 // runs peaking above this fraction of max are bars, never axis
	SafetyMargin int     // pixels kept left of the first bar run
}

// DefaultAxisConfig returns the default axis exclusion configuration.
func DefaultAxisConfig() AxisConfig {
	return AxisConfig{
		InkThreshold: 200,
		SmoothWindow: 9,
		BandTop:      0.30,
		BandBottom:   0.92,
		OnsetFrac:    0.18,
		MaxAxisFrac:  0.15,
		AxisZoneFrac: 0.30,
		BarPeakFrac:  0.50,
		SafetyMargin: 2,
	}
}

// AxisResult is an axis-excluded chart image plus the cut position for
// coordinate bookkeeping.
type AxisResult struct {
	Image image.Image
	XCut  int // offset of the returned image's left edge within the input
}

// ExcludeAxis removes the left margin containing the Y-axis line and its
// scale numerals. The decision is made from column ink geometry alone:
// axis numerals occupy few text rows (low column density) and the axis line
// is thin (diluted by smoothing), while bars are wide and dense. Printed
// axis values never influence which pixels are kept.
func ExcludeAxis(img image.Image, cfg AxisConfig) (AxisResult, error) {
	if img == nil {
		return AxisResult{}, errors.New("input image is nil")
	}
	b := img.Bounds()
	band := image.Rect(
		b.Min.X,
		b.Min.Y+int(float64(b.Dy())*cfg.BandTop),
		b.Max.X,
		b.Min.Y+int(float64(b.Dy())*cfg.BandBottom),
	)

	cols := profile.Smooth(profile.ColumnInk(img, band, cfg.InkThreshold), cfg.SmoothWindow)
	maxInk := profile.Max(cols)
	if maxInk <= 0 {
		// Blank band: nothing to cut.
		return AxisResult{Image: img, XCut: 0}, nil
	}

	runs := profile.RunsAbove(cols, maxInk*cfg.OnsetFrac)
	maxAxisWidth := int(float64(b.Dx()) * cfg.MaxAxisFrac)
	axisZone := int(float64(b.Dx()) * cfg.AxisZoneFrac)

	// Skip leading axis-like runs until the first bar-like run.
	idx := 0
	for idx < len(runs) && isAxisLike(runs[idx], cols, maxInk, maxAxisWidth, axisZone, cfg) {
		idx++
	}
	if idx == 0 || idx >= len(runs) {
		return AxisResult{Image: img, XCut: 0}, nil
	}

	cut := runs[idx].Start - cfg.SafetyMargin
	if cut < 0 {
		cut = 0
	}
	cropped, err := utils.CropRect(img, image.Rect(b.Min.X+cut, b.Min.Y, b.Max.X, b.Max.Y))
	if err != nil {
		return AxisResult{}, err
	}
	slog.Debug("axis excluded",
		"x_cut", cut, "skipped_runs", idx,
		"width_before", b.Dx(), "width_after", cropped.Bounds().Dx())
	return AxisResult{Image: cropped, XCut: cut}, nil
}

// isAxisLike reports whether a density run looks like axis furniture rather
// than a bar: it starts in the left margin, is narrower than any plausible
// bar group, and never reaches bar-level ink density.
func isAxisLike(r profile.Run, cols []float64, maxInk float64, maxAxisWidth, axisZone int, cfg AxisConfig) bool {
	if r.Start >= axisZone || r.Len() > maxAxisWidth {
		return false
	}
	peak := 0.0
	for i := r.Start; i < r.End; i++ {
		if cols[i] > peak {
			peak = cols[i]
		}
	}
	return peak < maxInk*cfg.BarPeakFrac
}
