// Package locator finds the consumption-history bar chart inside a full-page
// bill photo and strips the Y-axis margin, using ink-density heuristics only.
package locator

import (
	"errors"
	"image"
	"log/slog"

	"github.com/voltmetric/billscan/internal/profile"
	"github.com/voltmetric/billscan/internal/utils"
)

// Config holds the empirically tuned constants for chart zone detection.
// Values are calibration starting points, overridable via configuration.
type Config struct {
	DownscaleWidth int     // working width for density analysis
	InkThreshold   uint8   // luminance below this counts as ink
	SmoothWindow   int     // moving-average window for density signals
	BaselineOffset float64 // added to the median to form the dynamic threshold
	SearchTop      float64 // top of the vertical search band, fraction of page height
	SearchBottom   float64 // bottom of the vertical search band
	MinRunFrac     float64 // minimum detected run length, fraction of search height
	PaddingFrac    float64 // padding applied around the detected zone
	FallbackTop    float64 // proportional fallback band when detection is inconclusive
	FallbackBottom float64
}

// DefaultConfig returns the default zone detection configuration.
func DefaultConfig() Config {
	return Config{
		DownscaleWidth: 800,
		InkThreshold:   200,
		SmoothWindow:   15,
		BaselineOffset: 0.02,
		SearchTop:      0.40,
		SearchBottom:   0.97,
		MinRunFrac:     0.12,
		PaddingFrac:    0.02,
		FallbackTop:    0.40,
		FallbackBottom: 0.95,
	}
}

// Result describes where the chart was found and how.
type Result struct {
	Zone     image.Rectangle // chart bounds in full-resolution coordinates
	Fallback bool            // true when the proportional fallback band was used
}

// Locate finds the sub-rectangle of img containing the bar chart. Detection
// is best-effort: when the density signal is inconclusive the proportional
// fallback band is returned instead, so Locate never fails on a decodable
// image.
func Locate(img image.Image, cfg Config) (Result, error) {
	if img == nil {
		return Result{}, errors.New("input image is nil")
	}
	full := img.Bounds()

	work, scale, err := utils.ResizeWithin(img, cfg.DownscaleWidth)
	if err != nil {
		return Result{}, err
	}
	wb := work.Bounds()

	band := image.Rect(
		wb.Min.X,
		wb.Min.Y+int(float64(wb.Dy())*cfg.SearchTop),
		wb.Max.X,
		wb.Min.Y+int(float64(wb.Dy())*cfg.SearchBottom),
	)

	rows := profile.Smooth(profile.RowInk(work, band, cfg.InkThreshold), cfg.SmoothWindow)
	threshold := profile.Median(rows) + cfg.BaselineOffset
	run, ok := profile.LongestRunAbove(rows, threshold)
	minRun := int(float64(len(rows)) * cfg.MinRunFrac)
	if !ok || run.Len() < minRun {
		slog.Debug("graph zone detection inconclusive, using fallback band",
			"found", ok, "run_len", run.Len(), "min_run", minRun)
		return Result{Zone: fallbackZone(full, cfg), Fallback: true}, nil
	}

	top := band.Min.Y + run.Start
	bottom := band.Min.Y + run.End

	// Column pass restricted to the detected vertical extent.
	cols := profile.Smooth(profile.ColumnInk(work, image.Rect(wb.Min.X, top, wb.Max.X, bottom), cfg.InkThreshold), cfg.SmoothWindow)
	colThreshold := profile.Median(cols) + cfg.BaselineOffset
	colRun, ok := profile.LongestRunAbove(cols, colThreshold)
	left, right := wb.Min.X, wb.Max.X
	if ok {
		left = wb.Min.X + colRun.Start
		right = wb.Min.X + colRun.End
	}

	padX := int(float64(right-left) * cfg.PaddingFrac)
	padY := int(float64(bottom-top) * cfg.PaddingFrac)
	zone := image.Rect(left-padX, top-padY, right+padX, bottom+padY)

	// Map back to full resolution.
	if scale != 1.0 {
		zone = image.Rect(
			int(float64(zone.Min.X)/scale),
			int(float64(zone.Min.Y)/scale),
			int(float64(zone.Max.X)/scale),
			int(float64(zone.Max.Y)/scale),
		)
	}
	zone, ok = utils.ClampRect(zone, full)
	if !ok {
		return Result{Zone: fallbackZone(full, cfg), Fallback: true}, nil
	}
	slog.Debug("graph zone located", "zone", zone, "scale", scale)
	return Result{Zone: zone}, nil
}

// fallbackZone returns the fixed proportional band used when density
// detection finds nothing convincing.
func fallbackZone(full image.Rectangle, cfg Config) image.Rectangle {
	return image.Rect(
		full.Min.X,
		full.Min.Y+int(float64(full.Dy())*cfg.FallbackTop),
		full.Max.X,
		full.Min.Y+int(float64(full.Dy())*cfg.FallbackBottom),
	)
}
