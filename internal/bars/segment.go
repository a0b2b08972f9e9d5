// Package bars detects individual bar columns in an axis-excluded chart
// image and crops the numeric label region above each bar.
package bars

import (
	"errors"
	"image"
	"log/slog"
	"sort"

	"github.com/voltmetric/billscan/internal/profile"
	"github.com/voltmetric/billscan/internal/utils"
)

// MaxBars is the largest number of bars a bill chart shows (13 months).
const MaxBars = 13

// Config holds tuning constants for bar segmentation.
type Config struct {
	InkThreshold   uint8   // luminance below this counts as ink
	SmoothWindow   int     // moving-average window for the column profile
	BandTop        float64 // search band avoiding the header area
	BandBottom     float64 // search band avoiding the month-label strip
	ThresholdFrac  float64 // fraction of the profile max separating bars from gridlines
	MinWidth       int     // narrower segments are noise
	MaxWidthFrac   float64 // wider segments are noise, fraction of chart width
	TopDarkFrac    float64 // fraction of segment width that must be dark in a bar row
	TopSustainRows int     // consecutive dark rows confirming the bar body
	TopMissRows    int     // consecutive light rows ending the upward scan
}

// DefaultConfig returns the default segmentation configuration.
func DefaultConfig() Config {
	return Config{
		InkThreshold:   200,
		SmoothWindow:   7,
		BandTop:        0.18,
		BandBottom:     0.92,
		ThresholdFrac:  0.38,
		MinWidth:       6,
		MaxWidthFrac:   0.12,
		TopDarkFrac:    0.50,
		TopSustainRows: 2,
		TopMissRows:    2,
	}
}

// BarSegment is one detected bar: its horizontal extent and the pixel row
// where its drawn area begins.
type BarSegment struct {
	XLeft   int
	XRight  int
	XCenter float64
	TopY    int
}

// Segment detects bar columns left to right. Coordinates are relative to
// img's bounds. An empty result is valid input for the caller's
// insufficient-data handling, not an error.
func Segment(img image.Image, cfg Config) ([]BarSegment, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
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
		return nil, nil
	}

	runs := profile.RunsAbove(cols, maxInk*cfg.ThresholdFrac)
	maxWidth := int(float64(b.Dx()) * cfg.MaxWidthFrac)
	kept := runs[:0]
	for _, r := range runs {
		if r.Len() >= cfg.MinWidth && r.Len() <= maxWidth {
			kept = append(kept, r)
		}
	}

	if len(kept) > MaxBars {
		kept = keepDensest(kept, cols, MaxBars)
	}

	segments := make([]BarSegment, 0, len(kept))
	for _, r := range kept {
		seg := BarSegment{
			XLeft:   b.Min.X + r.Start,
			XRight:  b.Min.X + r.End,
			XCenter: float64(b.Min.X) + float64(r.Start+r.End)/2,
		}
		seg.TopY = findTop(img, seg, band, cfg)
		segments = append(segments, seg)
	}
	slog.Debug("bars segmented", "count", len(segments), "raw_runs", len(runs))
	return segments, nil
}

// keepDensest keeps the n runs with the highest peak density, then restores
// left-to-right order. Ties keep the leftmost run.
func keepDensest(runs []profile.Run, cols []float64, n int) []profile.Run {
	type scored struct {
		run  profile.Run
		peak float64
	}
	ss := make([]scored, len(runs))
	for i, r := range runs {
		peak := 0.0
		for j := r.Start; j < r.End; j++ {
			if cols[j] > peak {
				peak = cols[j]
			}
		}
		ss[i] = scored{run: r, peak: peak}
	}
	sort.SliceStable(ss, func(i, j int) bool { return ss[i].peak > ss[j].peak })
	ss = ss[:n]
	sort.Slice(ss, func(i, j int) bool { return ss[i].run.Start < ss[j].run.Start })
	out := make([]profile.Run, n)
	for i, s := range ss {
		out[i] = s.run
	}
	return out
}

// findTop scans rows upward from the bottom of the search band within the
// segment's columns. The bar body is the contiguous stretch of mostly-dark
// rows rising from the baseline; the row above it is the bar's top. Scanning
// upward keeps the printed label from being mistaken for bar fill.
func findTop(img image.Image, seg BarSegment, band image.Rectangle, cfg Config) int {
	width := seg.XRight - seg.XLeft
	need := int(float64(width)*cfg.TopDarkFrac + 0.5)
	if need < 1 {
		need = 1
	}

	top := band.Max.Y - 1
	misses := 0
	sustained := 0
	started := false
	for y := band.Max.Y - 1; y >= band.Min.Y; y-- {
		if darkCount(img, seg.XLeft, seg.XRight, y, cfg.InkThreshold) >= need {
			sustained++
			misses = 0
			if sustained >= cfg.TopSustainRows {
				started = true
				top = y
			}
		} else {
			sustained = 0
			misses++
			if started && misses > cfg.TopMissRows {
				break
			}
		}
	}
	return top
}

func darkCount(img image.Image, x0, x1, y int, inkThreshold uint8) int {
	dark := 0
	for x := x0; x < x1; x++ {
		if utils.Luminance(img.At(x, y)) < inkThreshold {
			dark++
		}
	}
	return dark
}
