// Package profile computes 1-D ink-density signals over image rows and
// columns. These structural signals drive chart zone location, axis exclusion
// and bar segmentation without ever interpreting printed content.
package profile

import (
	"image"
	"sort"

	"github.com/voltmetric/billscan/internal/utils"
)

// RowInk returns, for every row of img within band, the fraction of pixels
// whose luminance falls below inkThreshold. The returned slice is indexed
// relative to band.Min.Y.
func RowInk(img image.Image, band image.Rectangle, inkThreshold uint8) []float64 {
	band, ok := utils.ClampRect(band, img.Bounds())
	if !ok {
		return nil
	}
	out := make([]float64, band.Dy())
	w := float64(band.Dx())
	for y := band.Min.Y; y < band.Max.Y; y++ {
		dark := 0
		for x := band.Min.X; x < band.Max.X; x++ {
			if utils.Luminance(img.At(x, y)) < inkThreshold {
				dark++
			}
		}
		out[y-band.Min.Y] = float64(dark) / w
	}
	return out
}

// ColumnInk returns, for every column of img within band, the fraction of
// pixels whose luminance falls below inkThreshold. The returned slice is
// indexed relative to band.Min.X.
func ColumnInk(img image.Image, band image.Rectangle, inkThreshold uint8) []float64 {
	band, ok := utils.ClampRect(band, img.Bounds())
	if !ok {
		return nil
	}
	out := make([]float64, band.Dx())
	h := float64(band.Dy())
	for x := band.Min.X; x < band.Max.X; x++ {
		dark := 0
		for y := band.Min.Y; y < band.Max.Y; y++ {
			if utils.Luminance(img.At(x, y)) < inkThreshold {
				dark++
			}
		}
		out[x-band.Min.X] = float64(dark) / h
	}
	return out
}

// Smooth applies a centered moving average with the given window size.
// Even windows are widened to the next odd size; window<=1 returns a copy.
func Smooth(signal []float64, window int) []float64 {
	out := make([]float64, len(signal))
	if window <= 1 || len(signal) == 0 {
		copy(out, signal)
		return out
	}
	if window%2 == 0 {
		window++
	}
	half := window / 2
	for i := range signal {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(signal)-1 {
			hi = len(signal) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += signal[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// Median returns the median of the signal, or 0 for an empty signal.
func Median(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}
	sorted := make([]float64, len(signal))
	copy(sorted, signal)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Max returns the maximum of the signal, or 0 for an empty signal.
func Max(signal []float64) float64 {
	m := 0.0
	for i, v := range signal {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// Run is a contiguous index range [Start, End) within a signal.
type Run struct {
	Start, End int
}

// Len returns the run length.
func (r Run) Len() int { return r.End - r.Start }

// LongestRunAbove finds the longest contiguous run of indices whose value
// exceeds threshold. The second return is false when no value qualifies.
func LongestRunAbove(signal []float64, threshold float64) (Run, bool) {
	best := Run{}
	cur := Run{Start: -1}
	for i, v := range signal {
		if v > threshold {
			if cur.Start < 0 {
				cur.Start = i
			}
			cur.End = i + 1
			if cur.Len() > best.Len() {
				best = cur
			}
		} else {
			cur = Run{Start: -1}
		}
	}
	if best.Len() == 0 {
		return Run{}, false
	}
	return best, true
}

// RunsAbove collects all contiguous runs whose value exceeds threshold,
// in left-to-right order.
func RunsAbove(signal []float64, threshold float64) []Run {
	var runs []Run
	cur := Run{Start: -1}
	for i, v := range signal {
		if v > threshold {
			if cur.Start < 0 {
				cur.Start = i
			}
			cur.End = i + 1
		} else if cur.Start >= 0 {
			runs = append(runs, cur)
			cur = Run{Start: -1}
		}
	}
	if cur.Start >= 0 {
		runs = append(runs, cur)
	}
	return runs
}
