// Package testutil generates synthetic bill bar charts and scripted
// recognition engines for tests.
package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ChartConfig describes a synthetic consumption-history chart rendered onto
// a white bill page.
type ChartConfig struct {
	PageWidth  int
	PageHeight int
	ChartRect  image.Rectangle // chart area within the page
	Values     []int           // one bar per value; kWh magnitude sets bar height
	MaxValue   int             // value mapped to full bar height (0 = max of Values)
	DrawAxis   bool            // draw Y-axis line and scale numerals
	DrawLabels bool            // print each value above its bar
	BarColor   color.Color
}

// DefaultChartConfig returns a chart resembling a typical printed bill:
// chart in the lower half of the page, axis and labels drawn.
func DefaultChartConfig(values []int) ChartConfig {
	return ChartConfig{
		PageWidth:  640,
		PageHeight: 900,
		ChartRect:  image.Rect(60, 480, 600, 820),
		Values:     values,
		DrawAxis:   true,
		DrawLabels: true,
		BarColor:   color.Black,
	}
}

// BarPlacement reports where a bar was rendered, in page coordinates.
type BarPlacement struct {
	XLeft, XRight int
	TopY          int
}

// RenderChart draws the configured chart and returns the page image along
// with the placement of every bar.
func RenderChart(cfg ChartConfig) (*image.RGBA, []BarPlacement) {
	page := image.NewRGBA(image.Rect(0, 0, cfg.PageWidth, cfg.PageHeight))
	draw.Draw(page, page.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	maxVal := cfg.MaxValue
	for _, v := range cfg.Values {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	chart := cfg.ChartRect
	baseline := chart.Max.Y - 20 // bottom strip reserved for month labels
	plotTop := chart.Min.Y + 60  // top strip reserved for the header and tallest label
	axisX := chart.Min.X + 34

	if cfg.DrawAxis {
		// Axis line.
		fillRect(page, image.Rect(axisX, plotTop-10, axisX+2, baseline+2), color.Black)
		// Scale numerals left of the line; their values must never matter
		// to the pipeline, only their ink.
		for i := 0; i <= 4; i++ {
			y := baseline - i*(baseline-plotTop)/4
			drawString(page, fmt.Sprintf("%d", i*maxVal/4), chart.Min.X, y)
		}
	}

	plotLeft := axisX + 12
	n := len(cfg.Values)
	placements := make([]BarPlacement, 0, n)
	if n == 0 {
		return page, placements
	}
	slot := (chart.Max.X - plotLeft) / n
	barWidth := slot * 6 / 10
	if barWidth < 4 {
		barWidth = 4
	}
	// Printed bills keep bars narrow even when few months are shown.
	if barWidth > 48 {
		barWidth = 48
	}

	for i, v := range cfg.Values {
		h := (baseline - plotTop) * v / maxVal
		if h < 2 {
			h = 2
		}
		x0 := plotLeft + i*slot + (slot-barWidth)/2
		x1 := x0 + barWidth
		top := baseline - h
		fillRect(page, image.Rect(x0, top, x1, baseline), cfg.BarColor)

		if cfg.DrawLabels {
			label := fmt.Sprintf("%d", v)
			w := font.MeasureString(basicfont.Face7x13, label).Ceil()
			drawString(page, label, x0+(barWidth-w)/2, top-6)
		}
		placements = append(placements, BarPlacement{XLeft: x0, XRight: x1, TopY: top})
	}
	return page, placements
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawString renders text with the baseline at (x, y).
func drawString(img *image.RGBA, s string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// SaveDebugImage writes img as PNG under t.TempDir when BILLSCAN_TEST_DEBUG
// is set, for eyeballing synthetic charts while tuning tests.
func SaveDebugImage(t *testing.T, img image.Image, name string) {
	t.Helper()
	if os.Getenv("BILLSCAN_TEST_DEBUG") == "" {
		return
	}
	path := filepath.Join(t.TempDir(), name+".png")
	f, err := os.Create(path) //nolint:gosec // test-controlled path
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
	t.Logf("debug image written: %s", path)
}
