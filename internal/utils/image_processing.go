package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ResizeWithin scales an image down so its width does not exceed maxWidth,
// preserving aspect ratio. Images already within the bound are returned as-is.
// Returns the (possibly unchanged) image and the applied scale factor.
func ResizeWithin(img image.Image, maxWidth int) (image.Image, float64, error) {
	if img == nil {
		return nil, 0, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if maxWidth <= 0 {
		return nil, 0, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid max width: %d", maxWidth)}
	}
	w := img.Bounds().Dx()
	if w <= maxWidth {
		return img, 1.0, nil
	}
	scale := float64(maxWidth) / float64(w)
	resized := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	return resized, scale, nil
}

// Grayscale converts an image to 8-bit grayscale.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return out
}

// Luminance returns the 0-255 luma of a pixel.
func Luminance(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// ContrastStretch linearly remaps gray levels so the darkest pixel maps to 0
// and the brightest to 255. Flat images are returned unchanged.
func ContrastStretch(img *image.Gray) *image.Gray {
	b := img.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return img
	}
	out := image.NewGray(b)
	span := float64(hi - lo)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y-lo) * 255.0 / span
			out.SetGray(x, y, color.Gray{Y: uint8(v + 0.5)})
		}
	}
	return out
}

// Binarize thresholds a grayscale image: pixels darker than threshold become
// black, everything else white.
func Binarize(img *image.Gray, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y < threshold {
				out.SetGray(x, y, color.Gray{Y: 0})
			} else {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// UpscaleNearest upscales an image by an integer factor using nearest-neighbor
// sampling, preserving hard digit edges for recognition.
func UpscaleNearest(img image.Image, factor int) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "upscale", Err: errors.New("input image is nil")}
	}
	if factor < 1 {
		return nil, &ImageProcessingError{Operation: "upscale", Err: fmt.Errorf("invalid factor: %d", factor)}
	}
	if factor == 1 {
		return img, nil
	}
	b := img.Bounds()
	out := imaging.Resize(img, b.Dx()*factor, b.Dy()*factor, imaging.NearestNeighbor)
	return out, nil
}

// ClampRect clips r to the bounds of parent and reports whether anything
// remains. Rects always stay fully inside their parent image.
func ClampRect(r, parent image.Rectangle) (image.Rectangle, bool) {
	c := r.Intersect(parent)
	if c.Dx() <= 0 || c.Dy() <= 0 {
		return image.Rectangle{}, false
	}
	return c, true
}

// CropRect returns a copy of the sub-image described by r, clamped to img's
// bounds. The returned image has its origin at (0,0).
func CropRect(img image.Image, r image.Rectangle) (image.Image, error) {
	c, ok := ClampRect(r, img.Bounds())
	if !ok {
		return nil, &ImageProcessingError{Operation: "crop", Err: fmt.Errorf("rect %v outside image bounds %v", r, img.Bounds())}
	}
	return imaging.Crop(img, c), nil
}
