package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ImageMetadata captures lightweight file and pixel information.
type ImageMetadata struct {
	Path        string
	Format      string
	SizeBytes   int64
	Width       int
	Height      int
	AspectRatio float64
}

// LoadImage opens and decodes an image file, returning the image and metadata.
func LoadImage(path string) (image.Image, ImageMetadata, error) {
	if path == "" {
		err := &ImageProcessingError{Operation: "load", Err: errors.New("empty path")}
		return nil, ImageMetadata{}, err
	}
	if !IsSupportedImage(path) {
		err := &ImageProcessingError{Operation: "load", Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
		return nil, ImageMetadata{}, err
	}

	f, err := os.Open(path) //nolint:gosec // G304: Reading user-provided image file path is expected
	if err != nil {
		err = &ImageProcessingError{Operation: "load", Err: err}
		return nil, ImageMetadata{}, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing image file: %v\n", err)
		}
	}()

	fi, statErr := f.Stat()
	if statErr != nil {
		return nil, ImageMetadata{}, &ImageProcessingError{Operation: "load", Err: statErr}
	}

	img, format, decErr := DecodeImage(f)
	if decErr != nil {
		return nil, ImageMetadata{}, decErr
	}

	b := img.Bounds()
	meta := ImageMetadata{
		Path:        path,
		Format:      format,
		SizeBytes:   fi.Size(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		AspectRatio: float64(b.Dx()) / float64(b.Dy()),
	}
	return img, meta, nil
}

// DecodeImage decodes an image from a reader (upload bodies, PDF page
// streams), applying any EXIF orientation tag so phone photos enter the
// pipeline upright. A portrait photo stored rotated-with-tag would
// otherwise arrive sideways and swap the chart's row/column profiles.
func DecodeImage(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: err}
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", &ImageProcessingError{Operation: "decode", Err: err}
	}
	return img, format, nil
}
