package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orientedJPEG encodes a w×h white image and splices an EXIF APP1 segment
// carrying the given orientation tag right after the SOI marker (the stdlib
// encoder writes none).
func orientedJPEG(t *testing.T, w, h int, orientation byte) []byte {
	t.Helper()

	src := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))
	plain := buf.Bytes()

	// APP1: length 0x0022, Exif header, little-endian TIFF, one IFD0 entry
	// (tag 0x0112 Orientation, SHORT, count 1), zero next-IFD offset.
	app1 := []byte{
		0xFF, 0xE1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, orientation, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	out := make([]byte, 0, len(plain)+len(app1))
	out = append(out, plain[:2]...)
	out = append(out, app1...)
	out = append(out, plain[2:]...)
	return out
}

func TestDecodeImageAppliesOrientationTag(t *testing.T) {
	// Stored 40×20 landscape, tagged "rotate 90° to display": a portrait
	// phone photo. The decoded pixels must come out upright, 20×40.
	data := orientedJPEG(t, 40, 20, 6)

	img, format, err := DecodeImage(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestDecodeImageUntaggedUnchanged(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	img, format, err := DecodeImage(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestDecodeImageGarbage(t *testing.T) {
	_, _, err := DecodeImage(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
	var perr *ImageProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "decode", perr.Operation)
}

func TestLoadImageAppliesOrientationTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portrait.jpg")
	require.NoError(t, os.WriteFile(path, orientedJPEG(t, 40, 20, 6), 0o600))

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", meta.Format)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
	assert.Equal(t, 20, meta.Width)
	assert.Equal(t, 40, meta.Height)
}

func TestLoadImageUnsupportedExtension(t *testing.T) {
	_, _, err := LoadImage("bill.tiff")
	require.Error(t, err)
	var perr *ImageProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load", perr.Operation)
}
