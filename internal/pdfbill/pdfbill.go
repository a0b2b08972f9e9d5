// Package pdfbill pulls raster page images out of PDF utility bills so the
// scanning pipeline can treat them like photos.
package pdfbill

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage is one raster extracted from a bill PDF.
type PageImage struct {
	Page  int
	Image image.Image
}

// Extract returns the images embedded in the PDF at path, optionally
// restricted to pages ("3", "1-2", "1,3"). Within a page, larger images
// come first: scanned bills embed the full page as the biggest raster and
// that is where the consumption chart lives. Logos and stamps trail.
func Extract(path, pages string) ([]PageImage, error) {
	pageNumbers, err := parsePages(pages)
	if err != nil {
		return nil, fmt.Errorf("invalid page selection %q: %w", pages, err)
	}

	tempDir, err := os.MkdirTemp("", "billscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selection []string
	for _, n := range pageNumbers {
		selection = append(selection, strconv.Itoa(n))
	}
	if err := api.ExtractImagesFile(path, tempDir, selection, nil); err != nil {
		return nil, fmt.Errorf("extract images from %s: %w", filepath.Base(path), err)
	}

	extracted, err := collectPageImages(tempDir)
	if err != nil {
		return nil, err
	}
	sortCandidates(extracted)
	return extracted, nil
}

// collectPageImages decodes every extracted raster, keyed to its page via
// the pdfcpu naming scheme (page_<num>_image_<idx>.<ext>). Files that are
// not page images or fail to decode are skipped.
func collectPageImages(dir string) ([]PageImage, error) {
	var out []PageImage
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		page, err := pageFromFilename(info.Name())
		if err != nil {
			return nil
		}
		img, err := decodeFile(path)
		if err != nil || img == nil {
			return nil
		}
		out = append(out, PageImage{Page: page, Image: img})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect extracted images: %w", err)
	}
	return out, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // extraction dir is process-owned
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	return img, err
}

// sortCandidates orders by page, then by pixel area descending so the page
// scan raster precedes decorative images.
func sortCandidates(imgs []PageImage) {
	sort.SliceStable(imgs, func(i, j int) bool {
		if imgs[i].Page != imgs[j].Page {
			return imgs[i].Page < imgs[j].Page
		}
		return area(imgs[i].Image) > area(imgs[j].Image)
	})
}

func area(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy()
}

// pageFromFilename parses the page number out of a pdfcpu output filename.
func pageFromFilename(name string) (int, error) {
	if !strings.HasPrefix(name, "page_") {
		return 0, errors.New("not a page image")
	}
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return 0, errors.New("unexpected filename layout")
	}
	page, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("unparseable page number")
	}
	return page, nil
}

// parsePages expands a selection like "1-3,5" into page numbers. Empty
// input selects all pages.
func parsePages(pages string) ([]int, error) {
	if pages == "" {
		return nil, nil
	}
	var out []int
	for _, token := range strings.Split(pages, ",") {
		expanded, err := expandToken(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func expandToken(token string) ([]int, error) {
	if !strings.Contains(token, "-") {
		page, err := strconv.Atoi(token)
		if err != nil || page < 1 {
			return nil, fmt.Errorf("bad page number %q", token)
		}
		return []int{page}, nil
	}
	bounds := strings.SplitN(token, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
	if err != nil || start < 1 {
		return nil, fmt.Errorf("bad range start %q", bounds[0])
	}
	end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
	if err != nil {
		return nil, fmt.Errorf("bad range end %q", bounds[1])
	}
	if start > end {
		return nil, fmt.Errorf("range %q runs backwards", token)
	}
	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out, nil
}
