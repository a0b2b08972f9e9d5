package pdfbill

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{name: "empty selects all", in: "", want: nil},
		{name: "single page", in: "3", want: []int{3}},
		{name: "range", in: "1-3", want: []int{1, 2, 3}},
		{name: "mixed with spaces", in: "1, 3-4", want: []int{1, 3, 4}},
		{name: "backwards range", in: "5-2", wantErr: true},
		{name: "zero page", in: "0", wantErr: true},
		{name: "garbage", in: "one", wantErr: true},
		{name: "dangling range", in: "1-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePages(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageFromFilename(t *testing.T) {
	page, err := pageFromFilename("page_2_image_1.png")
	require.NoError(t, err)
	assert.Equal(t, 2, page)

	_, err = pageFromFilename("thumbnail.png")
	require.Error(t, err)

	_, err = pageFromFilename("page_x_image_1.png")
	require.Error(t, err)
}

func TestSortCandidatesPageThenArea(t *testing.T) {
	big := image.NewRGBA(image.Rect(0, 0, 100, 100))
	small := image.NewRGBA(image.Rect(0, 0, 10, 10))

	imgs := []PageImage{
		{Page: 2, Image: small},
		{Page: 1, Image: small},
		{Page: 1, Image: big},
		{Page: 2, Image: big},
	}
	sortCandidates(imgs)

	require.Len(t, imgs, 4)
	assert.Equal(t, 1, imgs[0].Page)
	assert.Same(t, big, imgs[0].Image)
	assert.Equal(t, 1, imgs[1].Page)
	assert.Same(t, small, imgs[1].Image)
	assert.Equal(t, 2, imgs[2].Page)
	assert.Same(t, big, imgs[2].Image)
}

func TestExtractRejectsMissingFile(t *testing.T) {
	_, err := Extract("testdata/does-not-exist.pdf", "")
	require.Error(t, err)
}
