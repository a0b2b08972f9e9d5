package recognize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionConfig configures the Google Cloud Vision engine adapter.
// Credentials resolve, in order: inline JSON, credentials file, application
// default credentials.
type VisionConfig struct {
	CredentialsJSON string
	CredentialsFile string
}

// DefaultVisionConfig reads credentials from the conventional environment
// variables.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
	}
}

// VisionEngine recognizes label ROIs with the Cloud Vision document text
// API. The client is safe for concurrent use and reused across calls.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionEngine creates a Vision API client.
func NewVisionEngine(ctx context.Context, cfg VisionConfig) (*VisionEngine, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &VisionEngine{client: client}, nil
}

// Recognize submits the ROI for document text detection.
func (e *VisionEngine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if img == nil {
		return Result{}, errors.New("input image is nil")
	}
	if e.client == nil {
		return Result{}, errors.New("vision client is closed")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("encode roi: %w", err)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}
	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("vision api call failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return Result{}, errors.New("empty vision api response")
	}
	annotated := resp.Responses[0]
	if annotated.Error != nil {
		return Result{}, fmt.Errorf("vision api error: %s", annotated.Error.Message)
	}

	res := Result{}
	if annotated.FullTextAnnotation != nil {
		res.Text = annotated.FullTextAnnotation.Text
	}
	// The first text annotation repeats the full text; the rest are words.
	for i, ta := range annotated.TextAnnotations {
		if i == 0 {
			if res.Text == "" {
				res.Text = ta.Description
			}
			continue
		}
		res.Words = append(res.Words, Word{
			Text:        ta.Description,
			Confidence:  float64(ta.Confidence) * 100,
			BoundingBox: polyBounds(ta.BoundingPoly),
		})
	}
	if n := len(res.Words); n > 0 {
		var sum float64
		for _, w := range res.Words {
			sum += w.Confidence
		}
		res.Confidence = sum / float64(n)
	} else if res.Text != "" {
		// Document detection often omits per-word confidence; treat any
		// returned text as usable and let range parsing filter noise.
		res.Confidence = 100
	}
	return res, nil
}

// Close releases the Vision API client.
func (e *VisionEngine) Close() error {
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func polyBounds(poly *visionpb.BoundingPoly) image.Rectangle {
	if poly == nil || len(poly.Vertices) == 0 {
		return image.Rectangle{}
	}
	r := image.Rect(int(poly.Vertices[0].X), int(poly.Vertices[0].Y), int(poly.Vertices[0].X), int(poly.Vertices[0].Y))
	for _, v := range poly.Vertices[1:] {
		p := image.Pt(int(v.X), int(v.Y))
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}
