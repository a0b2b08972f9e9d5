package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/voltmetric/billscan/internal/bars"
	"github.com/voltmetric/billscan/internal/fusion"
	"github.com/voltmetric/billscan/internal/locator"
	"github.com/voltmetric/billscan/internal/recognize"
	"github.com/voltmetric/billscan/internal/utils"
)

// Report carries per-scan diagnostics alongside the estimate. It exists for
// logging and debug surfaces; sizing decisions use the estimate alone.
type Report struct {
	Zone           image.Rectangle `json:"zone"`
	FallbackZone   bool            `json:"fallback_zone"`
	AxisCut        int             `json:"axis_cut"`
	BarCount       int             `json:"bar_count"`
	LabelsRead     int             `json:"labels_read"`
	LabelsRejected int             `json:"labels_rejected"`
	ElapsedNs      int64           `json:"elapsed_ns"`
}

// roiJob is one label region queued for recognition. XCenter is pinned to
// the source bar before fan-out so concurrent completion order cannot
// scramble the temporal series.
type roiJob struct {
	idx     int
	img     image.Image
	xCenter float64
}

type roiOutcome struct {
	cand recognize.LabelCandidate
	err  error
}

// ScanImage extracts the consumption estimate from a decoded bill photo.
// Stage failures that have a defined reading (no chart, too few bars,
// unreadable labels) surface through the estimate's status; the returned
// error is reserved for cancellation and invalid input.
func (s *Scanner) ScanImage(ctx context.Context, img image.Image) (fusion.ConsumptionEstimate, *Report, error) {
	if s == nil || s.provider == nil {
		return fusion.ConsumptionEstimate{}, nil, errors.New("scanner not initialized")
	}
	if img == nil {
		return fusion.ConsumptionEstimate{}, nil, errors.New("input image is nil")
	}

	start := time.Now()
	report := &Report{}

	working, scale, err := utils.ResizeWithin(img, s.cfg.MaxImageWidth)
	if err != nil {
		return fusion.ErrorEstimate("could not prepare image: " + err.Error()), report, nil
	}
	slog.Debug("scan started",
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "scale", scale)

	if err := ctx.Err(); err != nil {
		return fusion.ConsumptionEstimate{}, report, err
	}
	loc, err := locator.Locate(working, s.cfg.Locator)
	if err != nil {
		return fusion.ErrorEstimate("chart zone detection failed: " + err.Error()), report, nil
	}
	report.Zone = loc.Zone
	report.FallbackZone = loc.Fallback
	slog.Debug("chart zone located", "zone", loc.Zone, "fallback", loc.Fallback)

	chart, err := utils.CropRect(working, loc.Zone)
	if err != nil {
		return fusion.ErrorEstimate("chart zone crop failed: " + err.Error()), report, nil
	}

	if err := ctx.Err(); err != nil {
		return fusion.ConsumptionEstimate{}, report, err
	}
	axis, err := locator.ExcludeAxis(chart, s.cfg.Axis)
	if err != nil {
		return fusion.ErrorEstimate("axis exclusion failed: " + err.Error()), report, nil
	}
	report.AxisCut = axis.XCut

	segs, err := bars.Segment(axis.Image, s.cfg.Bars)
	if err != nil {
		return fusion.ErrorEstimate("bar segmentation failed: " + err.Error()), report, nil
	}
	report.BarCount = len(segs)
	slog.Debug("bars segmented", "count", len(segs), "axis_cut", axis.XCut)

	if len(segs) < s.cfg.Fusion.MinMonths {
		report.ElapsedNs = time.Since(start).Nanoseconds()
		return fusion.InsufficientEstimate(fmt.Sprintf(
			"only %d bars detected where at least %d are required; label recognition skipped, please enter your average monthly consumption manually",
			len(segs), s.cfg.Fusion.MinMonths)), report, nil
	}

	jobs := make([]roiJob, 0, len(segs))
	for i, seg := range segs {
		roi, _, err := bars.LabelROI(axis.Image, seg, s.cfg.LabelROI)
		if err != nil {
			slog.Debug("label region skipped", "bar", i, "error", err)
			continue
		}
		jobs = append(jobs, roiJob{idx: i, img: roi, xCenter: seg.XCenter})
	}
	if len(jobs) < s.cfg.Fusion.MinMonths {
		report.ElapsedNs = time.Since(start).Nanoseconds()
		return fusion.InsufficientEstimate(fmt.Sprintf(
			"only %d of %d detected bars had a readable label region where at least %d are required; please enter your average monthly consumption manually",
			len(jobs), len(segs), s.cfg.Fusion.MinMonths)), report, nil
	}

	if err := ctx.Err(); err != nil {
		return fusion.ConsumptionEstimate{}, report, err
	}
	eng, err := s.provider.Acquire(ctx)
	if err != nil {
		return fusion.ErrorEstimate("recognition engine unavailable: " + err.Error()), report, nil
	}
	defer s.provider.Release(eng)

	outcomes := s.recognizeAll(ctx, eng, jobs)
	if err := ctx.Err(); err != nil {
		return fusion.ConsumptionEstimate{}, report, err
	}

	candidates := make([]recognize.LabelCandidate, 0, len(outcomes))
	var highRejections, failed int
	var firstErr error
	for _, out := range outcomes {
		if out.err != nil {
			failed++
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		if out.cand.Value == nil {
			if recognize.IsHighNoise(out.cand.RawText) {
				highRejections++
			}
			report.LabelsRejected++
			continue
		}
		report.LabelsRead++
		candidates = append(candidates, out.cand)
	}
	report.ElapsedNs = time.Since(start).Nanoseconds()

	if failed > 0 {
		// A failing engine is retired so the next scan starts fresh.
		s.provider.Discard(eng)
		slog.Warn("recognition engine discarded after failures",
			"failed", failed, "total", len(jobs), "error", firstErr)
	}
	if failed == len(jobs) {
		return fusion.ErrorEstimate("label recognition failed: " + firstErr.Error()), report, nil
	}

	slog.Debug("labels recognized",
		"read", report.LabelsRead, "rejected", report.LabelsRejected, "failed", failed)
	return fusion.Fuse(candidates, highRejections, s.cfg.Fusion), report, nil
}

// recognizeAll runs label recognition over jobs with bounded concurrency.
// Outcomes line up with jobs by index.
func (s *Scanner) recognizeAll(ctx context.Context, eng recognize.Engine, jobs []roiJob) []roiOutcome {
	outcomes := make([]roiOutcome, len(jobs))
	queue := make(chan int)

	workers := s.cfg.Parallel.MaxInFlight
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				outcomes[i] = s.recognizeOne(ctx, eng, jobs[i])
			}
		}()
	}
	for i := range jobs {
		select {
		case queue <- i:
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return outcomes
		}
	}
	close(queue)
	wg.Wait()
	return outcomes
}

func (s *Scanner) recognizeOne(ctx context.Context, eng recognize.Engine, job roiJob) roiOutcome {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.Parallel.ROITimeout)
	defer cancel()

	res, err := eng.Recognize(tctx, job.img)
	if err != nil {
		return roiOutcome{err: fmt.Errorf("bar %d: %w", job.idx, err)}
	}
	return roiOutcome{cand: recognize.LabelCandidate{
		Value:      recognize.ParseLabel(res.Text),
		Confidence: res.Confidence,
		RawText:    res.Text,
		XCenter:    job.xCenter,
	}}
}

// ScanReader decodes an image from r and scans it. Decode failures have a
// defined reading and surface through the estimate's status.
func (s *Scanner) ScanReader(ctx context.Context, r io.Reader) (fusion.ConsumptionEstimate, *Report, error) {
	img, _, err := utils.DecodeImage(r)
	if err != nil {
		return fusion.ErrorEstimate("could not decode image: " + err.Error()), &Report{}, nil
	}
	return s.ScanImage(ctx, img)
}

// ScanFile loads an image file and scans it.
func (s *Scanner) ScanFile(ctx context.Context, path string) (fusion.ConsumptionEstimate, *Report, error) {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return fusion.ErrorEstimate("could not load image: " + err.Error()), &Report{}, nil
	}
	return s.ScanImage(ctx, img)
}
