package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/voltmetric/billscan/internal/fusion"
	"github.com/voltmetric/billscan/internal/pdfbill"
	"github.com/voltmetric/billscan/internal/pipeline"
	"github.com/voltmetric/billscan/internal/sizing"
	"github.com/voltmetric/billscan/internal/utils"
)

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ScanResponse is the API answer for a scan request. Sizing is present
// when a usable consumption figure exists; Report only when the client
// asked for diagnostics.
type ScanResponse struct {
	Estimate fusion.ConsumptionEstimate `json:"estimate"`
	Sizing   *sizing.Recommendation     `json:"sizing,omitempty"`
	Report   *pipeline.Report           `json:"report,omitempty"`
}

// ErrorResponse carries a machine-readable error.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// scanHandler accepts a multipart bill photo under the "image" field and
// answers with the consumption estimate plus, when possible, a sizing
// recommendation. A "manual_kwh" field overrides the scanned average.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := s.cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeError(w, "failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, "no image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, _, err := utils.DecodeImage(file)
	if err != nil {
		s.writeError(w, "invalid image format", http.StatusBadRequest)
		return
	}

	start := time.Now()
	est, report, err := s.coordinatorFor(clientIP(r)).Scan(r.Context(), img)
	scanDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, pipeline.ErrSuperseded) {
			scanRequestsTotal.WithLabelValues("image", "superseded").Inc()
			s.writeError(w, "superseded by a newer submission", http.StatusConflict)
			return
		}
		scanRequestsTotal.WithLabelValues("image", "aborted").Inc()
		s.writeError(w, "scan aborted: "+err.Error(), http.StatusInternalServerError)
		return
	}
	scanRequestsTotal.WithLabelValues("image", string(est.Status)).Inc()
	if est.Status == fusion.StatusOk {
		scanMonthsUsed.Observe(float64(est.MonthsUsed))
	}

	s.writeJSON(w, http.StatusOK, s.buildResponse(r, est, report))
}

// scanPDFHandler accepts a PDF bill under the "pdf" field. Page rasters
// are scanned biggest-first until one yields a usable estimate.
func (s *Server) scanPDFHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := s.cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeError(w, "failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		s.writeError(w, "no pdf file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	tmp, err := os.CreateTemp("", "billscan-upload-*.pdf")
	if err != nil {
		s.writeError(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, file); err != nil {
		s.writeError(w, "failed to buffer upload", http.StatusInternalServerError)
		return
	}

	pages, err := pdfbill.Extract(tmp.Name(), r.FormValue("pages"))
	if err != nil {
		s.writeError(w, "could not extract images from pdf", http.StatusBadRequest)
		return
	}

	start := time.Now()
	est, report := s.scanCandidates(r, pages)
	scanDuration.WithLabelValues("pdf").Observe(time.Since(start).Seconds())
	scanRequestsTotal.WithLabelValues("pdf", string(est.Status)).Inc()
	if est.Status == fusion.StatusOk {
		scanMonthsUsed.Observe(float64(est.MonthsUsed))
	}

	s.writeJSON(w, http.StatusOK, s.buildResponse(r, est, report))
}

// scanCandidates scans extracted page images until one reads cleanly,
// keeping the best non-ok outcome otherwise.
func (s *Server) scanCandidates(r *http.Request, pages []pdfbill.PageImage) (fusion.ConsumptionEstimate, *pipeline.Report) {
	best := fusion.ErrorEstimate("pdf contains no page images")
	var bestReport *pipeline.Report
	for _, page := range pages {
		est, report, err := s.scanner.ScanImage(r.Context(), page.Image)
		if err != nil {
			slog.Warn("pdf page scan aborted", "page", page.Page, "error", err)
			continue
		}
		if est.Status == fusion.StatusOk {
			return est, report
		}
		if best.Status == fusion.StatusError && est.Status == fusion.StatusInsufficient {
			best, bestReport = est, report
		}
	}
	return best, bestReport
}

func (s *Server) buildResponse(r *http.Request, est fusion.ConsumptionEstimate, report *pipeline.Report) ScanResponse {
	resp := ScanResponse{Estimate: est}

	manualKwh, _ := strconv.ParseFloat(r.FormValue("manual_kwh"), 64)
	if rec, err := sizing.Recommend(est, manualKwh, s.cfg.Sizing); err == nil {
		resp.Sizing = &rec
	}
	if v := r.FormValue("debug"); v == "1" || v == "true" {
		resp.Report = report
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, msg string, status int) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
