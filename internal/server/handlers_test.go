package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltmetric/billscan/internal/fusion"
	"github.com/voltmetric/billscan/internal/pipeline"
	"github.com/voltmetric/billscan/internal/recognize"
	"github.com/voltmetric/billscan/internal/sizing"
	"github.com/voltmetric/billscan/internal/testutil"
)

func testConfig() Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        0,
		MaxUploadMB: 20,
		TimeoutSec:  30,
		Sizing:      sizing.DefaultParameters(),
	}
}

// newTestServer wires a server around a scanner whose provider hands out
// eng.
func newTestServer(t *testing.T, eng recognize.Engine, cfg Config) (*Server, *http.ServeMux) {
	t.Helper()
	provider := recognize.NewProviderWithFactory(recognize.DefaultConfig(),
		func(context.Context, recognize.Config) (recognize.Engine, error) { return eng, nil })
	scanner, err := pipeline.NewBuilder().WithProvider(provider).WithMaxInFlight(2).Build()
	require.NoError(t, err)

	s := NewServerWith(scanner, cfg)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		require.NoError(t, provider.Shutdown())
	})
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s, mux
}

// chartUpload builds a multipart body with a rendered chart under the
// "image" field plus any extra form fields.
func chartUpload(t *testing.T, values []int, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	page, _ := testutil.RenderChart(testutil.DefaultChartConfig(values))

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image", "bill.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, page))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decodeScanResponse(t *testing.T, rec *httptest.ResponseRecorder) ScanResponse {
	t.Helper()
	var resp ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
}

func TestScanEndpointReturnsEstimateAndSizing(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	body, contentType := chartUpload(t, []int{300, 450, 380, 520, 410, 470}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeScanResponse(t, rec)
	assert.Equal(t, fusion.StatusOk, resp.Estimate.Status)
	assert.Equal(t, 6, resp.Estimate.MonthsUsed)
	require.NotNil(t, resp.Sizing)
	assert.Equal(t, sizing.SourceScan, resp.Sizing.Source)
	assert.Nil(t, resp.Report, "diagnostics are opt-in")
}

func TestScanEndpointDebugIncludesReport(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	body, contentType := chartUpload(t, []int{300, 450, 380, 520}, map[string]string{"debug": "1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeScanResponse(t, rec)
	require.NotNil(t, resp.Report)
	assert.Equal(t, 4, resp.Report.BarCount)
}

func TestScanEndpointManualOverrideRescue(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	// Three bars cannot produce an estimate, but the manual figure still
	// yields a sizing recommendation.
	body, contentType := chartUpload(t, []int{300, 450, 380}, map[string]string{"manual_kwh": "420"})
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeScanResponse(t, rec)
	assert.Equal(t, fusion.StatusInsufficient, resp.Estimate.Status)
	require.NotNil(t, resp.Sizing)
	assert.Equal(t, sizing.SourceManual, resp.Sizing.Source)
	assert.InDelta(t, 5040, resp.Sizing.AnnualKwh, 1e-9)
}

func TestScanEndpointMissingFile(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("manual_kwh", "300"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanEndpointInvalidImage(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image", "bill.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanEndpointMethodNotAllowed(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/scan", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScanEndpointRateLimited(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	cfg := testConfig()
	cfg.RateLimitPerMin = 1
	_, mux := newTestServer(t, eng, cfg)

	body, contentType := chartUpload(t, []int{300, 450, 380, 520}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body, contentType = chartUpload(t, []int{300, 450, 380, 520}, nil)
	req = httptest.NewRequest(http.MethodPost, "/v1/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScanPDFEndpointMissingFile(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/pdf", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanPDFEndpointRejectsBrokenPDF(t *testing.T) {
	eng := testutil.NewConstantEngine(recognize.Result{Text: "500", Confidence: 90})
	_, mux := newTestServer(t, eng, testConfig())

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("pdf", "bill.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-garbage"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan/pdf", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
