package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/models"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/imagesource"
)

// stubDetector returns fixed detections and records what it was asked to process.
type stubDetector struct {
	detections []models.Detection
	err        error
	calls      int
	lastWidth  int
	lastHeight int
}

func (d *stubDetector) Detect(ctx context.Context, img gocv.Mat) ([]models.Detection, error) {
	d.calls++
	d.lastWidth, d.lastHeight = img.Cols(), img.Rows()
	return d.detections, d.err
}

func testConfig() *config.Config {
	return &config.Config{
		FetchTimeout:      2 * time.Second,
		FetchAllowPrivate: true,
		MaxImageBytes:     1 << 20,
		MaxUploadBytes:    1 << 20,
	}
}

// newDetectTestHandler wires the real acquisition pipeline around a stub detector.
func newDetectTestHandler(cfg *config.Config, detector *stubDetector) http.HandlerFunc {
	acquirer := imagesource.NewAcquirer(imagesource.NewFetcher(cfg))
	svc := service.NewDetectionService(acquirer, detector, logger.NewNop())
	return DetectHandler(svc, cfg, logger.NewNop())
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a POST /detect request. Empty imageURL omits the field
// and nil file omits the file part.
func multipartRequest(t *testing.T, imageURL *string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if imageURL != nil {
		if err := mw.WriteField("image_url", *imageURL); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile("file", "veg.png")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func ptr(s string) *string { return &s }

func decodeDetection(t *testing.T, rec *httptest.ResponseRecorder) dto.DetectionResponse {
	t.Helper()
	var resp dto.DetectionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON error %q: %v", rec.Body.String(), err)
	}
	return resp.Detail
}

// stubModelInfo satisfies ModelInfo for the info endpoints.
type stubModelInfo struct {
	labels *ai.Labels
	stats  ai.PoolStats
}

func (s stubModelInfo) Backend() string { return "opencv" }
func (s stubModelInfo) Labels() *ai.Labels { return s.labels }
func (s stubModelInfo) Stats() ai.PoolStats { return s.stats }
