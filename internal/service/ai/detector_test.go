package ai

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gocv.io/x/gocv"

	"detectserver/internal/logger"
	"detectserver/internal/models"
)

var testOptions = Options{
	InputSize:           640,
	ConfidenceThreshold: 0.25,
	NMSThreshold:        0.7,
	MaxDetections:       300,
}

func testLabels(t *testing.T) *Labels {
	t.Helper()
	labels, err := NewLabels([]string{"apple", "banana", "carrot"})
	if err != nil {
		t.Fatalf("NewLabels failed: %v", err)
	}
	return labels
}

// produceOutput holds a banana, an overlapping weaker banana, a carrot on the same
// spot and two predictions at or below the confidence threshold.
func produceOutput() RawOutput {
	anchors := []testAnchor{
		{cx: 320, cy: 320, w: 100, h: 100, scores: []float32{0.01, 0.9, 0.02}},
		{cx: 325, cy: 322, w: 100, h: 100, scores: []float32{0.01, 0.8, 0.02}},
		{cx: 320, cy: 320, w: 100, h: 100, scores: []float32{0.01, 0.1, 0.85}},
		{cx: 100, cy: 300, w: 40, h: 40, scores: []float32{0.2, 0.1, 0.1}},
		{cx: 500, cy: 300, w: 40, h: 40, scores: []float32{0.25, 0.1, 0.1}},
	}
	return channelsFirst(3, padAnchors(anchors, 3, 32))
}

func emptyOutput() RawOutput {
	return channelsFirst(3, padAnchors(nil, 3, 32))
}

func newTestImage(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 120, 200, 0), height, width, gocv.MatTypeCV8UC3)
}

func TestDetectorService_Detect(t *testing.T) {
	engine := &fakeEngine{out: produceOutput()}
	service, err := newDetectorService("fake", testLabels(t), []Engine{engine}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}
	defer service.Close(context.Background())

	img := newTestImage(1280, 640)
	defer img.Close()

	detections, err := service.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	expected := []models.Detection{
		{ClassID: 1, ClassName: "banana", Confidence: 0.9, Box: image.Rect(540, 220, 740, 420)},
		{ClassID: 2, ClassName: "carrot", Confidence: 0.85, Box: image.Rect(540, 220, 740, 420)},
	}
	if diff := cmp.Diff(expected, detections); diff != "" {
		t.Errorf("Detections mismatch (-want +got):\n%s", diff)
	}

	// Warm-up plus one request
	if engine.forwards != 2 {
		t.Errorf("Expected 2 forward passes, got %d", engine.forwards)
	}
}

func TestDetectorService_DetectIsRepeatable(t *testing.T) {
	service, err := newDetectorService("fake", testLabels(t), []Engine{&fakeEngine{out: produceOutput()}}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}
	defer service.Close(context.Background())

	img := newTestImage(800, 600)
	defer img.Close()

	first, err := service.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	second, err := service.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Repeated detection differs (-first +second):\n%s", diff)
	}
}

func TestDetectorService_NoDetections(t *testing.T) {
	service, err := newDetectorService("fake", testLabels(t), []Engine{&fakeEngine{out: emptyOutput()}}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}
	defer service.Close(context.Background())

	img := newTestImage(320, 240)
	defer img.Close()

	detections, err := service.Detect(context.Background(), img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if detections == nil || len(detections) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", detections)
	}
}

func TestDetectorService_EmptyImage(t *testing.T) {
	service, err := newDetectorService("fake", testLabels(t), []Engine{&fakeEngine{out: emptyOutput()}}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}
	defer service.Close(context.Background())

	img := gocv.NewMat()
	defer img.Close()

	if _, err := service.Detect(context.Background(), img); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestDetectorService_ForwardError(t *testing.T) {
	engine := &fakeEngine{out: emptyOutput()}
	service, err := newDetectorService("fake", testLabels(t), []Engine{engine}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}
	defer service.Close(context.Background())

	engine.err = errors.New("inference exploded")
	img := newTestImage(64, 64)
	defer img.Close()

	if _, err := service.Detect(context.Background(), img); err == nil {
		t.Error("Expected forward error to be returned")
	}
	if stats := service.Stats(); stats.InUse != 0 {
		t.Errorf("Engine should be released after a failed pass, in use: %d", stats.InUse)
	}
}

func TestNewDetectorService_ClassCountMismatch(t *testing.T) {
	a := &fakeEngine{out: channelsFirst(2, padAnchors(nil, 2, 32))}
	b := &fakeEngine{out: emptyOutput()}

	if _, err := newDetectorService("fake", testLabels(t), []Engine{b, a}, testOptions, logger.NewNop()); err == nil {
		t.Fatal("Expected error when model classes do not match labels")
	}
	if !a.closed || !b.closed {
		t.Error("Expected all engines to be closed after a failed warm-up")
	}
}

func TestDetectorService_Accessors(t *testing.T) {
	service, err := newDetectorService("fake", testLabels(t), []Engine{&fakeEngine{out: emptyOutput()}, &fakeEngine{out: emptyOutput()}}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}

	if service.Backend() != "fake" {
		t.Errorf("Unexpected backend %q", service.Backend())
	}
	if service.Labels().Len() != 3 {
		t.Errorf("Unexpected label count %d", service.Labels().Len())
	}
	if service.Stats().Size != 2 {
		t.Errorf("Unexpected pool size %d", service.Stats().Size)
	}
	if err := service.Close(context.Background()); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestDetectorService_CloseWaitsForInFlightDetection(t *testing.T) {
	engine := &fakeEngine{out: emptyOutput()}
	service, err := newDetectorService("fake", testLabels(t), []Engine{engine}, testOptions, logger.NewNop())
	if err != nil {
		t.Fatalf("newDetectorService failed: %v", err)
	}

	held, err := service.pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := service.Close(ctx); err == nil {
		t.Error("Expected Close to report the engine still in use")
	}
	if engine.closed {
		t.Error("Engine in use must stay open")
	}
	service.pool.Release(held)

	img := newTestImage(64, 64)
	defer img.Close()
	if _, err := service.Detect(context.Background(), img); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed after Close, got %v", err)
	}
}
