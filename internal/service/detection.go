package service

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/models"
	"detectserver/internal/service/imagesource"
)

// ObjectDetector runs the model over a decoded BGR image.
type ObjectDetector interface {
	Detect(ctx context.Context, img gocv.Mat) ([]models.Detection, error)
}

// ImageAcquirer resolves the request inputs into a decoded image and its source.
type ImageAcquirer interface {
	Acquire(ctx context.Context, req imagesource.Request) (gocv.Mat, string, error)
}

// DetectionService handles a single detection request end to end.
type DetectionService struct {
	acquirer ImageAcquirer
	detector ObjectDetector
	logger   *logger.Logger
}

func NewDetectionService(acquirer ImageAcquirer, detector ObjectDetector, logger *logger.Logger) *DetectionService {
	return &DetectionService{
		acquirer: acquirer,
		detector: detector,
		logger:   logger,
	}
}

// Detect acquires the image, runs detection and builds the response. Input
// problems are returned as *imagesource.InputError; anything else is an internal
// failure. The image is released before returning.
func (s *DetectionService) Detect(ctx context.Context, req imagesource.Request) (dto.DetectionResponse, error) {
	img, source, err := s.acquirer.Acquire(ctx, req)
	if err != nil {
		return dto.DetectionResponse{}, err
	}
	defer img.Close()

	detections, err := s.detector.Detect(ctx, img)
	if err != nil {
		return dto.DetectionResponse{}, fmt.Errorf("detect objects: %w", err)
	}

	classes := make([]string, 0, len(detections))
	for _, d := range detections {
		classes = append(classes, d.ClassName)
	}

	s.logger.Info("Detected %d object(s) in %s (%dx%d)", len(classes), source, img.Cols(), img.Rows())
	return dto.NewDetectionResponse(source, classes), nil
}
