package ai

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/models"
)

// Options controls how detections are produced from raw network output.
type Options struct {
	InputSize           int
	ConfidenceThreshold float32
	NMSThreshold        float32
	MaxDetections       int
}

// OptionsFromConfig extracts the detection options from the config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InputSize:           cfg.InputSize,
		ConfidenceThreshold: float32(cfg.ConfidenceThreshold),
		NMSThreshold:        float32(cfg.NMSThreshold),
		MaxDetections:       cfg.MaxDetections,
	}
}

// DetectorService owns the loaded model and its label table. It is created once
// at startup and is safe for concurrent use.
type DetectorService struct {
	backend     string
	labels      *Labels
	pool        *enginePool
	opts        Options
	logger      *logger.Logger
	ownsRuntime bool
}

// NewDetectorService loads the label table and cfg.InferenceWorkers engines of the
// configured backend, then warms each engine up. Any failure is returned and the
// partially loaded engines are released.
func NewDetectorService(cfg *config.Config, logger *logger.Logger) (*DetectorService, error) {
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	ownsRuntime := false
	if cfg.ModelBackend == config.BackendONNXRuntime {
		if err := initONNXRuntime(cfg.ONNXRuntimeLib); err != nil {
			return nil, err
		}
		ownsRuntime = true
	}

	threads := runtime.NumCPU() / cfg.InferenceWorkers
	engines := make([]Engine, 0, cfg.InferenceWorkers)
	for i := 0; i < cfg.InferenceWorkers; i++ {
		var engine Engine
		switch cfg.ModelBackend {
		case config.BackendONNXRuntime:
			engine, err = newONNXEngine(cfg.ModelPath, cfg.InputSize, threads)
		default:
			engine, err = newOpenCVEngine(cfg.ModelPath)
		}
		if err != nil {
			err = fmt.Errorf("load engine %d: %w", i, err)
			for _, e := range engines {
				err = multierr.Append(err, e.Close())
			}
			if ownsRuntime {
				err = multierr.Append(err, destroyONNXRuntime())
			}
			return nil, err
		}
		engines = append(engines, engine)
	}

	service, err := newDetectorService(cfg.ModelBackend, labels, engines, OptionsFromConfig(cfg), logger)
	if err != nil {
		if ownsRuntime {
			err = multierr.Append(err, destroyONNXRuntime())
		}
		return nil, err
	}
	service.ownsRuntime = ownsRuntime

	logger.Info("Detection model %s loaded with %s backend: %d classes, %d workers",
		cfg.ModelPath, cfg.ModelBackend, labels.Len(), len(engines))
	return service, nil
}

// newDetectorService wraps already loaded engines. Every engine is warmed up with a
// blank frame and its class count is checked against the label table.
func newDetectorService(backend string, labels *Labels, engines []Engine, opts Options, logger *logger.Logger) (*DetectorService, error) {
	for i, engine := range engines {
		if err := warmUp(engine, opts.InputSize, labels.Len()); err != nil {
			err = fmt.Errorf("warm up engine %d: %w", i, err)
			for _, e := range engines {
				err = multierr.Append(err, e.Close())
			}
			return nil, err
		}
	}

	return &DetectorService{
		backend: backend,
		labels:  labels,
		pool:    newEnginePool(engines),
		opts:    opts,
		logger:  logger,
	}, nil
}

func warmUp(engine Engine, inputSize, numClasses int) error {
	frame := blankFrame(inputSize)
	defer frame.Close()

	blob, _, err := prepareBlob(frame, inputSize)
	if err != nil {
		return err
	}
	defer blob.Close()

	out, err := engine.Forward(blob)
	if err != nil {
		return err
	}

	if _, err := parseLayout(out, numClasses); err != nil {
		return fmt.Errorf("model output does not match the label table: %w", err)
	}
	return nil
}

// Detect runs the model over a BGR image and returns detections in model output
// order: descending confidence after class-aware NMS.
func (s *DetectorService) Detect(ctx context.Context, img gocv.Mat) ([]models.Detection, error) {
	blob, lb, err := prepareBlob(img, s.opts.InputSize)
	if err != nil {
		return nil, fmt.Errorf("prepare input: %w", err)
	}
	defer blob.Close()

	engine, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire engine: %w", err)
	}
	out, err := engine.Forward(blob)
	s.pool.Release(engine)
	if err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	layout, err := parseLayout(out, s.labels.Len())
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}

	candidates := decodeCandidates(out, layout, s.opts.ConfidenceThreshold)
	kept := nonMaxSuppression(candidates, s.opts.NMSThreshold, s.opts.MaxDetections)

	detections := make([]models.Detection, 0, len(kept))
	for _, c := range kept {
		detections = append(detections, models.Detection{
			ClassID:    c.classID,
			ClassName:  s.labels.Name(c.classID),
			Confidence: c.score,
			Box:        lb.toSource(c.box),
		})
	}

	for _, d := range detections {
		s.logger.Debug("Detected %s (%.2f) at %v", d.ClassName, d.Confidence, d.Box)
	}
	return detections, nil
}

// Labels returns the label table of the loaded model.
func (s *DetectorService) Labels() *Labels {
	return s.labels
}

// Backend returns the name of the inference backend in use.
func (s *DetectorService) Backend() string {
	return s.backend
}

// Stats reports engine pool usage.
func (s *DetectorService) Stats() PoolStats {
	return s.pool.Stats()
}

// Close waits, within ctx, for in-flight inferences to hand their engines back and
// releases them. The ONNX Runtime environment is destroyed only when every engine
// was closed.
func (s *DetectorService) Close(ctx context.Context) error {
	if err := s.pool.Close(ctx); err != nil {
		return err
	}
	if s.ownsRuntime {
		return destroyONNXRuntime()
	}
	return nil
}
