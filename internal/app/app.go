package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/multierr"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/routes"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/imagesource"
)

// model is the part of the detector the app manages directly.
type model interface {
	Backend() string
	Close(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   *logger.Logger
	detector model
	server   *http.Server
}

// NewApp loads the configuration and the model and builds the HTTP server.
// The model is loaded exactly once here; a failure aborts startup.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	detector, err := ai.NewDetectorService(cfg, log)
	if err != nil {
		log.Error("Failed to load detection model: %v", err)
		log.Sync()
		return nil, fmt.Errorf("load detection model: %w", err)
	}

	acquirer := imagesource.NewAcquirer(imagesource.NewFetcher(cfg))
	detection := service.NewDetectionService(acquirer, detector, log)
	router := routes.SetupRoutes(detection, detector, cfg, log)

	return &App{
		config:   cfg,
		logger:   log,
		detector: detector,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and
// releases the model. Both steps share SHUTDOWN_TIMEOUT; engines still busy when
// it expires are left open.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Detection server listening on %s", a.server.Addr)
	a.logger.Info("Model: %s (%s backend), labels: %s", a.config.ModelPath, a.detector.Backend(), a.config.LabelsPath)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.ListenAndServe()
	}()

	var err error
	stopped := false
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		stopped = true
	case <-ctx.Done():
		a.logger.Info("Shutting down, waiting up to %v for in-flight requests", a.config.ShutdownTimeout)
	}

	// Jeden termin obejmuje zarówno żądania HTTP, jak i zwrot silników
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if !stopped {
		err = a.server.Shutdown(shutdownCtx)
	}
	if closeErr := a.detector.Close(shutdownCtx); closeErr != nil {
		a.logger.Error("Detection engines not fully released: %v", closeErr)
		err = multierr.Append(err, closeErr)
	}
	a.logger.Info("Server stopped")
	a.logger.Sync()
	return err
}
