package handler

import (
	"net/http"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/service/ai"
)

// ModelInfo exposes read-only facts about the loaded model.
type ModelInfo interface {
	Backend() string
	Labels() *ai.Labels
	Stats() ai.PoolStats
}

// HealthHandler reports that the model is loaded and how busy its engines are.
func HealthHandler(info ModelInfo, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := info.Stats()
		respondJSON(w, logger, http.StatusOK, dto.HealthInfo{
			Status:      "ok",
			Backend:     info.Backend(),
			Classes:     info.Labels().Len(),
			Workers:     stats.Size,
			WorkersBusy: stats.InUse,

			InferencesStarted:  stats.TotalAcquired,
			InferencesFinished: stats.TotalReleased,
		})
	}
}

// LabelsHandler lists the class names in class-ID order.
func LabelsHandler(info ModelInfo, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, logger, http.StatusOK, dto.LabelsInfo{Labels: info.Labels().Names()})
	}
}
