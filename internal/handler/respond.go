package handler

import (
	"encoding/json"
	"net/http"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
)

// respondJSON writes v as a JSON body with the given status.
func respondJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// respondError writes {"detail": ...} with the given status.
func respondError(w http.ResponseWriter, logger *logger.Logger, status int, detail string) {
	respondJSON(w, logger, status, dto.ErrorResponse{Detail: detail})
}
