package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/handler"
	"detectserver/internal/logger"
	"detectserver/internal/middleware"
)

// SetupRoutes registers the API endpoints and wraps the router with CORS,
// request logging and panic recovery.
func SetupRoutes(runner handler.DetectRunner, info handler.ModelInfo, cfg *config.Config, logger *logger.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/detect", handler.DetectHandler(runner, cfg, logger)).Methods(http.MethodPost)
	router.HandleFunc("/health", handler.HealthHandler(info, logger)).Methods(http.MethodGet)
	router.HandleFunc("/labels", handler.LabelsHandler(info, logger)).Methods(http.MethodGet)

	router.NotFoundHandler = errorHandler(http.StatusNotFound, "Not Found")
	router.MethodNotAllowedHandler = errorHandler(http.StatusMethodNotAllowed, "Method Not Allowed")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})

	var h http.Handler = router
	h = corsHandler.Handler(h)
	h = middleware.Recoverer(logger)(h)
	h = middleware.RequestLogger(logger)(h)
	return h
}

func errorHandler(status int, detail string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(dto.ErrorResponse{Detail: detail})
	})
}
