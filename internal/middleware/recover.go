package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
)

// Recoverer turns a panic in a handler into a generic 500 JSON response.
func Recoverer(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Panic while serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(dto.ErrorResponse{Detail: "Internal Server Error"})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
