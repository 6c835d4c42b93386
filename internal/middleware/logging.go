package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"detectserver/internal/logger"
)

// RequestIDHeader carries the per-request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger tags every request with an ID and logs method, path, status and duration.
// An incoming X-Request-ID is reused; otherwise a new UUID is generated.
func RequestLogger(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			log := logger.With("request_id", requestID)
			msg := "%s %s -> %d (%d bytes) in %v"
			switch {
			case rec.status >= 500:
				log.Error(msg, r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
			case rec.status >= 400:
				log.Warning(msg, r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
			default:
				log.Info(msg, r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
			}
		})
	}
}
