package api

import (
	"context"
	"net/http"
	"time"

	"convenios/internal/common/logging"
	"convenios/internal/common/types"
)

const correlationHeader = "X-Correlation-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// CorrelationMiddleware echoes or mints X-Correlation-ID, bounds the request
// with timeout and logs one line per request once it completes.
func CorrelationMiddleware(timeout time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := types.CorrelationIDFromHeader(r.Header.Get(correlationHeader))
		w.Header().Set(correlationHeader, corrID.String())

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		ctx = logging.WithCorrelationID(ctx, corrID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		log := logging.InfoContext
		if sw.status >= http.StatusInternalServerError {
			log = logging.ErrorContext
		}
		log(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
