// Package http serves the partprune HTTP API.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arkilian/partprune/internal/logging"
)

type contextKey string

// correlationIDKey is the context key for the correlation ID.
const correlationIDKey contextKey = "correlation_id"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestIDMiddleware assigns each request an id and a request-scoped
// logger derived from logger.
func RequestIDMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := logging.WithRequestID(r.Context(), logger, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CorrelationIDMiddleware adds a correlation ID for distributed tracing.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			if reqID := logging.RequestID(r.Context()); reqID != "" {
				correlationID = reqID
			} else {
				correlationID = uuid.New().String()
			}
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				zerolog.Ctx(r.Context()).Error().Interface("panic", err).Msg("recovered from panic")
				writeError(w, http.StatusInternalServerError, "internal server error", "", logging.RequestID(r.Context()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ContentTypeMiddleware ensures JSON content type for API requests.
func ContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// AccessLogMiddleware logs every request at debug level on the request
// logger.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		zerolog.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("remote_ip", r.RemoteAddr).
			Str("path", path).
			Int("status", rec.status).
			Int64("latency_ns", int64(time.Since(start))).
			Str("protocol", r.Proto).
			Int64("bytes_out", rec.bytes).
			Msg("req received")
	})
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the default middleware chain for API handlers.
func DefaultMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return ChainMiddleware(
		RequestIDMiddleware(logger),
		RecoveryMiddleware,
		CorrelationIDMiddleware,
		AccessLogMiddleware,
		ContentTypeMiddleware,
	)
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, message, code, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code, RequestID: requestID})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// GetCorrelationID retrieves the correlation ID from the context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
