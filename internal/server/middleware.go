package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// statusWriter records the status code written to the client so the access
// log and metrics can observe it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// withRequestContext assigns a request id, carries the per-request log-field
// queue, recovers panics into a 500, and emits one access-log line when the
// response finishes.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx, rl := withRequestLog(r.Context(), requestID)
		r = r.WithContext(ctx)
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()

		defer func() {
			if recovered := recover(); recovered != nil {
				QueueLogFields(ctx, "panic", recovered)
				if s.debug {
					QueueLogFields(ctx, "traceback", string(debug.Stack()))
				}
				s.writeErrorResponse(sw, r, "InternalServerError", http.StatusInternalServerError, "")
			}
			args := []interface{}{
				"method", r.Method,
				"uri_path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"request_id", requestID,
				"src_ip", r.RemoteAddr,
			}
			slog.Info("request", append(args, rl.snapshot()...)...)
		}()

		next.ServeHTTP(sw, r)
	})
}
