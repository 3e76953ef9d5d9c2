package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fjacquet/mediagen/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// timedWriter injects the X-Process-Time header when the status line is
// written, which is the last moment headers can still change.
type timedWriter struct {
	middleware.WrapResponseWriter
	start       time.Time
	wroteHeader bool
}

func (t *timedWriter) WriteHeader(status int) {
	if !t.wroteHeader {
		t.wroteHeader = true
		t.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(t.start).Seconds()))
	}
	t.WrapResponseWriter.WriteHeader(status)
}

func (t *timedWriter) Write(p []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.WrapResponseWriter.Write(p)
}

// requestLogger logs each request, echoes the request id and reports the
// processing time both as a response header and a Prometheus observation.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tw := &timedWriter{
			WrapResponseWriter: middleware.NewWrapResponseWriter(w, r.ProtoMajor),
			start:              start,
		}

		requestID := middleware.GetReqID(r.Context())
		tw.Header().Set("X-Request-ID", requestID)

		defer func() {
			elapsed := time.Since(start)

			routePattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				routePattern = rctx.RoutePattern()
			}
			metrics.HTTPRequests.WithLabelValues(r.Method, routePattern,
				fmt.Sprintf("%d", tw.Status())).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, routePattern).
				Observe(elapsed.Seconds())

			log.WithFields(log.Fields{
				"request_id":  requestID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      tw.Status(),
				"bytes":       tw.BytesWritten(),
				"duration_ms": elapsed.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}).Info("Handled request")
		}()

		next.ServeHTTP(tw, r)
	})
}
