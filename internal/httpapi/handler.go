package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NewHandler returns the production handler: routes wrapped in panic
// recovery, metrics and the access log. Tests that do not care about either
// can use NewMux.
func NewHandler(opt Options) http.Handler {
	s := newServer(opt)
	return s.observe(s.recoverPanics(s.mux()))
}

// responseRecorder remembers what was sent so the middleware can report it.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *responseRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *responseRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(p []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(p)
	rw.written += int64(n)
	return n, err
}

func (rw *responseRecorder) code() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// routeLabel bounds the pattern label: every unmatched path shares one value.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "(unmatched)"
	}
	return r.Pattern
}

// quiet paths are scraped by probes and monitoring; they are counted but not
// access-logged.
func quiet(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		pattern := routeLabel(r)
		status := rw.code()
		s.metrics.incRequest(pattern, status)
		if quiet(r.URL.Path) {
			return
		}

		// The query is never logged: /sub carries upstream URLs with tokens.
		s.opt.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("pattern", pattern),
			zap.Int("status", status),
			zap.Int64("bytes", rw.written),
			zap.Duration("dur", time.Since(start).Round(time.Millisecond)),
			zap.String("batch_id", rw.Header().Get(headerBatchID)),
		)
	})
}

// recoverPanics turns a handler panic into a 500 INTERNAL_ERROR response.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func (s *server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			s.opt.Logger.Error("handler panic",
				zap.String("path", r.URL.Path),
				zap.Any("panic", v),
				zap.StackSkip("stack", 1),
			)
			s.fail(w, fmt.Errorf("panic: %v", v))
		}()
		next.ServeHTTP(w, r)
	})
}
