package httpapi

import "net/http"

// NewMux registers the API routes without the observability middleware.
func NewMux(opt Options) *http.ServeMux {
	return newServer(opt).mux()
}

type server struct {
	opt     Options
	metrics *metricsSet
}

func newServer(opt Options) *server {
	opt = opt.withDefaults()
	return &server{opt: opt, metrics: newMetrics(opt.Registry)}
}

func (s *server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("GET /metrics", noStore(s.metrics.handler()))
	mux.HandleFunc("POST /api/tag", s.handleTag)
	mux.HandleFunc("GET /sub", s.handleSub)
	return mux
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
