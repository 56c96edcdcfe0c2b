package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/John-Robertt/subtagger/internal/tagging"
)

func TestMetrics_CountsRequestsErrorsAndBatches(t *testing.T) {
	up := newUpstream(t)
	reg := prometheus.NewRegistry()
	opt := newTestOptions(t, up.URL+"/tags.json", tagging.ModeName)
	opt.Registry = reg
	h := NewHandler(opt)

	// 1) ok request
	{
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2) error request
	{
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sub", nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 3) tagged batch: HK-01 and JP-02 tagged, US-03 missing
	{
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sub?url="+url.QueryEscape(up.URL+"/nodes.yaml"), nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("sub status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 4) metrics endpoint (the /metrics request is counted after it responds).
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control=%q", got)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`subtagger_http_requests_total{pattern="GET /healthz",status="200"} 1`,
		`subtagger_http_requests_total{pattern="GET /sub",status="400"} 1`,
		`subtagger_http_requests_total{pattern="GET /sub",status="200"} 1`,
		`subtagger_app_errors_total{code="INVALID_ARGUMENT",stage="validate_request"} 1`,
		`subtagger_batches_total{status="ok"} 1`,
		`subtagger_nodes_total{result="tagged"} 2`,
		`subtagger_nodes_total{result="missing"} 1`,
		`subtagger_batch_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q, got:\n%s", want, body)
		}
	}
}

func TestMetrics_PerHandlerRegistry(t *testing.T) {
	up := newUpstream(t)
	opt := newTestOptions(t, up.URL+"/tags.json", tagging.ModeName)

	// Two handlers in one process must not collide on registration.
	a := NewHandler(opt)
	b := NewHandler(opt)

	rr := httptest.NewRecorder()
	a.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	scrape := func(h http.Handler) string {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rr.Body.String()
	}
	const healthz = `subtagger_http_requests_total{pattern="GET /healthz",status="200"} 1`
	if body := scrape(a); !strings.Contains(body, healthz) {
		t.Fatalf("handler a missing %q, got:\n%s", healthz, body)
	}
	if body := scrape(b); strings.Contains(body, `pattern="GET /healthz"`) {
		t.Fatalf("handler b saw handler a's request:\n%s", body)
	}
}

func TestObservability_AccessLogOmitsQuery(t *testing.T) {
	up := newUpstream(t)
	core, logs := observer.New(zap.InfoLevel)
	opt := newTestOptions(t, up.URL+"/tags.json", tagging.ModeName)
	opt.Logger = zap.New(core)
	h := NewHandler(opt)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sub?url="+url.QueryEscape(up.URL+"/broken.json?token=secret"), nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("access log entries=%d, want=1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/sub" || fields["pattern"] != "GET /sub" {
		t.Fatalf("fields=%v", fields)
	}
	for _, e := range logs.All() {
		for k, v := range e.ContextMap() {
			if s, ok := v.(string); ok && strings.Contains(s, "secret") {
				t.Fatalf("query leaked into log field %q: %q", k, s)
			}
		}
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if n := logs.FilterMessage("http request").Len(); n != 1 {
		t.Fatalf("healthz should not be access-logged, entries=%d", n)
	}
}
