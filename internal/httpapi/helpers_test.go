package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/probe"
	"github.com/John-Robertt/subtagger/internal/tagging"
)

const probeTableJSON = `{
  "HK-01": {"openai": {"available": true}, "netflix": {"available": true, "variant": "Originals Only"}},
  "JP-02": {"youtube": {"available": true, "premium": true}}
}`

const clashNodes = `mixed-port: 7890
proxies:
  - name: HK-01
    type: ss
    server: hk.example.com
    port: 8388
  - name: JP-02
    type: trojan
    server: jp.example.com
    port: 443
  - name: US-03
    type: vmess
    server: us.example.com
    port: 443
rules:
  - MATCH,DIRECT
`

// upstream serves the probe table and node lists. Paths:
//
//	/tags.json     probe table
//	/broken.json   500
//	/nodes.yaml    Clash node list
//	/nodes.json    JSON node list
//	/garbage.yaml  not a node list
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tags.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(probeTableJSON))
	})
	mux.HandleFunc("/broken.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/nodes.yaml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(clashNodes))
	})
	mux.HandleFunc("/nodes.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"HK-01","type":"ss","port":8388},{"name":"ZZ-09","type":"ss"}]`))
	})
	mux.HandleFunc("/garbage.yaml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("port: 7890\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOptions(t *testing.T, probeURL string, mode tagging.Mode) Options {
	t.Helper()
	r, err := tagging.NewResolver(tagging.ResolverOptions{})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	op, err := tagging.NewOperator(tagging.Options{
		Source:   probe.NewSource(probeURL, fetch.Options{Timeout: 2 * time.Second}, nil),
		Resolver: r,
		Mode:     mode,
		Workers:  2,
	})
	if err != nil {
		t.Fatalf("NewOperator: %v", err)
	}
	return Options{
		Tagger:         op,
		RequestTimeout: 5 * time.Second,
		NodeFetch:      fetch.Options{Timeout: 2 * time.Second},
	}
}
