package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/subtagger/internal/model"
)

func TestWriteError_JSONShapeAndHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusUnprocessableEntity, model.AppError{
		Code:    "NODES_PARSE_ERROR",
		Message: "节点解析失败",
		Stage:   "parse_nodes",
		URL:     "https://example.com/nodes.yaml",
		Line:    12,
		Snippet: "- type: ss",
		Hint:    "expected: Clash YAML with proxies:",
	})

	if got, want := rr.Code, http.StatusUnprocessableEntity; got != want {
		t.Fatalf("status = %d, want %d", got, want)
	}

	if got, want := rr.Header().Get("Content-Type"), "application/json; charset=utf-8"; got != want {
		t.Fatalf("Content-Type = %q, want %q", got, want)
	}

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nbody=%q", err, rr.Body.String())
	}
	if resp.Error.Code != "NODES_PARSE_ERROR" {
		t.Fatalf("code = %q, want %q", resp.Error.Code, "NODES_PARSE_ERROR")
	}
	if resp.Error.Stage != "parse_nodes" {
		t.Fatalf("stage = %q, want %q", resp.Error.Stage, "parse_nodes")
	}
	if resp.Error.Line != 12 {
		t.Fatalf("line = %d, want %d", resp.Error.Line, 12)
	}
	if resp.Error.Node != "" {
		t.Fatalf("node = %q, want empty", resp.Error.Node)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusOK, map[string]int{"n": 1})
	if got := rr.Body.String(); got != "{\"n\":1}\n" {
		t.Fatalf("body = %q", got)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}
}
