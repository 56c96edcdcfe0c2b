package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/model"
	"github.com/John-Robertt/subtagger/internal/nodes"
	"github.com/John-Robertt/subtagger/internal/tagging"
)

const (
	headerTagStatus = "X-Tag-Status"
	headerBatchID   = "X-Batch-Id"
)

type tagRequest struct {
	Platform string            `json:"platform"`
	Nodes    []model.ProxyNode `json:"nodes"`
}

type tagResponse struct {
	Nodes []model.ProxyNode `json:"nodes"`
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteText(w, http.StatusOK, "ok\n")
}

// handleTag tags a node list supplied in the request body. Probe problems
// never fail the request; X-Tag-Status reports what happened.
func (s *server) handleTag(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opt.RequestTimeout)
	defer cancel()

	req, err := s.parseTagRequest(w, r)
	if err != nil {
		s.fail(w, err)
		return
	}

	out, rep := s.runBatch(ctx, req.Nodes, req.Platform)
	setReportHeaders(w, rep)
	WriteJSON(w, http.StatusOK, tagResponse{Nodes: out})
}

func (s *server) parseTagRequest(w http.ResponseWriter, r *http.Request) (tagRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxBodyBytes)

	var body tagRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return tagRequest{}, bodyError(err)
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return tagRequest{}, badRequest("JSON body 不允许多段", "")
	} else if !errors.Is(err, io.EOF) {
		return tagRequest{}, bodyError(err)
	}

	if body.Nodes == nil {
		return tagRequest{}, badRequest("缺少 nodes 参数", `expected: {"platform": "...", "nodes": [...]}`)
	}
	body.Platform = strings.TrimSpace(body.Platform)
	return body, nil
}

type subRequest struct {
	URL       string
	Format    nodes.Format
	hasFormat bool
	Platform  string
	FileName  string
}

// handleSub fetches a node list, tags it, and returns it as a download.
func (s *server) handleSub(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opt.RequestTimeout)
	defer cancel()

	req, err := parseSubGET(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	text, err := fetch.FetchTextWithOptions(ctx, fetch.KindNodeList, req.URL, s.opt.NodeFetch)
	if err != nil {
		s.fail(w, err)
		return
	}
	doc, err := nodes.Parse(text)
	if err != nil {
		var pe *nodes.ParseError
		if errors.As(err, &pe) {
			pe.AppError.URL = req.URL
		}
		s.fail(w, err)
		return
	}

	format := doc.Source()
	if req.hasFormat {
		format = req.Format
	}

	out, rep := s.runBatch(ctx, doc.Nodes, req.Platform)
	doc.Nodes = out
	body, err := doc.Render(format)
	if err != nil {
		s.fail(w, renderError(err))
		return
	}

	if err := setAttachmentHeaders(w, req.FileName, req.URL, format); err != nil {
		s.fail(w, err)
		return
	}
	setReportHeaders(w, rep)
	writeBody(w, http.StatusOK, format.ContentType(), body)
}

func parseSubGET(r *http.Request) (subRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "url", "format", "platform", "fileName":
		default:
			return subRequest{}, badRequest(fmt.Sprintf("不支持的 query 参数：%s", key), "")
		}
	}

	raw, err := singleQuery(q, "url", true)
	if err != nil {
		return subRequest{}, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return subRequest{}, badRequest("url 不能为空", "expected: url=<node list url>")
	}

	req := subRequest{URL: raw}

	if f, err := singleQuery(q, "format", false); err != nil {
		return subRequest{}, err
	} else if strings.TrimSpace(f) != "" {
		format, err := nodes.ParseFormat(f)
		if err != nil {
			return subRequest{}, badRequest("不支持的 format（仅支持 clash/json）", f)
		}
		req.Format, req.hasFormat = format, true
	}

	if req.Platform, err = singleQuery(q, "platform", false); err != nil {
		return subRequest{}, err
	}
	req.Platform = strings.TrimSpace(req.Platform)

	if req.FileName, err = singleQuery(q, "fileName", false); err != nil {
		return subRequest{}, err
	}
	return req, nil
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", badRequest(fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", badRequest(fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}

func (s *server) runBatch(ctx context.Context, in []model.ProxyNode, platform string) ([]model.ProxyNode, tagging.Report) {
	start := time.Now()
	out, rep := s.opt.Tagger.Run(ctx, in, platform)
	s.metrics.observeBatch(rep, time.Since(start).Seconds())
	return out, rep
}

func setReportHeaders(w http.ResponseWriter, rep tagging.Report) {
	w.Header().Set(headerTagStatus, rep.Status.String())
	if rep.BatchID != "" {
		w.Header().Set(headerBatchID, rep.BatchID)
	}
}
