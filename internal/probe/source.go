package probe

import (
	"context"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/subtagger/internal/fetch"
)

type Status int

const (
	StatusOK Status = iota
	StatusFetchFailed
	StatusEmpty
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFetchFailed:
		return "fetch_failed"
	case StatusEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Source obtains the result table for one batch. Implementations never
// return an error: any failure is logged and reported as StatusFetchFailed
// with an empty table, so callers can only ever degrade to a no-op.
type Source interface {
	Fetch(ctx context.Context) (Table, Status)
}

// NewSource picks an HTTP source for http(s) locators and a file source for
// everything else.
func NewSource(locator string, opt fetch.Options, logger *zap.Logger) Source {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return &HTTPSource{URL: locator, Options: opt, Logger: logger}
	}
	return &FileSource{Path: locator, Logger: logger}
}

type HTTPSource struct {
	URL     string
	Options fetch.Options
	Logger  *zap.Logger
}

func (s *HTTPSource) Fetch(ctx context.Context) (Table, Status) {
	log := orNop(s.Logger).With(zap.String("source", redactURL(s.URL)))

	text, err := fetch.FetchTextWithOptions(ctx, fetch.KindProbeTable, s.URL, s.Options)
	if err != nil {
		log.Warn("probe results unavailable, tagging skipped", zap.Error(err))
		return Table{}, StatusFetchFailed
	}
	return decodeTable(text, log)
}

type FileSource struct {
	Path   string
	Logger *zap.Logger
}

func (s *FileSource) Fetch(ctx context.Context) (Table, Status) {
	log := orNop(s.Logger).With(zap.String("source", s.Path))

	if err := ctx.Err(); err != nil {
		log.Warn("probe results unavailable, tagging skipped", zap.Error(err))
		return Table{}, StatusFetchFailed
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		log.Warn("probe results unavailable, tagging skipped", zap.Error(err))
		return Table{}, StatusFetchFailed
	}
	return decodeTable(string(b), log)
}

func decodeTable(text string, log *zap.Logger) (Table, Status) {
	t, err := ParseTable(text)
	if err != nil {
		log.Warn("probe results unreadable, tagging skipped", zap.Error(err))
		return Table{}, StatusFetchFailed
	}
	if t.Len() == 0 {
		log.Warn("probe result table is empty, tagging skipped")
		return Table{}, StatusEmpty
	}
	log.Info("probe results loaded", zap.Int("nodes", t.Len()))
	return t, StatusOK
}

// redactURL drops userinfo, query and fragment; they may carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u == nil {
		return "(invalid url)"
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
