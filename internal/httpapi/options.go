package httpapi

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/model"
	"github.com/John-Robertt/subtagger/internal/tagging"
)

// Tagger is the per-batch transform served by the API. *tagging.Operator
// implements it.
type Tagger interface {
	Run(ctx context.Context, nodes []model.ProxyNode, platform string) ([]model.ProxyNode, tagging.Report)
}

type Options struct {
	// Tagger is required.
	Tagger Tagger

	// RequestTimeout bounds one request end to end (node list fetch, probe
	// fetch, tagging, render).
	RequestTimeout time.Duration

	// NodeFetch is used by /sub to download the node list.
	NodeFetch fetch.Options

	// MaxBodyBytes caps the POST /api/tag body.
	MaxBodyBytes int64

	Logger *zap.Logger

	// Registry receives the API metrics; nil means a private registry.
	Registry *prometheus.Registry
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 60 * time.Second
	}
	if o.NodeFetch.Timeout <= 0 {
		o.NodeFetch.Timeout = 15 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 5 * 1024 * 1024
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
