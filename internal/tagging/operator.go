package tagging

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/subtagger/internal/model"
	"github.com/John-Robertt/subtagger/internal/probe"
)

type Options struct {
	Source   probe.Source
	Resolver *Resolver
	Mode     Mode

	// Workers bounds per-node fan-out. Values below 1 mean 1.
	Workers int

	Logger *zap.Logger
}

// Report summarizes one batch. Tagged+Unchanged+Missing+Malformed == Nodes
// when Status is probe.StatusOK; otherwise all nodes are Unchanged.
type Report struct {
	BatchID  string
	Platform string
	Status   probe.Status

	Nodes     int
	Tagged    int
	Unchanged int
	Missing   int
	Malformed int
}

// Operator is the per-batch transform: one fetch, then an independent
// resolve+merge per node.
type Operator struct {
	source   probe.Source
	resolver *Resolver
	mode     Mode
	workers  int
	logger   *zap.Logger
}

func NewOperator(opt Options) (*Operator, error) {
	if opt.Source == nil {
		return nil, errors.New("tagging: nil probe source")
	}
	if opt.Resolver == nil {
		return nil, errors.New("tagging: nil resolver")
	}
	if opt.Mode&ModeBoth == 0 {
		return nil, errors.New("tagging: mode must include tags and/or name")
	}
	workers := opt.Workers
	if workers < 1 {
		workers = 1
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Operator{
		source:   opt.Source,
		resolver: opt.Resolver,
		mode:     opt.Mode,
		workers:  workers,
		logger:   logger,
	}, nil
}

// Apply is the invocation contract: the returned list has the same length,
// order and node identities as the input. It never fails.
func (o *Operator) Apply(ctx context.Context, nodes []model.ProxyNode, platform string) []model.ProxyNode {
	out, _ := o.Run(ctx, nodes, platform)
	return out
}

// Run is Apply plus a batch report. When the probe table is unavailable or
// empty the input slice itself is returned.
func (o *Operator) Run(ctx context.Context, nodes []model.ProxyNode, platform string) ([]model.ProxyNode, Report) {
	rep := Report{
		BatchID:  uuid.NewString(),
		Platform: platform,
		Nodes:    len(nodes),
	}
	log := o.logger.With(zap.String("batch_id", rep.BatchID), zap.String("platform", platform))

	table, status := o.source.Fetch(ctx)
	rep.Status = status
	if status != probe.StatusOK {
		rep.Unchanged = len(nodes)
		log.Warn("batch passed through untagged", zap.Stringer("status", status), zap.Int("nodes", len(nodes)))
		return nodes, rep
	}

	out := make([]model.ProxyNode, len(nodes))
	var tagged, unchanged, missing, malformed atomic.Int64

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range nodes {
		g.Go(func() error {
			node := nodes[i]
			out[i] = node

			rec, ok, err := table.Lookup(node.Name)
			if err == nil && ok {
				var tags []string
				tags, err = o.resolver.Resolve(node.Name, rec)
				if err == nil {
					merged := Merge(node, tags, o.mode)
					out[i] = merged
					if changed(node, merged) {
						tagged.Add(1)
					} else {
						unchanged.Add(1)
					}
					return nil
				}
			}
			if err != nil {
				malformed.Add(1)
				log.Warn("malformed probe record, node left untouched", zap.String("node", node.Name), zap.Error(err))
				return nil
			}
			missing.Add(1)
			log.Debug("no probe record for node", zap.String("node", node.Name))
			return nil
		})
	}
	// Workers never return errors.
	_ = g.Wait()

	rep.Tagged = int(tagged.Load())
	rep.Unchanged = int(unchanged.Load())
	rep.Missing = int(missing.Load())
	rep.Malformed = int(malformed.Load())

	log.Info("batch tagged",
		zap.Int("nodes", rep.Nodes),
		zap.Int("tagged", rep.Tagged),
		zap.Int("unchanged", rep.Unchanged),
		zap.Int("missing", rep.Missing),
		zap.Int("malformed", rep.Malformed),
	)
	return out, rep
}

func changed(before, after model.ProxyNode) bool {
	return before.Name != after.Name || len(before.Tags) != len(after.Tags)
}
