package tagging

import (
	"fmt"
	"slices"

	"github.com/John-Robertt/subtagger/internal/probe"
)

type ResolverOptions struct {
	// AIProviders is checked in order; only the first available provider is
	// tagged. Empty means DefaultAIProviders.
	AIProviders []string

	// RegionSuffix appends "-<REGION>" to streaming tags when the probe
	// reported a region code, e.g. "NF-US".
	RegionSuffix bool
}

// Resolver maps one probe record to an ordered tag sequence. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	aiProviders  []string
	regionSuffix bool
	services     []string
}

func NewResolver(opt ResolverOptions) (*Resolver, error) {
	providers := opt.AIProviders
	if len(providers) == 0 {
		providers = DefaultAIProviders
	}
	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if !KnownAIProvider(p) {
			return nil, fmt.Errorf("unknown AI provider %q (known: %v)", p, AIProviders())
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("AI provider %q listed twice", p)
		}
		seen[p] = struct{}{}
	}

	services := make([]string, 0, len(providers)+len(streamingServices))
	services = append(services, providers...)
	services = append(services, streamingServices...)

	return &Resolver{
		aiProviders:  slices.Clone(providers),
		regionSuffix: opt.RegionSuffix,
		services:     services,
	}, nil
}

// Services lists the record keys this resolver reads.
func (r *Resolver) Services() []string {
	return slices.Clone(r.services)
}

// Resolve returns the tags for one node. A nil record yields no tags. A
// record whose known services have the wrong shape returns a
// *probe.MalformedRecordError and no tags.
func (r *Resolver) Resolve(node string, rec probe.Record) ([]string, error) {
	if rec == nil {
		return nil, nil
	}
	svcs, err := rec.Decode(node, r.services)
	if err != nil {
		return nil, err
	}
	return r.resolveServices(svcs), nil
}

func (r *Resolver) resolveServices(svcs probe.Services) []string {
	tags := make([]string, 0, 5)

	for _, p := range r.aiProviders {
		if svcs.Available(p) {
			tags = append(tags, aiProviderTags[p])
			break
		}
	}

	if o := svcs[probe.ServiceNetflix]; o.Available {
		tag := TagNetflix
		if o.OriginalsOnly() {
			tag = TagNetflixOriginals
		}
		tags = append(tags, r.withRegion(tag, o))
	}

	if o := svcs[probe.ServiceYouTube]; o.Available {
		tag := TagYouTube
		if o.Premium {
			tag = TagYouTubePremium
		}
		tags = append(tags, r.withRegion(tag, o))
	}

	if o := svcs[probe.ServiceDisney]; o.Available {
		tags = append(tags, r.withRegion(TagDisney, o))
	}

	if o := svcs[probe.ServiceMax]; o.Available {
		tags = append(tags, r.withRegion(TagMax, o))
	}

	return dedupe(tags)
}

func (r *Resolver) withRegion(tag string, o probe.Outcome) string {
	if !r.regionSuffix {
		return tag
	}
	if code := o.RegionCode(); code != "" {
		return tag + "-" + code
	}
	return tag
}

func dedupe(tags []string) []string {
	out := tags[:0]
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
