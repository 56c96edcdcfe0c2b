package probe

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Service identifiers as written by the probe runner into tags.json.
const (
	ServiceOpenAI  = "openai"
	ServiceGemini  = "gemini"
	ServiceClaude  = "claude"
	ServiceNetflix = "netflix"
	ServiceYouTube = "youtube"
	ServiceDisney  = "disney"
	ServiceMax     = "max"
)

const (
	VariantFull          = "Full"
	VariantOriginalsOnly = "Originals Only"
)

// Outcome is the per-service probe result. Every field is optional; an absent
// field reads as its zero value, so "missing" and "false" mean the same thing.
type Outcome struct {
	Available bool   `mapstructure:"available"`
	Variant   string `mapstructure:"variant"`
	// Result is the older spelling of Variant ("Full" / "Originals Only").
	Result  string `mapstructure:"result"`
	Region  string `mapstructure:"region"`
	Country string `mapstructure:"country"`
	Premium bool   `mapstructure:"premium"`
}

func (o Outcome) EffectiveVariant() string {
	if v := strings.TrimSpace(o.Variant); v != "" {
		return v
	}
	return strings.TrimSpace(o.Result)
}

// OriginalsOnly reports whether a Netflix unlock is limited to originals.
func (o Outcome) OriginalsOnly() bool {
	v := o.EffectiveVariant()
	return strings.EqualFold(v, VariantOriginalsOnly) || strings.EqualFold(v, "originals")
}

// RegionCode returns the region reported by the probe, falling back to the
// exit country. The result is upper-cased and empty when it does not look
// like a 2-3 letter region code.
func (o Outcome) RegionCode() string {
	for _, s := range []string{o.Region, o.Country} {
		s = strings.TrimSpace(s)
		if isRegionCode(s) {
			return strings.ToUpper(s)
		}
	}
	return ""
}

func isRegionCode(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// Record is one node's raw entry in the result table, keyed by service.
// It may also carry bookkeeping keys such as "update_time".
type Record map[string]any

// Services is a validated record: only the requested services, typed.
type Services map[string]Outcome

func (s Services) Available(service string) bool {
	return s[service].Available
}

type MalformedRecordError struct {
	Node    string
	Service string
	Cause   error
}

func (e *MalformedRecordError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Service == "" {
		return fmt.Sprintf("malformed probe record for node %q: %v", e.Node, e.Cause)
	}
	return fmt.Sprintf("malformed probe record for node %q (service %q): %v", e.Node, e.Service, e.Cause)
}

func (e *MalformedRecordError) Unwrap() error { return e.Cause }

// Decode validates the entries for the given services and returns them typed.
// Services that are absent or null are skipped; keys not listed are ignored.
func (r Record) Decode(node string, services []string) (Services, error) {
	out := make(Services, len(services))
	for _, svc := range services {
		raw, ok := r[svc]
		if !ok || raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &MalformedRecordError{Node: node, Service: svc, Cause: fmt.Errorf("expected object, got %T", raw)}
		}

		var o Outcome
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &o,
			TagName: "mapstructure",
		})
		if err != nil {
			return nil, &MalformedRecordError{Node: node, Service: svc, Cause: err}
		}
		if err := dec.Decode(obj); err != nil {
			return nil, &MalformedRecordError{Node: node, Service: svc, Cause: err}
		}
		out[svc] = o
	}
	return out, nil
}
