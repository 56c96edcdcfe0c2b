package tagging

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/subtagger/internal/model"
)

// Mode selects where resolved tags land. The two strategies combine.
type Mode uint8

const (
	ModeTags Mode = 1 << iota
	ModeName

	ModeBoth = ModeTags | ModeName
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tags":
		return ModeTags, nil
	case "name":
		return ModeName, nil
	case "both":
		return ModeBoth, nil
	default:
		return 0, fmt.Errorf("unsupported mode %q (tags/name/both)", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeTags:
		return "tags"
	case ModeName:
		return "name"
	case ModeBoth:
		return "both"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Prefix renders tags as the display-name prefix, e.g. "[Chat|NF]".
func Prefix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "[" + strings.Join(tags, "|") + "]"
}

// Merge applies tags to a copy of node; node itself is never modified.
//
// In name mode the prefix is added only when that exact prefix string is not
// already a substring of the name. The check is deliberately coarse: a name
// that happens to contain the prefix is left alone, which can under-tag but
// never stacks prefixes across repeated runs.
func Merge(node model.ProxyNode, tags []string, mode Mode) model.ProxyNode {
	if len(tags) == 0 {
		return node
	}
	out := node.Clone()

	if mode&ModeTags != 0 {
		for _, t := range tags {
			if !out.HasTag(t) {
				out.Tags = append(out.Tags, t)
			}
		}
	}

	if mode&ModeName != 0 {
		prefix := Prefix(tags)
		if !strings.Contains(out.Name, prefix) {
			out.Name = prefix + " " + out.Name
		}
	}

	return out
}
