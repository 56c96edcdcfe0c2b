// Package nodes reads and writes node lists: Clash YAML documents (the
// "proxies:" section) and JSON, either a bare array or {"proxies": [...]}.
// Shadowsocks subscriptions (ss:// lines, plain or base64) are read as well
// and written back out as Clash.
package nodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subtagger/internal/model"
)

const proxiesKey = "proxies"

type Format int

const (
	FormatClash Format = iota
	FormatJSON
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clash", "yaml", "yml":
		return FormatClash, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unsupported format %q (clash/json)", s)
	}
}

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "clash"
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/yaml; charset=utf-8"
}

func (f Format) Ext() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".yaml"
}

// Document is a parsed node list plus whatever surrounded it. Rendering back
// to the source format keeps the surrounding keys; converting to the other
// format carries only the node list.
type Document struct {
	Nodes []model.ProxyNode

	source Format
	bare   bool

	yamlRoot    *yaml.Node // mapping or sequence
	yamlProxies *yaml.Node // value under "proxies" inside yamlRoot

	jsonObject map[string]json.RawMessage
}

func (d *Document) Source() Format { return d.source }

// Parse detects the format: content that is valid JSON and starts with '[' or
// '{' is JSON, ss:// lines or a lone base64 blob is a subscription, everything
// else is YAML.
func Parse(content string) (*Document, error) {
	s := strings.TrimPrefix(content, "\uFEFF")
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, newParseError("节点列表为空", 0, "", nil)
	}
	if (trimmed[0] == '[' || trimmed[0] == '{') && json.Valid([]byte(trimmed)) {
		return parseJSON(trimmed)
	}
	if looksLikeSubscription(trimmed) {
		return parseSubscription(trimmed)
	}
	return parseYAML(s)
}

func parseYAML(content string) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, newParseError("节点列表 YAML 解析失败", 0, content, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, newParseError("节点列表为空", 0, "", nil)
	}
	root := doc.Content[0]

	d := &Document{source: FormatClash, yamlRoot: root}
	var seq *yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		d.bare = true
		seq = root
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == proxiesKey {
				seq = root.Content[i+1]
				break
			}
		}
		if seq == nil {
			return nil, newParseError("缺少 proxies 节点列表", root.Line, "", nil)
		}
		d.yamlProxies = seq
	default:
		return nil, newParseError("节点列表必须是 YAML 映射或序列", root.Line, content, nil)
	}

	if seq.Kind == yaml.ScalarNode && seq.ShortTag() == "!!null" {
		d.Nodes = []model.ProxyNode{}
		return d, nil
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, newParseError("proxies 必须是列表", seq.Line, "", nil)
	}

	d.Nodes = make([]model.ProxyNode, 0, len(seq.Content))
	for _, item := range seq.Content {
		var n model.ProxyNode
		if err := item.Decode(&n); err != nil {
			return nil, newParseError("节点解析失败", item.Line, "", err)
		}
		d.Nodes = append(d.Nodes, n)
	}
	return d, nil
}

func parseJSON(content string) (*Document, error) {
	d := &Document{source: FormatJSON}

	var list json.RawMessage
	if content[0] == '[' {
		d.bare = true
		list = json.RawMessage(content)
	} else {
		if err := json.Unmarshal([]byte(content), &d.jsonObject); err != nil {
			return nil, newParseError("节点列表 JSON 解析失败", 0, content, err)
		}
		raw, ok := d.jsonObject[proxiesKey]
		if !ok {
			return nil, newParseError("缺少 proxies 节点列表", 0, "", nil)
		}
		list = raw
	}

	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, newParseError("proxies 必须是列表", 0, truncateSnippet(string(list), 200), err)
	}
	d.Nodes = make([]model.ProxyNode, 0, len(items))
	for i, item := range items {
		var n model.ProxyNode
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, newParseError(fmt.Sprintf("第 %d 个节点解析失败", i+1), 0, string(item), err)
		}
		d.Nodes = append(d.Nodes, n)
	}
	return d, nil
}

// Render writes the document with its current Nodes in the given format.
func (d *Document) Render(f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return d.renderJSON()
	default:
		return d.renderYAML()
	}
}

func (d *Document) renderYAML() ([]byte, error) {
	var seq yaml.Node
	if err := seq.Encode(d.nodes()); err != nil {
		return nil, fmt.Errorf("encode proxies: %w", err)
	}

	var root *yaml.Node
	switch {
	case d.source == FormatClash && d.bare:
		root = &seq
	case d.source == FormatClash && d.yamlProxies != nil:
		*d.yamlProxies = seq
		root = d.yamlRoot
	default:
		root = &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: proxiesKey},
			&seq,
		}}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) renderJSON() ([]byte, error) {
	var (
		out any
		err error
	)
	switch {
	case d.source == FormatJSON && d.bare:
		out = d.nodes()
	case d.source == FormatJSON && d.jsonObject != nil:
		obj := make(map[string]json.RawMessage, len(d.jsonObject))
		for k, v := range d.jsonObject {
			obj[k] = v
		}
		obj[proxiesKey], err = json.Marshal(d.nodes())
		if err != nil {
			return nil, fmt.Errorf("encode proxies: %w", err)
		}
		out = obj
	default:
		out = map[string]any{proxiesKey: d.nodes()}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(b, '\n'), nil
}

func (d *Document) nodes() []model.ProxyNode {
	if d.Nodes == nil {
		return []model.ProxyNode{}
	}
	return d.Nodes
}
