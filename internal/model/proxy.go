package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	keyName = "name"
	keyTags = "tags"
)

// ProxyNode is one entry of a node list as supplied by the host platform.
//
// Only Name and Tags are ever touched by the tagger. Fields carries every other
// key verbatim (type, server, port, cipher, ...) and is shared, never mutated.
type ProxyNode struct {
	// Name is the join key into the probe result table. It is used exactly as
	// provided: no trimming, no case folding.
	Name string

	// Tags is nil when the node carried no "tags" key at all. A non-nil empty
	// slice round-trips as "tags: []".
	Tags []string

	Fields map[string]any
}

// Clone returns a copy whose Tags slice can be modified independently.
func (n ProxyNode) Clone() ProxyNode {
	out := n
	if n.Tags != nil {
		out.Tags = slices.Clone(n.Tags)
	}
	return out
}

func (n ProxyNode) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

func (n *ProxyNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: proxy node must be a mapping", value.Line)
	}
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if err := n.fromMap(raw); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

// MarshalYAML keeps "name" first and "tags" last; the remaining keys are
// sorted so output is deterministic.
func (n ProxyNode) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	add := func(k string, v any) error {
		var vn yaml.Node
		if err := vn.Encode(v); err != nil {
			return fmt.Errorf("encode %q: %w", k, err)
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &vn)
		return nil
	}

	if err := add(keyName, n.Name); err != nil {
		return nil, err
	}
	for _, k := range sortedKeys(n.Fields) {
		if err := add(k, n.Fields[k]); err != nil {
			return nil, err
		}
	}
	if n.Tags != nil {
		if err := add(keyTags, n.Tags); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (n *ProxyNode) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	// Keep numbers as written (ports, alterId, ...) instead of float64.
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("proxy node must be an object")
	}
	return n.fromMap(raw)
}

func (n ProxyNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.Fields)+2)
	for k, v := range n.Fields {
		m[k] = v
	}
	m[keyName] = n.Name
	if n.Tags != nil {
		m[keyTags] = n.Tags
	}
	return json.Marshal(m)
}

func (n *ProxyNode) fromMap(raw map[string]any) error {
	nameV, ok := raw[keyName]
	if !ok {
		return errors.New("proxy node is missing name")
	}
	name, ok := nameV.(string)
	if !ok {
		return fmt.Errorf("proxy node name must be a string, got %T", nameV)
	}

	var tags []string
	if tv, ok := raw[keyTags]; ok {
		var err error
		tags, err = toStrings(tv)
		if err != nil {
			return fmt.Errorf("proxy node %q: %w", name, err)
		}
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == keyName || k == keyTags {
			continue
		}
		fields[k] = v
	}

	*n = ProxyNode{Name: name, Tags: tags, Fields: fields}
	return nil
}

func toStrings(v any) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("tags must be a list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("tags must contain strings, got %T", it)
		}
		out = append(out, s)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
