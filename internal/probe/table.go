package probe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/subtagger/internal/model"
)

// Table maps node name to that node's probe record. The zero value is an
// empty table. Entries are validated lazily, per node, on Lookup.
type Table struct {
	entries map[string]any
}

// TableOf builds a table from already-structured records.
func TableOf(records map[string]Record) Table {
	entries := make(map[string]any, len(records))
	for name, rec := range records {
		entries[name] = map[string]any(rec)
	}
	return Table{entries: entries}
}

func (t Table) Len() int { return len(t.entries) }

func (t Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup finds the record for a node name, matched exactly. A null entry is
// the same as no entry ("not tested"); a non-object entry is malformed.
func (t Table) Lookup(name string) (Record, bool, error) {
	raw, ok := t.entries[name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false, &MalformedRecordError{Node: name, Cause: fmt.Errorf("expected object, got %T", raw)}
	}
	return Record(obj), true, nil
}

type PayloadError struct {
	AppError model.AppError
	Cause    error
}

func (e *PayloadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *PayloadError) Unwrap() error { return e.Cause }

// ParseTable decodes a tags.json payload. The top level must be a JSON object
// keyed by node name; anything else is a payload error.
func ParseTable(text string) (Table, error) {
	text = strings.TrimPrefix(text, "\uFEFF")
	if strings.TrimSpace(text) == "" {
		return Table{}, newPayloadError("探测结果为空响应", text, nil)
	}

	var entries map[string]any
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return Table{}, newPayloadError("探测结果 JSON 解析失败", text, err)
	}
	if entries == nil {
		return Table{}, newPayloadError("探测结果必须是以节点名为键的 JSON 对象", text, nil)
	}
	return Table{entries: entries}, nil
}

func newPayloadError(message, text string, cause error) error {
	return &PayloadError{
		AppError: model.AppError{
			Code:    "PROBE_PAYLOAD_ERROR",
			Message: message,
			Stage:   "parse_probe",
			Snippet: truncateSnippet(text, 200),
			Hint:    `expected: {"<node name>": {"openai": {"available": true}, ...}}`,
		},
		Cause: cause,
	}
}

func truncateSnippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	if len(s) <= max {
		return s
	}
	return s[:max]
}
