package nodes

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/subtagger/internal/model"
)

type ParseError struct {
	AppError model.AppError
	Cause    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func newParseError(message string, line int, snippet string, cause error) *ParseError {
	return &ParseError{
		AppError: model.AppError{
			Code:    "NODES_PARSE_ERROR",
			Message: message,
			Stage:   "parse_nodes",
			Line:    line,
			Snippet: truncateSnippet(snippet, 200),
			Hint:    "expected: Clash YAML with proxies:, a JSON array, or {\"proxies\": [...]}",
		},
		Cause: cause,
	}
}

func newSubError(line int, snippet, message, hint string, cause error) *ParseError {
	return &ParseError{
		AppError: model.AppError{
			Code:    "SUB_PARSE_ERROR",
			Message: message,
			Stage:   "parse_sub",
			Line:    line,
			Snippet: truncateSnippet(snippet, 200),
			Hint:    hint,
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
