package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/model"
	"github.com/John-Robertt/subtagger/internal/nodes"
)

// APIError is a failure raised by the HTTP layer itself: request validation,
// oversized bodies, render failures.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

const stageValidate = "validate_request"

func badRequest(message, hint string) error {
	return &APIError{
		Status:   http.StatusBadRequest,
		AppError: model.AppError{Code: "INVALID_ARGUMENT", Message: message, Stage: stageValidate, Hint: hint},
	}
}

// bodyError classifies a JSON body decode failure.
func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return &APIError{
			Status: http.StatusRequestEntityTooLarge,
			AppError: model.AppError{
				Code:    "TOO_LARGE",
				Message: "请求体过大",
				Stage:   stageValidate,
				Hint:    fmt.Sprintf("max=%d bytes", mbe.Limit),
			},
			Cause: err,
		}
	}
	return badRequest("JSON body 解析失败", err.Error())
}

func renderError(err error) error {
	return &APIError{
		Status:   http.StatusInternalServerError,
		AppError: model.AppError{Code: "RENDER_ERROR", Message: "节点列表输出失败", Stage: "render"},
		Cause:    err,
	}
}

// toResponse maps a handler error to the status and payload sent back. Probe
// failures never get here: tagging degrades to a pass-through instead.
func toResponse(err error) (int, model.AppError) {
	var (
		ae *APIError
		fe *fetch.FetchError
		pe *nodes.ParseError
	)
	switch {
	case errors.As(err, &ae):
		return ae.Status, ae.AppError
	case errors.As(err, &fe):
		return fe.Status, fe.AppError
	case errors.As(err, &pe):
		// The node list is the caller's input.
		return http.StatusUnprocessableEntity, pe.AppError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, model.AppError{
			Code:    "REQUEST_TIMEOUT",
			Message: "请求处理超时",
			Stage:   "handle_request",
		}
	}
	return http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	}
}

// fail writes err as an ErrorResponse. Upstream URLs can carry tokens, so
// only the stage and code are logged.
func (s *server) fail(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status, app := toResponse(err)
	s.metrics.incAppError(app.Stage, app.Code)

	fields := []zap.Field{
		zap.String("stage", app.Stage),
		zap.String("code", app.Code),
		zap.Int("status", status),
	}
	switch {
	case app.Code == "INTERNAL_ERROR":
		s.opt.Logger.Error("request failed", append(fields, zap.Error(err))...)
	case status >= http.StatusInternalServerError:
		s.opt.Logger.Warn("request failed", fields...)
	default:
		s.opt.Logger.Debug("request rejected", fields...)
	}
	WriteError(w, status, app)
}
