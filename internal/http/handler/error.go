package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"

	"docintake/internal/extraction"
	"docintake/internal/http/middleware"
	"docintake/internal/logging"
	"docintake/internal/mapper"
	"docintake/internal/service"
	"docintake/internal/validator"
)

// User-facing messages for pipeline failures.
const (
	MsgNoFile            = "No file uploaded"
	MsgExtractionFailed  = "Failed to extract data from the document."
	MsgEmptyPrediction   = "No relevant data extracted. Please try again with a clearer image."
	MsgIncompleteData    = "Incomplete data extracted. Please check the document clarity."
	MsgInternal          = "Internal Server Error"
	MsgTransportTooLarge = "File exceeds the upload transport limit"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "FILE_REQUIRED", "EXTRACTION_FAILED")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Code:      code,
		Error:     message,
	}
	return c.Status(status).JSON(res)
}

// writeProcessError maps a pipeline error to its status and safe message.
// The full error only goes to the log.
func writeProcessError(c *fiber.Ctx, err error) error {
	status, code, msg := fiber.StatusInternalServerError, "INTERNAL_ERROR", MsgInternal

	var verr *validator.Error
	switch {
	case errors.As(err, &verr):
		status, code, msg = fiber.StatusBadRequest, verr.Code, verr.Message
	case errors.Is(err, service.ErrReaderNil):
		status, code, msg = fiber.StatusBadRequest, "FILE_REQUIRED", MsgNoFile
	case errors.Is(err, extraction.ErrEmptyPrediction):
		code, msg = "EMPTY_PREDICTION", MsgEmptyPrediction
	case errors.Is(err, extraction.ErrNoInference):
		code, msg = "EXTRACTION_FAILED", MsgExtractionFailed
	case errors.Is(err, mapper.ErrIncomplete):
		code, msg = "INCOMPLETE_DATA", MsgIncompleteData
	}

	fields := errorFields(c, status, code, err)
	if status >= fiber.StatusInternalServerError {
		logging.Error("upload_failed", fields)
	} else {
		logging.Info("upload_rejected", fields)
	}
	return writeError(c, status, code, msg)
}

// writeInternalError logs err under msg and answers with the generic 500.
func writeInternalError(c *fiber.Ctx, msg string, err error) error {
	logging.Error(msg, errorFields(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", err))
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", MsgInternal)
}

func errorFields(c *fiber.Ctx, status int, code string, err error) map[string]any {
	fields := map[string]any{
		"request_id": requestIDFromCtx(c),
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     status,
		"code":       code,
		"error":      err.Error(),
	}
	if sc := trace.SpanContextFromContext(c.UserContext()); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	return fields
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "REQUEST_TOO_LARGE", MsgTransportTooLarge)
		default:
			logging.Error("unhandled_error", map[string]any{
				"request_id": requestIDFromCtx(c),
				"path":       c.Path(),
				"error":      err.Error(),
			})
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", MsgInternal)
		}
	}
}
