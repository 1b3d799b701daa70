package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Common error types following RFC 7807
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeForbidden        = "/errors/forbidden"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
	TypeConflict         = "/errors/conflict"
	TypePayloadTooLarge  = "/errors/payload-too-large"
	TypeMethodNotAllowed = "/errors/method-not-allowed"
)

// Domain-specific error types
const (
	TypeLicenseInvalid   = "/errors/license/invalid-key"
	TypeLicenseRevoked   = "/errors/license/revoked"
	TypeLicenseMismatch  = "/errors/license/device-mismatch"
	TypeLicenseRequired  = "/errors/license/required"
	TypeAdminRequired    = "/errors/admin/required"
	TypeWrongPasscode    = "/errors/admin/wrong-passcode"
	TypeDownloadFailed   = "/errors/download/transport"
	TypeUpdateNotReady   = "/errors/update/not-downloaded"
	TypeUpdateInProgress = "/errors/update/in-progress"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", string(debug.Stack()))
	}

	_ = render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	path := r.URL.Path

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout", "The request took too long to process and was cancelled", path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProblem(apiErr, path)
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		problem := NewProblemDetails(http.StatusBadGateway, TypeDownloadFailed,
			"Download Failed", transportErr.Error(), path)
		if transportErr.StatusCode != 0 {
			problem.WithExtension("upstream_status", transportErr.StatusCode)
		}
		return problem
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return NewProblemDetails(http.StatusRequestEntityTooLarge, TypePayloadTooLarge,
			"Payload Too Large", "The request body exceeds the maximum allowed size", path)
	}

	switch {
	case errors.Is(err, ErrInvalidKey):
		return NewProblemDetails(http.StatusNotFound, TypeLicenseInvalid,
			"Invalid License Key", "This license key does not exist.", path).
			WithExtension("reason", "invalid_key")

	case errors.Is(err, ErrRevoked):
		return NewProblemDetails(http.StatusForbidden, TypeLicenseRevoked,
			"License Revoked", "This license key has been revoked.", path).
			WithExtension("reason", "revoked")

	case errors.Is(err, ErrDeviceMismatch):
		return NewProblemDetails(http.StatusConflict, TypeLicenseMismatch,
			"License Device Mismatch", "This license key is already activated on another device.", path).
			WithExtension("reason", "device_mismatch")

	case errors.Is(err, ErrNotActivated), errors.Is(err, ErrLicenseRequired):
		return NewProblemDetails(http.StatusPaymentRequired, TypeLicenseRequired,
			"License Required", "Activate a license key to download assets.", path)

	case errors.Is(err, ErrAdminRequired):
		return NewProblemDetails(http.StatusForbidden, TypeAdminRequired,
			"Admin Mode Required", "Unlock admin mode to manage the catalog.", path)

	case errors.Is(err, ErrWrongPasscode):
		return NewProblemDetails(http.StatusForbidden, TypeWrongPasscode,
			"Wrong Passcode", "The admin passcode is incorrect.", path)

	case errors.Is(err, ErrAssetNotFound):
		return NewProblemDetails(http.StatusNotFound, TypeNotFound,
			"Asset Not Found", err.Error(), path)

	case errors.Is(err, ErrInvalidFilename):
		return NewProblemDetails(http.StatusBadRequest, TypeValidation,
			"Invalid Filename", err.Error(), path)

	case errors.Is(err, ErrRateLimited):
		return NewProblemDetails(http.StatusTooManyRequests, TypeRateLimit,
			"Rate Limit Exceeded", "Too many attempts. Please try again later.", path).
			WithExtension("retry_after", 60)

	case errors.Is(err, ErrNoUpdateStaged):
		return NewProblemDetails(http.StatusConflict, TypeUpdateNotReady,
			"No Update Downloaded", "Check for updates before installing.", path)

	case errors.Is(err, ErrUpdateInProgress):
		return NewProblemDetails(http.StatusConflict, TypeUpdateInProgress,
			"Update Check Running", err.Error(), path)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error", "An unexpected error occurred while processing your request", path)
}

func apiErrorToProblem(apiErr *APIError, path string) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "FORBIDDEN":
		problemType = TypeForbidden
	case "CONFLICT":
		problemType = TypeConflict
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

// HandlePanic responds with a 500 problem for a recovered panic.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered any) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
	}

	_ = render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	_ = render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllowed,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	_ = render.Render(w, r, problem)
}
