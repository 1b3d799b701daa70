package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/license"
	"glabassets/internal/services"
	"glabassets/internal/validation"
	"glabassets/pkg/contracts/domain"
)

// LicenseService is the license orchestration used by the handler.
type LicenseService interface {
	DeviceID() string
	Activate(ctx context.Context, key string) (domain.ActivationResult, error)
	Recheck(ctx context.Context) (services.LicenseStatus, error)
	Status() services.LicenseStatus
}

// ActivateRequest is the activation form payload.
type ActivateRequest struct {
	Key string `json:"key" validate:"required,max=64"`
}

// Bind implements render.Binder.
func (a *ActivateRequest) Bind(r *http.Request) error {
	a.Key = strings.TrimSpace(a.Key)
	return nil
}

// ActivateResponse is returned on successful activation.
type ActivateResponse struct {
	Key     string `json:"key"`
	Claimed bool   `json:"claimed"`
}

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service      LicenseService
	validator    *validation.Validator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service LicenseService, v *validation.Validator, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:      service,
		validator:    v,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Post("/activate", h.Activate)
	r.Post("/recheck", h.Recheck)
	return r
}

// Device handles GET /api/device
func (h *LicenseHandler) Device(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status()
	render.JSON(w, r, map[string]any{
		"device_id": status.DeviceID,
		"degraded":  status.DegradedDevice,
	})
}

// Status handles GET /api/license/status
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Status())
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Activate(r.Context(), req.Key)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, ActivateResponse{
		Key:     license.MaskKey(result.Key),
		Claimed: result.Claimed,
	})
}

// Recheck handles POST /api/license/recheck
func (h *LicenseHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Recheck(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}
