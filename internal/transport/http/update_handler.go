package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "glabassets/internal/errors"
	"glabassets/pkg/contracts/events"
)

// UpdateService is the update channel.
type UpdateService interface {
	Check(ctx context.Context, manual bool) error
	Checking() bool
	Staged() (events.UpdateInfo, bool)
	QuitAndInstall(ctx context.Context) error
}

// UpdateStatus is the current update channel state.
type UpdateStatus struct {
	Checking bool               `json:"checking"`
	Staged   *events.UpdateInfo `json:"staged,omitempty"`
}

// UpdateHandler handles update channel requests
type UpdateHandler struct {
	updates      UpdateService
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(updates UpdateService, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *UpdateHandler {
	return &UpdateHandler{
		updates:      updates,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "updates")),
	}
}

// Routes returns a chi router for update endpoints
func (h *UpdateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Status)
	r.Post("/check", h.Check)
	r.Post("/install", h.Install)
	return r
}

// Status handles GET /api/updates
func (h *UpdateHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := UpdateStatus{Checking: h.updates.Checking()}
	if info, ok := h.updates.Staged(); ok {
		status.Staged = &info
	}
	render.JSON(w, r, status)
}

// Check handles POST /api/updates/check. The check runs in the background
// and reports through updater:message events.
func (h *UpdateHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.updates.Checking() {
		h.errorHandler.HandleError(w, r, apperrors.ErrUpdateInProgress)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.updates.Check(ctx, true); err != nil && !errors.Is(err, apperrors.ErrUpdateInProgress) {
			h.logger.DebugContext(ctx, "Manual update check ended with error", slog.String("error", err.Error()))
		}
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "checking"})
}

// Install handles POST /api/updates/install
func (h *UpdateHandler) Install(w http.ResponseWriter, r *http.Request) {
	if err := h.updates.QuitAndInstall(r.Context()); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "restarting"})
}
