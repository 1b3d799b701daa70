package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/validation"
	"glabassets/pkg/contracts/domain"
)

// SessionService owns admin mode.
type SessionService interface {
	State() domain.SessionState
	UnlockAdmin(passcode string) error
	LockAdmin() error
}

// UnlockAdminRequest is the admin bypass payload.
type UnlockAdminRequest struct {
	Passcode string `json:"passcode" validate:"required,max=128"`
}

// Bind implements render.Binder.
func (u *UnlockAdminRequest) Bind(r *http.Request) error {
	return nil
}

// SessionHandler handles session state requests
type SessionHandler struct {
	sessions     SessionService
	validator    *validation.Validator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionService, v *validation.Validator, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		validator:    v,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "session")),
	}
}

// Routes returns a chi router for session endpoints
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Post("/admin", h.UnlockAdmin)
	r.Delete("/admin", h.LockAdmin)
	return r
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.sessions.State())
}

// UnlockAdmin handles POST /api/session/admin
func (h *SessionHandler) UnlockAdmin(w http.ResponseWriter, r *http.Request) {
	var req UnlockAdminRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if err := h.sessions.UnlockAdmin(req.Passcode); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.sessions.State())
}

// LockAdmin handles DELETE /api/session/admin
func (h *SessionHandler) LockAdmin(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.LockAdmin(); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.sessions.State())
}
