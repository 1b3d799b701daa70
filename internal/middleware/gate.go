package middleware

import (
	"log/slog"
	"net/http"

	apperrors "glabassets/internal/errors"
	"glabassets/pkg/contracts/domain"
)

// SessionSource yields the current SessionState.
type SessionSource interface {
	State() domain.SessionState
}

// RequireAdmin rejects requests unless admin mode is unlocked. It gates the
// local catalog-management routes only; the hosted backend enforces its own
// credentials.
func RequireAdmin(sessions SessionSource, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.State().IsAdmin {
				logger.WarnContext(r.Context(), "admin route called without admin mode",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				errorHandler.HandleError(w, r, apperrors.ErrAdminRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireDownload rejects requests unless the session may install assets.
func RequireDownload(sessions SessionSource, errorHandler *apperrors.ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.State().CanDownload() {
				errorHandler.HandleError(w, r, apperrors.ErrLicenseRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
