package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/validation"
)

// Downloader runs the download pipeline.
type Downloader interface {
	Download(ctx context.Context, sourceURL, filename string) (string, error)
}

// DownloadRequest asks for one file to be written to the templates
// directory.
type DownloadRequest struct {
	URL      string `json:"url" validate:"required,url"`
	Filename string `json:"filename" validate:"required,filename"`
}

// Bind implements render.Binder.
func (d *DownloadRequest) Bind(r *http.Request) error {
	return nil
}

// DownloadHandler handles direct download requests
type DownloadHandler struct {
	downloader   Downloader
	base         context.Context
	validator    *validation.Validator
	errorHandler *apperrors.ErrorHandler
	logger       *slog.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(d Downloader, v *validation.Validator, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloader:   d,
		validator:    v,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "downloads")),
	}
}

// Download handles POST /api/downloads
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	ctx, cancel := detach(r, h.base)
	defer cancel()

	path, err := h.downloader.Download(ctx, req.URL, req.Filename)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, InstallResponse{Path: path})
}

// detach returns a context carrying r's values that ignores the request's
// cancellation. A started transfer runs to completion even if the caller
// goes away; only base (process shutdown, may be nil) ends it.
func detach(r *http.Request, base context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	if base == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
