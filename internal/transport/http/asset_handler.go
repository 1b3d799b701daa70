package http

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"glabassets/internal/catalog"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/middleware"
	"glabassets/pkg/contracts/domain"
)

// Multipart field names of the admin upload form.
const (
	formFileAsset     = "asset_file"
	formFileThumbnail = "thumbnail"
	formFilePreview   = "video_preview"

	multipartMemory = 32 << 20
)

// CatalogService is the catalog used by the asset handler.
type CatalogService interface {
	List(ctx context.Context, category domain.Category) ([]domain.Asset, error)
	Get(ctx context.Context, id string) (*domain.Asset, error)
	Create(ctx context.Context, input domain.AssetInput, files catalog.Files) (*domain.Asset, error)
	Update(ctx context.Context, id string, input domain.AssetInput, files catalog.Files) (*domain.Asset, error)
	Delete(ctx context.Context, id string) error
	Install(ctx context.Context, session domain.SessionState, id string) (string, error)
}

// AssetResponse is an asset plus fields derived for display.
type AssetResponse struct {
	domain.Asset
	EmbedURL        string `json:"embed_url,omitempty"`
	InstallFilename string `json:"install_filename"`
}

func newAssetResponse(a domain.Asset) AssetResponse {
	resp := AssetResponse{Asset: a, InstallFilename: catalog.InstallFilename(a)}
	if a.YoutubeURL != nil {
		resp.EmbedURL = catalog.EmbedURL(*a.YoutubeURL)
	}
	return resp
}

// InstallResponse reports where a file was written.
type InstallResponse struct {
	Path string `json:"path"`
}

// AssetHandler handles catalog requests
type AssetHandler struct {
	catalog        CatalogService
	sessions       middleware.SessionSource
	base           context.Context
	maxUploadBytes int64
	errorHandler   *apperrors.ErrorHandler
	logger         *slog.Logger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(svc CatalogService, sessions middleware.SessionSource, maxUploadBytes int64, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		catalog:        svc,
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		errorHandler:   errorHandler,
		logger:         logger.With(slog.String("handler", "assets")),
	}
}

// Routes returns a chi router for asset endpoints. Mutations require admin
// mode.
func (h *AssetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/install", h.Install)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.sessions, h.errorHandler, h.logger))
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	return r
}

// List handles GET /api/assets?category=
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	category := domain.Category(r.URL.Query().Get("category"))
	assets, err := h.catalog.List(r.Context(), category)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	out := make([]AssetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, newAssetResponse(a))
	}
	render.JSON(w, r, out)
}

// Get handles GET /api/assets/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, newAssetResponse(*a))
}

// Create handles POST /api/assets
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, files, cleanup, err := h.parseForm(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	a, err := h.catalog.Create(r.Context(), input, files)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newAssetResponse(*a))
}

// Update handles PUT /api/assets/{id}
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	input, files, cleanup, err := h.parseForm(w, r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer cleanup()

	a, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), input, files)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, newAssetResponse(*a))
}

// Delete handles DELETE /api/assets/{id}
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Install handles POST /api/assets/{id}/install. The response is sent when
// the file is fully written; progress streams over the event socket. A
// client disconnect does not abort the transfer.
func (h *AssetHandler) Install(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := detach(r, h.base)
	defer cancel()

	path, err := h.catalog.Install(ctx, h.sessions.State(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, InstallResponse{Path: path})
}

// parseForm reads the admin multipart form. The returned cleanup closes the
// opened files and removes spooled temp files.
func (h *AssetHandler) parseForm(w http.ResponseWriter, r *http.Request) (domain.AssetInput, catalog.Files, func(), error) {
	noop := func() {}
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.AssetInput{}, catalog.Files{}, noop, err
		}
		return domain.AssetInput{}, catalog.Files{}, noop, apperrors.InvalidRequestWithError(err)
	}

	input := domain.AssetInput{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Category:    domain.Category(r.FormValue("category")),
		Type:        domain.AssetType(r.FormValue("type")),
		Description: strings.TrimSpace(r.FormValue("description")),
		YoutubeURL:  strings.TrimSpace(r.FormValue("youtube_url")),
		Tags:        parseTags(r.MultipartForm.Value["tags"]),
	}

	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.WarnContext(r.Context(), "Failed to remove multipart temp files",
				slog.String("error", err.Error()))
		}
	}

	open := func(field string) (*catalog.Upload, error) {
		f, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		if err != nil {
			return nil, apperrors.InvalidRequestWithError(err)
		}
		opened = append(opened, f)
		return &catalog.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		}, nil
	}

	var files catalog.Files
	var err error
	if files.Asset, err = open(formFileAsset); err != nil {
		cleanup()
		return input, files, noop, err
	}
	if files.Thumbnail, err = open(formFileThumbnail); err != nil {
		cleanup()
		return input, files, noop, err
	}
	if files.Preview, err = open(formFilePreview); err != nil {
		cleanup()
		return input, files, noop, err
	}

	return input, files, cleanup, nil
}

// parseTags accepts repeated fields, comma separated values or both.
func parseTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}
