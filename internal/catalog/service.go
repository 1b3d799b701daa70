// Package catalog lists, installs and administers store assets.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/imaging"
	"glabassets/internal/infrastructure"
	"glabassets/internal/storage/blob"
	"glabassets/internal/validation"
	"glabassets/pkg/contracts/domain"
)

// Repository persists catalog rows.
type Repository interface {
	List(ctx context.Context, category domain.Category) ([]domain.Asset, error)
	Get(ctx context.Context, id string) (*domain.Asset, error)
	Insert(ctx context.Context, a *domain.Asset) error
	Update(ctx context.Context, a *domain.Asset) error
	Delete(ctx context.Context, id string) (*domain.Asset, error)
}

// BlobStore holds the uploaded files.
type BlobStore interface {
	Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

// Compressor shrinks thumbnails before upload.
type Compressor interface {
	Compress(ctx context.Context, data []byte, maxBytes int) ([]byte, imaging.Result, error)
}

// Downloader installs a file into the templates directory.
type Downloader interface {
	Download(ctx context.Context, sourceURL, filename string) (string, error)
}

// Upload is one file from the admin form.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Files groups the optional uploads of a create or update. Asset is
// required on create.
type Files struct {
	Asset     *Upload
	Thumbnail *Upload
	Preview   *Upload
}

// Service implements the catalog operations.
type Service struct {
	repo       Repository
	blobs      BlobStore
	compressor Compressor
	downloader Downloader
	validator  *validation.Validator
	metrics    *infrastructure.AppMetrics
	logger     *slog.Logger
}

// NewService wires the catalog. metrics may be nil.
func NewService(
	repo Repository,
	blobs BlobStore,
	compressor Compressor,
	downloader Downloader,
	validator *validation.Validator,
	metrics *infrastructure.AppMetrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		blobs:      blobs,
		compressor: compressor,
		downloader: downloader,
		validator:  validator,
		metrics:    metrics,
		logger:     infrastructure.WithComponent(logger, "catalog"),
	}
}

// List returns assets newest first.
func (s *Service) List(ctx context.Context, category domain.Category) ([]domain.Asset, error) {
	if category != "" && category != domain.CategoryAll && !category.Valid() {
		return nil, validation.Field("category", "category must be one of: all, transitions, titles, effects")
	}
	return s.repo.List(ctx, category)
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, id string) (*domain.Asset, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return a, nil
}

// Create uploads the files and inserts a new row. Uploaded objects are
// removed again if the insert fails.
func (s *Service) Create(ctx context.Context, input domain.AssetInput, files Files) (a *domain.Asset, err error) {
	defer func() { s.metrics.RecordCatalogMutation(ctx, "create", err) }()

	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}
	if files.Asset == nil {
		return nil, validation.Field("asset_file", "asset_file is required")
	}

	assetType, err := resolveType(input.Type, files.Asset.Filename)
	if err != nil {
		return nil, err
	}

	a = &domain.Asset{Type: assetType}
	applyInput(a, input)

	uploaded, err := s.uploadAll(ctx, a, files)
	if err != nil {
		s.cleanup(ctx, uploaded)
		return nil, err
	}

	if err := s.repo.Insert(ctx, a); err != nil {
		s.cleanup(ctx, uploaded)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Asset created",
		slog.String("asset_id", a.ID),
		slog.String("title", a.Title),
		slog.String("category", string(a.Category)))
	return a, nil
}

// Update applies input to an existing asset. Files not re-uploaded keep
// their current URLs; replaced objects are deleted after the row is saved.
func (s *Service) Update(ctx context.Context, id string, input domain.AssetInput, files Files) (a *domain.Asset, err error) {
	defer func() { s.metrics.RecordCatalogMutation(ctx, "update", err) }()

	if err := s.validator.Struct(input); err != nil {
		return nil, err
	}

	a, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	previous := *a

	if files.Asset != nil || input.Type != "" {
		name := ""
		if files.Asset != nil {
			name = files.Asset.Filename
		}
		t, err := resolveType(input.Type, name)
		if err != nil {
			return nil, err
		}
		a.Type = t
	}
	applyInput(a, input)

	uploaded, err := s.uploadAll(ctx, a, files)
	if err != nil {
		s.cleanup(ctx, uploaded)
		return nil, err
	}

	if err := s.repo.Update(ctx, a); err != nil {
		s.cleanup(ctx, uploaded)
		return nil, mapNotFound(err)
	}

	s.cleanup(ctx, replacedURLs(&previous, a))

	s.logger.InfoContext(ctx, "Asset updated", slog.String("asset_id", a.ID))
	return a, nil
}

// Delete removes the row, then the stored files. File deletion failures
// are logged and otherwise ignored.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.metrics.RecordCatalogMutation(ctx, "delete", err) }()

	a, err := s.repo.Delete(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}

	s.cleanup(ctx, storedURLs(a))

	s.logger.InfoContext(ctx, "Asset deleted", slog.String("asset_id", id))
	return nil
}

// Install downloads the asset file into the templates directory. The
// session must be premium or admin.
func (s *Service) Install(ctx context.Context, session domain.SessionState, id string) (string, error) {
	if !session.CanDownload() {
		return "", apperrors.ErrLicenseRequired
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	return s.downloader.Download(ctx, a.FileURL, InstallFilename(*a))
}

func (s *Service) uploadAll(ctx context.Context, a *domain.Asset, files Files) ([]string, error) {
	var uploaded []string

	if f := files.Asset; f != nil {
		url, err := s.blobs.Upload(ctx, blob.FolderAssets, f.Filename, f.ContentType, f.Body)
		if err != nil {
			return uploaded, fmt.Errorf("asset file upload failed: %w", err)
		}
		uploaded = append(uploaded, url)
		a.FileURL = url
		if f.Size > 0 {
			size := f.Size
			a.SizeBytes = &size
		}
	}

	if f := files.Thumbnail; f != nil {
		url, err := s.uploadThumbnail(ctx, f)
		if err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, url)
		a.ThumbnailURL = &url
	}

	if f := files.Preview; f != nil {
		url, err := s.blobs.Upload(ctx, blob.FolderPreviews, f.Filename, f.ContentType, f.Body)
		if err != nil {
			return uploaded, fmt.Errorf("preview upload failed: %w", err)
		}
		uploaded = append(uploaded, url)
		a.VideoPreviewURL = &url
	}

	return uploaded, nil
}

func (s *Service) uploadThumbnail(ctx context.Context, f *Upload) (string, error) {
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read thumbnail: %w", err)
	}

	out, res, err := s.compressor.Compress(ctx, data, 0)
	if err != nil {
		return "", fmt.Errorf("thumbnail compression failed: %w", err)
	}
	name := trimExt(f.Filename) + "." + imaging.ExtensionFor(res, f.Filename)
	url, err := s.blobs.Upload(ctx, blob.FolderThumbnails, name, res.ContentType, bytes.NewReader(out))
	if err != nil {
		return "", fmt.Errorf("thumbnail upload failed: %w", err)
	}
	return url, nil
}

// cleanup deletes objects on a detached context so a cancelled request
// still releases what it uploaded.
func (s *Service) cleanup(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, url := range urls {
		if err := s.blobs.Delete(cleanupCtx, url); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete storage file",
				slog.String("url", url),
				slog.String("error", err.Error()))
		}
	}
}

func applyInput(a *domain.Asset, in domain.AssetInput) {
	a.Title = in.Title
	a.Category = in.Category
	a.Description = domain.StringPtr(in.Description)
	a.YoutubeURL = domain.StringPtr(in.YoutubeURL)
	a.Tags = append([]string{}, in.Tags...)
}

func resolveType(declared domain.AssetType, filename string) (domain.AssetType, error) {
	if declared != "" {
		return declared, nil
	}
	if t, ok := domain.AssetTypeFromFilename(filename); ok {
		return t, nil
	}
	return "", validation.Field("type", "type must be one of: .drfx, .setting, .drp")
}

func storedURLs(a *domain.Asset) []string {
	urls := []string{a.FileURL}
	if a.ThumbnailURL != nil {
		urls = append(urls, *a.ThumbnailURL)
	}
	if a.VideoPreviewURL != nil {
		urls = append(urls, *a.VideoPreviewURL)
	}
	return urls
}

func replacedURLs(before, after *domain.Asset) []string {
	var out []string
	if before.FileURL != "" && before.FileURL != after.FileURL {
		out = append(out, before.FileURL)
	}
	if changed(before.ThumbnailURL, after.ThumbnailURL) {
		out = append(out, *before.ThumbnailURL)
	}
	if changed(before.VideoPreviewURL, after.VideoPreviewURL) {
		out = append(out, *before.VideoPreviewURL)
	}
	return out
}

func changed(before, after *string) bool {
	return before != nil && (after == nil || *before != *after)
}

func mapNotFound(err error) error {
	if errors.Is(err, apperrors.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", apperrors.ErrAssetNotFound, err)
	}
	return err
}
