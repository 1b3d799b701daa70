// Package blob stores asset files, thumbnails and previews in a public
// Google Cloud Storage bucket.
package blob

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"glabassets/internal/config"
)

// Upload folders, one per file role.
const (
	FolderAssets     = "assets"
	FolderThumbnails = "thumbnails"
	FolderPreviews   = "previews"
)

const nameAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ErrForeignURL is returned when a URL does not point into this bucket.
var ErrForeignURL = errors.New("url does not belong to bucket")

// Store uploads and deletes objects in one bucket.
type Store struct {
	svc        *storage.Service
	bucket     string
	publicBase string
	now        func() time.Time
	random     io.Reader
	logger     *slog.Logger
}

// New creates a store for cfg. Extra client options are appended after
// the ones derived from cfg.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := storage.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	return &Store{
		svc:        svc,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:        time.Now,
		random:     rand.Reader,
		logger:     logger.With(slog.String("component", "blob_store")),
	}, nil
}

// Upload writes r under folder with a generated name keeping the extension
// of filename, and returns the public URL of the object.
func (s *Store) Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error) {
	name, err := s.objectName(folder, filename)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	obj := &storage.Object{Name: name, ContentType: contentType}
	if _, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx).
		Do(); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Object uploaded",
		slog.String("object", name),
		slog.String("content_type", contentType))
	return s.PublicURL(name), nil
}

// Delete removes the object behind a public URL. A missing object is not
// an error.
func (s *Store) Delete(ctx context.Context, publicURL string) error {
	name, err := s.ObjectFromURL(publicURL)
	if err != nil {
		return err
	}

	err = s.svc.Objects.Delete(s.bucket, name).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// PublicURL returns the anonymous download URL for an object name.
func (s *Store) PublicURL(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/" + url.PathEscape(s.bucket) + "/" + strings.Join(segments, "/")
}

// ObjectFromURL reverses PublicURL.
func (s *Store) ObjectFromURL(publicURL string) (string, error) {
	prefix := s.publicBase + "/" + url.PathEscape(s.bucket) + "/"
	rest, ok := strings.CutPrefix(publicURL, prefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, publicURL)
	}
	name, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("invalid object url %s: %w", publicURL, err)
	}
	return name, nil
}

// objectName builds folder/<random>_<unix ms>.<ext>.
func (s *Store) objectName(folder, filename string) (string, error) {
	suffix, err := randomString(s.random, 13)
	if err != nil {
		return "", fmt.Errorf("failed to generate object name: %w", err)
	}
	name := fmt.Sprintf("%s/%s_%d", folder, suffix, s.now().UnixMilli())
	if ext := strings.TrimPrefix(path.Ext(filename), "."); ext != "" {
		name += "." + ext
	}
	return name, nil
}

func randomString(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = nameAlphabet[int(b)%len(nameAlphabet)]
	}
	return string(buf), nil
}
