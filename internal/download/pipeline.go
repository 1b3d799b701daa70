// Package download streams remote plugin bundles into the templates
// directory, reporting progress to observers and never leaving a partial
// file behind.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/internal/notify"
	"glabassets/pkg/contracts/events"
)

const defaultChunkSize = 32 * 1024

// Pipeline downloads files into a fixed target directory.
type Pipeline struct {
	dir       string
	client    *http.Client
	progress  *notify.Broker[events.DownloadProgress]
	metrics   *infrastructure.AppMetrics
	logger    *slog.Logger
	chunkSize int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient replaces the default client. The default has no timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithMetrics records download outcomes.
func WithMetrics(m *infrastructure.AppMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithChunkSize sets the read buffer size, which is also the progress
// granularity.
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// NewPipeline returns a pipeline writing into dir.
func NewPipeline(dir string, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = infrastructure.WithComponent(logger, "download")
	p := &Pipeline{
		dir:       dir,
		client:    &http.Client{},
		progress:  notify.NewBroker[events.DownloadProgress](logger),
		logger:    logger,
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the target directory.
func (p *Pipeline) Dir() string {
	return p.dir
}

// Subscribe registers fn for progress events of every download. The
// returned disposer must be called when the observer goes away.
func (p *Pipeline) Subscribe(fn func(events.DownloadProgress)) notify.Dispose {
	return p.progress.Subscribe(fn)
}

// Download fetches sourceURL into dir/filename and returns the absolute
// path. An existing file with the same name is overwritten. On any failure
// the destination file is removed before the error is returned.
func (p *Pipeline) Download(ctx context.Context, sourceURL, filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create templates directory: %w", err)
	}

	dest, err := filepath.Abs(filepath.Join(p.dir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination: %w", err)
	}

	logger := p.logger.With(slog.String("filename", filename))
	logger.InfoContext(ctx, "download.started", slog.String("url", sourceURL))

	start := time.Now()
	written, err := p.fetch(ctx, sourceURL, dest, filename)
	p.metrics.RecordDownload(ctx, written, time.Since(start), err)

	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.WarnContext(ctx, "Failed to remove partial download",
				slog.String("path", dest),
				slog.String("error", rmErr.Error()))
		}
		logger.ErrorContext(ctx, "download.failed",
			slog.Int64("bytes", written),
			slog.String("error", err.Error()))
		return "", err
	}

	logger.InfoContext(ctx, "download.finished",
		slog.String("path", dest),
		slog.Int64("bytes", written),
		slog.Duration("duration", time.Since(start)))
	return dest, nil
}

func (p *Pipeline) fetch(ctx context.Context, sourceURL, dest, filename string) (int64, error) {
	file, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, &apperrors.TransportError{URL: sourceURL, Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, &apperrors.TransportError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &apperrors.TransportError{URL: sourceURL, StatusCode: resp.StatusCode}
	}

	total := parseContentLength(resp.Header.Get("Content-Length"))

	var downloaded int64
	buf := make([]byte, p.chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return downloaded, fmt.Errorf("failed to write %s: %w", dest, err)
			}
			downloaded += int64(n)
			p.progress.Publish(events.DownloadProgress{
				Filename: filename,
				Percent:  percent(downloaded, total),
			})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return downloaded, &apperrors.TransportError{URL: sourceURL, Err: readErr}
		}
	}

	if err := file.Close(); err != nil {
		return downloaded, fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return downloaded, nil
}

// parseContentLength returns 0 when the header is missing, malformed or not
// positive; 0 means unknown.
func parseContentLength(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func percent(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(downloaded) / float64(total) * 100
}

// ValidateFilename rejects anything but a bare file name.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidFilename, name)
	}
	return nil
}
