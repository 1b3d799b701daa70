// Package updater checks GitHub releases for a newer build, stages it and
// swaps the running executable on request. Every stage of a check is
// published as an UpdaterMessage.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"glabassets/internal/download"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/internal/notify"
	"glabassets/pkg/contracts/events"
)

// Release represents a GitHub release
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Asset represents a release asset
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Updater runs update checks. At most one check runs at a time.
type Updater struct {
	currentVersion string
	apiURL         string
	executablePath string
	executableName string
	stagingDir     string
	goos           string
	client         *http.Client
	restart        func() error
	messages       *notify.Broker[events.UpdaterMessage]
	metrics        *infrastructure.AppMetrics
	logger         *slog.Logger

	mu       sync.Mutex
	checking bool
	staged   *stagedUpdate
}

type stagedUpdate struct {
	info events.UpdateInfo
	path string
}

// Option configures an Updater.
type Option func(*Updater)

// WithHTTPClient sets the client used for the API and downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) { u.client = c }
}

// WithAPIURL overrides the latest-release endpoint derived from the repo URL.
func WithAPIURL(url string) Option {
	return func(u *Updater) { u.apiURL = url }
}

// WithExecutable sets the binary that QuitAndInstall replaces.
func WithExecutable(path string) Option {
	return func(u *Updater) { u.executablePath = path }
}

// WithRestart sets what QuitAndInstall does after the swap, typically
// relaunching and shutting down the current process.
func WithRestart(fn func() error) Option {
	return func(u *Updater) { u.restart = fn }
}

// WithMetrics records check outcomes.
func WithMetrics(m *infrastructure.AppMetrics) Option {
	return func(u *Updater) { u.metrics = m }
}

// WithGOOS selects the release asset platform, defaulting to runtime.GOOS.
func WithGOOS(goos string) Option {
	return func(u *Updater) { u.goos = goos }
}

// NewUpdater creates an updater staging downloads in stagingDir.
func NewUpdater(currentVersion, repoURL, stagingDir string, logger *slog.Logger, opts ...Option) (*Updater, error) {
	logger = infrastructure.WithComponent(logger, "updater")
	u := &Updater{
		currentVersion: currentVersion,
		apiURL:         ReleaseAPIURL(repoURL),
		stagingDir:     stagingDir,
		goos:           runtime.GOOS,
		client:         &http.Client{Timeout: 30 * time.Second},
		restart:        func() error { return nil },
		messages:       notify.NewBroker[events.UpdaterMessage](logger),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.executablePath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		u.executablePath = execPath
	}
	u.executableName = filepath.Base(u.executablePath)

	return u, nil
}

// ReleaseAPIURL maps https://github.com/owner/repo to its latest-release
// API endpoint.
func ReleaseAPIURL(repoURL string) string {
	apiURL := strings.Replace(repoURL, "github.com", "api.github.com/repos", 1)
	return strings.TrimSuffix(strings.TrimSuffix(apiURL, "/"), ".git") + "/releases/latest"
}

// Subscribe registers fn for lifecycle messages.
func (u *Updater) Subscribe(fn func(events.UpdaterMessage)) notify.Dispose {
	return u.messages.Subscribe(fn)
}

// Staged returns the release waiting for QuitAndInstall, if any.
func (u *Updater) Staged() (events.UpdateInfo, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.staged == nil {
		return events.UpdateInfo{}, false
	}
	return u.staged.info, true
}

// Checking reports whether a check is running.
func (u *Updater) Checking() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.checking
}

// Check looks for a newer release and stages it. manual marks every message
// of this check as user initiated. Returns ErrUpdateInProgress when another
// check is running.
func (u *Updater) Check(ctx context.Context, manual bool) (err error) {
	u.mu.Lock()
	if u.checking {
		u.mu.Unlock()
		return apperrors.ErrUpdateInProgress
	}
	u.checking = true
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.checking = false
		u.mu.Unlock()
		u.metrics.RecordUpdateCheck(ctx, manual, err)
	}()

	emit := func(msg events.UpdaterMessage) {
		msg.IsManual = manual
		u.messages.Publish(msg)
	}

	emit(events.UpdaterMessage{Type: events.UpdaterChecking})

	if err := u.check(ctx, emit); err != nil {
		u.logger.WarnContext(ctx, "Update check failed",
			slog.Bool("manual", manual),
			slog.String("error", err.Error()))
		emit(events.UpdaterMessage{Type: events.UpdaterError, Error: err.Error()})
		return err
	}
	return nil
}

func (u *Updater) check(ctx context.Context, emit func(events.UpdaterMessage)) error {
	release, err := u.latestRelease(ctx)
	if err != nil {
		return err
	}

	info := &events.UpdateInfo{
		Version:      release.TagName,
		ReleaseNotes: release.Body,
		ReleaseDate:  release.PublishedAt,
	}

	if CompareVersions(release.TagName, u.currentVersion) <= 0 {
		u.logger.InfoContext(ctx, "Already up to date",
			slog.String("current", u.currentVersion),
			slog.String("latest", release.TagName))
		emit(events.UpdaterMessage{Type: events.UpdaterNotAvailable, Info: info})
		return nil
	}

	asset, ok := pickAsset(release.Assets, u.goos)
	if !ok {
		return fmt.Errorf("no suitable release asset found for %s", u.goos)
	}
	info.DownloadURL = asset.BrowserDownloadURL
	info.Size = asset.Size

	emit(events.UpdaterMessage{Type: events.UpdaterAvailable, Info: info})

	path, err := u.fetch(ctx, asset, emit)
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.staged = &stagedUpdate{info: *info, path: path}
	u.mu.Unlock()

	u.logger.InfoContext(ctx, "Update staged",
		slog.String("version", info.Version),
		slog.String("path", path))
	emit(events.UpdaterMessage{Type: events.UpdaterDownloaded, Info: info})
	return nil
}

func (u *Updater) latestRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status: %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	return &release, nil
}

// fetch downloads the asset into the staging dir, relaying progress, and
// returns the path of the new executable.
func (u *Updater) fetch(ctx context.Context, asset Asset, emit func(events.UpdaterMessage)) (string, error) {
	pipeline := download.NewPipeline(u.stagingDir, u.logger, download.WithHTTPClient(u.client))
	dispose := pipeline.Subscribe(func(p events.DownloadProgress) {
		pct := p.Percent
		emit(events.UpdaterMessage{Type: events.UpdaterProgress, Progress: &pct})
	})
	defer dispose()

	path, err := pipeline.Download(ctx, asset.BrowserDownloadURL, filepath.Base(asset.Name))
	if err != nil {
		return "", fmt.Errorf("failed to download update: %w", err)
	}

	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}

	extractDir := strings.TrimSuffix(path, filepath.Ext(path))
	if err := os.RemoveAll(extractDir); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", extractDir, err)
	}
	if err := extractZip(path, extractDir); err != nil {
		return "", fmt.Errorf("failed to extract update: %w", err)
	}

	exe, err := findExecutable(extractDir, u.executableName)
	if err != nil {
		return "", fmt.Errorf("failed to find executable in update: %w", err)
	}
	return exe, nil
}

// QuitAndInstall replaces the running executable with the staged build and
// then calls the restart hook.
func (u *Updater) QuitAndInstall(ctx context.Context) error {
	u.mu.Lock()
	staged := u.staged
	busy := u.checking
	u.mu.Unlock()

	if busy {
		return apperrors.ErrUpdateInProgress
	}
	if staged == nil {
		return apperrors.ErrNoUpdateStaged
	}

	backupPath := u.executablePath + ".backup"
	if err := copyFile(u.executablePath, backupPath); err != nil {
		return fmt.Errorf("failed to backup current executable: %w", err)
	}

	if err := replaceExecutable(staged.path, u.executablePath, u.goos); err != nil {
		if restoreErr := copyFile(backupPath, u.executablePath); restoreErr != nil {
			u.logger.ErrorContext(ctx, "Failed to restore executable backup",
				slog.String("backup", backupPath),
				slog.String("error", restoreErr.Error()))
		}
		return fmt.Errorf("failed to replace executable: %w", err)
	}

	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.logger.WarnContext(ctx, "Failed to remove executable backup", slog.String("error", err.Error()))
	}

	u.mu.Lock()
	u.staged = nil
	u.mu.Unlock()

	u.logger.InfoContext(ctx, "Update installed, restarting", slog.String("version", staged.info.Version))
	return u.restart()
}

// RunPeriodic checks once immediately and then every interval until ctx is
// done. Failures are reported through messages and logs only.
func (u *Updater) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := u.Check(ctx, false); errors.Is(err, apperrors.ErrUpdateInProgress) {
			u.logger.DebugContext(ctx, "Skipping periodic check, one is already running")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// pickAsset returns the first asset whose name mentions the platform.
func pickAsset(assets []Asset, goos string) (Asset, bool) {
	keyword := platformKeyword(goos)
	for _, a := range assets {
		if strings.Contains(strings.ToLower(a.Name), keyword) {
			return a, true
		}
	}
	return Asset{}, false
}

func platformKeyword(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	default:
		return goos
	}
}
