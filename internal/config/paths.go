package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "GLab Assets"

// Paths contains all the application paths.
// TemplatesDir is the fixed install location the editing software scans for
// plugin bundles; every completed download lands there.
type Paths struct {
	TemplatesDir   string
	DataDir        string
	LogsDir        string
	ActivationFile string
	SessionFile    string
	UpdatesDir     string
}

// GetPaths resolves the platform directories for the running OS and applies
// any configured overrides.
func GetPaths(overrides PathsConfig) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(home, ".config")
	}
	return ResolvePaths(runtime.GOOS, home, configDir, overrides), nil
}

// ResolvePaths is GetPaths with the environment passed in.
func ResolvePaths(goos, home, configDir string, overrides PathsConfig) *Paths {
	templatesDir := TemplatesDirFor(goos, home, configDir)
	if overrides.TemplatesDir != "" {
		templatesDir = overrides.TemplatesDir
	}

	dataDir := filepath.Join(configDir, appDirName)
	if overrides.DataDir != "" {
		dataDir = overrides.DataDir
	}

	logsDir := filepath.Join(dataDir, "logs")
	if overrides.LogsDir != "" {
		logsDir = overrides.LogsDir
	}

	return &Paths{
		TemplatesDir:   templatesDir,
		DataDir:        dataDir,
		LogsDir:        logsDir,
		ActivationFile: filepath.Join(dataDir, "activation.dat"),
		SessionFile:    filepath.Join(dataDir, "session.json"),
		UpdatesDir:     filepath.Join(dataDir, "updates"),
	}
}

// TemplatesDirFor returns the Fusion templates directory of DaVinci Resolve
// for the given platform.
func TemplatesDirFor(goos, home, configDir string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support",
			"Blackmagic Design", "DaVinci Resolve", "Support", "Fusion", "Templates")
	case "windows":
		return filepath.Join(configDir,
			"Blackmagic Design", "DaVinci Resolve", "Support", "Fusion", "Templates")
	default:
		return filepath.Join(home, ".local", "share",
			"DaVinciResolve", "Fusion", "Templates")
	}
}

// EnsureDirectories creates the application-owned directories.
// The templates directory is created lazily by each download.
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.LogsDir,
		p.UpdatesDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists",
			slog.String("directory", dir))
	}

	return nil
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved directories for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("templates", p.TemplatesDir),
			slog.String("data", p.DataDir),
			slog.String("logs", p.LogsDir),
			slog.String("updates", p.UpdatesDir),
		),
		slog.Group("state_files",
			slog.String("activation", p.ActivationFile),
			slog.Bool("activation_exists", FileExists(p.ActivationFile)),
			slog.String("session", p.SessionFile),
		))
}
