package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesDirFor(t *testing.T) {
	home := filepath.Join("/", "home", "editor")
	configDir := filepath.Join("/", "appdata")

	tests := []struct {
		goos string
		want string
	}{
		{
			goos: "darwin",
			want: filepath.Join(home, "Library", "Application Support", "Blackmagic Design",
				"DaVinci Resolve", "Support", "Fusion", "Templates"),
		},
		{
			goos: "windows",
			want: filepath.Join(configDir, "Blackmagic Design", "DaVinci Resolve",
				"Support", "Fusion", "Templates"),
		},
		{
			goos: "linux",
			want: filepath.Join(home, ".local", "share", "DaVinciResolve", "Fusion", "Templates"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			assert.Equal(t, tt.want, TemplatesDirFor(tt.goos, home, configDir))
		})
	}
}

func TestResolvePaths(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := ResolvePaths("darwin", "/Users/ed", "/Users/ed/Library/Application Support", PathsConfig{})

		assert.Equal(t, filepath.Join("/Users/ed/Library/Application Support", appDirName), p.DataDir)
		assert.Equal(t, filepath.Join(p.DataDir, "logs"), p.LogsDir)
		assert.Equal(t, filepath.Join(p.DataDir, "activation.dat"), p.ActivationFile)
		assert.Equal(t, filepath.Join(p.DataDir, "session.json"), p.SessionFile)
		assert.Equal(t, filepath.Join(p.DataDir, "updates"), p.UpdatesDir)
	})

	t.Run("overrides", func(t *testing.T) {
		p := ResolvePaths("linux", "/home/ed", "/home/ed/.config", PathsConfig{
			TemplatesDir: "/tmp/templates",
			DataDir:      "/tmp/data",
			LogsDir:      "/var/log/glab",
		})

		assert.Equal(t, "/tmp/templates", p.TemplatesDir)
		assert.Equal(t, "/tmp/data", p.DataDir)
		assert.Equal(t, "/var/log/glab", p.LogsDir)
		assert.Equal(t, filepath.Join("/tmp/data", "activation.dat"), p.ActivationFile)
	})
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	p := ResolvePaths("linux", root, root, PathsConfig{DataDir: filepath.Join(root, "data")})

	require.NoError(t, p.EnsureDirectories())
	assert.DirExists(t, p.DataDir)
	assert.DirExists(t, p.LogsDir)
	assert.DirExists(t, p.UpdatesDir)
	assert.NoDirExists(t, p.TemplatesDir)

	// idempotent
	require.NoError(t, p.EnsureDirectories())
}

func TestFileExists(t *testing.T) {
	assert.False(t, FileExists(filepath.Join(t.TempDir(), "missing")))
	assert.True(t, FileExists(t.TempDir()))
}
