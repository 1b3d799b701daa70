package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"glabassets/pkg/contracts/domain"
)

func TestInstallFilename(t *testing.T) {
	tests := []struct {
		name  string
		asset domain.Asset
		want  string
	}{
		{
			name:  "last url segment",
			asset: domain.Asset{FileURL: "https://cdn/resolve-assets/assets/k3j2_1700.drfx", Title: "X", Type: ".drfx"},
			want:  "k3j2_1700.drfx",
		},
		{
			name:  "escaped segment",
			asset: domain.Asset{FileURL: "https://cdn/b/assets/my%20pack.setting"},
			want:  "my pack.setting",
		},
		{
			name:  "query string ignored",
			asset: domain.Asset{FileURL: "https://cdn/b/assets/a.drp?token=1"},
			want:  "a.drp",
		},
		{
			name:  "trailing slash falls back to title",
			asset: domain.Asset{FileURL: "https://cdn/", Title: "Cinematic  Titles Pack", Type: ".drfx"},
			want:  "Cinematic_Titles_Pack.drfx",
		},
		{
			name:  "empty url",
			asset: domain.Asset{Title: "Glow", Type: ".setting"},
			want:  "Glow.setting",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InstallFilename(tt.asset))
		})
	}
}

func TestEmbedURL(t *testing.T) {
	tests := map[string]string{
		"": "",
		"https://www.youtube.com/watch?v=abc123&t=5": "https://www.youtube-nocookie.com/embed/abc123?origin=http://localhost",
		"https://youtu.be/xyz789":                    "https://www.youtube-nocookie.com/embed/xyz789?origin=http://localhost",
		"https://www.youtube.com/embed/q1":           "https://www.youtube.com/embed/q1",
		"https://vimeo.com/123":                      "https://vimeo.com/123",
	}
	for in, want := range tests {
		assert.Equal(t, want, EmbedURL(in), in)
	}
}
