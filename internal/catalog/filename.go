package catalog

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"glabassets/pkg/contracts/domain"
)

var whitespace = regexp.MustCompile(`\s+`)

// InstallFilename is the local file name for an asset: the last segment of
// its file URL, or the title with whitespace runs replaced by underscores
// plus the type extension.
func InstallFilename(a domain.Asset) string {
	if name := lastSegment(a.FileURL); name != "" {
		return name
	}
	return whitespace.ReplaceAllString(a.Title, "_") + string(a.Type)
}

func lastSegment(raw string) string {
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == ".." || filepath.Base(name) != name {
		return ""
	}
	return name
}

// EmbedURL converts a YouTube watch or short link into a privacy-enhanced
// embed URL. Links already in embed form are returned as is.
func EmbedURL(raw string) string {
	if raw == "" || strings.Contains(raw, "embed/") {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return strings.Replace(raw, "watch?v=", "embed/", 1)
	}

	var videoID string
	switch {
	case strings.Contains(u.Hostname(), "youtube.com"):
		videoID = u.Query().Get("v")
	case strings.Contains(u.Hostname(), "youtu.be"):
		videoID = strings.TrimPrefix(u.Path, "/")
	}
	if videoID == "" {
		return strings.Replace(raw, "watch?v=", "embed/", 1)
	}
	return "https://www.youtube-nocookie.com/embed/" + url.PathEscape(videoID) + "?origin=http://localhost"
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
