package imaging

import (
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType sniffs data, falling back to a generic binary type.
func DetectContentType(data []byte) string {
	return http.DetectContentType(data)
}

// ExtensionFor returns the file extension to store a compressed image
// under, keeping the original extension when the bytes were not re-encoded.
func ExtensionFor(res Result, originalName string) string {
	if !res.FellBack {
		return "jpg"
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(originalName)), ".")
	if ext == "" {
		return "bin"
	}
	return ext
}
