// Package domain contains the core domain models shared by every layer of
// the asset store backend.
package domain

import (
	"strings"
	"time"
)

// Category groups catalog items in the store UI.
type Category string

const (
	CategoryTransitions Category = "transitions"
	CategoryTitles      Category = "titles"
	CategoryEffects     Category = "effects"

	// CategoryAll is a list filter only; no asset carries it.
	CategoryAll Category = "all"
)

// Valid reports whether c can be stored on an asset.
func (c Category) Valid() bool {
	switch c {
	case CategoryTransitions, CategoryTitles, CategoryEffects:
		return true
	}
	return false
}

// AssetType is the plugin bundle format, including the leading dot.
type AssetType string

const (
	AssetTypeDRFX    AssetType = ".drfx"
	AssetTypeSetting AssetType = ".setting"
	AssetTypeDRP     AssetType = ".drp"
)

// Valid reports whether t is a supported bundle format.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeDRFX, AssetTypeSetting, AssetTypeDRP:
		return true
	}
	return false
}

// AssetTypeFromFilename infers the bundle format from a file extension.
func AssetTypeFromFilename(name string) (AssetType, bool) {
	lower := strings.ToLower(name)
	for _, t := range []AssetType{AssetTypeDRFX, AssetTypeSetting, AssetTypeDRP} {
		if strings.HasSuffix(lower, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Asset is one catalog item.
type Asset struct {
	ID              string    `json:"id" db:"id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	Title           string    `json:"title" db:"title"`
	Category        Category  `json:"category" db:"category"`
	Type            AssetType `json:"type" db:"type"`
	FileURL         string    `json:"file_url" db:"file_url"`
	ThumbnailURL    *string   `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	VideoPreviewURL *string   `json:"video_preview_url,omitempty" db:"video_preview_url"`
	Description     *string   `json:"description,omitempty" db:"description"`
	YoutubeURL      *string   `json:"youtube_url,omitempty" db:"youtube_url"`
	SizeBytes       *int64    `json:"size_bytes,omitempty" db:"size_bytes"`
	Tags            []string  `json:"tags" db:"-"`
}

// AssetInput is the admin form payload for create and update.
type AssetInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Category    Category  `json:"category" validate:"required,oneof=transitions titles effects"`
	Type        AssetType `json:"type" validate:"omitempty,oneof=.drfx .setting .drp"`
	Description string    `json:"description" validate:"max=4000"`
	YoutubeURL  string    `json:"youtube_url" validate:"omitempty,url"`
	Tags        []string  `json:"tags" validate:"max=20,dive,min=1,max=40"`
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
