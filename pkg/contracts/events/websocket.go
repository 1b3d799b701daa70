// Package events contains the message contracts pushed to UI clients over
// the WebSocket event stream.
package events

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeDownloadProgress MessageType = "download:progress"
	MessageTypeUpdaterMessage   MessageType = "updater:message"
	MessageTypeCatalogRefresh   MessageType = "catalog:refresh"
	MessageTypeSession          MessageType = "session:changed"

	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// WebSocketMessage is the envelope of every pushed message.
type WebSocketMessage struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DownloadProgress reports bytes written for one in-flight download.
// Percent is 0 for the whole transfer when the total size is unknown.
type DownloadProgress struct {
	Filename string  `json:"filename"`
	Percent  float64 `json:"progress"`
}

// UpdaterEventType names a stage of the update lifecycle.
type UpdaterEventType string

const (
	UpdaterChecking     UpdaterEventType = "checking-for-update"
	UpdaterAvailable    UpdaterEventType = "update-available"
	UpdaterProgress     UpdaterEventType = "download-progress"
	UpdaterDownloaded   UpdaterEventType = "update-downloaded"
	UpdaterNotAvailable UpdaterEventType = "update-not-available"
	UpdaterError        UpdaterEventType = "error"
)

// UpdateInfo describes an available release.
type UpdateInfo struct {
	Version      string    `json:"version"`
	ReleaseNotes string    `json:"release_notes,omitempty"`
	ReleaseDate  time.Time `json:"release_date,omitempty"`
	DownloadURL  string    `json:"download_url,omitempty"`
	Size         int64     `json:"size,omitempty"`
}

// UpdaterMessage is one updater lifecycle event. IsManual is true when the
// check was started by the user rather than the periodic checker.
type UpdaterMessage struct {
	Type     UpdaterEventType `json:"type"`
	Info     *UpdateInfo      `json:"info,omitempty"`
	Progress *float64         `json:"progress,omitempty"`
	Error    string           `json:"error,omitempty"`
	IsManual bool             `json:"isManual"`
}

// CatalogRefresh signals that the hosted asset table changed.
type CatalogRefresh struct {
	Operation string `json:"operation,omitempty"`
	AssetID   string `json:"asset_id,omitempty"`
}
