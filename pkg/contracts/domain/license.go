package domain

import "time"

// LicenseStatus represents the status of a license
type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusRevoked LicenseStatus = "revoked"
)

// LicenseRecord is one row of the hosted licenses table. DeviceID is nil
// until the first successful claim and never changes afterwards.
type LicenseRecord struct {
	ID        string        `json:"id" db:"id"`
	Key       string        `json:"key" db:"key"`
	DeviceID  *string       `json:"device_id,omitempty" db:"device_id"`
	Status    LicenseStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
}

// Bound reports whether the license is claimed by some device.
func (r LicenseRecord) Bound() bool {
	return r.DeviceID != nil && *r.DeviceID != ""
}

// ActivationResult is returned by a successful activation.
type ActivationResult struct {
	Key      string `json:"key"`
	DeviceID string `json:"device_id"`
	// Claimed is true when this call bound the key to the device.
	Claimed bool `json:"claimed"`
}

// SessionState is the per-process authorization state shown to the UI.
type SessionState struct {
	IsAdmin   bool `json:"is_admin"`
	IsPremium bool `json:"is_premium"`
}

// CanDownload reports whether the session may install assets.
func (s SessionState) CanDownload() bool {
	return s.IsPremium || s.IsAdmin
}
