package errors

import (
	"errors"
	"fmt"
)

// Activation outcomes. The three rejection reasons are distinct so the UI
// can tell the user which one applies.
var (
	ErrInvalidKey     = errors.New("invalid license key")
	ErrRevoked        = errors.New("license revoked")
	ErrDeviceMismatch = errors.New("license bound to another device")
	ErrNotActivated   = errors.New("license not activated")
)

// Authorization and request errors.
var (
	ErrAdminRequired   = errors.New("admin mode required")
	ErrLicenseRequired = errors.New("active license required")
	ErrWrongPasscode   = errors.New("wrong admin passcode")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidFilename = errors.New("invalid filename")
)

// ErrRecordNotFound is returned by repositories for a missing row.
var ErrRecordNotFound = errors.New("record not found")

// Catalog and updater errors.
var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrNoUpdateStaged   = errors.New("no update downloaded")
	ErrUpdateInProgress = errors.New("update check already running")
)

// TransportError reports a failed transfer from a remote URL. StatusCode is
// set when the server answered with a non-200 status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
