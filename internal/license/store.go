package license

import (
	"context"

	"glabassets/pkg/contracts/domain"
)

// Store is the hosted license table.
type Store interface {
	// FindByKey returns the row with exactly this key, or an error wrapping
	// errors.ErrRecordNotFound.
	FindByKey(ctx context.Context, key string) (*domain.LicenseRecord, error)

	// ClaimDevice binds deviceID to key only if the key is currently
	// unbound, atomically. It reports whether a row was updated.
	ClaimDevice(ctx context.Context, key, deviceID string) (bool, error)
}
