// Package device derives the stable hardware identifier a license key is
// bound to.
package device

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/denisbrodbeck/machineid"
)

// UnknownDeviceID is returned when the platform identifier cannot be read.
// It is still a valid binding target, so every machine that fails to read
// its id shares it.
const UnknownDeviceID = "UNKNOWN_DEVICE_ID"

// Identifier resolves and caches the device id for the process lifetime.
type Identifier struct {
	appID  string
	source func(appID string) (string, error)
	logger *slog.Logger

	mu sync.Mutex
	id string
}

// NewIdentifier returns an Identifier backed by the OS machine id, hashed
// with appID so the raw id never leaves the machine.
func NewIdentifier(appID string, logger *slog.Logger) *Identifier {
	return newIdentifier(appID, machineid.ProtectedID, logger)
}

func newIdentifier(appID string, source func(string) (string, error), logger *slog.Logger) *Identifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identifier{
		appID:  appID,
		source: source,
		logger: logger.With(slog.String("component", "device")),
	}
}

// ID returns the device id. It never fails; a read error yields
// UnknownDeviceID. The first result, fallback included, is kept for the
// process lifetime so the binding target never changes mid-run.
func (d *Identifier) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.id != "" {
		return d.id
	}

	id, err := d.source(d.appID)
	id = strings.TrimSpace(id)
	if err != nil || id == "" {
		d.logger.Warn("Machine id unavailable, using shared fallback id",
			slog.String("device_id", UnknownDeviceID),
			slog.Any("error", err))
		id = UnknownDeviceID
	}

	d.id = id
	return id
}

// IsUnknown reports whether id is the shared fallback.
func IsUnknown(id string) bool {
	return id == UnknownDeviceID
}
