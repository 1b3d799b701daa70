package license

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/security"
)

// ErrCacheUnreadable is returned when the activation file exists but cannot
// be opened with this device's id.
var ErrCacheUnreadable = errors.New("activation cache unreadable")

// ActivationCache persists the last successfully activated key on disk,
// sealed with the device id.
type ActivationCache struct {
	path   string
	sealer *security.Sealer

	mu sync.Mutex
}

// NewActivationCache returns a cache stored at path.
func NewActivationCache(path string, sealer *security.Sealer) *ActivationCache {
	return &ActivationCache{path: path, sealer: sealer}
}

// Read returns the cached key. A missing file yields ErrNotActivated.
func (c *ActivationCache) Read(deviceID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", apperrors.ErrNotActivated
	}
	if err != nil {
		return "", fmt.Errorf("failed to read activation cache: %w", err)
	}

	plain, err := c.sealer.Open(data, []byte(deviceID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheUnreadable, err)
	}
	return string(plain), nil
}

// Write replaces the cached key atomically.
func (c *ActivationCache) Write(deviceID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sealed, err := c.sealer.Seal([]byte(key), []byte(deviceID))
	if err != nil {
		return fmt.Errorf("failed to seal activation cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write activation cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace activation cache: %w", err)
	}
	return nil
}

// Clear deletes the cached key. A missing file is not an error.
func (c *ActivationCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear activation cache: %w", err)
	}
	return nil
}
