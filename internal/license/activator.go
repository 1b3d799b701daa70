package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"glabassets/internal/device"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts/domain"
)

// Activator runs the activation protocol against a Store and keeps the
// local activation cache in sync with the outcome.
type Activator struct {
	store   Store
	cache   *ActivationCache
	limiter *rate.Limiter
	metrics *infrastructure.AppMetrics
	logger  *slog.Logger
}

// Option configures an Activator.
type Option func(*Activator)

// WithRateLimit bounds interactive activation attempts.
func WithRateLimit(l *rate.Limiter) Option {
	return func(a *Activator) { a.limiter = l }
}

// WithMetrics records activation outcomes.
func WithMetrics(m *infrastructure.AppMetrics) Option {
	return func(a *Activator) { a.metrics = m }
}

// NewActivator creates an Activator.
func NewActivator(store Store, cache *ActivationCache, logger *slog.Logger, opts ...Option) *Activator {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	a := &Activator{
		store:  store,
		cache:  cache,
		logger: infrastructure.WithComponent(logger, "license"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Activate validates key for deviceID, claiming it if unbound, and caches
// it on success.
func (a *Activator) Activate(ctx context.Context, key, deviceID string) (domain.ActivationResult, error) {
	if a.limiter != nil && !a.limiter.Allow() {
		a.metrics.RecordActivation(ctx, "rate_limited")
		return domain.ActivationResult{}, apperrors.ErrRateLimited
	}

	key = NormalizeKey(key)
	a.logger.InfoContext(ctx, "Activation requested",
		slog.String("key", MaskKey(key)),
		slog.String("device_id", deviceID))

	result, err := a.verify(ctx, key, deviceID)
	a.metrics.RecordActivation(ctx, resultLabel(err))
	if err != nil {
		a.logger.WarnContext(ctx, "Activation rejected",
			slog.String("key", MaskKey(key)),
			slog.String("error", err.Error()))
		return domain.ActivationResult{}, err
	}

	if err := a.cache.Write(deviceID, key); err != nil {
		// the key is bound server-side; only the local shortcut is lost
		a.logger.ErrorContext(ctx, "Failed to cache activation",
			slog.String("error", err.Error()))
	}

	a.logger.InfoContext(ctx, "Activation succeeded",
		slog.String("key", MaskKey(key)),
		slog.Bool("claimed", result.Claimed))
	return result, nil
}

// SilentRecheck validates the cached key, if any. Returns ErrNotActivated
// when nothing is cached. Any other failure deletes the cache.
func (a *Activator) SilentRecheck(ctx context.Context, deviceID string) (domain.ActivationResult, error) {
	key, err := a.cache.Read(deviceID)
	if errors.Is(err, apperrors.ErrNotActivated) {
		a.metrics.RecordRecheck(ctx, "not_activated")
		return domain.ActivationResult{}, err
	}
	if err == nil {
		var result domain.ActivationResult
		result, err = a.verify(ctx, key, deviceID)
		if err == nil {
			a.metrics.RecordRecheck(ctx, "ok")
			a.logger.InfoContext(ctx, "Cached license still valid",
				slog.String("key", MaskKey(key)))
			return result, nil
		}
	}

	a.metrics.RecordRecheck(ctx, resultLabel(err))
	a.logger.WarnContext(ctx, "Cached license failed re-check, clearing cache",
		slog.String("error", err.Error()))
	if clearErr := a.cache.Clear(); clearErr != nil {
		a.logger.ErrorContext(ctx, "Failed to clear activation cache",
			slog.String("error", clearErr.Error()))
	}
	return domain.ActivationResult{}, err
}

// Deactivate forgets the cached key locally. The server-side binding stays.
func (a *Activator) Deactivate() error {
	return a.cache.Clear()
}

// verify runs lookup, status check, binding check and, for an unbound key,
// the conditional claim.
func (a *Activator) verify(ctx context.Context, key, deviceID string) (domain.ActivationResult, error) {
	if key == "" {
		return domain.ActivationResult{}, apperrors.ErrInvalidKey
	}

	if device.IsUnknown(deviceID) {
		a.logger.WarnContext(ctx, "Validating with the shared fallback device id; binding is not hardware specific",
			slog.String("device_id", deviceID))
	}

	record, err := a.store.FindByKey(ctx, key)
	if errors.Is(err, apperrors.ErrRecordNotFound) {
		return domain.ActivationResult{}, apperrors.ErrInvalidKey
	}
	if err != nil {
		return domain.ActivationResult{}, fmt.Errorf("license lookup failed: %w", err)
	}

	if record.Status != domain.LicenseStatusActive {
		return domain.ActivationResult{}, apperrors.ErrRevoked
	}

	if record.Bound() {
		if *record.DeviceID != deviceID {
			return domain.ActivationResult{}, apperrors.ErrDeviceMismatch
		}
		return domain.ActivationResult{Key: key, DeviceID: deviceID}, nil
	}

	claimed, err := a.store.ClaimDevice(ctx, key, deviceID)
	if err != nil {
		return domain.ActivationResult{}, fmt.Errorf("license claim failed: %w", err)
	}
	if !claimed {
		return domain.ActivationResult{}, apperrors.ErrDeviceMismatch
	}

	return domain.ActivationResult{Key: key, DeviceID: deviceID, Claimed: true}, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, apperrors.ErrRevoked):
		return "revoked"
	case errors.Is(err, apperrors.ErrDeviceMismatch):
		return "device_mismatch"
	case errors.Is(err, ErrCacheUnreadable):
		return "cache_unreadable"
	default:
		return "error"
	}
}
