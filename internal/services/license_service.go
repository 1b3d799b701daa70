package services

import (
	"context"
	"errors"
	"log/slog"

	"glabassets/internal/device"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts/domain"
)

// DeviceSource yields this machine's device id.
type DeviceSource interface {
	ID() string
}

// Activator runs the activation protocol.
type Activator interface {
	Activate(ctx context.Context, key, deviceID string) (domain.ActivationResult, error)
	SilentRecheck(ctx context.Context, deviceID string) (domain.ActivationResult, error)
}

// SessionStore holds the premium flag set by activation.
type SessionStore interface {
	State() domain.SessionState
	SetPremium(premium bool)
}

// LicenseStatus is the license view shown to the UI.
type LicenseStatus struct {
	DeviceID       string              `json:"device_id"`
	DegradedDevice bool                `json:"degraded_device"`
	Activated      bool                `json:"activated"`
	Session        domain.SessionState `json:"session"`
}

// LicenseService ties activation outcomes to the session.
type LicenseService struct {
	device    DeviceSource
	activator Activator
	sessions  SessionStore
	logger    *slog.Logger
}

// NewLicenseService creates a LicenseService.
func NewLicenseService(dev DeviceSource, activator Activator, sessions SessionStore, logger *slog.Logger) *LicenseService {
	return &LicenseService{
		device:    dev,
		activator: activator,
		sessions:  sessions,
		logger:    infrastructure.WithComponent(logger, "license_service"),
	}
}

// DeviceID returns the id this machine activates with.
func (s *LicenseService) DeviceID() string {
	return s.device.ID()
}

// Activate claims or re-validates key for this device and marks the
// session premium on success. A rejection leaves the session unchanged.
func (s *LicenseService) Activate(ctx context.Context, key string) (domain.ActivationResult, error) {
	result, err := s.activator.Activate(ctx, key, s.device.ID())
	if err != nil {
		return domain.ActivationResult{}, err
	}
	s.sessions.SetPremium(true)
	return result, nil
}

// Recheck validates the cached key. Nothing cached is not an error; any
// validation failure drops premium and is returned.
func (s *LicenseService) Recheck(ctx context.Context) (LicenseStatus, error) {
	_, err := s.activator.SilentRecheck(ctx, s.device.ID())
	switch {
	case err == nil:
		s.sessions.SetPremium(true)
	case errors.Is(err, apperrors.ErrNotActivated):
		s.sessions.SetPremium(false)
	default:
		s.sessions.SetPremium(false)
		s.logger.WarnContext(ctx, "License re-check failed", slog.String("error", err.Error()))
		return s.Status(), err
	}
	return s.Status(), nil
}

// Status reports the current license view without contacting the store.
func (s *LicenseService) Status() LicenseStatus {
	id := s.device.ID()
	state := s.sessions.State()
	return LicenseStatus{
		DeviceID:       id,
		DegradedDevice: device.IsUnknown(id),
		Activated:      state.IsPremium,
		Session:        state,
	}
}
