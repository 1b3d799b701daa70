package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"glabassets/internal/device"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/internal/session"
	"glabassets/pkg/contracts/domain"
)

type fixedDevice string

func (d fixedDevice) ID() string { return string(d) }

type mockActivator struct {
	mock.Mock
}

func (m *mockActivator) Activate(ctx context.Context, key, deviceID string) (domain.ActivationResult, error) {
	args := m.Called(ctx, key, deviceID)
	return args.Get(0).(domain.ActivationResult), args.Error(1)
}

func (m *mockActivator) SilentRecheck(ctx context.Context, deviceID string) (domain.ActivationResult, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(domain.ActivationResult), args.Error(1)
}

func newLicenseService(t *testing.T, dev string) (*LicenseService, *mockActivator, *session.Store) {
	t.Helper()
	act := &mockActivator{}
	sessions := session.NewStore(filepath.Join(t.TempDir(), "session.json"), "resolveadmin", infrastructure.DiscardLogger())
	svc := NewLicenseService(fixedDevice(dev), act, sessions, infrastructure.DiscardLogger())
	return svc, act, sessions
}

func TestLicenseService_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("success marks session premium", func(t *testing.T) {
		svc, act, sessions := newLicenseService(t, "dev-A")
		act.On("Activate", ctx, "GLAB-1111-2222-3333", "dev-A").
			Return(domain.ActivationResult{Key: "GLAB-1111-2222-3333", DeviceID: "dev-A", Claimed: true}, nil)

		result, err := svc.Activate(ctx, "GLAB-1111-2222-3333")

		require.NoError(t, err)
		assert.True(t, result.Claimed)
		assert.True(t, sessions.State().IsPremium)
		act.AssertExpectations(t)
	})

	t.Run("rejection leaves session unchanged", func(t *testing.T) {
		svc, act, sessions := newLicenseService(t, "dev-B")
		act.On("Activate", ctx, "GLAB-1111-2222-3333", "dev-B").
			Return(domain.ActivationResult{}, apperrors.ErrDeviceMismatch)

		_, err := svc.Activate(ctx, "GLAB-1111-2222-3333")

		assert.ErrorIs(t, err, apperrors.ErrDeviceMismatch)
		assert.False(t, sessions.State().IsPremium)
	})
}

func TestLicenseService_Recheck(t *testing.T) {
	ctx := context.Background()

	t.Run("valid cache restores premium", func(t *testing.T) {
		svc, act, sessions := newLicenseService(t, "dev-A")
		act.On("SilentRecheck", ctx, "dev-A").Return(domain.ActivationResult{Key: "K", DeviceID: "dev-A"}, nil)

		status, err := svc.Recheck(ctx)

		require.NoError(t, err)
		assert.True(t, status.Activated)
		assert.True(t, sessions.State().IsPremium)
	})

	t.Run("nothing cached is not an error", func(t *testing.T) {
		svc, act, _ := newLicenseService(t, "dev-A")
		act.On("SilentRecheck", ctx, "dev-A").Return(domain.ActivationResult{}, apperrors.ErrNotActivated)

		status, err := svc.Recheck(ctx)

		require.NoError(t, err)
		assert.False(t, status.Activated)
	})

	t.Run("failure drops premium", func(t *testing.T) {
		svc, act, sessions := newLicenseService(t, "dev-A")
		sessions.SetPremium(true)
		act.On("SilentRecheck", ctx, "dev-A").Return(domain.ActivationResult{}, apperrors.ErrRevoked)

		status, err := svc.Recheck(ctx)

		assert.ErrorIs(t, err, apperrors.ErrRevoked)
		assert.False(t, status.Activated)
		assert.False(t, sessions.State().IsPremium)
	})

	t.Run("transport failure drops premium", func(t *testing.T) {
		svc, act, sessions := newLicenseService(t, "dev-A")
		sessions.SetPremium(true)
		act.On("SilentRecheck", ctx, "dev-A").Return(domain.ActivationResult{}, errors.New("connection refused"))

		_, err := svc.Recheck(ctx)

		assert.Error(t, err)
		assert.False(t, sessions.State().IsPremium)
	})
}

func TestLicenseService_StatusFlagsDegradedDevice(t *testing.T) {
	svc, _, _ := newLicenseService(t, device.UnknownDeviceID)

	status := svc.Status()

	assert.Equal(t, device.UnknownDeviceID, status.DeviceID)
	assert.True(t, status.DegradedDevice)
	assert.False(t, status.Activated)
}
