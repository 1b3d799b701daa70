package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"glabassets/internal/device"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/infrastructure"
	"glabassets/pkg/contracts/domain"
)

// memStore is an in-memory Store with a real compare-and-set claim.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*domain.LicenseRecord

	claims int
	// beforeClaim runs between the read and the claim, to simulate races.
	beforeClaim func()
}

func newMemStore(records ...domain.LicenseRecord) *memStore {
	s := &memStore{rows: make(map[string]*domain.LicenseRecord)}
	for i := range records {
		r := records[i]
		s.rows[r.Key] = &r
	}
	return s
}

func (s *memStore) FindByKey(_ context.Context, key string) (*domain.LicenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[key]
	if !ok {
		return nil, fmt.Errorf("license %s: %w", key, apperrors.ErrRecordNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ClaimDevice(_ context.Context, key, deviceID string) (bool, error) {
	if s.beforeClaim != nil {
		s.beforeClaim()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	r, ok := s.rows[key]
	if !ok || r.Bound() {
		return false, nil
	}
	r.DeviceID = &deviceID
	return true, nil
}

func (s *memStore) deviceOf(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.rows[key]; r != nil && r.DeviceID != nil {
		return *r.DeviceID
	}
	return ""
}

func strPtr(s string) *string { return &s }

func activeKey(key string, deviceID *string) domain.LicenseRecord {
	return domain.LicenseRecord{Key: key, Status: domain.LicenseStatusActive, DeviceID: deviceID}
}

func newTestActivator(t *testing.T, store Store, opts ...Option) *Activator {
	t.Helper()
	return NewActivator(store, newTestCache(t), infrastructure.DiscardLogger(), opts...)
}

func TestActivate(t *testing.T) {
	tests := []struct {
		name        string
		records     []domain.LicenseRecord
		key         string
		device      string
		wantErr     error
		wantClaimed bool
	}{
		{
			name:        "unbound key is claimed",
			records:     []domain.LicenseRecord{activeKey("GLAB-1111-2222-3333", nil)},
			key:         "GLAB-1111-2222-3333",
			device:      "dev-A",
			wantClaimed: true,
		},
		{
			name:    "key typed in lower case with spaces",
			records: []domain.LicenseRecord{activeKey("GLAB-1111-2222-3333", strPtr("dev-A"))},
			key:     "  glab-1111-2222-3333 ",
			device:  "dev-A",
		},
		{
			name:    "unknown key",
			records: nil,
			key:     "GLAB-0000-0000-0000",
			device:  "dev-A",
			wantErr: apperrors.ErrInvalidKey,
		},
		{
			name:    "empty key",
			key:     "   ",
			device:  "dev-A",
			wantErr: apperrors.ErrInvalidKey,
		},
		{
			name: "revoked key",
			records: []domain.LicenseRecord{{
				Key: "GLAB-1111-2222-3333", Status: domain.LicenseStatusRevoked,
			}},
			key:     "GLAB-1111-2222-3333",
			device:  "dev-A",
			wantErr: apperrors.ErrRevoked,
		},
		{
			name:    "bound to other device",
			records: []domain.LicenseRecord{activeKey("GLAB-1111-2222-3333", strPtr("dev-A"))},
			key:     "GLAB-1111-2222-3333",
			device:  "dev-B",
			wantErr: apperrors.ErrDeviceMismatch,
		},
		{
			name:        "fallback device id is accepted",
			records:     []domain.LicenseRecord{activeKey("GLAB-1111-2222-3333", nil)},
			key:         "GLAB-1111-2222-3333",
			device:      device.UnknownDeviceID,
			wantClaimed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(tt.records...)
			a := newTestActivator(t, store)

			result, err := a.Activate(context.Background(), tt.key, tt.device)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				_, cacheErr := a.cache.Read(tt.device)
				assert.ErrorIs(t, cacheErr, apperrors.ErrNotActivated, "nothing cached on failure")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantClaimed, result.Claimed)
			assert.Equal(t, tt.device, store.deviceOf(result.Key))

			cached, err := a.cache.Read(tt.device)
			require.NoError(t, err)
			assert.Equal(t, NormalizeKey(tt.key), cached)
		})
	}
}

func TestActivateIsIdempotentOnSameDevice(t *testing.T) {
	store := newMemStore(activeKey("GLAB-1111-2222-3333", nil))
	a := newTestActivator(t, store)
	ctx := context.Background()

	first, err := a.Activate(ctx, "GLAB-1111-2222-3333", "dev-A")
	require.NoError(t, err)
	assert.True(t, first.Claimed)

	second, err := a.Activate(ctx, "GLAB-1111-2222-3333", "dev-A")
	require.NoError(t, err)
	assert.False(t, second.Claimed)

	assert.Equal(t, 1, store.claims, "second activation performs no write")
}

func TestActivateSecondDeviceAfterClaim(t *testing.T) {
	store := newMemStore(activeKey("GLAB-1111-2222-3333", nil))
	a := newTestActivator(t, store)
	ctx := context.Background()

	_, err := a.Activate(ctx, "GLAB-1111-2222-3333", "dev-A")
	require.NoError(t, err)

	_, err = a.Activate(ctx, "GLAB-1111-2222-3333", "dev-B")
	assert.ErrorIs(t, err, apperrors.ErrDeviceMismatch)
	assert.Equal(t, "dev-A", store.deviceOf("GLAB-1111-2222-3333"))
}

func TestActivateLostRaceIsMismatch(t *testing.T) {
	store := newMemStore(activeKey("GLAB-1111-2222-3333", nil))
	// another device claims between our read and our write
	store.beforeClaim = func() {
		store.mu.Lock()
		store.rows["GLAB-1111-2222-3333"].DeviceID = strPtr("dev-B")
		store.mu.Unlock()
		store.beforeClaim = nil
	}
	a := newTestActivator(t, store)

	_, err := a.Activate(context.Background(), "GLAB-1111-2222-3333", "dev-A")
	assert.ErrorIs(t, err, apperrors.ErrDeviceMismatch)
	assert.Equal(t, "dev-B", store.deviceOf("GLAB-1111-2222-3333"))
}

func TestConcurrentFirstClaims(t *testing.T) {
	store := newMemStore(activeKey("GLAB-1111-2222-3333", nil))

	// both readers observe the key unbound before either writes
	var ready sync.WaitGroup
	ready.Add(2)
	store.beforeClaim = func() {
		ready.Done()
		ready.Wait()
	}

	a := newTestActivator(t, store)
	b := newTestActivator(t, store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, act := range []*Activator{a, b} {
		wg.Add(1)
		go func(i int, act *Activator, dev string) {
			defer wg.Done()
			_, errs[i] = act.Activate(context.Background(), "GLAB-1111-2222-3333", dev)
		}(i, act, fmt.Sprintf("dev-%d", i))
	}
	wg.Wait()

	successes, mismatches := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, apperrors.ErrDeviceMismatch):
			mismatches++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, mismatches)
}

// failingStore uses testify/mock to inject transport failures.
type failingStore struct {
	mock.Mock
}

func (m *failingStore) FindByKey(ctx context.Context, key string) (*domain.LicenseRecord, error) {
	args := m.Called(ctx, key)
	if r := args.Get(0); r != nil {
		return r.(*domain.LicenseRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *failingStore) ClaimDevice(ctx context.Context, key, deviceID string) (bool, error) {
	args := m.Called(ctx, key, deviceID)
	return args.Bool(0), args.Error(1)
}

func TestActivateStoreErrors(t *testing.T) {
	t.Run("lookup failure", func(t *testing.T) {
		store := new(failingStore)
		store.On("FindByKey", mock.Anything, "GLAB-1111-2222-3333").
			Return(nil, errors.New("connection refused"))

		_, err := newTestActivator(t, store).Activate(context.Background(), "GLAB-1111-2222-3333", "dev-A")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NotErrorIs(t, err, apperrors.ErrInvalidKey)
		store.AssertExpectations(t)
	})

	t.Run("claim failure", func(t *testing.T) {
		store := new(failingStore)
		rec := activeKey("GLAB-1111-2222-3333", nil)
		store.On("FindByKey", mock.Anything, "GLAB-1111-2222-3333").Return(&rec, nil)
		store.On("ClaimDevice", mock.Anything, "GLAB-1111-2222-3333", "dev-A").
			Return(false, errors.New("timeout"))

		_, err := newTestActivator(t, store).Activate(context.Background(), "GLAB-1111-2222-3333", "dev-A")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "claim failed")
		store.AssertExpectations(t)
	})
}

func TestActivateRateLimited(t *testing.T) {
	store := newMemStore(activeKey("GLAB-1111-2222-3333", strPtr("dev-A")))
	a := newTestActivator(t, store, WithRateLimit(rate.NewLimiter(rate.Limit(0), 1)))

	_, err := a.Activate(context.Background(), "GLAB-1111-2222-3333", "dev-A")
	require.NoError(t, err)

	_, err = a.Activate(context.Background(), "GLAB-1111-2222-3333", "dev-A")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestSilentRecheck(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing cached", func(t *testing.T) {
		a := newTestActivator(t, newMemStore())
		_, err := a.SilentRecheck(ctx, "dev-A")
		assert.ErrorIs(t, err, apperrors.ErrNotActivated)
	})

	t.Run("cached key still valid", func(t *testing.T) {
		store := newMemStore(activeKey("GLAB-1111-2222-3333", strPtr("dev-A")))
		a := newTestActivator(t, store)
		require.NoError(t, a.cache.Write("dev-A", "GLAB-1111-2222-3333"))

		result, err := a.SilentRecheck(ctx, "dev-A")
		require.NoError(t, err)
		assert.Equal(t, "GLAB-1111-2222-3333", result.Key)

		_, err = a.cache.Read("dev-A")
		assert.NoError(t, err, "cache kept")
	})

	t.Run("revoked since last run", func(t *testing.T) {
		store := newMemStore(domain.LicenseRecord{
			Key: "GLAB-1111-2222-3333", Status: domain.LicenseStatusRevoked, DeviceID: strPtr("dev-A"),
		})
		a := newTestActivator(t, store)
		require.NoError(t, a.cache.Write("dev-A", "GLAB-1111-2222-3333"))

		_, err := a.SilentRecheck(ctx, "dev-A")
		assert.ErrorIs(t, err, apperrors.ErrRevoked)

		_, err = a.cache.Read("dev-A")
		assert.ErrorIs(t, err, apperrors.ErrNotActivated, "cache deleted")
	})

	t.Run("cache written on another device", func(t *testing.T) {
		store := newMemStore(activeKey("GLAB-1111-2222-3333", strPtr("dev-A")))
		a := newTestActivator(t, store)
		require.NoError(t, a.cache.Write("dev-A", "GLAB-1111-2222-3333"))

		_, err := a.SilentRecheck(ctx, "dev-B")
		assert.ErrorIs(t, err, ErrCacheUnreadable)

		_, err = a.cache.Read("dev-A")
		assert.ErrorIs(t, err, apperrors.ErrNotActivated, "cache deleted")
	})

	t.Run("store unreachable clears cache", func(t *testing.T) {
		store := new(failingStore)
		store.On("FindByKey", mock.Anything, "GLAB-1111-2222-3333").
			Return(nil, errors.New("dial tcp: no route to host"))
		a := newTestActivator(t, store)
		require.NoError(t, a.cache.Write("dev-A", "GLAB-1111-2222-3333"))

		_, err := a.SilentRecheck(ctx, "dev-A")
		require.Error(t, err)

		_, err = a.cache.Read("dev-A")
		assert.ErrorIs(t, err, apperrors.ErrNotActivated)
	})
}
