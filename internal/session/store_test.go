package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "glabassets/internal/errors"
	"glabassets/pkg/contracts/domain"
)

func TestUnlockAndLockAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewStore(path, "resolveadmin", nil)

	assert.Equal(t, domain.SessionState{}, s.State())

	err := s.UnlockAdmin("wrong")
	assert.ErrorIs(t, err, apperrors.ErrWrongPasscode)
	assert.False(t, s.State().IsAdmin)

	require.NoError(t, s.UnlockAdmin("resolveadmin"))
	assert.True(t, s.State().IsAdmin)
	assert.True(t, s.State().CanDownload())

	require.NoError(t, s.LockAdmin())
	assert.False(t, s.State().IsAdmin)
}

func TestAdminModePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	first := NewStore(path, "resolveadmin", nil)
	require.NoError(t, first.UnlockAdmin("resolveadmin"))
	first.SetPremium(true)

	second := NewStore(path, "resolveadmin", nil)
	assert.True(t, second.State().IsAdmin)
	assert.False(t, second.State().IsPremium, "premium is not persisted")
}

func TestCorruptSessionFileIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s := NewStore(path, "resolveadmin", nil)
	assert.Equal(t, domain.SessionState{}, s.State())
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "session.json"), "pw", nil)

	var got []domain.SessionState
	dispose := s.Subscribe(func(st domain.SessionState) { got = append(got, st) })
	defer dispose()

	s.SetPremium(true)
	s.SetPremium(true) // unchanged, no event
	require.NoError(t, s.UnlockAdmin("pw"))

	require.Len(t, got, 2)
	assert.Equal(t, domain.SessionState{IsPremium: true}, got[0])
	assert.Equal(t, domain.SessionState{IsPremium: true, IsAdmin: true}, got[1])
}

func TestConcurrentChangesPublishInOrder(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "session.json"), "pw", nil)

	var (
		mu   sync.Mutex
		last domain.SessionState
		seen int
	)
	dispose := s.Subscribe(func(st domain.SessionState) {
		mu.Lock()
		defer mu.Unlock()
		last = st
		seen++
	})
	defer dispose()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetPremium(i%2 == 0)
		}(i)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.UnlockAdmin("pw")
			} else {
				_ = s.LockAdmin()
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotZero(t, seen)
	assert.Equal(t, s.State(), last, "the last notification matches the final state")
}
