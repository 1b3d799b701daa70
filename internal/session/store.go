// Package session holds the process-wide authorization state shown to the
// UI: admin mode and premium (activated license).
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	apperrors "glabassets/internal/errors"
	"glabassets/internal/notify"
	"glabassets/internal/security"
	"glabassets/pkg/contracts/domain"
)

// Store owns the SessionState. Admin mode is persisted so it survives a
// restart; premium is always re-established by the startup re-check.
//
// The admin passcode is a shared secret compared locally. It hides the
// upload form, nothing more: catalog writes are authorized by the hosted
// backend's own credentials.
type Store struct {
	path     string
	passcode string
	logger   *slog.Logger
	changes  *notify.Broker[domain.SessionState]

	// publishMu orders changes and their notifications; held across the
	// mutation and Publish. Observers must not mutate the store.
	publishMu sync.Mutex

	mu    sync.RWMutex
	state domain.SessionState
}

type persisted struct {
	IsAdmin bool `json:"is_admin"`
}

// NewStore returns a store backed by path, restoring admin mode if
// previously unlocked. A corrupt file is logged and ignored.
func NewStore(path, passcode string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:     path,
		passcode: passcode,
		logger:   logger.With(slog.String("component", "session")),
	}
	s.changes = notify.NewBroker[domain.SessionState](s.logger)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		s.logger.Warn("Failed to read session file", slog.String("error", err.Error()))
	default:
		var p persisted
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("Ignoring corrupt session file", slog.String("error", err.Error()))
		} else {
			s.state.IsAdmin = p.IsAdmin
		}
	}

	return s
}

// State returns a snapshot of the session.
func (s *Store) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every state change.
func (s *Store) Subscribe(fn func(domain.SessionState)) notify.Dispose {
	return s.changes.Subscribe(fn)
}

// SetPremium records the outcome of an activation or re-check.
func (s *Store) SetPremium(premium bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	changed := s.state.IsPremium != premium
	s.state.IsPremium = premium
	state := s.state
	s.mu.Unlock()

	if changed {
		s.changes.Publish(state)
	}
}

// UnlockAdmin enables admin mode if passcode matches.
func (s *Store) UnlockAdmin(passcode string) error {
	if !security.SecureCompare(passcode, s.passcode) {
		s.logger.Warn("Admin unlock rejected")
		return apperrors.ErrWrongPasscode
	}
	s.logger.Info("Admin mode unlocked")
	return s.setAdmin(true)
}

// LockAdmin disables admin mode.
func (s *Store) LockAdmin() error {
	s.logger.Info("Admin mode locked")
	return s.setAdmin(false)
}

func (s *Store) setAdmin(admin bool) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	changed := s.state.IsAdmin != admin
	s.state.IsAdmin = admin
	state := s.state
	err := s.save()
	s.mu.Unlock()

	if changed {
		s.changes.Publish(state)
	}
	return err
}

// save writes the persisted subset. Caller holds s.mu.
func (s *Store) save() error {
	data, err := json.Marshal(persisted{IsAdmin: s.state.IsAdmin})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
