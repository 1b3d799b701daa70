package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "glabassets/internal/errors"
	"glabassets/pkg/contracts/domain"
)

const licenseColumns = `id, key, device_id, status, created_at, expires_at`

// LicenseRepository handles the licenses table.
type LicenseRepository struct {
	db *DB
}

// NewLicenseRepository creates a new license repository
func NewLicenseRepository(db *DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// FindByKey is a point lookup by exact key.
func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*domain.LicenseRecord, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1`

	var rec domain.LicenseRecord
	if err := r.db.GetContext(ctx, &rec, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("license lookup: %w", apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	return &rec, nil
}

// ClaimDevice binds key to deviceID only if the row is still unbound. It
// reports false when another device won the claim first.
func (r *LicenseRepository) ClaimDevice(ctx context.Context, key, deviceID string) (bool, error) {
	query := `UPDATE licenses SET device_id = $1 WHERE key = $2 AND device_id IS NULL`

	res, err := r.db.ExecContext(ctx, query, deviceID, key)
	if err != nil {
		return false, fmt.Errorf("failed to claim license: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return n == 1, nil
}

// Insert stores a new unbound active key.
func (r *LicenseRepository) Insert(ctx context.Context, key string, expiresAt *time.Time) (*domain.LicenseRecord, error) {
	rec := &domain.LicenseRecord{
		ID:        uuid.New().String(),
		Key:       key,
		Status:    domain.LicenseStatusActive,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	query := `
		INSERT INTO licenses (id, key, device_id, status, created_at, expires_at)
		VALUES ($1, $2, NULL, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.Key, rec.Status, rec.CreatedAt, rec.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to insert license: %w", err)
	}

	return rec, nil
}

// SetStatus changes the status of key, e.g. to revoke it.
func (r *LicenseRepository) SetStatus(ctx context.Context, key string, status domain.LicenseStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE licenses SET status = $1 WHERE key = $2`, status, key)
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("license status: %w", apperrors.ErrRecordNotFound)
	}

	return nil
}

// List returns the newest licenses first.
func (r *LicenseRepository) List(ctx context.Context, limit int) ([]domain.LicenseRecord, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses ORDER BY created_at DESC LIMIT $1`

	var recs []domain.LicenseRecord
	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}

	return recs, nil
}
