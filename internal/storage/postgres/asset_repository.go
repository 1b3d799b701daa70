package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "glabassets/internal/errors"
	"glabassets/pkg/contracts/domain"
)

const assetColumns = `id, created_at, title, category, type, file_url, thumbnail_url,
		video_preview_url, description, youtube_url, size_bytes, tags`

// assetRow scans the text[] tags column, which domain.Asset leaves unmapped.
type assetRow struct {
	domain.Asset
	Tags pq.StringArray `db:"tags"`
}

func (r assetRow) toDomain() domain.Asset {
	a := r.Asset
	a.Tags = []string(r.Tags)
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return a
}

func tagsArray(tags []string) pq.StringArray {
	return pq.StringArray(append([]string{}, tags...))
}

// AssetRepository handles the assets table.
type AssetRepository struct {
	db *DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// List returns assets newest first. CategoryAll or an empty category
// applies no filter.
func (r *AssetRepository) List(ctx context.Context, category domain.Category) ([]domain.Asset, error) {
	var (
		rows []assetRow
		err  error
	)
	if category == "" || category == domain.CategoryAll {
		query := `SELECT ` + assetColumns + ` FROM assets ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &rows, query)
	} else {
		query := `SELECT ` + assetColumns + ` FROM assets WHERE category = $1 ORDER BY created_at DESC`
		err = r.db.SelectContext(ctx, &rows, query, category)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	assets := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, row.toDomain())
	}
	return assets, nil
}

// Get retrieves an asset by ID
func (r *AssetRepository) Get(ctx context.Context, id string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	var row assetRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	a := row.toDomain()
	return &a, nil
}

// Insert assigns ID and CreatedAt and stores the asset.
func (r *AssetRepository) Insert(ctx context.Context, a *domain.Asset) error {
	query := `
		INSERT INTO assets (
			id, created_at, title, category, type, file_url, thumbnail_url,
			video_preview_url, description, youtube_url, size_bytes, tags
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()
	if a.Tags == nil {
		a.Tags = []string{}
	}

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.CreatedAt,
		a.Title,
		a.Category,
		a.Type,
		a.FileURL,
		a.ThumbnailURL,
		a.VideoPreviewURL,
		a.Description,
		a.YoutubeURL,
		a.SizeBytes,
		tagsArray(a.Tags),
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}

	return nil
}

// Update overwrites every mutable column of an existing asset.
func (r *AssetRepository) Update(ctx context.Context, a *domain.Asset) error {
	query := `
		UPDATE assets
		SET title = $1, category = $2, type = $3, file_url = $4, thumbnail_url = $5,
		    video_preview_url = $6, description = $7, youtube_url = $8,
		    size_bytes = $9, tags = $10
		WHERE id = $11
	`

	res, err := r.db.ExecContext(ctx, query,
		a.Title,
		a.Category,
		a.Type,
		a.FileURL,
		a.ThumbnailURL,
		a.VideoPreviewURL,
		a.Description,
		a.YoutubeURL,
		a.SizeBytes,
		tagsArray(a.Tags),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("asset %s: %w", a.ID, apperrors.ErrRecordNotFound)
	}

	return nil
}

// Delete removes the row and returns it so callers can clean up blobs.
func (r *AssetRepository) Delete(ctx context.Context, id string) (*domain.Asset, error) {
	query := `DELETE FROM assets WHERE id = $1 RETURNING ` + assetColumns

	var row assetRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, apperrors.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to delete asset: %w", err)
	}

	a := row.toDomain()
	return &a, nil
}
