package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one numbered schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	db         *sqlx.DB
	migrations []Migration
	logger     *slog.Logger
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *DB, logger *slog.Logger) (*Migrator, error) {
	m := &Migrator{
		db:     db.DB,
		logger: logger.With(slog.String("component", "migrator")),
	}

	if err := m.loadMigrations(); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return m, nil
}

// Migrations returns the loaded migrations, lowest version first.
func (m *Migrator) Migrations() []Migration {
	return m.migrations
}

// loadMigrations reads NNN_name.up.sql / NNN_name.down.sql pairs.
func (m *Migrator) loadMigrations() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[int]*Migration)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(prefix, "%d", &version); err != nil {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}

		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			mig.Name = strings.TrimSuffix(rest, ".up.sql")
			mig.UpSQL = string(content)
		case strings.HasSuffix(rest, ".down.sql"):
			mig.DownSQL = string(content)
		}
	}

	versions := make([]int, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	m.migrations = m.migrations[:0]
	for _, v := range versions {
		m.migrations = append(m.migrations, *byVersion[v])
	}

	return nil
}

// Up runs all pending migrations, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}

		m.logger.InfoContext(ctx, "Running migration",
			slog.Int("version", mig.Version),
			slog.String("name", mig.Name))

		tx, err := m.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", mig.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", mig.Version, err)
		}
	}

	return nil
}

// Down rolls back the latest applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		m.logger.InfoContext(ctx, "No migrations to roll back")
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == current {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil {
		return fmt.Errorf("migration %d not found", current)
	}

	m.logger.InfoContext(ctx, "Rolling back migration",
		slog.Int("version", mig.Version),
		slog.String("name", mig.Name))

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, mig.DownSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to execute rollback %d: %w", mig.Version, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", mig.Version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to remove migration record %d: %w", mig.Version, err)
	}

	return tx.Commit()
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	if err := m.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}
