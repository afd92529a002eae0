package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists the operation journal and the registry release
// cache in a single SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	cfg      Config
	cacheTTL time.Duration
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	CacheTTL        time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg:      cfg,
		cacheTTL: cfg.CacheTTL,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// AppendOperation writes a journal entry.
func (s *SQLiteStore) AppendOperation(ctx context.Context, rec *OperationRecord) error {
	query := `
		INSERT INTO operations (id, operation, package, version, status, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Operation,
		rec.Package,
		rec.Version,
		rec.Status,
		rec.Error,
		rec.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		rec.Duration.Milliseconds(),
	)

	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}

	return nil
}

// ListOperations lists journal entries, newest first. pkgName filters
// by package when non-nil.
func (s *SQLiteStore) ListOperations(ctx context.Context, pkgName *string, limit, offset int) ([]*OperationRecord, error) {
	query := `
		SELECT id, operation, package, version, status, error, started_at, duration_ms
		FROM operations
		WHERE (? IS NULL OR package = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, pkgName, pkgName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	records := []*OperationRecord{}
	for rows.Next() {
		rec := &OperationRecord{}
		var startedAt time.Time
		var durationMS int64
		err := rows.Scan(
			&rec.ID,
			&rec.Operation,
			&rec.Package,
			&rec.Version,
			&rec.Status,
			&rec.Error,
			&startedAt,
			&durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		rec.StartedAt = startedAt
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return records, nil
}

// GetRelease returns a cached registry resolution if it exists and is
// younger than the cache TTL. It implements the registry cache
// interface.
func (s *SQLiteStore) GetRelease(ctx context.Context, id, version string) (*pack.Release, bool, error) {
	query := `
		SELECT registry_id, resolved, download_url, repo_url, fetched_at
		FROM registry_cache
		WHERE registry_id = ? AND requested = ?
	`

	var rec ReleaseRecord
	err := s.db.QueryRowContext(ctx, query, id, version).Scan(
		&rec.RegistryID,
		&rec.Resolved,
		&rec.DownloadURL,
		&rec.RepoURL,
		&rec.FetchedAt,
	)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached release: %w", err)
	}

	if time.Since(rec.FetchedAt) > s.cacheTTL {
		return nil, false, nil
	}

	return &pack.Release{
		RegistryID:  rec.RegistryID,
		Version:     rec.Resolved,
		DownloadURL: rec.DownloadURL,
		RepoURL:     rec.RepoURL,
	}, true, nil
}

// PutRelease stores a registry resolution, replacing any previous entry
// for the same (id, requested version) pair.
func (s *SQLiteStore) PutRelease(ctx context.Context, id, version string, release *pack.Release) error {
	query := `
		INSERT INTO registry_cache (registry_id, requested, resolved, download_url, repo_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(registry_id, requested) DO UPDATE SET
			resolved = excluded.resolved,
			download_url = excluded.download_url,
			repo_url = excluded.repo_url,
			fetched_at = excluded.fetched_at
	`

	_, err := s.db.ExecContext(ctx, query,
		id,
		version,
		release.Version,
		release.DownloadURL,
		release.RepoURL,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
	)

	if err != nil {
		return fmt.Errorf("failed to cache release: %w", err)
	}

	return nil
}

// PruneReleases deletes cache entries older than the TTL and returns
// how many were removed.
func (s *SQLiteStore) PruneReleases(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.cacheTTL).Format("2006-01-02 15:04:05")

	result, err := s.db.ExecContext(ctx, `DELETE FROM registry_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune release cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
