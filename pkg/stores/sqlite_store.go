package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// One writer at a time; also keeps :memory: databases on a single
	// connection.
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database, creating its parent directory when needed.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.path != ":memory:" {
		if dir := filepath.Dir(s.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if s.path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs all pending database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// SaveSnapshot inserts a snapshot. Names may repeat; LatestSnapshot picks the
// newest.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.Name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	if len(snap.Manifest) == 0 {
		return fmt.Errorf("snapshot %s has no manifest", snap.Name)
	}

	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.SHA256 == "" {
		snap.SHA256 = Checksum(snap.Manifest)
	}
	snap.Size = len(snap.Manifest)
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO snapshots (
			id, name, sha256, source_generation, resources, size, manifest, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		snap.ID,
		snap.Name,
		snap.SHA256,
		snap.SourceGeneration,
		snap.Resources,
		snap.Size,
		snap.Manifest,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves a snapshot, including its manifest, by ID.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	query := `
		SELECT id, name, sha256, source_generation, resources, size, manifest, created_at
		FROM snapshots
		WHERE id = ?
	`

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// LatestSnapshot retrieves the newest snapshot with the given name.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	query := `
		SELECT id, name, sha256, source_generation, resources, size, manifest, created_at
		FROM snapshots
		WHERE name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	snap := &Snapshot{}
	err := row.Scan(
		&snap.ID,
		&snap.Name,
		&snap.SHA256,
		&snap.SourceGeneration,
		&snap.Resources,
		&snap.Size,
		&snap.Manifest,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ListSnapshots lists snapshot metadata, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error) {
	query := `
		SELECT id, name, sha256, source_generation, resources, size, created_at
		FROM snapshots
		WHERE (? = '' OR name = ?)
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{filter.Name, filter.Name}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []*Snapshot{}
	for rows.Next() {
		snap := &Snapshot{}
		err := rows.Scan(
			&snap.ID,
			&snap.Name,
			&snap.SHA256,
			&snap.SourceGeneration,
			&snap.Resources,
			&snap.Size,
			&snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snaps, nil
}

// DeleteSnapshot deletes a snapshot by ID. Diff reports that referenced it
// keep their checksums but lose the link.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}

	return nil
}

// RecordDiffReport stores a diff gate evaluation.
func (s *SQLiteStore) RecordDiffReport(ctx context.Context, r *DiffReport) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Summary == "" {
		r.Summary = "{}"
	}
	if r.Violations == "" {
		r.Violations = "[]"
	}

	query := `
		INSERT INTO diff_reports (
			id, base_snapshot_id, base_sha256, altered_sha256,
			summary, violations, allowed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.BaseSnapshotID,
		r.BaseSHA256,
		r.AlteredSHA256,
		r.Summary,
		r.Violations,
		r.Allowed,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record diff report: %w", err)
	}

	return nil
}

// ListDiffReports returns the newest reports first. A non-positive limit
// returns all of them.
func (s *SQLiteStore) ListDiffReports(ctx context.Context, limit int) ([]*DiffReport, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT id, base_snapshot_id, base_sha256, altered_sha256,
		       summary, violations, allowed, created_at
		FROM diff_reports
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list diff reports: %w", err)
	}
	defer rows.Close()

	reports := []*DiffReport{}
	for rows.Next() {
		r := &DiffReport{}
		err := rows.Scan(
			&r.ID,
			&r.BaseSnapshotID,
			&r.BaseSHA256,
			&r.AlteredSHA256,
			&r.Summary,
			&r.Violations,
			&r.Allowed,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diff report: %w", err)
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diff reports: %w", err)
	}

	return reports, nil
}
