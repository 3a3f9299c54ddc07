package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a snapshot or report does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is a stored manifest used as a base state.
type Snapshot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SHA256           string    `json:"sha256"`
	SourceGeneration int       `json:"source_generation"`
	Resources        int       `json:"resources"`
	Size             int       `json:"size"`
	Manifest         []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// Checksum returns the hex sha256 of a manifest.
func Checksum(manifest []byte) string {
	sum := sha256.Sum256(manifest)
	return hex.EncodeToString(sum[:])
}

// DiffReport records one evaluation of the diff gate.
type DiffReport struct {
	ID             string    `json:"id"`
	BaseSnapshotID *string   `json:"base_snapshot_id,omitempty"`
	BaseSHA256     string    `json:"base_sha256"`
	AlteredSHA256  string    `json:"altered_sha256"`
	Summary        string    `json:"summary"`    // JSON blob
	Violations     string    `json:"violations"` // JSON blob
	Allowed        bool      `json:"allowed"`
	CreatedAt      time.Time `json:"created_at"`
}

// SnapshotFilter narrows ListSnapshots.
type SnapshotFilter struct {
	// Name restricts to snapshots with this name.
	Name string

	// Limit caps the result size; zero means no limit.
	Limit int
}

// Store persists snapshots and diff reports.
type Store interface {
	// Init opens the database.
	Init(ctx context.Context) error

	// Close closes the database.
	Close() error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// HealthCheck verifies the database is reachable.
	HealthCheck(ctx context.Context) error

	// SaveSnapshot stores a snapshot, filling in ID, SHA256, Size and
	// CreatedAt when unset.
	SaveSnapshot(ctx context.Context, s *Snapshot) error

	// GetSnapshot returns the snapshot with the given id.
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)

	// LatestSnapshot returns the most recent snapshot with the given name.
	LatestSnapshot(ctx context.Context, name string) (*Snapshot, error)

	// ListSnapshots returns snapshot metadata, newest first. Manifest bodies
	// are not loaded.
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error)

	// DeleteSnapshot removes a snapshot.
	DeleteSnapshot(ctx context.Context, id string) error

	// RecordDiffReport stores a diff gate evaluation.
	RecordDiffReport(ctx context.Context, r *DiffReport) error

	// ListDiffReports returns the most recent reports, newest first.
	ListDiffReports(ctx context.Context, limit int) ([]*DiffReport, error)
}
