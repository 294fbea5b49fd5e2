// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package installdb records staged package trees in SQLite.
//
// Every successful or failed staging leaves a row in the stages table:
// which package and version, where the tree lives, the source archive
// hash, and the current status. The patches applied to a stage are
// child rows with a cascade delete, so removing a stage removes its
// patch history with it.
//
// The database is the answer store for `quarry find`: constraint
// queries like mercury@1.8: filter the recorded stages by package name
// and version range.
package installdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quarry-build/quarry/lib/clock"
	"github.com/quarry-build/quarry/lib/sourcecache"
	"github.com/quarry-build/quarry/lib/sqlitepool"
)

// ErrStageNotFound reports a stage ID with no row in the database.
var ErrStageNotFound = errors.New("stage not found")

// Status is the lifecycle state of a staged tree.
type Status string

const (
	// StatusStaged means the source is unpacked but patches have not
	// all been applied yet.
	StatusStaged Status = "staged"

	// StatusPatched means every applicable patch applied cleanly. The
	// tree is ready for a build system to enter.
	StatusPatched Status = "patched"

	// StatusFailed means a patch did not apply. The tree is left on
	// disk for inspection.
	StatusFailed Status = "failed"

	// StatusRemoved marks a stage whose tree is gone but whose record
	// is kept as a tombstone. Remove deletes the row outright; this
	// status exists for callers that want the history instead.
	StatusRemoved Status = "removed"
)

// Valid reports whether s is one of the defined status values.
func (s Status) Valid() bool {
	switch s {
	case StatusStaged, StatusPatched, StatusFailed, StatusRemoved:
		return true
	}
	return false
}

// ParseStatus parses a status string, rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown stage status %q", raw)
	}
	return status, nil
}

// Stage is one recorded staging.
type Stage struct {
	ID         int64
	Package    string
	Version    string
	Path       string
	Status     Status
	SourceHash sourcecache.Hash
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Patches is populated by Get and Patches, in application order.
	// Find leaves it nil.
	Patches []PatchRecord
}

// PatchRecord is one applied patch on a stage.
type PatchRecord struct {
	// Ordinal is the application position, starting at 0. Declaration
	// order in the recipe is application order.
	Ordinal int

	// Name is the patch's recipe-relative file name or URL.
	Name string

	// SHA256 is the declared digest, empty when the recipe declared
	// none.
	SHA256 string

	Strip   int
	Reverse bool

	AppliedAt time.Time
}

// Config holds the parameters for opening an install database.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Defaults per sqlitepool.
	PoolSize int

	// Clock provides row timestamps. nil means the real clock.
	Clock clock.Clock

	// Logger receives operational messages. nil means discard.
	Logger *slog.Logger
}

// DB is an open install database.
type DB struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// schemaVersion is bumped when the table layout changes. A database
// written by a newer quarry is refused rather than misread.
const schemaVersion = 1

const schema = `
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stages (
		id          INTEGER PRIMARY KEY,
		package     TEXT NOT NULL,
		version     TEXT NOT NULL,
		path        TEXT NOT NULL,
		status      TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stages_package_version
		ON stages(package, version);

	CREATE TABLE IF NOT EXISTS patches (
		stage_id   INTEGER NOT NULL REFERENCES stages(id) ON DELETE CASCADE,
		ordinal    INTEGER NOT NULL,
		name       TEXT NOT NULL,
		sha256     TEXT NOT NULL,
		strip      INTEGER NOT NULL,
		reverse    INTEGER NOT NULL,
		applied_at INTEGER NOT NULL,
		PRIMARY KEY (stage_id, ordinal)
	);
`

// Open opens (creating if needed) the install database at cfg.Path.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("install db: Path is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      cfg.Path,
		PoolSize:  cfg.PoolSize,
		Logger:    cfg.Logger,
		OnConnect: prepareSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("install db: %w", err)
	}

	return &DB{
		pool:   pool,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.pool.Close()
}

// prepareSchema creates the tables and checks the schema version. Runs
// once per pool connection; every statement is idempotent.
func prepareSchema(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// Single atomic statement so concurrent connection preparation
	// cannot insert the version row twice.
	err := sqlitex.Execute(conn,
		`INSERT INTO schema_info (version)
		 SELECT ? WHERE NOT EXISTS (SELECT 1 FROM schema_info)`,
		&sqlitex.ExecOptions{Args: []any{schemaVersion}})
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	var stored int
	err = sqlitex.Execute(conn, `SELECT version FROM schema_info`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stored = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if stored > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)",
			stored, schemaVersion)
	}
	return nil
}

// RecordStage inserts a new stage row with status staged and returns
// its ID. Only Package, Version, Path, and SourceHash of the argument
// are used; timestamps and status are set here.
func (db *DB) RecordStage(ctx context.Context, stage Stage) (stageID int64, err error) {
	if stage.Package == "" {
		return 0, fmt.Errorf("install db: package name is required")
	}
	if stage.Version == "" {
		return 0, fmt.Errorf("install db: version is required")
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("install db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	now := db.clock.Now().UTC().Unix()
	err = sqlitex.Execute(conn,
		`INSERT INTO stages
			(package, version, path, status, source_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			stage.Package,
			stage.Version,
			stage.Path,
			string(StatusStaged),
			sourcecache.FormatHash(stage.SourceHash),
			now,
			now,
		}})
	if err != nil {
		return 0, fmt.Errorf("install db: record stage: %w", err)
	}

	stageID = conn.LastInsertRowID()
	db.logger.Debug("stage recorded",
		"stage_id", stageID,
		"package", stage.Package,
		"version", stage.Version,
	)
	return stageID, nil
}

// SetStatus updates a stage's status and updated_at timestamp.
func (db *DB) SetStatus(ctx context.Context, stageID int64, status Status) (err error) {
	if !status.Valid() {
		return fmt.Errorf("install db: invalid status %q", status)
	}

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("install db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`UPDATE stages SET status = ?, updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{
			string(status),
			db.clock.Now().UTC().Unix(),
			stageID,
		}})
	if err != nil {
		return fmt.Errorf("install db: set status: %w", err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("install db: stage %d: %w", stageID, ErrStageNotFound)
	}
	return nil
}

// RecordPatch appends an applied-patch row to a stage and bumps the
// stage's updated_at. The record's AppliedAt is ignored; the row gets
// the current time.
func (db *DB) RecordPatch(ctx context.Context, stageID int64, record PatchRecord) (err error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("install db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	now := db.clock.Now().UTC().Unix()
	err = sqlitex.Execute(conn,
		`INSERT INTO patches
			(stage_id, ordinal, name, sha256, strip, reverse, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			stageID,
			record.Ordinal,
			record.Name,
			record.SHA256,
			record.Strip,
			boolToInt(record.Reverse),
			now,
		}})
	if err != nil {
		return fmt.Errorf("install db: record patch %q on stage %d: %w",
			record.Name, stageID, err)
	}

	err = sqlitex.Execute(conn,
		`UPDATE stages SET updated_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{now, stageID}})
	if err != nil {
		return fmt.Errorf("install db: touch stage %d: %w", stageID, err)
	}
	return nil
}

// Remove deletes a stage row. The foreign key cascade removes its
// patch rows. Callers wanting a tombstone instead use SetStatus with
// StatusRemoved.
func (db *DB) Remove(ctx context.Context, stageID int64) (err error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("install db: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`DELETE FROM stages WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{stageID}})
	if err != nil {
		return fmt.Errorf("install db: remove stage %d: %w", stageID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("install db: stage %d: %w", stageID, ErrStageNotFound)
	}

	db.logger.Debug("stage removed", "stage_id", stageID)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
