// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package installdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quarry-build/quarry/lib/recipe"
	"github.com/quarry-build/quarry/lib/sourcecache"
)

const stageColumns = `id, package, version, path, status, source_hash, created_at, updated_at`

// Get returns one stage by ID, with its patch records in application
// order.
func (db *DB) Get(ctx context.Context, stageID int64) (*Stage, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	var stage *Stage
	err = sqlitex.Execute(conn,
		`SELECT `+stageColumns+` FROM stages WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{stageID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				scanned, err := stageFromRow(stmt)
				if err != nil {
					return err
				}
				stage = scanned
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("install db: get stage %d: %w", stageID, err)
	}
	if stage == nil {
		return nil, fmt.Errorf("install db: stage %d: %w", stageID, ErrStageNotFound)
	}

	stage.Patches, err = patchesForStage(conn, stageID)
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// Patches returns the applied-patch records for a stage in application
// order. An unknown stage ID yields an empty list, not an error.
func (db *DB) Patches(ctx context.Context, stageID int64) ([]PatchRecord, error) {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	return patchesForStage(conn, stageID)
}

// Find returns stages matching a constraint spec like "mercury",
// "mercury@1.8:", or "" (every stage), newest first. A non-empty
// status restricts the result to that status. Patches are not
// populated; use Get or Patches for those.
func (db *DB) Find(ctx context.Context, spec string, status Status) ([]*Stage, error) {
	name, constraintText, hasConstraint := strings.Cut(spec, "@")

	var constraint recipe.Constraint
	if hasConstraint {
		var err error
		constraint, err = recipe.ParseConstraint(constraintText)
		if err != nil {
			return nil, fmt.Errorf("install db: constraint %q: %w", spec, err)
		}
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("install db: invalid status %q", status)
	}

	query := `SELECT ` + stageColumns + ` FROM stages`
	var conditions []string
	var args []any
	if name != "" {
		conditions = append(conditions, `package = ?`)
		args = append(args, name)
	}
	if status != "" {
		conditions = append(conditions, `status = ?`)
		args = append(args, string(status))
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	conn, err := db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("install db: %w", err)
	}
	defer db.pool.Put(conn)

	var stages []*Stage
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stage, err := stageFromRow(stmt)
			if err != nil {
				return err
			}
			// Version range filtering happens here: constraint
			// semantics (prefix matches, numeric segment compare) are
			// not expressible in SQL.
			if hasConstraint && !constraint.Matches(stage.Version) {
				return nil
			}
			stages = append(stages, stage)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("install db: find %q: %w", spec, err)
	}
	return stages, nil
}

// stageFromRow scans one stages row in stageColumns order.
func stageFromRow(stmt *sqlite.Stmt) (*Stage, error) {
	stage := &Stage{
		ID:        stmt.ColumnInt64(0),
		Package:   stmt.ColumnText(1),
		Version:   stmt.ColumnText(2),
		Path:      stmt.ColumnText(3),
		Status:    Status(stmt.ColumnText(4)),
		CreatedAt: time.Unix(stmt.ColumnInt64(6), 0).UTC(),
		UpdatedAt: time.Unix(stmt.ColumnInt64(7), 0).UTC(),
	}

	hash, err := sourcecache.ParseHash(stmt.ColumnText(5))
	if err != nil {
		return nil, fmt.Errorf("stage %d has a corrupt source hash: %w", stage.ID, err)
	}
	stage.SourceHash = hash
	return stage, nil
}

func patchesForStage(conn *sqlite.Conn, stageID int64) ([]PatchRecord, error) {
	var records []PatchRecord
	err := sqlitex.Execute(conn,
		`SELECT ordinal, name, sha256, strip, reverse, applied_at
		 FROM patches WHERE stage_id = ? ORDER BY ordinal`,
		&sqlitex.ExecOptions{
			Args: []any{stageID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, PatchRecord{
					Ordinal:   stmt.ColumnInt(0),
					Name:      stmt.ColumnText(1),
					SHA256:    stmt.ColumnText(2),
					Strip:     stmt.ColumnInt(3),
					Reverse:   stmt.ColumnInt(4) != 0,
					AppliedAt: time.Unix(stmt.ColumnInt64(5), 0).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("install db: patches for stage %d: %w", stageID, err)
	}
	return records, nil
}
