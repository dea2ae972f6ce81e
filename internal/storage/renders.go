/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RenderRecord describes one completed scene render.
type RenderRecord struct {
	Fingerprint string
	SceneIndex  int
	OverlayTag  string
	Paragraphs  int
	Artifact    string
	RenderedAt  time.Time
	Duration    time.Duration
}

// language=SQL
// dialect=SQLite
const upsertRenderSQL = `INSERT INTO renders(fingerprint, scene_index, overlay_tag, paragraphs, artifact, rendered_at, duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(fingerprint) DO UPDATE SET
	scene_index=excluded.scene_index,
	overlay_tag=excluded.overlay_tag,
	paragraphs=excluded.paragraphs,
	artifact=excluded.artifact,
	rendered_at=excluded.rendered_at,
	duration_ms=excluded.duration_ms`

// language=SQL
// dialect=SQLite
const selectRenderSQL = `SELECT fingerprint, scene_index, overlay_tag, paragraphs, artifact, rendered_at, duration_ms FROM renders WHERE fingerprint = ?`

// language=SQL
// dialect=SQLite
const listRendersSQL = `SELECT fingerprint, scene_index, overlay_tag, paragraphs, artifact, rendered_at, duration_ms FROM renders ORDER BY scene_index, rendered_at`

// RecordRender inserts or replaces the render row for rec.Fingerprint.
func RecordRender(ctx context.Context, db *sql.DB, rec RenderRecord) error {
	if rec.Fingerprint == "" {
		return errors.New("render record without fingerprint")
	}
	ts := rec.RenderedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.ExecContext(ctx, upsertRenderSQL,
		rec.Fingerprint, rec.SceneIndex, rec.OverlayTag, rec.Paragraphs, rec.Artifact,
		ts.UTC().Format(time.RFC3339Nano), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record render: %w", err)
	}
	return nil
}

// LookupRender returns the render row for fingerprint. ok is false when none exists.
func LookupRender(ctx context.Context, db *sql.DB, fingerprint string) (RenderRecord, bool, error) {
	rec, err := scanRender(db.QueryRowContext(ctx, selectRenderSQL, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return RenderRecord{}, false, nil
	}
	if err != nil {
		return RenderRecord{}, false, fmt.Errorf("lookup render: %w", err)
	}
	return rec, true, nil
}

// ListRenders returns all recorded renders ordered by scene index.
func ListRenders(ctx context.Context, db *sql.DB) ([]RenderRecord, error) {
	rows, err := db.QueryContext(ctx, listRendersSQL)
	if err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []RenderRecord
	for rows.Next() {
		rec, err := scanRender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan render: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneRenders deletes rows whose fingerprint is not in keep, returning the
// number of rows removed. Cache directories are left on disk.
func PruneRenders(ctx context.Context, db *sql.DB, keep []string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_fp (fingerprint TEXT PRIMARY KEY)`); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune temp table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_fp`); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune clear: %w", err)
	}
	for _, fp := range keep {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keep_fp(fingerprint) VALUES (?)`, fp); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("prune keep: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM renders WHERE fingerprint NOT IN (SELECT fingerprint FROM keep_fp)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune renders: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune commit: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRender(r rowScanner) (RenderRecord, error) {
	var (
		rec   RenderRecord
		tsStr string
		durMS int64
	)
	if err := r.Scan(&rec.Fingerprint, &rec.SceneIndex, &rec.OverlayTag, &rec.Paragraphs, &rec.Artifact, &tsStr, &durMS); err != nil {
		return RenderRecord{}, err
	}
	rec.RenderedAt, _ = time.Parse(time.RFC3339Nano, tsStr)
	rec.Duration = time.Duration(durMS) * time.Millisecond
	return rec, nil
}
