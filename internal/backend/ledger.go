/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scenewright/internal/storage"
)

// Ledger publishes render records keyed by (project, fingerprint).
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps an already migrated database.
func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// dialect=PostgreSQL
const publishSQL = `INSERT INTO render_ledger
	(project, fingerprint, scene_index, overlay_tag, paragraphs, artifact, rendered_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project, fingerprint) DO UPDATE SET
	scene_index  = EXCLUDED.scene_index,
	overlay_tag  = EXCLUDED.overlay_tag,
	paragraphs   = EXCLUDED.paragraphs,
	artifact     = EXCLUDED.artifact,
	rendered_at  = EXCLUDED.rendered_at,
	duration_ms  = EXCLUDED.duration_ms,
	published_at = now()`

// dialect=PostgreSQL
const lookupSQL = `SELECT fingerprint, scene_index, overlay_tag, paragraphs, artifact, rendered_at, duration_ms
FROM render_ledger WHERE project = $1 AND fingerprint = $2`

// dialect=PostgreSQL
const listSQL = `SELECT fingerprint, scene_index, overlay_tag, paragraphs, artifact, rendered_at, duration_ms
FROM render_ledger WHERE project = $1 ORDER BY scene_index, rendered_at`

// Publish upserts rec for project.
func (l *Ledger) Publish(ctx context.Context, project string, rec storage.RenderRecord) error {
	if project == "" || rec.Fingerprint == "" {
		return errors.New("publish: project and fingerprint are required")
	}
	ts := rec.RenderedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := l.db.ExecContext(ctx, publishSQL,
		project, rec.Fingerprint, rec.SceneIndex, rec.OverlayTag, rec.Paragraphs,
		rec.Artifact, ts.UTC(), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", project, rec.Fingerprint, err)
	}
	return nil
}

// Lookup returns the ledger entry for fingerprint in project.
func (l *Ledger) Lookup(ctx context.Context, project, fingerprint string) (storage.RenderRecord, bool, error) {
	rec, err := scan(l.db.QueryRowContext(ctx, lookupSQL, project, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RenderRecord{}, false, nil
	}
	if err != nil {
		return storage.RenderRecord{}, false, fmt.Errorf("lookup %s/%s: %w", project, fingerprint, err)
	}
	return rec, true, nil
}

// List returns every entry published for project.
func (l *Ledger) List(ctx context.Context, project string) ([]storage.RenderRecord, error) {
	rows, err := l.db.QueryContext(ctx, listSQL, project)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", project, err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.RenderRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scan(s scanner) (storage.RenderRecord, error) {
	var (
		rec   storage.RenderRecord
		durMS int64
	)
	if err := s.Scan(&rec.Fingerprint, &rec.SceneIndex, &rec.OverlayTag, &rec.Paragraphs, &rec.Artifact, &rec.RenderedAt, &durMS); err != nil {
		return storage.RenderRecord{}, err
	}
	rec.Duration = time.Duration(durMS) * time.Millisecond
	return rec, nil
}
