/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pipeline drives scene rendering: it checks each parsed scene
// against the cache and hands misses to a Renderer, recording completed
// renders in the project index and, optionally, a shared ledger.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"scenewright/internal/cache"
	"scenewright/internal/crash"
	applog "scenewright/internal/log"
	"scenewright/internal/script"
	"scenewright/internal/storage"
)

// SceneStatus is the cache state of one scene in script order.
type SceneStatus struct {
	Index       int // 0-based position in the script
	Scene       script.Scene
	Fingerprint string
	Dir         string
	Artifact    string
	Rendered    bool
}

// Plan reports the cache state of every scene. A cache that cannot be
// inspected fails the whole plan.
func Plan(ph *storage.ProjectHandle, scenes []script.Scene) ([]SceneStatus, error) {
	c := cache.New(ph.Root)
	out := make([]SceneStatus, len(scenes))
	for i, s := range scenes {
		ok, err := c.IsRendered(s)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i+1, err)
		}
		out[i] = SceneStatus{
			Index:       i,
			Scene:       s,
			Fingerprint: cache.Fingerprint(s),
			Dir:         c.Dir(s),
			Artifact:    c.ArtifactPath(s),
			Rendered:    ok,
		}
	}
	return out, nil
}

// Job is one scene handed to a Renderer. The renderer must write Artifact
// inside Dir, which already exists.
type Job struct {
	Index       int
	Scene       script.Scene
	Fingerprint string
	Dir         string
	Artifact    string
}

// Renderer produces the video for a scene.
type Renderer interface {
	Render(ctx context.Context, job Job) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, job Job) error

func (f RendererFunc) Render(ctx context.Context, job Job) error { return f(ctx, job) }

// Publisher receives completed renders, e.g. the shared Postgres ledger.
type Publisher interface {
	Publish(ctx context.Context, project string, rec storage.RenderRecord) error
}

// Outcome of one scene in a run.
type Outcome int

const (
	Cached Outcome = iota
	Rendered
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Cached:
		return "cached"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the outcome of one scene.
type Result struct {
	SceneStatus
	Outcome  Outcome
	Shared   bool // render was performed for an identical scene in the same run
	Duration time.Duration
	Err      error
}

// ErrArtifactMissing is reported when a renderer returns success without
// writing the scene artifact.
var ErrArtifactMissing = errors.New("renderer did not produce the scene artifact")

// Runner renders the scenes of one project.
type Runner struct {
	Project  *storage.ProjectHandle
	Renderer Renderer
	Workers  int     // concurrent renders; values below 1 mean 1
	Index    *sql.DB // optional project index
	Ledger   Publisher

	sf singleflight.Group
}

// Run renders every scene that is not cached. Scenes are processed
// concurrently; a failing scene does not stop the others. Results are in
// script order, and the returned error joins every scene failure.
func (r *Runner) Run(ctx context.Context, scenes []script.Scene) ([]Result, error) {
	if r.Project == nil || r.Renderer == nil {
		return nil, errors.New("pipeline: runner needs a project and a renderer")
	}
	plan, err := Plan(r.Project, scenes)
	if err != nil {
		return nil, err
	}
	l := applog.WithOperation(applog.WithComponent("pipeline"), "run").With(slog.String("project", r.Project.Name))
	results := make([]Result, len(plan))

	var g errgroup.Group
	g.SetLimit(max(r.Workers, 1))
	for i, st := range plan {
		results[i].SceneStatus = st
		if st.Rendered {
			results[i].Outcome = Cached
			l.Info("scene cached", slog.Int("scene", st.Index+1), slog.String("fp", st.Fingerprint))
			continue
		}
		g.Go(func() error {
			sctx := applog.WithScene(ctx, st.Index+1, st.Fingerprint)
			l.InfoContext(sctx, "scene not cached, rendering")
			start := time.Now()
			v, err, shared := r.sf.Do(st.Fingerprint, func() (any, error) {
				return r.renderOne(sctx, st)
			})
			res := &results[i]
			res.Duration = time.Since(start)
			res.Shared = shared
			if reused, _ := v.(bool); reused {
				res.Shared = true
			}
			if err != nil {
				res.Outcome = Failed
				res.Err = fmt.Errorf("scene %d (%s): %w", st.Index+1, st.Fingerprint, err)
				l.ErrorContext(sctx, "scene failed", slog.Any("err", err))
				return nil
			}
			res.Outcome = Rendered
			l.InfoContext(sctx, "scene rendered", slog.Duration("took", res.Duration))
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return results, errors.Join(errs...)
}

// renderOne renders st unless an identical scene finished earlier in the
// run, in which case it reports reused.
func (r *Runner) renderOne(ctx context.Context, st SceneStatus) (reused bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := cache.IsRendered(r.Project.Root, st.Scene)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if err := storage.PrepareSceneDir(r.Project, st.Dir); err != nil {
		return false, err
	}
	job := Job{Index: st.Index, Scene: st.Scene, Fingerprint: st.Fingerprint, Dir: st.Dir, Artifact: st.Artifact}
	start := time.Now()
	err = crash.Guard(r.Project, fmt.Sprintf("render scene %d", st.Index+1), func() error {
		return r.Renderer.Render(ctx, job)
	})
	if err != nil {
		return false, err
	}
	ok, err = cache.IsRendered(r.Project.Root, st.Scene)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrArtifactMissing
	}
	rec := storage.RenderRecord{
		Fingerprint: st.Fingerprint,
		SceneIndex:  st.Index,
		OverlayTag:  st.Scene.Overlay().Tag,
		Paragraphs:  st.Scene.Len(),
		Artifact:    st.Artifact,
		RenderedAt:  time.Now(),
		Duration:    time.Since(start),
	}
	if r.Index != nil {
		if err := storage.RecordRender(ctx, r.Index, rec); err != nil {
			return false, err
		}
	}
	if r.Ledger != nil {
		if err := r.Ledger.Publish(ctx, r.Project.Name, rec); err != nil {
			// The artifact is in the cache; the ledger is advisory.
			applog.WithComponent("pipeline").WarnContext(ctx, "publish to ledger failed", slog.Any("err", err))
		}
	}
	return false, nil
}
