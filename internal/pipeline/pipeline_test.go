/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pipeline

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scenewright/internal/crash"
	"scenewright/internal/script"
	"scenewright/internal/storage"
)

const threeScenes = `<title text="A"/>

first

<title text="B"/>

<actor name="actor1"/>
second

<title text="A"/>

<actor name="narrator"/>
first`

func setup(t *testing.T, src string) (*storage.ProjectHandle, []script.Scene) {
	t.Helper()
	ph, err := storage.InitProject(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	scenes, err := script.Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return ph, scenes
}

func writeArtifact(_ context.Context, job Job) error {
	return os.WriteFile(job.Artifact, []byte("mp4"), 0o644)
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []storage.RenderRecord
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, project string, rec storage.RenderRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

func TestPlanReportsCacheState(t *testing.T) {
	ph, scenes := setup(t, threeScenes)
	plan, err := Plan(ph, scenes)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(plan))
	}
	if plan[0].Fingerprint != plan[2].Fingerprint {
		t.Fatalf("identical scenes must share a fingerprint")
	}
	if plan[0].Fingerprint == plan[1].Fingerprint {
		t.Fatalf("different scenes must not share a fingerprint")
	}
	for _, st := range plan {
		if st.Rendered {
			t.Fatalf("nothing should be rendered yet: %+v", st)
		}
		if filepath.Dir(st.Artifact) != st.Dir {
			t.Fatalf("artifact must live in scene dir: %s", st.Artifact)
		}
	}
}

func TestRunRendersMissesAndSkipsHits(t *testing.T) {
	ph, scenes := setup(t, threeScenes)
	db, err := storage.InitOrOpenIndex(ph.Root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()

	var calls atomic.Int32
	pub := &recordingPublisher{}
	r := &Runner{
		Project: ph,
		Workers: 4,
		Index:   db,
		Ledger:  pub,
		Renderer: RendererFunc(func(ctx context.Context, job Job) error {
			calls.Add(1)
			time.Sleep(20 * time.Millisecond)
			return writeArtifact(ctx, job)
		}),
	}
	results, err := r.Run(context.Background(), scenes)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 renders for 2 distinct scenes, got %d", got)
	}
	for i, res := range results {
		if res.Index != i || res.Outcome != Rendered {
			t.Fatalf("result %d: %+v", i, res)
		}
	}
	if !results[0].Shared && !results[2].Shared {
		t.Fatalf("one of the identical scenes should reuse the other's render")
	}
	recs, err := storage.ListRenders(context.Background(), db)
	if err != nil || len(recs) != 2 {
		t.Fatalf("index should hold 2 renders: %v %v", recs, err)
	}
	if len(pub.recs) != 2 {
		t.Fatalf("expected 2 published records, got %d", len(pub.recs))
	}

	// Second run: everything cached.
	results, err = r.Run(context.Background(), scenes)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("cached scenes must not be re-rendered")
	}
	for _, res := range results {
		if res.Outcome != Cached {
			t.Fatalf("expected cached, got %v", res.Outcome)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	ph, scenes := setup(t, threeScenes)
	boom := errors.New("provider quota exceeded")
	r := &Runner{
		Project: ph,
		Workers: 2,
		Renderer: RendererFunc(func(ctx context.Context, job Job) error {
			if job.Scene.Len() == 0 {
				return boom
			}
			return writeArtifact(ctx, job)
		}),
	}
	sceneWithoutText := `<title/>

<title/>

spoken`
	scenes, _ = script.Parse(sceneWithoutText)
	results, err := r.Run(context.Background(), scenes)
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error wrapping boom, got %v", err)
	}
	if results[0].Outcome != Failed || results[1].Outcome != Rendered {
		t.Fatalf("unexpected outcomes: %v %v", results[0].Outcome, results[1].Outcome)
	}
	if !strings.Contains(results[0].Err.Error(), "scene 1") {
		t.Fatalf("error should name the scene: %v", results[0].Err)
	}
}

func TestRunRequiresArtifact(t *testing.T) {
	ph, scenes := setup(t, "<title/>\n\nhello")
	r := &Runner{Project: ph, Renderer: RendererFunc(func(context.Context, Job) error { return nil })}
	results, err := r.Run(context.Background(), scenes)
	if !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
	if results[0].Outcome != Failed {
		t.Fatalf("expected failure, got %v", results[0].Outcome)
	}
	// the scene dir was prepared for the renderer
	if fi, err := os.Stat(results[0].Dir); err != nil || !fi.IsDir() {
		t.Fatalf("scene dir not prepared: %v", err)
	}
}

func TestRunConvertsRendererPanic(t *testing.T) {
	ph, scenes := setup(t, "<title/>\n\nhello")
	r := &Runner{Project: ph, Renderer: RendererFunc(func(context.Context, Job) error { panic("nil clip") })}
	_, err := r.Run(context.Background(), scenes)
	var pe *crash.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
}

func TestRunPublishFailureIsAdvisory(t *testing.T) {
	ph, scenes := setup(t, "<title/>\n\nhello")
	pub := &recordingPublisher{err: errors.New("ledger down")}
	r := &Runner{Project: ph, Ledger: pub, Renderer: RendererFunc(writeArtifact)}
	results, err := r.Run(context.Background(), scenes)
	if err != nil {
		t.Fatalf("publish failures must not fail the scene: %v", err)
	}
	if results[0].Outcome != Rendered || len(pub.recs) != 1 {
		t.Fatalf("unexpected: %+v %d", results[0], len(pub.recs))
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ph, scenes := setup(t, threeScenes)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Project: ph, Renderer: RendererFunc(writeArtifact)}
	_, err := r.Run(ctx, scenes)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCommandRenderer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ph, scenes := setup(t, "<title/>\n\n<actor name=\"actor1\"/>\nhello")
	r := &Runner{
		Project: ph,
		Renderer: CommandRenderer{
			Argv:    []string{"sh", "-c", `cat > job.json && printf '%s' "$SW_SCENE_FINGERPRINT $SHARED_SECRET" > "$SW_SCENE_ARTIFACT"`},
			Env:     []string{"SHARED_SECRET=s3cret"},
			Timeout: 10 * time.Second,
		},
	}
	results, err := r.Run(context.Background(), scenes)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := results[0]
	b, err := os.ReadFile(res.Artifact)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if string(b) != res.Fingerprint+" s3cret" {
		t.Fatalf("unexpected artifact content %q", b)
	}
	job, err := os.ReadFile(filepath.Join(res.Dir, "job.json"))
	if err != nil {
		t.Fatalf("job.json: %v", err)
	}
	if !strings.Contains(string(job), `"actor":"actor1"`) || !strings.Contains(string(job), `"fingerprint":"`+res.Fingerprint+`"`) {
		t.Fatalf("unexpected job payload: %s", job)
	}
}

func TestCommandRendererReportsStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	c := CommandRenderer{Argv: []string{"sh", "-c", "echo 'voice not found' >&2; exit 3"}}
	err := c.Render(context.Background(), Job{Dir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "voice not found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
	if err := (CommandRenderer{}).Render(context.Background(), Job{}); err == nil {
		t.Fatalf("expected error for empty argv")
	}
}
