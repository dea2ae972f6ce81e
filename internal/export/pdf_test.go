/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scenewright/internal/actors"
	"scenewright/internal/pipeline"
	"scenewright/internal/script"
	"scenewright/internal/storage"
)

func TestStoryboardPDF_CreatesFile(t *testing.T) {
	ph, err := storage.InitProject(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	scenes, err := script.Parse(storage.SampleScript)
	if err != nil {
		t.Fatalf("parse sample: %v", err)
	}
	plan, err := pipeline.Plan(ph, scenes)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	out, err := StoryboardPDF(ph, plan, "storyboard.pdf", StoryboardOptions{Casting: actors.Default()})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out != filepath.Join(ph.Root, storage.ExportsDirName, "storyboard.pdf") {
		t.Fatalf("relative path should resolve under exports: %s", out)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a PDF")
	}
}

func TestStoryboardPDF_AbsolutePathAndEmptyPlan(t *testing.T) {
	ph, err := storage.InitProject(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	out := filepath.Join(t.TempDir(), "nested", "empty.pdf")
	got, err := StoryboardPDF(ph, nil, out, StoryboardOptions{Title: "Empty – ünïcode"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if got != out {
		t.Fatalf("absolute path must be kept: %s", got)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		t.Fatalf("pdf missing: %v", err)
	}
	if _, err := StoryboardPDF(nil, nil, out, StoryboardOptions{}); err == nil {
		t.Fatalf("expected error for nil handle")
	}
}

func TestActorLabel(t *testing.T) {
	c := actors.Default()
	if got := actorLabel("actor1", nil); got != "actor1" {
		t.Fatalf("no casting: %q", got)
	}
	if got := actorLabel("actor1", c); !strings.Contains(got, "Angela-inTshirt-20220820") {
		t.Fatalf("avatar missing: %q", got)
	}
	if got := actorLabel("ghost", c); !strings.Contains(got, "uncast") {
		t.Fatalf("uncast actor not flagged: %q", got)
	}
}
