/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package actors

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"scenewright/internal/script"
)

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "actors.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !slices.Equal(c.Names(), []string{"actor1", "narrator"}) {
		t.Fatalf("unexpected default names: %v", c.Names())
	}
	a, ok := c.Lookup("actor1")
	if !ok || a.Speed != 1.1 || a.AudioProvider != HeyGen {
		t.Fatalf("unexpected actor1: %+v ok=%v", a, ok)
	}
}

func TestDefaultRoundTripsThroughSchema(t *testing.T) {
	b, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	c, err := Parse("default", b)
	if err != nil {
		t.Fatalf("default casting must validate: %v", err)
	}
	if len(c.Actors) != 2 {
		t.Fatalf("expected 2 actors, got %d", len(c.Actors))
	}
}

func TestParseAppliesDefaultsAndFoldsCase(t *testing.T) {
	src := `
actors:
  Host:
    video_provider: heygen
    avatar_id: host_avatar
`
	c, err := Parse("test", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, ok := c.Lookup("HOST")
	if !ok {
		t.Fatalf("lookup should be case-insensitive")
	}
	if a.AvatarStyle != "normal" || a.Speed != 1.0 || a.AudioProvider != HeyGen {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if _, ok := c.Lookup("guest"); ok {
		t.Fatalf("unknown actor must not report ok")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad provider":   "actors:\n  a:\n    video_provider: vimeo\n",
		"speed too high": "actors:\n  a:\n    video_provider: heygen\n    speed: 3\n",
		"unknown field":  "actors:\n  a:\n    video_provider: heygen\n    mood: grumpy\n",
		"no actors key":  "cast: {}\n",
		"empty file":     "",
		"duplicate case": "actors:\n  Bob:\n    video_provider: heygen\n  bob:\n    video_provider: heygen\n",
	}
	for name, src := range cases {
		_, err := Parse(name, []byte(src))
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected *ValidationError, got %v", name, err)
		}
		if !strings.Contains(ve.Error(), name) {
			t.Fatalf("%s: error should name the file: %v", name, ve)
		}
	}
	if _, err := Parse("yaml", []byte("actors: [")); err == nil {
		t.Fatalf("expected yaml syntax error")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actors.yaml")
	if err := os.WriteFile(path, []byte("actors:\n  narrator:\n    video_provider: heygen\n    speed: 0.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a, _ := c.Lookup("someone"); a.Speed != 0.9 {
		t.Fatalf("fallback to narrator expected, got %+v", a)
	}
}

func TestMissing(t *testing.T) {
	scenes, err := script.Parse("<title/>\n\nhello\n\n<actor name=\"Actor1\"/>\nhi\n\n<actor name=\"ghost\"/>\nboo\n\n<title/>\n\nagain")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := Default().Missing(scenes)
	if !slices.Equal(got, []string{"ghost"}) {
		t.Fatalf("Missing = %v", got)
	}
}
