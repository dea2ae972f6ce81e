/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"scenewright/internal/config"
	"scenewright/internal/storage"
)

func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("AppData", dir)
	t.Setenv("SW_PG_DSN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SW_LOG_FILE", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitParseStatus(t *testing.T) {
	isolateConfig(t)
	dir := filepath.Join(t.TempDir(), "proj")
	if out, err := execute(t, "init", dir); err != nil || !strings.Contains(out, "Created project") {
		t.Fatalf("init: %v %q", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, storage.ActorsFileName)); err != nil {
		t.Fatalf("actors.yaml missing: %v", err)
	}

	out, err := execute(t, "--root", dir, "parse")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(out, "Scene 1: <chapter") || !strings.Contains(out, "[actor1]") {
		t.Fatalf("unexpected parse output: %q", out)
	}

	out, err = execute(t, "--root", dir, "parse", "--json")
	if err != nil {
		t.Fatalf("parse --json: %v", err)
	}
	var scenes []map[string]any
	if err := json.Unmarshal([]byte(out), &scenes); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes in sample, got %d", len(scenes))
	}

	out, err = execute(t, "--root", dir, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "0 of 2 scenes rendered") {
		t.Fatalf("unexpected status: %q", out)
	}

	out, err = execute(t, "--root", dir, "snapshots")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if n := strings.Count(out, "bytes"); n != 1 {
		t.Fatalf("unchanged script should be snapshotted once, got %d:\n%s", n, out)
	}
}

func TestParseErrorExitCode(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, storage.ScriptFileName), []byte("text before any overlay"), 0o644); err != nil {
		t.Fatal(err)
	}
	oldStderr := os.Stderr
	devnull, _ := os.Open(os.DevNull)
	os.Stderr = devnull
	defer func() { os.Stderr = oldStderr; _ = devnull.Close() }()
	if code := run([]string{"--root", dir, "parse"}); code != exitParseError {
		t.Fatalf("expected exit %d, got %d", exitParseError, code)
	}
	if code := run([]string{"--root", filepath.Join(dir, "missing"), "parse"}); code != exitFailure {
		t.Fatalf("expected exit %d for missing project, got %d", exitFailure, code)
	}
}

func TestRenderRequiresCommand(t *testing.T) {
	isolateConfig(t)
	dir := filepath.Join(t.TempDir(), "proj")
	if _, err := execute(t, "init", dir); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "--root", dir, "render")
	if err == nil || !strings.Contains(err.Error(), "render.command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
}

func initProject(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "proj")
	if _, err := execute(t, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	return dir
}

var dateTime = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

func TestRenderThenStatusAndRenders(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	isolateConfig(t)
	t.Setenv("ELEVENLABS_API_KEY", "test-key")
	t.Setenv("HEYGEN_API_KEY", "test-key")
	cfg := config.Defaults()
	cfg.Render.Command = []string{"sh", "-c", `printf mp4 > "$SW_SCENE_ARTIFACT"`}
	if err := config.Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	dir := initProject(t)

	out, err := execute(t, "--root", dir, "render")
	if err != nil {
		t.Fatalf("render: %v\n%s", err, out)
	}
	if !strings.Contains(out, "All 2 scenes rendered") || !strings.Contains(out, filepath.Join(dir, storage.FinalMovieName)) {
		t.Fatalf("render should report the final movie path: %q", out)
	}

	out, err = execute(t, "--root", dir, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "2 of 2 scenes rendered") {
		t.Fatalf("unexpected status: %q", out)
	}
	if n := len(dateTime.FindAllString(out, -1)); n != 2 {
		t.Fatalf("status should show a render time per scene, got %d:\n%s", n, out)
	}

	out, err = execute(t, "--root", dir, "renders", "list")
	if err != nil {
		t.Fatalf("renders list: %v", err)
	}
	if n := len(dateTime.FindAllString(out, -1)); n != 2 {
		t.Fatalf("expected 2 render records, got %d:\n%s", n, out)
	}

	if err := os.WriteFile(filepath.Join(dir, storage.ScriptFileName), []byte("<chapter title=\"New\"/>\n\nFresh text."), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = execute(t, "--root", dir, "renders", "prune")
	if err != nil {
		t.Fatalf("renders prune: %v", err)
	}
	if !strings.Contains(out, "Removed 2 render records") {
		t.Fatalf("unexpected prune output: %q", out)
	}
}

func TestCorruptIndexIsRebuilt(t *testing.T) {
	isolateConfig(t)
	dir := initProject(t)
	if err := os.MkdirAll(filepath.Dir(storage.IndexPath(dir)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(storage.IndexPath(dir), []byte("definitely not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--root", dir, "snapshots")
	if err != nil {
		t.Fatalf("snapshots on corrupt index: %v", err)
	}
	if strings.Count(out, "bytes") != 0 {
		t.Fatalf("rebuilt index should start empty: %q", out)
	}
	backups, err := filepath.Glob(filepath.Join(filepath.Dir(storage.IndexPath(dir)), "backups", "*.bak"))
	if err != nil || len(backups) != 1 {
		t.Fatalf("corrupt index should be kept as a backup: %v %v", backups, err)
	}
}

func TestSnapshotRestoreKeepsBackup(t *testing.T) {
	isolateConfig(t)
	dir := initProject(t)
	if _, err := execute(t, "--root", dir, "parse"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	edited := "<chapter title=\"Edited\"/>\n\nSomething else."
	if err := os.WriteFile(filepath.Join(dir, storage.ScriptFileName), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--root", dir, "parse"); err != nil {
		t.Fatalf("parse: %v", err)
	}

	out, err := execute(t, "--root", dir, "snapshots", "--restore", "2")
	if err != nil || !strings.Contains(out, "Restored script") {
		t.Fatalf("restore: %v %q", err, out)
	}
	got, err := os.ReadFile(filepath.Join(dir, storage.ScriptFileName))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != storage.SampleScript {
		t.Fatalf("script not restored: %q", got)
	}

	out, err = execute(t, "--root", dir, "snapshots", "--backups")
	if err != nil {
		t.Fatalf("snapshots --backups: %v", err)
	}
	if n := strings.Count(out, ".bak"); n != 1 {
		t.Fatalf("expected one script backup, got %d: %q", n, out)
	}

	if _, err := execute(t, "--root", dir, "snapshots", "--restore", "9"); err == nil {
		t.Fatalf("restoring a missing snapshot must fail")
	}
}

func TestExportAndVersion(t *testing.T) {
	isolateConfig(t)
	dir := filepath.Join(t.TempDir(), "proj")
	if _, err := execute(t, "init", dir); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--root", dir, "export", "--out", "board.pdf")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, storage.ExportsDirName, "board.pdf")); err != nil {
		t.Fatalf("pdf missing: %v (%s)", err, out)
	}
	out, err = execute(t, "version")
	if err != nil || !strings.HasPrefix(out, "scenewright ") {
		t.Fatalf("version: %v %q", err, out)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\nb\tc"); got != "a b c" {
		t.Fatalf("oneLine = %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := oneLine(long); len([]rune(got)) != 73 {
		t.Fatalf("expected truncation, got %d runes", len([]rune(got)))
	}
}
