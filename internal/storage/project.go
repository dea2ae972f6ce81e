/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scenewright/internal/cache"
)

const (
	ScriptFileName = "script.txt"
	ActorsFileName = "actors.yaml"
	ExportsDirName = "exports"
	BackupsDirName = "backups"
	FinalMovieName = "final_movie.mp4"
)

// Standard subfolders created by InitProject.
var standardSubDirs = []string{
	cache.DirName,
	ExportsDirName,
	BackupsDirName,
}

// ProjectHandle identifies a project on disk.
// Root is the project directory; Name is its base name and keys the project
// in shared ledgers.
type ProjectHandle struct {
	Name       string
	Root       string
	ScriptPath string
}

func newHandle(root string) *ProjectHandle {
	return &ProjectHandle{
		Name:       filepath.Base(root),
		Root:       root,
		ScriptPath: filepath.Join(root, ScriptFileName),
	}
}

// Resolve returns the project directory <baseDir>/<name>.
func Resolve(baseDir, name string) string {
	return filepath.Join(baseDir, name)
}

// SampleScript is written by InitProject into a new project.
const SampleScript = `<!-- Each overlay starts a scene. Separate blocks with a blank line. -->

<chapter title="Chapter 1" start="0" duration="3"/>

This is another paragraph without an explicit actor tag,
so it will use the default actor (narrator).

<actor name="actor1"/>
This is the first paragraph spoken by actor1.

This is another paragraph without an explicit actor tag,
Because actor1 is the current actor specified at the previous paragraph, actor1 will also be the actor of this paragraph.

<bulletlist start="5" bullet_delay="2">
  <item>First point</item>
  <item>Second point</item>
</bulletlist>

actor1 is still speaking in the second scene.
`

// InitProject creates a project at root, scaffolding the standard
// subfolders. Existing script and casting files are left untouched;
// missing ones are written from the samples.
func InitProject(root string, actorsYAML []byte) (*ProjectHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create project root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	ph := newHandle(root)
	if _, err := os.Stat(ph.ScriptPath); errors.Is(err, os.ErrNotExist) {
		if err := SaveScript(ph, SampleScript); err != nil {
			return nil, err
		}
	}
	actorsPath := filepath.Join(root, ActorsFileName)
	if _, err := os.Stat(actorsPath); errors.Is(err, os.ErrNotExist) && len(actorsYAML) > 0 {
		if err := writeFileAtomic(actorsPath, actorsYAML); err != nil {
			return nil, fmt.Errorf("write %s: %w", ActorsFileName, err)
		}
	}
	return ph, nil
}

// Open returns the project at root. The script file must exist.
func Open(root string) (*ProjectHandle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	ph := newHandle(abs)
	fi, err := os.Stat(ph.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("open project: %s is a directory", ph.ScriptPath)
	}
	return ph, nil
}

// ReadScript returns the full script text.
func ReadScript(ph *ProjectHandle) (string, error) {
	if ph == nil {
		return "", errors.New("nil ProjectHandle")
	}
	b, err := os.ReadFile(ph.ScriptPath)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}

// SaveScript replaces script.txt with text, keeping a timestamped backup of
// the previous version under backups/.
func SaveScript(ph *ProjectHandle, text string) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(ph.ScriptPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ScriptFileName, stamp))
		if cerr := copyFile(ph.ScriptPath, bpath); cerr != nil {
			return fmt.Errorf("backup current script: %w", cerr)
		}
	}
	if err := writeFileAtomic(ph.ScriptPath, []byte(text)); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}

// ScriptBackups lists backup files of script.txt, oldest first.
func ScriptBackups(ph *ProjectHandle) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(ph.Root, BackupsDirName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ScriptFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(ph.Root, BackupsDirName, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// PrepareSceneDir creates a scene's cache directory so a renderer can write
// into it. The cache package itself never creates directories.
func PrepareSceneDir(ph *ProjectHandle, dir string) error {
	rel, err := filepath.Rel(filepath.Join(ph.Root, cache.DirName), dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("scene dir %s is outside the project cache", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scene dir: %w", err)
	}
	return nil
}

// FinalMoviePath returns where the concatenated movie is written.
func FinalMoviePath(ph *ProjectHandle) string {
	return filepath.Join(ph.Root, FinalMovieName)
}

// ExportsDir returns <root>/exports.
func ExportsDir(ph *ProjectHandle) string {
	return filepath.Join(ph.Root, ExportsDirName)
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		return err
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return err
	}
	return nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
