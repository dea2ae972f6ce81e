/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"scenewright/internal/script"
)

const (
	// DirName is the cache directory under the project root.
	DirName = "cache"
	// ArtifactName is the rendered scene file; its presence means "rendered".
	ArtifactName = "scene.mp4"
	// SceneAudioName is the concatenated audio of all paragraphs.
	SceneAudioName = "scene_audio_complete.mp3"

	sceneDirPrefix = "scene_"
)

// ErrUnavailable wraps filesystem errors met while checking the cache.
// It is never reported as a plain miss.
var ErrUnavailable = errors.New("scene cache unavailable")

// Dir returns <projectRoot>/cache/scene_<fingerprint>. The directory may
// not exist.
func Dir(projectRoot string, s script.Scene) string {
	return filepath.Join(projectRoot, DirName, sceneDirPrefix+Fingerprint(s))
}

// IsRendered reports whether the scene's cache directory holds a regular
// file named scene.mp4. It creates nothing.
func IsRendered(projectRoot string, s script.Scene) (bool, error) {
	return New(projectRoot).IsRendered(s)
}

// Cache is the scene cache of one project.
type Cache struct {
	root string
}

// New returns the cache rooted at projectRoot.
func New(projectRoot string) *Cache {
	return &Cache{root: projectRoot}
}

// Root returns the project root.
func (c *Cache) Root() string { return c.root }

// Base returns <root>/cache.
func (c *Cache) Base() string { return filepath.Join(c.root, DirName) }

// Dir returns the scene's cache directory.
func (c *Cache) Dir(s script.Scene) string { return Dir(c.root, s) }

// ArtifactPath returns the path of the scene's rendered video.
func (c *Cache) ArtifactPath(s script.Scene) string {
	return filepath.Join(c.Dir(s), ArtifactName)
}

// IsRendered reports whether the rendered video exists.
func (c *Cache) IsRendered(s script.Scene) (bool, error) {
	dir := c.Dir(s)
	ok, err := isDir(dir)
	if err != nil || !ok {
		return false, err
	}
	return isFile(filepath.Join(dir, ArtifactName))
}

// SceneAudioPath returns the path of the concatenated scene audio.
func (c *Cache) SceneAudioPath(s script.Scene) string {
	return filepath.Join(c.Dir(s), SceneAudioName)
}

// ParagraphAudioPath returns <dir>/<actor>_<paragraph fingerprint>.mp3.
func (c *Cache) ParagraphAudioPath(s script.Scene, p script.Paragraph) string {
	return filepath.Join(c.Dir(s), paragraphFile(p, ".mp3"))
}

// ParagraphVideoPath returns <dir>/<actor>_<paragraph fingerprint>.mp4.
func (c *Cache) ParagraphVideoPath(s script.Scene, p script.Paragraph) string {
	return filepath.Join(c.Dir(s), paragraphFile(p, ".mp4"))
}

// IsParagraphAudioCached reports whether the paragraph's audio exists.
func (c *Cache) IsParagraphAudioCached(s script.Scene, p script.Paragraph) (bool, error) {
	return isFile(c.ParagraphAudioPath(s, p))
}

// IsParagraphVideoCached reports whether the paragraph's talking-head video exists.
func (c *Cache) IsParagraphVideoCached(s script.Scene, p script.Paragraph) (bool, error) {
	return isFile(c.ParagraphVideoPath(s, p))
}

// IsSceneAudioComplete reports whether the concatenated scene audio exists
// and every paragraph audio it was built from is still present.
func (c *Cache) IsSceneAudioComplete(s script.Scene) (bool, error) {
	ok, err := isFile(c.SceneAudioPath(s))
	if err != nil || !ok {
		return false, err
	}
	for _, p := range s.Paragraphs() {
		ok, err := c.IsParagraphAudioCached(s, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func paragraphFile(p script.Paragraph, ext string) string {
	return safeName(p.Actor) + "_" + ParagraphFingerprint(p) + ext
}

// safeName maps an actor name to a single path element.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}

func isDir(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fi.IsDir(), nil
}

func isFile(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fi.Mode().IsRegular(), nil
}
