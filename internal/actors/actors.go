/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package actors loads the casting file that maps script actor names to
// voice and avatar settings for the renderer.
package actors

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"scenewright/internal/script"
)

//go:embed schema.json
var schemaJSON []byte

var schema = gojsonschema.NewBytesLoader(schemaJSON)

// Providers.
const (
	ElevenLabs = "elevenlabs"
	HeyGen     = "heygen"
)

// Actor describes how one speaker is voiced and shown.
type Actor struct {
	AudioProvider   string  `yaml:"audio_provider,omitempty" json:"audio_provider,omitempty"`
	VideoProvider   string  `yaml:"video_provider" json:"video_provider"`
	ElevenLabsVoice string  `yaml:"elevenlabs_voice_id,omitempty" json:"elevenlabs_voice_id,omitempty"`
	VoiceID         string  `yaml:"voice_id,omitempty" json:"voice_id,omitempty"`
	AvatarID        string  `yaml:"avatar_id,omitempty" json:"avatar_id,omitempty"`
	AvatarStyle     string  `yaml:"avatar_style,omitempty" json:"avatar_style,omitempty"`
	Speed           float64 `yaml:"speed,omitempty" json:"speed,omitempty"`
}

// Casting is the parsed casting file. Keys are lower-cased actor names.
type Casting struct {
	Actors map[string]Actor `yaml:"actors" json:"actors"`
}

// ValidationError lists every schema violation in a casting file.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid casting file: %s", e.Path, strings.Join(e.Issues, "; "))
}

// Default returns the built-in casting used when a project has no actors.yaml.
func Default() *Casting {
	return &Casting{Actors: map[string]Actor{
		script.DefaultActor: {
			AudioProvider:   ElevenLabs,
			VideoProvider:   HeyGen,
			ElevenLabsVoice: "CXnCOoNzZSoavaaR3tkO",
			VoiceID:         "heygen_voice_narrator",
			AvatarID:        "default_avatar",
			AvatarStyle:     "normal",
			Speed:           1.0,
		},
		"actor1": {
			AudioProvider: HeyGen,
			VideoProvider: HeyGen,
			VoiceID:       "1bd001e7e50f421d891986aad5158bc8",
			AvatarID:      "Angela-inTshirt-20220820",
			AvatarStyle:   "normal",
			Speed:         1.1,
		},
	}}
}

// Load reads and validates the casting file at path. A missing file yields Default().
func Load(path string) (*Casting, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read casting: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the casting schema and decodes it. name is
// used in error messages only.
func Parse(name string, data []byte) (*Casting, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	res, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%s: validate: %w", name, err)
	}
	if !res.Valid() {
		ve := &ValidationError{Path: name}
		for _, d := range res.Errors() {
			ve.Issues = append(ve.Issues, d.String())
		}
		return nil, ve
	}
	var raw Casting
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	c := &Casting{Actors: make(map[string]Actor, len(raw.Actors))}
	for n, a := range raw.Actors {
		key := strings.ToLower(n)
		if _, dup := c.Actors[key]; dup {
			return nil, &ValidationError{Path: name, Issues: []string{fmt.Sprintf("actor %q defined more than once (names are case-insensitive)", n)}}
		}
		c.Actors[key] = withDefaults(a)
	}
	return c, nil
}

func withDefaults(a Actor) Actor {
	if a.AvatarStyle == "" {
		a.AvatarStyle = "normal"
	}
	if a.Speed == 0 {
		a.Speed = 1.0
	}
	if a.AudioProvider == "" {
		a.AudioProvider = a.VideoProvider
	}
	return a
}

// Lookup returns the settings for name, matched case-insensitively. Unknown
// names fall back to the default actor; ok reports an exact match.
func (c *Casting) Lookup(name string) (a Actor, ok bool) {
	if a, ok := c.Actors[strings.ToLower(name)]; ok {
		return a, true
	}
	return c.Actors[script.DefaultActor], false
}

// Names returns the cast actor names in sorted order.
func (c *Casting) Names() []string {
	names := make([]string, 0, len(c.Actors))
	for n := range c.Actors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Missing lists actors used in scenes that have no casting entry, in order
// of first appearance.
func (c *Casting) Missing(scenes []script.Scene) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range scenes {
		for _, name := range s.Actors() {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := c.Actors[key]; !ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// Marshal renders c as YAML.
func (c *Casting) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
