/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script parses the scene DSL: a plain-text script in which XML
// overlay fragments open scenes and the blank-line separated paragraphs
// that follow are spoken by the current actor.
package script

import (
	"encoding/json"
	"slices"

	"scenewright/internal/overlay"
)

// DefaultActor speaks every paragraph until an actor tag names someone else.
const DefaultActor = "narrator"

// Paragraph is one spoken/captioned unit of text.
// Actor is never empty and Text is trimmed and never empty; internal
// single newlines are kept.
type Paragraph struct {
	Actor string `json:"actor"`
	Text  string `json:"text"`
}

// Scene is one overlay plus the paragraphs that follow it.
// Its fields are unexported so a sealed scene cannot change underneath a
// cache fingerprint computed from it.
type Scene struct {
	overlay    *overlay.Element
	paragraphs []Paragraph
}

// NewScene builds a sealed scene. ov must be non-nil.
func NewScene(ov *overlay.Element, paragraphs ...Paragraph) Scene {
	return Scene{overlay: ov, paragraphs: slices.Clone(paragraphs)}
}

// Overlay returns the scene's visual annotation.
func (s Scene) Overlay() *overlay.Element { return s.overlay }

// Paragraphs returns a copy of the scene's paragraphs in script order.
func (s Scene) Paragraphs() []Paragraph { return slices.Clone(s.paragraphs) }

// Len returns the number of paragraphs.
func (s Scene) Len() int { return len(s.paragraphs) }

// Actors returns the distinct actors of the scene in order of first appearance.
func (s Scene) Actors() []string {
	var out []string
	for _, p := range s.paragraphs {
		if !slices.Contains(out, p.Actor) {
			out = append(out, p.Actor)
		}
	}
	return out
}

type sceneJSON struct {
	Overlay    *overlay.Element `json:"overlay"`
	Paragraphs []Paragraph      `json:"paragraphs"`
}

func (s Scene) MarshalJSON() ([]byte, error) {
	ps := s.paragraphs
	if ps == nil {
		ps = []Paragraph{}
	}
	return json.Marshal(sceneJSON{Overlay: s.overlay, Paragraphs: ps})
}
