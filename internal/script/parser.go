/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"io"

	"scenewright/internal/overlay"
)

// state is the parser's running accumulator. A nil scene means no overlay
// has been seen yet.
type state struct {
	actor  string
	scene  *sceneBuilder
	scenes []Scene
}

type sceneBuilder struct {
	overlay    *overlay.Element
	paragraphs []Paragraph
}

func (st *state) seal() {
	if st.scene == nil {
		return
	}
	st.scenes = append(st.scenes, Scene{overlay: st.scene.overlay, paragraphs: st.scene.paragraphs})
	st.scene = nil
}

func (st *state) say(b Block, text string) error {
	if st.scene == nil {
		return newParseError(MissingOverlay, b, nil)
	}
	if text != "" {
		st.scene.paragraphs = append(st.scene.paragraphs, Paragraph{Actor: st.actor, Text: text})
	}
	return nil
}

// consume applies one block to the state.
func (st *state) consume(b Block) error {
	c, err := Classify(b)
	if err != nil {
		return err
	}
	switch c := c.(type) {
	case CommentBlock:
		return nil
	case OverlayTag:
		st.seal()
		st.scene = &sceneBuilder{overlay: c.Element}
		return nil
	case ActorTag:
		if st.scene == nil {
			return newParseError(MissingOverlay, b, nil)
		}
		st.actor = c.Name
		return st.say(b, c.Text)
	case PlainText:
		return st.say(b, c.Text)
	}
	panic("script: unhandled block classification")
}

// Parse turns a script into its scenes, in script order.
//
// The first non-comment block must be an overlay. Each overlay block starts
// a new scene; paragraph blocks are appended to the current scene and spoken
// by the current actor, which starts as DefaultActor and changes at every
// actor tag, across scene boundaries too. Any error aborts the whole parse
// and is a *ParseError.
func Parse(input string) ([]Scene, error) {
	st := state{actor: DefaultActor}
	for b := range Blocks(input) {
		if err := st.consume(b); err != nil {
			return nil, err
		}
	}
	if st.scene == nil {
		return nil, &ParseError{Kind: EmptyScript}
	}
	st.seal()
	return st.scenes, nil
}

// ParseReader reads r to the end and parses it.
func ParseReader(r io.Reader) ([]Scene, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(string(b))
}
