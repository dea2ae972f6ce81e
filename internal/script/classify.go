/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"strings"

	"scenewright/internal/overlay"
)

// Kind is the classification of a block.
type Kind int

const (
	KindComment Kind = iota + 1
	KindActor
	KindOverlay
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindActor:
		return "actor"
	case KindOverlay:
		return "overlay"
	case KindPlain:
		return "plain"
	}
	return "unknown"
}

// Classified is the result of classifying one block. It is one of
// CommentBlock, ActorTag, OverlayTag or PlainText.
type Classified interface {
	Kind() Kind
	classified()
}

// CommentBlock is a block that starts with an XML comment. The whole block
// is discarded.
type CommentBlock struct{}

// ActorTag is a block led by <actor name="..."/>. Text is what follows the
// tag in the same block, trimmed; it may be empty.
type ActorTag struct {
	Name string
	Text string
}

// OverlayTag is a block holding exactly one non-actor element.
type OverlayTag struct {
	Element *overlay.Element
}

// PlainText is a block that does not start with '<'.
type PlainText struct {
	Text string
}

func (CommentBlock) Kind() Kind { return KindComment }
func (ActorTag) Kind() Kind     { return KindActor }
func (OverlayTag) Kind() Kind   { return KindOverlay }
func (PlainText) Kind() Kind    { return KindPlain }

func (CommentBlock) classified() {}
func (ActorTag) classified()     {}
func (OverlayTag) classified()   {}
func (PlainText) classified()    {}

const actorTag = "actor"

// Classify determines the kind of b from its leading content.
// Errors are *ParseError values.
func Classify(b Block) (Classified, error) {
	text := strings.TrimSpace(b.Text)
	if !strings.HasPrefix(text, "<") {
		return PlainText{Text: text}, nil
	}
	if strings.HasPrefix(text, "<!--") {
		if !strings.Contains(text[len("<!--"):], "-->") {
			return nil, newParseError(MalformedXML, b, errors.New("unterminated comment"))
		}
		return CommentBlock{}, nil
	}

	el, end, err := overlay.Decode(text)
	if err != nil {
		return nil, newParseError(MalformedXML, b, err)
	}
	rest := strings.TrimSpace(text[end:])

	if strings.EqualFold(el.Tag, actorTag) {
		if strings.TrimSpace(el.Text()) != "" || len(el.Elements()) > 0 {
			return nil, newParseError(MalformedXML, b, ErrActorNotSelfClosing)
		}
		name, _ := el.Attr("name")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, newParseError(MissingActorName, b, nil)
		}
		return ActorTag{Name: name, Text: rest}, nil
	}

	if rest != "" {
		return nil, newParseError(AmbiguousOverlayBlock, b, nil)
	}
	return OverlayTag{Element: el}, nil
}
