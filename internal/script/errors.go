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
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies a fatal parse error.
type ErrorKind int

const (
	EmptyScript ErrorKind = iota + 1
	MissingOverlay
	MalformedXML
	MissingActorName
	AmbiguousOverlayBlock
)

// Sentinels matching each ErrorKind, for use with errors.Is.
var (
	ErrEmptyScript           = errors.New("script has no content")
	ErrMissingOverlay        = errors.New("paragraph before the first overlay")
	ErrMalformedXML          = errors.New("malformed XML")
	ErrMissingActorName      = errors.New("actor tag without a name")
	ErrAmbiguousOverlayBlock = errors.New("text after overlay element in the same block")
)

// ErrActorNotSelfClosing is the cause of a MalformedXML error for an actor
// tag with content. The paragraph belongs after <actor name="..."/>.
var ErrActorNotSelfClosing = errors.New(`actor tag must be self-closing, e.g. <actor name="actor1"/>, with the paragraph after it`)

func (k ErrorKind) sentinel() error {
	switch k {
	case EmptyScript:
		return ErrEmptyScript
	case MissingOverlay:
		return ErrMissingOverlay
	case MalformedXML:
		return ErrMalformedXML
	case MissingActorName:
		return ErrMissingActorName
	case AmbiguousOverlayBlock:
		return ErrAmbiguousOverlayBlock
	}
	return nil
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// excerptLen caps the block text quoted in an error message.
const excerptLen = 60

// ParseError reports the block that stopped a parse.
// Block and Line are 1-based; both are 0 for EmptyScript.
type ParseError struct {
	Kind    ErrorKind
	Block   int
	Line    int
	Excerpt string
	// Err is the underlying cause, e.g. the XML decoder's syntax error.
	Err error
}

func newParseError(kind ErrorKind, b Block, cause error) *ParseError {
	return &ParseError{Kind: kind, Block: b.Ordinal, Line: b.Line, Excerpt: excerpt(b.Text), Err: cause}
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	// Actor tags with content are well-formed XML; lead with the rule
	// instead of a syntax complaint.
	headline := errors.Is(e.Err, ErrActorNotSelfClosing)
	if headline {
		sb.WriteString(ErrActorNotSelfClosing.Error())
	} else {
		sb.WriteString(e.Kind.String())
	}
	if e.Block > 0 {
		fmt.Fprintf(&sb, " in block %d (line %d): %q", e.Block, e.Line, e.Excerpt)
	}
	if e.Err != nil && !headline {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ParseError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLen {
		return s
	}
	n := 0
	for i := range s {
		if n == excerptLen {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
