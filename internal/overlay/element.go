/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package overlay holds the tree model for the XML fragment that visually
// annotates a scene (a chapter card, a bullet list, ...), together with the
// decoder that reads one such fragment from the start of a script block.
package overlay

import (
	"encoding/binary"
	"encoding/xml"
	"slices"
	"strings"
)

// Node is a child of an Element: either a nested *Element or a Text run.
type Node interface {
	node()
}

// Text is a raw character-data run inside an element, kept verbatim.
type Text string

func (Text) node() {}

// Element is one parsed XML element. Elements are only produced by Decode,
// so every Element in a scene came from well-formed XML.
type Element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

func (*Element) node() {}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Elements returns the direct element children, skipping text runs.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// Text returns the concatenated character data of e and all its descendants.
func (e *Element) Text() string {
	var b strings.Builder
	e.walkText(&b)
	return b.String()
}

func (e *Element) walkText(b *strings.Builder) {
	for _, c := range e.Children {
		switch n := c.(type) {
		case Text:
			b.WriteString(string(n))
		case *Element:
			n.walkText(b)
		}
	}
}

// sortedAttrNames returns attribute names in byte order.
func (e *Element) sortedAttrNames() []string {
	names := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// String renders e back to XML. Attributes are written in sorted order and
// text is escaped, so the output is stable for equal trees.
func (e *Element) String() string {
	var b strings.Builder
	e.writeXML(&b)
	return b.String()
}

func (e *Element) writeXML(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.Tag)
	for _, k := range e.sortedAttrNames() {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		_ = xml.EscapeText(b, []byte(e.Attrs[k]))
		b.WriteByte('"')
	}
	if len(e.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	for _, c := range e.Children {
		switch n := c.(type) {
		case Text:
			_ = xml.EscapeText(b, []byte(n))
		case *Element:
			n.writeXML(b)
		}
	}
	b.WriteString("</")
	b.WriteString(e.Tag)
	b.WriteByte('>')
}

// Record markers of the canonical encoding.
const (
	recElement = 'E'
	recAttr    = 'A'
	recText    = 'T'
	recEnd     = '/'
)

// AppendCanonical appends the canonical byte encoding of e to dst.
//
// Every string is length-prefixed and every record is tagged, so two trees
// encode to the same bytes only if they have the same tags, the same
// attribute sets and the same children in the same order.
func (e *Element) AppendCanonical(dst []byte) []byte {
	dst = append(dst, recElement)
	dst = appendString(dst, e.Tag)
	dst = binary.AppendUvarint(dst, uint64(len(e.Attrs)))
	for _, k := range e.sortedAttrNames() {
		dst = append(dst, recAttr)
		dst = appendString(dst, k)
		dst = appendString(dst, e.Attrs[k])
	}
	for _, c := range e.Children {
		switch n := c.(type) {
		case Text:
			dst = append(dst, recText)
			dst = appendString(dst, string(n))
		case *Element:
			dst = n.AppendCanonical(dst)
		}
	}
	return append(dst, recEnd)
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}
