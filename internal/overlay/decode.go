/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package overlay

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoElement is returned by Decode when the input does not start with an
// element start tag.
var ErrNoElement = errors.New("input does not start with an XML element")

// Decode reads exactly one XML element from the beginning of src and
// returns it along with the byte offset just past its closing tag (or past
// "/>" for a self-closing tag). Content after that offset is not examined.
//
// Comments, processing instructions and directives inside the element are
// dropped; CDATA sections become ordinary text runs.
func Decode(src string) (*Element, int, error) {
	d := xml.NewDecoder(strings.NewReader(src))
	d.Strict = true

	var stack []*Element
	for {
		tok, err := d.Token()
		if err == io.EOF {
			if len(stack) == 0 {
				return nil, 0, ErrNoElement
			}
			return nil, 0, fmt.Errorf("unexpected end of input inside <%s>", stack[len(stack)-1].Tag)
		}
		if err != nil {
			return nil, 0, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: qualified(t.Name)}
			if len(t.Attr) > 0 {
				el.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					name := qualified(a.Name)
					if _, dup := el.Attrs[name]; dup {
						return nil, 0, fmt.Errorf("duplicate attribute %q on <%s>", name, el.Tag)
					}
					el.Attrs[name] = a.Value
				}
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			root := stack[0]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, int(d.InputOffset()), nil
			}

		case xml.CharData:
			if len(stack) == 0 {
				return nil, 0, ErrNoElement
			}
			appendText(stack[len(stack)-1], string(t))

		default:
			// Comments, processing instructions and directives carry no
			// overlay content, but one in front of the root means the
			// fragment does not start with an element.
			if len(stack) == 0 {
				return nil, 0, ErrNoElement
			}
		}
	}
}

// appendText merges adjacent character data (e.g. text followed by CDATA)
// into a single run.
func appendText(el *Element, s string) {
	if n := len(el.Children); n > 0 {
		if prev, ok := el.Children[n-1].(Text); ok {
			el.Children[n-1] = prev + Text(s)
			return
		}
	}
	el.Children = append(el.Children, Text(s))
}

// qualified joins a prefixed name back together. Without an xmlns
// declaration in the fragment, Space is the literal prefix.
func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
