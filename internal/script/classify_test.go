/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"testing"
)

func TestSplitBlankLineBoundary(t *testing.T) {
	bs := Split("a\n\nb")
	if len(bs) != 2 || bs[0].Text != "a" || bs[1].Text != "b" {
		t.Fatalf("unexpected blocks: %+v", bs)
	}
	bs = Split("a\nb")
	if len(bs) != 1 || bs[0].Text != "a\nb" {
		t.Fatalf("single newline must not split: %+v", bs)
	}
}

func TestSplitPositionsAndEdges(t *testing.T) {
	input := "\n\n  first line\nsecond line\n\n\n \t \n\r\nthird\r\nfourth"
	bs := Split(input)
	if len(bs) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(bs), bs)
	}
	if bs[0].Ordinal != 1 || bs[0].Line != 3 || bs[0].Text != "first line\nsecond line" {
		t.Fatalf("block 1 = %+v", bs[0])
	}
	if bs[1].Ordinal != 2 || bs[1].Line != 9 || bs[1].Text != "third\nfourth" {
		t.Fatalf("block 2 = %+v", bs[1])
	}
	if got := Split("\ufeffa\n\nb"); len(got) != 2 || got[0].Text != "a" || got[0].Line != 1 {
		t.Fatalf("byte order mark must be dropped: %+v", got)
	}
	if got := Split("\n \n\n"); len(got) != 0 {
		t.Fatalf("blank-only input should give no blocks, got %+v", got)
	}
}

func TestBlocksStopsEarly(t *testing.T) {
	n := 0
	for range Blocks("a\n\nb\n\nc") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("iteration did not stop, n=%d", n)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		kind Kind
	}{
		{"<!-- a note -->", KindComment},
		{"<!-- a note -->\ntrailing text is dropped", KindComment},
		{`<actor name="actor1"/>`, KindActor},
		{`<Actor name="actor1"/> Hello`, KindActor},
		{`<chapter title="C"/>`, KindOverlay},
		{"<bulletlist>\n<item>x</item>\n</bulletlist>", KindOverlay},
		{"Just words, with a <tag/> inside.", KindPlain},
	}
	for _, tc := range cases {
		c, err := Classify(Block{Ordinal: 1, Line: 1, Text: tc.text})
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.text, err)
		}
		if c.Kind() != tc.kind {
			t.Fatalf("Classify(%q) = %v, want %v", tc.text, c.Kind(), tc.kind)
		}
	}
}

func TestClassifyActorRemainder(t *testing.T) {
	c, err := Classify(Block{Ordinal: 1, Line: 1, Text: "<actor name=\" actor1 \"/>\nLine one.\nLine two."})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	a, ok := c.(ActorTag)
	if !ok {
		t.Fatalf("expected ActorTag, got %T", c)
	}
	if a.Name != "actor1" || a.Text != "Line one.\nLine two." {
		t.Fatalf("unexpected actor tag: %+v", a)
	}
}
