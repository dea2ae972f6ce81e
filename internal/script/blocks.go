/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"iter"
	"slices"
	"strings"
)

// Block is a maximal run of non-blank lines.
// Ordinal and Line are 1-based: the block's position in the script and the
// line its text starts on.
type Block struct {
	Ordinal int
	Line    int
	Text    string
}

// Blocks yields the blocks of input in document order.
//
// A line holding only spaces or tabs counts as blank, and any run of blank
// lines separates two blocks. A single newline inside a block is kept. CRLF
// line endings are treated as LF and a leading byte order mark is dropped.
// The yielded Text is trimmed and never empty.
func Blocks(input string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		input := strings.ReplaceAll(strings.TrimPrefix(input, "\ufeff"), "\r\n", "\n")
		var (
			cur     []string
			start   int
			ordinal int
			lineNo  int
		)
		flush := func() bool {
			if len(cur) == 0 {
				return true
			}
			ordinal++
			b := Block{Ordinal: ordinal, Line: start, Text: strings.TrimSpace(strings.Join(cur, "\n"))}
			cur = cur[:0]
			return yield(b)
		}
		for line := range strings.Lines(input) {
			lineNo++
			line = strings.TrimSuffix(line, "\n")
			if strings.TrimSpace(line) == "" {
				if !flush() {
					return
				}
				continue
			}
			if len(cur) == 0 {
				start = lineNo
			}
			cur = append(cur, line)
		}
		flush()
	}
}

// Split returns all blocks of input.
func Split(input string) []Block {
	return slices.Collect(Blocks(input))
}
