/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cache locates the rendered artifact of a scene by a fingerprint
// of the scene's content. It only computes paths and checks for files;
// creating directories and writing artifacts belongs to the renderers.
//
// Layout:
//
//	<project>/cache/scene_<fingerprint>/scene.mp4
//	<project>/cache/scene_<fingerprint>/scene_audio_complete.mp3
//	<project>/cache/scene_<fingerprint>/<actor>_<paragraph fingerprint>.mp3|.mp4
package cache

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"

	"scenewright/internal/script"
)

// Fingerprint returns the lowercase hex MD5 digest of the scene's overlay
// (canonical form: sorted attributes, children in order) followed by each
// paragraph's actor and text in order. Equal scenes give equal fingerprints
// on every platform and run.
func Fingerprint(s script.Scene) string {
	var buf []byte
	if ov := s.Overlay(); ov != nil {
		buf = ov.AppendCanonical(buf)
	}
	for _, p := range s.Paragraphs() {
		buf = append(buf, 'P')
		buf = appendString(buf, p.Actor)
		buf = appendString(buf, p.Text)
	}
	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:])
}

// ParagraphFingerprint digests a single paragraph's actor and text. It
// names the per-paragraph audio and video files inside a scene directory.
func ParagraphFingerprint(p script.Paragraph) string {
	buf := appendString(nil, p.Actor)
	buf = appendString(buf, p.Text)
	sum := md5.Sum(buf)
	return hex.EncodeToString(sum[:])
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}
