/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"scenewright/internal/actors"
	"scenewright/internal/pipeline"
	"scenewright/internal/script"
	"scenewright/internal/storage"
)

// StoryboardOptions controls the storyboard PDF.
// Units are points (pt). Text uses the built-in Helvetica and Courier fonts
// so nothing needs embedding; characters outside cp1252 are replaced.
type StoryboardOptions struct {
	Title   string          // defaults to the project name
	Casting *actors.Casting // when set, each actor label shows voice and avatar
	Page    gofpdf.SizeType // defaults to A4
}

const (
	margin     = 42.0
	bodySize   = 11.0
	codeSize   = 8.5
	lineFactor = 1.35
)

var a4 = gofpdf.SizeType{Wd: 595.28, Ht: 841.89}

// StoryboardPDF writes one section per scene: position, cache state,
// fingerprint, the overlay XML and the actor-labelled paragraphs.
// A relative outPath is placed under the project's exports folder.
// It returns the path written.
func StoryboardPDF(ph *storage.ProjectHandle, plan []pipeline.SceneStatus, outPath string, opt StoryboardOptions) (string, error) {
	if ph == nil {
		return "", fmt.Errorf("project handle is nil")
	}
	size := opt.Page
	if size.Wd == 0 || size.Ht == 0 {
		size = a4
	}
	title := opt.Title
	if title == "" {
		title = ph.Name
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: size})
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title+" storyboard", true)
	pdf.SetCreator("scenewright", false)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 10)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  %d/{nb}", tr(title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 24, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	rendered := 0
	for _, st := range plan {
		if st.Rendered {
			rendered++
		}
	}
	pdf.CellFormat(0, 14, fmt.Sprintf("%d scenes, %d rendered", len(plan), rendered), "", 1, "L", false, 0, "")
	pdf.Ln(10)

	width := size.Wd - 2*margin
	for _, st := range plan {
		// keep a scene header together with at least its overlay
		if pdf.GetY() > size.Ht-margin-120 {
			pdf.AddPage()
		}
		writeSceneHeader(pdf, st, width)
		writeOverlay(pdf, tr, st, width)
		writeParagraphs(pdf, tr, st, opt.Casting)
		pdf.Ln(12)
	}
	if err := pdf.Error(); err != nil {
		return "", fmt.Errorf("build pdf: %w", err)
	}

	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(storage.ExportsDir(ph), outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return outPath, nil
}

func writeSceneHeader(pdf *gofpdf.Fpdf, st pipeline.SceneStatus, width float64) {
	pdf.SetFillColor(235, 238, 245)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(0, 0, 0)
	state := "pending"
	if st.Rendered {
		state = "rendered"
	}
	pdf.CellFormat(width*0.6, 20, fmt.Sprintf("Scene %d", st.Index+1), "", 0, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if st.Rendered {
		pdf.SetTextColor(20, 120, 40)
	} else {
		pdf.SetTextColor(170, 90, 0)
	}
	pdf.CellFormat(width*0.4, 20, state, "", 1, "R", true, 0, "")
	pdf.SetTextColor(90, 90, 90)
	pdf.SetFont("Courier", "", codeSize)
	pdf.CellFormat(width, 12, st.Fingerprint, "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func writeOverlay(pdf *gofpdf.Fpdf, tr func(string) string, st pipeline.SceneStatus, width float64) {
	ov := st.Scene.Overlay()
	if ov == nil {
		return
	}
	pdf.SetFont("Courier", "", codeSize)
	pdf.SetTextColor(40, 40, 90)
	pdf.SetFillColor(248, 248, 252)
	pdf.SetDrawColor(200, 200, 215)
	pdf.SetLineWidth(0.5)
	pdf.MultiCell(width, codeSize*lineFactor, tr(ov.String()), "1", "L", true)
	pdf.Ln(6)
}

func writeParagraphs(pdf *gofpdf.Fpdf, tr func(string) string, st pipeline.SceneStatus, casting *actors.Casting) {
	paras := st.Scene.Paragraphs()
	if len(paras) == 0 {
		pdf.SetFont("Helvetica", "I", bodySize)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, bodySize*lineFactor, "(no narration)", "", 1, "L", false, 0, "")
		return
	}
	for _, p := range paras {
		pdf.SetFont("Helvetica", "B", bodySize)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, bodySize*lineFactor, tr(actorLabel(p.Actor, casting)), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", bodySize)
		pdf.SetTextColor(30, 30, 30)
		pdf.SetX(margin + 12)
		pdf.MultiCell(0, bodySize*lineFactor, tr(p.Text), "", "L", false)
		pdf.Ln(4)
	}
}

func actorLabel(name string, casting *actors.Casting) string {
	if casting == nil {
		return name
	}
	a, ok := casting.Lookup(name)
	var parts []string
	if a.AvatarID != "" {
		parts = append(parts, "avatar "+a.AvatarID)
	}
	if a.AudioProvider != "" {
		parts = append(parts, "voice via "+a.AudioProvider)
	}
	if !ok {
		parts = append(parts, "uncast, voiced as "+script.DefaultActor)
	}
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(parts, ", "))
}
