// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mdclean sanitizes OCR-emitted Markdown (spec §4.3): a fixed,
// observable pipeline of rules that strips placeholder images, HTML,
// control characters, page numbers, and user-supplied watermark patterns,
// leaving the protected split marker untouched throughout.
package mdclean

import (
	"regexp"
	"strings"
)

// SplitMarker is the literal token protected through every rule and later
// consumed by the splitter and RAG client as the segment separator.
const SplitMarker = "<!--split-->"

const splitMarkerPlaceholder = "SPLITMARKER"

// Config enumerates which cleaning rules run, mirroring the md_clean
// configuration category.
type Config struct {
	CollapseBlankLines     bool
	StripHTML              bool
	RemoveControlChars     bool
	RemoveImagePlaceholders bool
	RemovePageNumbers      bool
	RemoveWatermark        bool
	WatermarkPatterns      string // comma-separated regexes
}

// Stats records which rules fired and how many times.
type Stats struct {
	ImagesRemoved       int
	HTMLTagsRemoved     int
	ControlCharsRemoved int
	PageNumberLines     int
	WatermarkMatches    int
	FallbackToOriginal  bool
}

// Clean runs the fixed rule pipeline over text and returns the cleaned
// result plus statistics. The figure-summary rewrite step (§4.4) is the
// caller's responsibility and must run before Clean, since Clean's
// image-placeholder removal would otherwise strip the very images the
// rewriter needs to see.
func Clean(text string, cfg Config) (string, Stats) {
	original := text
	var stats Stats

	protected := strings.ReplaceAll(text, SplitMarker, splitMarkerPlaceholder)

	if cfg.RemoveImagePlaceholders {
		var n int
		protected, n = removeImagePlaceholders(protected)
		stats.ImagesRemoved = n
	}
	if cfg.StripHTML {
		var n int
		protected, n = stripHTML(protected)
		stats.HTMLTagsRemoved = n
	}
	if cfg.RemoveControlChars {
		var n int
		protected, n = removeControlChars(protected)
		stats.ControlCharsRemoved = n
	}
	if cfg.RemovePageNumbers {
		var n int
		protected, n = removePageNumbers(protected)
		stats.PageNumberLines = n
	}
	if cfg.RemoveWatermark && cfg.WatermarkPatterns != "" {
		var n int
		protected, n = removeWatermark(protected, cfg.WatermarkPatterns)
		stats.WatermarkMatches = n
	}
	if cfg.CollapseBlankLines {
		protected = collapseBlankLines(protected)
	}
	protected = strings.TrimSpace(protected)

	result := strings.ReplaceAll(protected, splitMarkerPlaceholder, SplitMarker)

	if len(strings.TrimSpace(result)) < 10 && len(strings.TrimSpace(original)) >= 10 {
		stats.FallbackToOriginal = true
		return original, stats
	}
	return result, stats
}

var blankLineRun = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(text string) string {
	return blankLineRun.ReplaceAllString(text, "\n\n")
}

var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

func removeControlChars(text string) (string, int) {
	n := len(controlCharPattern.FindAllString(text, -1))
	return controlCharPattern.ReplaceAllString(text, ""), n
}

var pageNumberLine = regexp.MustCompile(`(?m)^\s*\d{1,4}\s*$\n?`)

func removePageNumbers(text string) (string, int) {
	n := len(pageNumberLine.FindAllString(text, -1))
	return pageNumberLine.ReplaceAllString(text, ""), n
}

func removeWatermark(text, patterns string) (string, int) {
	total := 0
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		n := len(re.FindAllString(text, -1))
		if n == 0 {
			continue
		}
		total += n
		text = re.ReplaceAllString(text, "")
	}
	return text, total
}

// htmlTagPattern matches any <...> tag, including the protected marker's
// placeholder is excluded since it contains no angle brackets.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(text string) (string, int) {
	n := len(htmlTagPattern.FindAllString(text, -1))
	return htmlTagPattern.ReplaceAllString(text, ""), n
}
