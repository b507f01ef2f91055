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

package mdclean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fullConfig() Config {
	return Config{
		CollapseBlankLines:      true,
		StripHTML:               true,
		RemoveControlChars:      true,
		RemoveImagePlaceholders: true,
		RemovePageNumbers:       true,
	}
}

func TestRemoveImagePlaceholders_ScenarioS3(t *testing.T) {
	input := `before ![x](y) middle ![a\]b](p(q)) after`
	out, n := removeImagePlaceholders(input)
	assert.Equal(t, "before  middle  after", out)
	assert.Equal(t, 2, n)
}

func TestClean_NeverRemovesSplitMarker(t *testing.T) {
	input := "para one\n" + SplitMarker + "\npara two ![x](y)"
	out, _ := Clean(input, fullConfig())
	assert.Contains(t, out, SplitMarker)
	assert.NotContains(t, out, "![x](y)")
}

func TestClean_RemovesInsideFencedCodeBlock(t *testing.T) {
	input := "text\n```\n![a](b)\n```\nmore text that is long enough to survive trimming"
	out, _ := Clean(input, fullConfig())
	assert.NotContains(t, out, "![a](b)")
}

func TestClean_IsIdempotent(t *testing.T) {
	input := "# Heading\n\nSome <b>bold</b> text with ![fig](img.png) and control\x01chars.\n\n\n\n42\n\nMore content here that is long enough."
	once, _ := Clean(input, fullConfig())
	twice, _ := Clean(once, fullConfig())
	assert.Equal(t, once, twice)
}

func TestClean_FallsBackToOriginalWhenTooShort(t *testing.T) {
	input := "![a](figure-one.png)"
	out, stats := Clean(input, fullConfig())
	assert.True(t, stats.FallbackToOriginal)
	assert.Equal(t, input, out)
}

func TestClean_CollapsesBlankLineRuns(t *testing.T) {
	input := "first paragraph long enough\n\n\n\n\nsecond paragraph long enough too"
	out, _ := Clean(input, fullConfig())
	assert.False(t, strings.Contains(out, "\n\n\n"))
}

func TestClean_RemovesPageNumberOnlyLines(t *testing.T) {
	input := "Some real content that is long enough to not fall back.\n42\nMore real content follows after the page number line."
	out, _ := Clean(input, fullConfig())
	assert.NotContains(t, out, "\n42\n")
}

func TestClean_RemovesControlCharacters(t *testing.T) {
	input := "content with a stray\x01control char that is long enough to survive the ten character floor"
	out, stats := Clean(input, fullConfig())
	assert.Equal(t, 1, stats.ControlCharsRemoved)
	assert.NotContains(t, out, "\x01")
}

func TestClean_WatermarkPatternsAreOptIn(t *testing.T) {
	cfg := fullConfig()
	cfg.RemoveWatermark = true
	cfg.WatermarkPatterns = `CONFIDENTIAL-\d+`
	input := "Some real content CONFIDENTIAL-42 mixed into a longer passage of text here."
	out, stats := Clean(input, cfg)
	assert.Equal(t, 1, stats.WatermarkMatches)
	assert.NotContains(t, out, "CONFIDENTIAL-42")
}

func TestClean_InvalidWatermarkRegexIsSkipped(t *testing.T) {
	cfg := fullConfig()
	cfg.RemoveWatermark = true
	cfg.WatermarkPatterns = `[unterminated`
	input := "Content long enough to survive the fallback floor length check here."
	out, _ := Clean(input, cfg)
	assert.Equal(t, input, strings.TrimSpace(out))
}
