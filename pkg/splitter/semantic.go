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

package splitter

import "strings"

// semanticSplit extracts elements, scores candidate split points, and
// renders the document with split markers inserted between the chosen
// element boundaries (spec §4.5 "Strategy semantic").
func semanticSplit(lines []string, cfg Config) string {
	custom := compileCustomPatterns(cfg.CustomHeadingPatterns)
	elements := extractElements(lines, custom)
	if len(elements) == 0 {
		return strings.Join(lines, "\n")
	}

	splitPoints := selectSplitPoints(elements, cfg)
	splitPoints = refineSplitPoints(elements, splitPoints, cfg.SearchWindow)
	return renderWithSplits(elements, splitPoints)
}

func selectSplitPoints(elements []element, cfg Config) []int {
	var splits []int
	currentLength := 0
	elementsSinceSplit := 0
	cooldown := 0
	maxLength := float64(cfg.MaxChars)

	for i, e := range elements {
		length := len(e.text())

		if e.kind == elHeading && i > 0 && cfg.ForceSplitBeforeHeading {
			splits = append(splits, i)
			currentLength = length
			elementsSinceSplit = 0
			cooldown = cfg.HeadingCooldownElements
			continue
		}

		currentLength += length
		elementsSinceSplit++

		if cooldown > 0 {
			cooldown--
			continue
		}

		score := scoreElement(elements, i, currentLength, elementsSinceSplit, cfg)
		if score >= cfg.MinSplitScore && i > 0 {
			splits = append(splits, i)
			currentLength = 0
			elementsSinceSplit = 0
			continue
		}

		if float64(currentLength) > 1.5*maxLength {
			if retarget, ok := nearestSentenceBoundaryElement(elements, i, cfg.SearchWindow); ok && retarget > lastSplit(splits) {
				splits = append(splits, retarget)
				currentLength = 0
				elementsSinceSplit = 0
			} else if elementsSinceSplit >= 3 {
				splits = append(splits, i)
				currentLength = 0
				elementsSinceSplit = 0
			}
		}
	}
	return splits
}

func lastSplit(splits []int) int {
	if len(splits) == 0 {
		return -1
	}
	return splits[len(splits)-1]
}

func scoreElement(elements []element, i, currentLength, elementsSinceSplit int, cfg Config) float64 {
	e := elements[i]
	score := 0.0

	if e.kind == elHeading {
		score += cfg.HeadingBonus
	}
	if endsWithSentenceTerminator(e.text()) {
		score += cfg.SentenceEndBonus
	}
	if isSentenceIntegrityBoundary(elements, i) {
		score += cfg.SentenceIntegrityWeight
	} else {
		score -= 10
	}
	if e.kind == elTable || e.kind == elCode {
		score += 6
	}
	if i > 0 && elements[i-1].kind == elHeading {
		score -= cfg.HeadingAfterPenalty
	}
	if currentLength >= cfg.MinLength {
		lengthFactor := float64(currentLength-cfg.MinLength) / float64(cfg.LengthScoreFactor)
		if lengthFactor > 4 {
			lengthFactor = 4
		}
		score += lengthFactor
	} else {
		score -= 5
	}
	if elementsSinceSplit < 3 {
		score -= 8
	}
	if currentLength > cfg.MaxChars {
		score += 4
	}
	return score
}

func endsWithSentenceTerminator(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n")
	if trimmed == "" {
		return false
	}
	r := []rune(trimmed)
	return strings.ContainsRune(sentenceEndChars, r[len(r)-1])
}

// isSentenceIntegrityBoundary reports whether the boundary before element i
// falls on a sentence boundary. If the prior element's last char is a
// terminator, it is one; otherwise this would ideally tokenize the
// concatenation with a CJK or English sentence tokenizer and accept a
// boundary within a five-character tolerance, but no such tokenizer is
// wired in so it degrades straight to the terminator test.
func isSentenceIntegrityBoundary(elements []element, i int) bool {
	if i == 0 {
		return true
	}
	if elements[i].kind == elHeading || elements[i-1].kind == elHeading {
		return true
	}
	return endsWithSentenceTerminator(elements[i-1].text())
}

func nearestSentenceBoundaryElement(elements []element, from, window int) (int, bool) {
	for d := 1; d <= window; d++ {
		if from-d >= 0 && isSentenceIntegrityBoundary(elements, from-d) {
			return from - d, true
		}
		if from+d < len(elements) && isSentenceIntegrityBoundary(elements, from+d) {
			return from + d, true
		}
	}
	return 0, false
}

// refineSplitPoints shifts any split point landing mid-sentence to the
// nearest sentence boundary within window, drops a split that would strand
// a heading from its first content element (heading–body merge), coalesces
// duplicates, and preserves order.
func refineSplitPoints(elements []element, splits []int, window int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, s := range splits {
		if splitsHeadingFromBody(elements, s) {
			continue
		}
		point := s
		if !isSentenceIntegrityBoundary(elements, s) {
			if alt, ok := nearestSentenceBoundaryElement(elements, s, window); ok {
				point = alt
			}
		}
		if _, dup := seen[point]; dup {
			continue
		}
		seen[point] = struct{}{}
		out = append(out, point)
	}
	return out
}

// splitsHeadingFromBody reports whether split point i sits strictly
// between a heading and its first non-empty content element.
func splitsHeadingFromBody(elements []element, i int) bool {
	return i > 0 && elements[i-1].kind == elHeading
}

func renderWithSplits(elements []element, splits []int) string {
	splitSet := map[int]struct{}{}
	for _, s := range splits {
		splitSet[s] = struct{}{}
	}

	var b strings.Builder
	for i, e := range elements {
		if _, ok := splitSet[i]; ok && i > 0 {
			b.WriteString("\n" + SplitMarker + "\n")
		}
		b.WriteString(e.text())
		if i < len(elements)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
