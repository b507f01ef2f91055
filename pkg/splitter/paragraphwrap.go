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

// paragraphWrap implements the default strategy (spec §4.5): cut the
// normalized text near max_chars-sized offsets (each cut at the nearest
// heading line, strict forward progress), then within each section scan
// blocks, rejoin cross-page paragraphs, and wrap each resulting block with
// split markers.
func paragraphWrap(lines []string, maxChars int) string {
	sections := cutAtHeadings(lines, maxChars)

	var rendered []string
	for _, section := range sections {
		blocks := rejoinCrossPageParagraphs(scanBlocks(section))
		for _, b := range blocks {
			rendered = append(rendered, SplitMarker+"\n"+b.text()+"\n"+SplitMarker)
		}
	}
	return strings.Join(rendered, "\n\n")
}

// cutAtHeadings cuts the line list near every multiple of maxChars,
// snapping each cut to the nearest heading line at or after the target
// offset, and never producing a cut at or before the previous one.
func cutAtHeadings(lines []string, maxChars int) [][]string {
	if maxChars <= 0 {
		return [][]string{lines}
	}

	offsets := make([]int, len(lines)+1)
	total := 0
	for i, l := range lines {
		offsets[i] = total
		total += len(l) + 1
	}
	offsets[len(lines)] = total

	if total <= maxChars {
		return [][]string{lines}
	}

	var cutIndices []int
	lastCut := 0
	target := maxChars
	for target < total {
		cut := nearestHeadingAtOrAfter(lines, offsets, target, lastCut+1)
		if cut <= lastCut || cut >= len(lines) {
			break
		}
		cutIndices = append(cutIndices, cut)
		lastCut = cut
		target = offsets[cut] + maxChars
	}

	var sections [][]string
	start := 0
	for _, c := range cutIndices {
		sections = append(sections, lines[start:c])
		start = c
	}
	sections = append(sections, lines[start:])
	return sections
}

func nearestHeadingAtOrAfter(lines []string, offsets []int, targetOffset, minIndex int) int {
	for i := minIndex; i < len(lines); i++ {
		if offsets[i] >= targetOffset && isHeadingLine(lines[i]) {
			return i
		}
	}
	// No heading at or after the target: fall back to the first heading
	// after minIndex at all, else no cut.
	for i := minIndex; i < len(lines); i++ {
		if isHeadingLine(lines[i]) {
			return i
		}
	}
	return len(lines)
}
