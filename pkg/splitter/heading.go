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

// Package splitter inserts split markers into a Markdown document
// (paragraph_wrap or semantic strategy) and partitions the result into
// upload-size-bounded chunks, preferring heading boundaries (spec §4.5 / C5).
package splitter

import "regexp"

var (
	headingLineRegexp    = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	numericPrefixRegexp  = regexp.MustCompile(`^\s*\d+(\.\d+)*[.)\s]+`)
	pageNumberLineRegexp = regexp.MustCompile(`^\s*\d{1,4}\s*$`)
)

// normalizeHeadings detects contiguous runs of heading lines, promotes the
// first of each run (at the run's minimum level) to `#`, strips a leading
// numeric prefix from the rest of the run, and drops page-number-only
// lines and form-feeds (spec §4.5 "Heading normalization").
func normalizeHeadings(lines []string) []string {
	out := make([]string, 0, len(lines))
	i := 0
	for i < len(lines) {
		line := lines[i]
		if line == "\f" {
			i++
			continue
		}
		if pageNumberLineRegexp.MatchString(line) {
			i++
			continue
		}
		if m := headingLineRegexp.FindStringSubmatch(line); m != nil {
			run, next := collectHeadingRun(lines, i)
			out = append(out, normalizeHeadingRun(run)...)
			i = next
			continue
		}
		out = append(out, stripFormFeed(line))
		i++
	}
	return out
}

func stripFormFeed(line string) string {
	out := make([]rune, 0, len(line))
	for _, r := range line {
		if r == '\f' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// collectHeadingRun gathers contiguous heading lines starting at i and
// returns the run plus the index just past it.
func collectHeadingRun(lines []string, i int) ([]string, int) {
	var run []string
	j := i
	for j < len(lines) {
		if headingLineRegexp.MatchString(lines[j]) {
			run = append(run, lines[j])
			j++
			continue
		}
		break
	}
	return run, j
}

func normalizeHeadingRun(run []string) []string {
	if len(run) == 0 {
		return nil
	}

	out := make([]string, len(run))
	for idx, line := range run {
		m := headingLineRegexp.FindStringSubmatch(line)
		title := m[2]
		if idx == 0 {
			out[idx] = "# " + stripNumericPrefix(title)
			continue
		}
		out[idx] = headingPrefix(len(m[1])) + " " + stripNumericPrefix(title)
	}
	return out
}

func headingPrefix(level int) string {
	b := make([]byte, level)
	for i := range b {
		b[i] = '#'
	}
	return string(b)
}

func stripNumericPrefix(title string) string {
	return numericPrefixRegexp.ReplaceAllString(title, "")
}

// isHeadingLine reports whether line is a Markdown ATX heading.
func isHeadingLine(line string) bool {
	return headingLineRegexp.MatchString(line)
}

func headingLevel(line string) int {
	m := headingLineRegexp.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	return len(m[1])
}
