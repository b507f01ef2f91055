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

import (
	"regexp"
	"strings"
)

type elementKind int

const (
	elHeading elementKind = iota
	elParagraph
	elList
	elTable
	elCode
	elBlockquote
	elBlank
)

type element struct {
	kind  elementKind
	lines []string
}

func (e element) text() string {
	return strings.Join(e.lines, "\n")
}

var (
	chineseChapterRegexp = regexp.MustCompile(`^\s*(第[一二三四五六七八九十百千0-9]+[章节部篇]|[一二三四五六七八九十]+、)`)
	dottedDecimalRegexp  = regexp.MustCompile(`^\s*\d{1,2}(\.\d{1,2}){0,3}\s+\S`)
	parenthesizedNumRegexp = regexp.MustCompile(`^\s*[(（]\d{1,2}[)）]\s*\S`)
)

// extractElements scans lines into typed elements, then enhances heading
// detection with a pattern list (spec §4.5 "Strategy semantic").
func extractElements(lines []string, customPatterns []*regexp.Regexp) []element {
	blocks := scanBlocks(lines)
	elements := make([]element, 0, len(blocks))
	for _, b := range blocks {
		elements = append(elements, element{kind: fromBlockKind(b.kind), lines: b.lines})
	}
	return enhanceHeadings(elements, customPatterns)
}

func fromBlockKind(k blockKind) elementKind {
	switch k {
	case blockHeading:
		return elHeading
	case blockCode:
		return elCode
	case blockList:
		return elList
	case blockQuote:
		return elBlockquote
	case blockTable:
		return elTable
	default:
		return elParagraph
	}
}

// enhanceHeadings promotes short, terminator-free paragraphs that match a
// heading-like pattern (Chinese chapter markers, dotted decimal prefixes,
// parenthesized numerals, or user custom regexes) to headings.
func enhanceHeadings(elements []element, customPatterns []*regexp.Regexp) []element {
	for i, e := range elements {
		if e.kind != elParagraph || len(e.lines) != 1 {
			continue
		}
		line := e.lines[0]
		if len(line) > 80 {
			continue
		}
		trimmed := strings.TrimRight(line, " \t")
		if trimmed != "" && strings.ContainsRune(sentenceEndChars, []rune(trimmed)[len([]rune(trimmed))-1]) {
			continue
		}
		if matchesHeadingPattern(line, customPatterns) {
			elements[i].kind = elHeading
		}
	}
	return elements
}

func matchesHeadingPattern(line string, customPatterns []*regexp.Regexp) bool {
	if chineseChapterRegexp.MatchString(line) || dottedDecimalRegexp.MatchString(line) || parenthesizedNumRegexp.MatchString(line) {
		return true
	}
	for _, re := range customPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func compileCustomPatterns(raw string) []*regexp.Regexp {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []*regexp.Regexp
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}
