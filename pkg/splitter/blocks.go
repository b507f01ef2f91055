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
	"unicode"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockCode
	blockList
	blockQuote
	blockTable
)

type block struct {
	kind  blockKind
	lines []string
}

func (b block) text() string {
	return strings.Join(b.lines, "\n")
}

var (
	fenceRegexp      = regexp.MustCompile("^\\s*```")
	listItemRegexp   = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	quoteLineRegexp  = regexp.MustCompile(`^\s*>`)
	tableLineRegexp  = regexp.MustCompile(`^\s*\|`)
	sentenceEndChars = ".!?。！？:：;；"

	continuationStarters = []string{
		"and", "or", "with", "where", "which", "that", "while", "because",
		"并", "或", "以及", "其中", "并且", "而且",
	}
)

// scanBlocks groups lines into blocks per spec §4.5 paragraph_wrap rules:
// fenced code blocks are grouped intact, page-number and form-feed lines
// are dropped (already handled by normalizeHeadings before this runs),
// single blank lines terminate a block, top-level headings are their own
// block, and list/quote/table lines start a new block when the previous
// block is a different kind.
func scanBlocks(lines []string) []block {
	var blocks []block
	var current block
	hasCurrent := false

	flush := func() {
		if hasCurrent && len(current.lines) > 0 {
			blocks = append(blocks, current)
		}
		current = block{}
		hasCurrent = false
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if fenceRegexp.MatchString(line) {
			flush()
			code := block{kind: blockCode, lines: []string{line}}
			i++
			for i < len(lines) {
				code.lines = append(code.lines, lines[i])
				closed := fenceRegexp.MatchString(lines[i])
				i++
				if closed {
					break
				}
			}
			blocks = append(blocks, code)
			continue
		}

		if strings.TrimSpace(line) == "" {
			flush()
			i++
			continue
		}

		if headingLevel(line) == 1 {
			flush()
			blocks = append(blocks, block{kind: blockHeading, lines: []string{line}})
			i++
			continue
		}

		kind := classifyLine(line)
		if hasCurrent && current.kind != kind {
			flush()
		}
		if !hasCurrent {
			current = block{kind: kind}
			hasCurrent = true
		}
		current.lines = append(current.lines, line)
		i++
	}
	flush()
	return blocks
}

func classifyLine(line string) blockKind {
	switch {
	case isHeadingLine(line):
		return blockHeading
	case listItemRegexp.MatchString(line):
		return blockList
	case quoteLineRegexp.MatchString(line):
		return blockQuote
	case tableLineRegexp.MatchString(line):
		return blockTable
	default:
		return blockParagraph
	}
}

// rejoinCrossPageParagraphs merges consecutive paragraph blocks when the
// previous does not end in a sentence terminator, neither begins with a
// list/quote/table/heading marker, and the next either starts lowercase or
// begins with a continuation starter (spec §4.5).
func rejoinCrossPageParagraphs(blocks []block) []block {
	if len(blocks) == 0 {
		return blocks
	}
	out := []block{blocks[0]}
	for _, b := range blocks[1:] {
		prev := &out[len(out)-1]
		if prev.kind == blockParagraph && b.kind == blockParagraph && shouldRejoin(prev.text(), b.text()) {
			joiner := " "
			if endsWithCJK(prev.text()) && startsWithCJK(b.text()) {
				joiner = ""
			}
			prev.lines = []string{prev.text() + joiner + b.text()}
			continue
		}
		out = append(out, b)
	}
	return out
}

func shouldRejoin(prevText, nextText string) bool {
	prevText = strings.TrimRight(prevText, " \t")
	if prevText == "" {
		return false
	}
	lastRune := []rune(prevText)
	if strings.ContainsRune(sentenceEndChars, lastRune[len(lastRune)-1]) {
		return false
	}
	nextTrim := strings.TrimLeft(nextText, " \t")
	if nextTrim == "" {
		return false
	}
	if isHeadingLine(nextTrim) || listItemRegexp.MatchString(nextTrim) ||
		quoteLineRegexp.MatchString(nextTrim) || tableLineRegexp.MatchString(nextTrim) {
		return false
	}
	firstRune := []rune(nextTrim)[0]
	if unicode.IsLower(firstRune) {
		return true
	}
	lowerNext := strings.ToLower(nextTrim)
	for _, starter := range continuationStarters {
		if strings.HasPrefix(lowerNext, starter) {
			return true
		}
	}
	return false
}

func endsWithCJK(s string) bool {
	r := []rune(strings.TrimRight(s, " \t\n"))
	if len(r) == 0 {
		return false
	}
	return isCJKRune(r[len(r)-1])
}

func startsWithCJK(s string) bool {
	r := []rune(strings.TrimLeft(s, " \t\n"))
	if len(r) == 0 {
		return false
	}
	return isCJKRune(r[0])
}

func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}
