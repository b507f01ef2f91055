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

import "regexp"

// removeImagePlaceholders strips every `![alt](dest)` occurrence, including
// one appearing inside a fenced code block (§4.3 notes this is intentional:
// the scanner runs over the full text with no fence awareness). alt may
// contain escaped brackets (`\]`); dest may contain one level of nested
// parens. Sequences containing a newline anywhere inside `[...]` or
// `(...)` are rejected and left untouched, matching the reference scanner.
func removeImagePlaceholders(text string) (string, int) {
	var out []byte
	n := 0
	i := 0
	for i < len(text) {
		if text[i] == '!' && i+1 < len(text) && text[i+1] == '[' {
			if end, ok := scanImagePlaceholder(text, i); ok {
				n++
				i = end
				continue
			}
		}
		out = append(out, text[i])
		i++
	}
	result := string(out)
	// Guarded fallback pass with a simple regex for anything the tolerant
	// scanner missed (e.g. dest with no nested parens at all — already
	// covered, but kept as a second line of defense per spec).
	remaining := simpleImagePattern.FindAllString(result, -1)
	if len(remaining) > 0 {
		result = simpleImagePattern.ReplaceAllString(result, "")
		n += len(remaining)
	}
	return result, n
}

var simpleImagePattern = regexp.MustCompile(`!\[[^\]\n]*\]\([^)\n]*\)`)

// scanImagePlaceholder attempts to parse one `![alt](dest)` starting at
// position start (where text[start] == '!'). Returns the index just past
// the closing ')' and true on success.
func scanImagePlaceholder(text string, start int) (int, bool) {
	i := start + 2 // past "!["
	// alt text: up to matching ']', honoring '\]' escapes, no newlines.
	for i < len(text) {
		c := text[i]
		if c == '\n' {
			return 0, false
		}
		if c == '\\' && i+1 < len(text) {
			i += 2
			continue
		}
		if c == ']' {
			break
		}
		i++
	}
	if i >= len(text) || text[i] != ']' {
		return 0, false
	}
	i++ // past ']'
	if i >= len(text) || text[i] != '(' {
		return 0, false
	}
	i++ // past '('
	depth := 1
	for i < len(text) && depth > 0 {
		c := text[i]
		if c == '\n' {
			return 0, false
		}
		if c == '\\' && i+1 < len(text) {
			i += 2
			continue
		}
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
		}
		i++
	}
	if depth != 0 {
		return 0, false
	}
	return i, true
}
