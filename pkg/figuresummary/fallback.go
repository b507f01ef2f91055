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

package figuresummary

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	numberWithUnitRegexp = regexp.MustCompile(`(?i)\d+(\.\d+)?\s?(nm|mm|cm|°c|%|ms|s|min|h|mg|ml|ph|v|a|w|hz)`)
	comparativeRegexp    = regexp.MustCompile(`(?i)\b(higher|lower|greater|smaller|more|less|compared to|than|increase|decrease)\b`)
	conditionKeywords    = []string{"λ", "nm", "ph", "illumination", "catalyst", "temperature", "pressure", "concentration", "wavelength"}
	metricKeywords       = map[string]string{
		"efficiency": "efficiency", "yield": "yield", "accuracy": "accuracy",
		"selectivity": "selectivity", "conversion": "conversion", "stability": "stability",
	}
	conclusionKeywords = map[string]string{
		"demonstrate": "demonstrates the reported effect",
		"confirm":     "confirms the reported effect",
		"indicate":    "indicates the reported trend",
		"show":        "shows the reported trend",
		"reveal":      "reveals the underlying mechanism",
	}
	sampleBlocklist = map[string]struct{}{
		"The": {}, "This": {}, "Figure": {}, "Fig": {}, "Table": {}, "And": {}, "From": {}, "For": {},
	}
)

// language reports "zh" when the CJK-character density of text is at
// least 2%, else "en" (spec §4.4 item 6).
func language(text string) string {
	if text == "" {
		return "en"
	}
	total, cjk := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isCJK(r) {
			cjk++
		}
	}
	if total == 0 {
		return "en"
	}
	if float64(cjk)/float64(total) >= 0.02 {
		return "zh"
	}
	return "en"
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// buildFallbackBlock emits a heuristic summary block per spec §4.4 item 6
// when the vision call could not be made or failed.
func buildFallbackBlock(job Job) string {
	context := strings.Join(append(append([]string{}, job.Captions...), job.LocalContext...), "\n")
	if context == "" {
		context = job.DocumentContext
	}
	lang := language(context + job.DocumentContext)

	var b strings.Builder
	b.WriteString(SplitMarker + "\n")
	fmt.Fprintf(&b, "- fig_id: %s\n", job.FigID)
	b.WriteString("- core_conclusion: " + coreConclusion(context, lang) + "\n")

	samples := extractSamples(context)
	if len(samples) > 0 {
		b.WriteString("- samples: " + strings.Join(samples, ", ") + "\n")
	}

	metrics := extractMetrics(context)
	if len(metrics) > 0 {
		b.WriteString("- metrics: " + strings.Join(metrics, ", ") + "\n")
	}

	conditions := extractConditions(job.LocalContext, job.DocumentContext)
	if len(conditions) > 0 {
		b.WriteString("- key_conditions: " + strings.Join(conditions, "; ") + "\n")
	}

	numbers := extractNumbers(context)
	hasNumbers := len(numbers) > 0
	if hasNumbers {
		b.WriteString("- key_numbers: " + strings.Join(numbers, ", ") + "\n")
	} else {
		b.WriteString("- key_numbers: trend only\n")
	}

	if cmp := firstComparative(context); cmp != "" {
		b.WriteString("- comparison: " + cmp + "\n")
	}

	fmt.Fprintf(&b, "- provenance_location: line %d\n", job.LineIndex+1)
	if ev := provenanceEvidence(job); ev != "" {
		b.WriteString("- provenance_evidence: " + ev + "\n")
	}

	if !hasNumbers {
		b.WriteString("- value_type=trend_only\n")
	}
	b.WriteString(SplitMarker)
	return b.String()
}

func coreConclusion(context, lang string) string {
	lower := strings.ToLower(context)
	for kw, sentence := range conclusionKeywords {
		if strings.Contains(lower, kw) {
			return sentence
		}
	}
	if lang == "zh" {
		return "未能自动生成结论，见上下文。"
	}
	return "no automatic conclusion derived; see surrounding context."
}

func extractSamples(context string) []string {
	tokens := strings.Fields(context)
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:()[]{}\"'")
		if tok == "" || len(tok) < 2 {
			continue
		}
		if !unicode.IsUpper(rune(tok[0])) {
			continue
		}
		if _, blocked := sampleBlocklist[tok]; blocked {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) >= 6 {
			break
		}
	}
	return out
}

func extractMetrics(context string) []string {
	lower := strings.ToLower(context)
	var found []string
	for kw, label := range metricKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, label)
		}
	}
	sort.Strings(found)
	return found
}

func extractConditions(local []string, doc string) []string {
	var out []string
	seen := map[string]struct{}{}
	candidates := append(append([]string{}, local...), strings.Split(doc, "\n")...)
	for _, line := range candidates {
		lower := strings.ToLower(line)
		for _, kw := range conditionKeywords {
			if strings.Contains(lower, kw) {
				trimmed := strings.TrimSpace(line)
				if trimmed == "" {
					continue
				}
				if _, dup := seen[trimmed]; dup {
					continue
				}
				seen[trimmed] = struct{}{}
				out = append(out, trimmed)
				break
			}
		}
	}
	return out
}

func extractNumbers(context string) []string {
	matches := numberWithUnitRegexp.FindAllString(context, -1)
	if len(matches) > 8 {
		matches = matches[:8]
	}
	return matches
}

func firstComparative(context string) string {
	for _, sentence := range splitSentences(context) {
		if comparativeRegexp.MatchString(sentence) {
			return strings.TrimSpace(sentence)
		}
	}
	return ""
}

func provenanceEvidence(job Job) string {
	sentences := splitSentences(strings.Join(job.LocalContext, " "))
	if len(sentences) == 0 {
		sentences = splitSentences(job.DocumentContext)
	}
	seen := map[string]struct{}{}
	var out []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == 3 {
			break
		}
	}
	return strings.Join(out, " || ")
}

var sentenceSplitRegexp = regexp.MustCompile(`[.!?。！？]+`)

func splitSentences(text string) []string {
	parts := sentenceSplitRegexp.Split(text, -1)
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
