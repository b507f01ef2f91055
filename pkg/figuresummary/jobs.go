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
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	imageRegexp  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)
	figIDRegexp  = regexp.MustCompile(`(?i)fig(ure)?.?\s*\d+[a-z]?`)
	captionStart = regexp.MustCompile(`(?i)^\s*(fig|figure|图)`)
)

// imageMatch is one `![alt](dest)` occurrence found on a line.
type imageMatch struct {
	Alt   string
	Dest  string
	Full  string
	Start int
	End   int
}

func findImages(line string) []imageMatch {
	locs := imageRegexp.FindAllStringSubmatchIndex(line, -1)
	matches := make([]imageMatch, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, imageMatch{
			Alt:   line[loc[2]:loc[3]],
			Dest:  line[loc[4]:loc[5]],
			Full:  line[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
		})
	}
	return matches
}

// Job is one image queued for summarization.
type Job struct {
	LineIndex       int
	Match           imageMatch
	Asset           Asset
	HasAsset        bool
	Captions        []string
	LocalContext    []string
	DocumentContext string
	FigID           string
}

func isMarkerLine(line string) bool {
	t := strings.TrimSpace(line)
	return t == SplitMarker ||
		strings.HasPrefix(t, "- fig_id:") ||
		strings.HasPrefix(t, "- provenance_location") ||
		strings.HasPrefix(t, "- provenance_evidence")
}

func isAlreadySummarized(lines []string, from int) bool {
	checked := 0
	for i := from; i < len(lines) && checked < 12; i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		checked++
		if isMarkerLine(lines[i]) {
			return true
		}
	}
	return false
}

// collectJobs makes a single forward pass over lines, gathering one Job
// per image reference up to maxImages.
func collectJobs(lines []string, idx *assetIndex, cfg Config) []Job {
	var jobs []Job
	n := 0
	for i, line := range lines {
		if n >= cfg.MaxImagesPerDoc {
			break
		}
		matches := findImages(line)
		if len(matches) == 0 {
			continue
		}
		if isAlreadySummarized(lines, i+1) {
			continue
		}
		for _, m := range matches {
			if n >= cfg.MaxImagesPerDoc {
				break
			}
			job := Job{LineIndex: i, Match: m}
			if asset, ok := idx.resolve(m.Dest); ok {
				job.Asset = asset
				job.HasAsset = true
			}
			job.Captions = collectCaptions(lines, i, m.Alt)
			job.LocalContext = collectLocalContext(lines, i)
			job.DocumentContext = collectDocumentContext(lines, i, cfg.MaxContextChars)
			job.FigID = deriveFigID(job, n+1)
			jobs = append(jobs, job)
			n++
		}
	}
	return jobs
}

func collectCaptions(lines []string, lineIdx int, alt string) []string {
	var captions []string
	if strings.TrimSpace(alt) != "" {
		captions = append(captions, alt)
	}
	if c, ok := nearestCaption(lines, lineIdx, -1); ok {
		captions = append(captions, c)
	}
	if c, ok := nearestCaption(lines, lineIdx, 1); ok {
		captions = append(captions, c)
	}
	return captions
}

func nearestCaption(lines []string, from, dir int) (string, bool) {
	for i := from + dir; i >= 0 && i < len(lines); i += dir {
		t := strings.TrimSpace(lines[i])
		if t == "" {
			continue
		}
		if looksLikeCaption(t) {
			return t, true
		}
		return "", false
	}
	return "", false
}

func looksLikeCaption(line string) bool {
	if captionStart.MatchString(line) {
		return true
	}
	return strings.Contains(strings.ToLower(line), "fig.")
}

func collectLocalContext(lines []string, lineIdx int) []string {
	var ctx []string
	count := 0
	for i := lineIdx - 1; i >= 0 && count < 6; i-- {
		if !usableContextLine(lines[i]) {
			continue
		}
		ctx = append([]string{lines[i]}, ctx...)
		count++
	}
	count = 0
	for i := lineIdx + 1; i < len(lines) && count < 6; i++ {
		if !usableContextLine(lines[i]) {
			continue
		}
		ctx = append(ctx, lines[i])
		count++
	}
	return ctx
}

func usableContextLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	if len(findImages(line)) > 0 {
		return false
	}
	return !isMarkerLine(line)
}

func collectDocumentContext(lines []string, lineIdx, maxChars int) string {
	start := lineIdx - 50
	if start < 0 {
		start = 0
	}
	end := lineIdx + 50
	if end > len(lines) {
		end = len(lines)
	}
	joined := strings.Join(lines[start:end], "\n")
	if maxChars > 0 && len(joined) > maxChars {
		joined = joined[:maxChars]
	}
	return joined
}

func deriveFigID(job Job, seq int) string {
	haystacks := make([]string, 0, len(job.Captions)+3)
	haystacks = append(haystacks, job.Captions...)
	haystacks = append(haystacks, job.DocumentContext, job.Match.Alt, job.Match.Dest)
	for _, h := range haystacks {
		if m := figIDRegexp.FindString(h); m != "" {
			return normalizeFigID(m)
		}
	}
	if job.Match.Dest != "" {
		stem := strings.TrimSuffix(filepath.Base(job.Match.Dest), filepath.Ext(job.Match.Dest))
		if stem != "" && stem != "." {
			return stem
		}
	}
	return "fig_" + strconv.Itoa(seq)
}

func normalizeFigID(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}
