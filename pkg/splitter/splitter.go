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

// SplitMarker delimits the blocks the splitter inserts; it matches the
// marker protected by the Markdown cleaner and the figure-summary rewriter.
const SplitMarker = "<!--split-->"

// Config parameterizes one splitter pass, mirroring the smart_split
// config category.
type Config struct {
	Strategy                string // "paragraph_wrap" or "semantic"
	MaxChars                int
	ForceSplitBeforeHeading bool
	HeadingCooldownElements int
	MinSplitScore           float64
	SearchWindow            int
	MinLength               int
	LengthScoreFactor       int
	HeadingBonus            float64
	SentenceEndBonus        float64
	SentenceIntegrityWeight float64
	HeadingAfterPenalty     float64
	CustomHeadingPatterns   string
}

func applyDefaults(cfg Config) Config {
	if cfg.Strategy == "" {
		cfg.Strategy = "paragraph_wrap"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 300000
	}
	if cfg.HeadingCooldownElements <= 0 {
		cfg.HeadingCooldownElements = 2
	}
	if cfg.MinSplitScore == 0 {
		cfg.MinSplitScore = 8.0
	}
	if cfg.SearchWindow <= 0 {
		cfg.SearchWindow = 5
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 400
	}
	if cfg.LengthScoreFactor <= 0 {
		cfg.LengthScoreFactor = 200
	}
	if cfg.HeadingBonus == 0 {
		cfg.HeadingBonus = 10.0
	}
	if cfg.SentenceEndBonus == 0 {
		cfg.SentenceEndBonus = 3.0
	}
	if cfg.SentenceIntegrityWeight == 0 {
		cfg.SentenceIntegrityWeight = 4.0
	}
	if cfg.HeadingAfterPenalty == 0 {
		cfg.HeadingAfterPenalty = 6.0
	}
	return cfg
}

// InsertMarkers runs the configured strategy (semantic marker insertion
// first) and returns the document with `<!--split-->` markers inserted.
// The mandatory size partitioner (Partition) must still run afterward
// (spec §9 open question (b): the ordering is semantic-then-partition,
// always).
func InsertMarkers(text string, cfg Config) string {
	cfg = applyDefaults(cfg)
	lines := normalizeHeadings(strings.Split(text, "\n"))

	switch cfg.Strategy {
	case "semantic":
		return semanticSplit(lines, cfg)
	default:
		return paragraphWrap(lines, cfg.MaxChars)
	}
}
