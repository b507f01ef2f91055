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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeadings_PromotesFirstOfRunAndStripsNumericPrefixes(t *testing.T) {
	lines := []string{"## 1. Intro", "### 1.1 Background", "body text"}
	out := normalizeHeadings(lines)
	require.Len(t, out, 3)
	assert.Equal(t, "# Intro", out[0])
	assert.Equal(t, "### Background", out[1])
	assert.Equal(t, "body text", out[2])
}

func TestNormalizeHeadings_DropsPageNumberLines(t *testing.T) {
	lines := []string{"text one", "42", "text two"}
	out := normalizeHeadings(lines)
	assert.Equal(t, []string{"text one", "text two"}, out)
}

func TestScanBlocks_GroupsFencedCodeIntact(t *testing.T) {
	lines := []string{"before", "```go", "code line", "```", "after"}
	blocks := scanBlocks(lines)
	var code *block
	for i := range blocks {
		if blocks[i].kind == blockCode {
			code = &blocks[i]
		}
	}
	require.NotNil(t, code)
	assert.Equal(t, []string{"```go", "code line", "```"}, code.lines)
}

func TestScanBlocks_BlankLineTerminatesBlock(t *testing.T) {
	lines := []string{"para one line one", "para one line two", "", "para two"}
	blocks := scanBlocks(lines)
	require.Len(t, blocks, 2)
	assert.Equal(t, "para one line one\npara one line two", blocks[0].text())
	assert.Equal(t, "para two", blocks[1].text())
}

func TestRejoinCrossPageParagraphs_MergesOnLowercaseContinuation(t *testing.T) {
	blocks := []block{
		{kind: blockParagraph, lines: []string{"this sentence continues"}},
		{kind: blockParagraph, lines: []string{"onto the next page"}},
	}
	out := rejoinCrossPageParagraphs(blocks)
	require.Len(t, out, 1)
	assert.Equal(t, "this sentence continues onto the next page", out[0].text())
}

func TestRejoinCrossPageParagraphs_DoesNotMergeAfterSentenceTerminator(t *testing.T) {
	blocks := []block{
		{kind: blockParagraph, lines: []string{"This sentence ends."}},
		{kind: blockParagraph, lines: []string{"A new one begins."}},
	}
	out := rejoinCrossPageParagraphs(blocks)
	assert.Len(t, out, 2)
}

func TestInsertMarkers_ParagraphWrapWrapsEachBlock(t *testing.T) {
	text := "# Heading\n\nFirst paragraph.\n\nSecond paragraph."
	out := InsertMarkers(text, Config{Strategy: "paragraph_wrap", MaxChars: 300000})
	// three blocks (heading, two paragraphs), each wrapped start+end.
	assert.Equal(t, 6, strings.Count(out, SplitMarker))
}

func TestInsertMarkers_SemanticInsertsMarkersBetweenElements(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Section One\n\n")
	for i := 0; i < 10; i++ {
		b.WriteString(strings.Repeat("word ", 100) + ".\n\n")
	}
	b.WriteString("# Section Two\n\nmore content.\n")
	out := InsertMarkers(b.String(), Config{Strategy: "semantic", MaxChars: 300000})
	assert.Contains(t, out, SplitMarker)
}

func TestPartition_ReturnsSingleDocWhenUnderLimit(t *testing.T) {
	counters := &PartitionCounters{}
	docs := Partition("doc", "short text", 300000, counters)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc.md", docs[0].Name)
	assert.Equal(t, 1, counters.OutputDocs)
	assert.Equal(t, 0, counters.SplitSourceFiles)
}

func TestPartition_SplitsOversizedDocumentAndBoundsEveryChunk(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		if i == 5 {
			b.WriteString("# Middle Heading\n")
		}
		b.WriteString(strings.Repeat("x", 90000) + "\n")
	}
	counters := &PartitionCounters{}
	docs := Partition("doc", b.String(), 300000, counters)

	require.True(t, len(docs) > 1)
	for _, d := range docs {
		assert.LessOrEqual(t, len(d.Text), 300000)
	}
	assert.True(t, counters.SplitSourceFiles >= 1)
	assert.Equal(t, len(docs), counters.OutputDocs)
	assert.Contains(t, docs[0].Name, ".part1of")
}

func TestPartition_NamesChildrenWithStemAndTotalCount(t *testing.T) {
	counters := &PartitionCounters{}
	docs := Partition("report", strings.Repeat("y", 700000), 300000, counters)
	require.True(t, len(docs) >= 2)
	for _, d := range docs {
		assert.Contains(t, d.Name, "report.part")
		assert.Contains(t, d.Name, fmt.Sprintf("of%d.md", len(docs)))
	}
	assert.True(t, counters.HardCuts >= 1)
}

func TestIsHeadingLine(t *testing.T) {
	assert.True(t, isHeadingLine("## title"))
	assert.False(t, isHeadingLine("not a heading"))
}

func TestEndsWithSentenceTerminator(t *testing.T) {
	assert.True(t, endsWithSentenceTerminator("a sentence."))
	assert.False(t, endsWithSentenceTerminator("no terminator here"))
	assert.True(t, endsWithSentenceTerminator("中文句子。"))
}
