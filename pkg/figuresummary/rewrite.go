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
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/biblioforge/refingest/pkg/visionllm"
)

// SplitMarker delimits every summary block, matching the marker protected
// by the Markdown cleaner.
const SplitMarker = "<!--split-->"

const defaultSystemPrompt = "You are a conservative scientific figure summarizer. " +
	"Describe only what is visibly supported by the image and its caption. " +
	"Do not speculate beyond the given context."

// Config parameterizes one rewrite pass, mirroring the image_summary
// config category.
type Config struct {
	Enabled         bool
	BaseURL         string
	APIKey          string
	Model           string
	ProviderTag     string
	Workers         int
	MaxImagesPerDoc int
	MaxContextChars int
	TimeoutSeconds  int
	Temperature     float64
	MaxTokens       int
}

// Stats tracks per-document outcome counters (spec §4.4).
type Stats struct {
	TotalImages  int
	AIAttempted  int
	AISucceeded  int
	AIFailed     int
	FallbackUsed int
}

// Rewriter inserts indexable summary blocks after every image reference.
type Rewriter struct {
	vision *visionllm.Client
	cfg    Config
}

// New builds a Rewriter. A nil vision client is valid: every job then
// falls back to the heuristic block.
func New(cfg Config) *Rewriter {
	cfg = applyDefaults(cfg)
	r := &Rewriter{cfg: cfg}
	if cfg.Enabled && cfg.BaseURL != "" && cfg.Model != "" {
		r.vision = visionllm.New(visionllm.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			ProviderTag: cfg.ProviderTag,
			Timeout:     secondsToDuration(cfg.TimeoutSeconds),
		})
	}
	return r
}

func applyDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Workers > 32 {
		cfg.Workers = 32
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxImagesPerDoc <= 0 {
		cfg.MaxImagesPerDoc = 50
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 3000
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 120
	}
	return cfg
}

// Rewrite processes text, inserting one summary block after each image
// reference, up to MaxImagesPerDoc. Insertion is deterministic: jobs are
// collected by a forward scan keyed by line index, executed concurrently,
// and spliced back in a single second pass.
func (r *Rewriter) Rewrite(ctx context.Context, text string, assets []Asset) (string, Stats) {
	lines := strings.Split(text, "\n")
	idx := buildAssetIndex(assets)
	jobs := collectJobs(lines, idx, r.cfg)

	stats := Stats{TotalImages: len(jobs)}
	if len(jobs) == 0 {
		return text, stats
	}

	blocks := r.runJobs(ctx, jobs, &stats)
	return spliceBlocks(lines, jobs, blocks), stats
}

// runJobs executes jobs over a bounded worker pool (spec §4.4 item 4),
// grounded on the embedding generator's worker-pool shape.
func (r *Rewriter) runJobs(ctx context.Context, jobs []Job, stats *Stats) map[int]string {
	type outcome struct {
		lineIndex int
		block     string
		ai        bool
		ok        bool
	}

	jobsCh := make(chan Job, len(jobs))
	resultsCh := make(chan outcome, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsCh {
				block, usedAI, ok := r.runOne(ctx, job)
				resultsCh <- outcome{lineIndex: job.LineIndex, block: block, ai: usedAI, ok: ok}
			}
		}()
	}
	for _, j := range jobs {
		jobsCh <- j
	}
	close(jobsCh)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	blocks := map[int]string{}
	for res := range resultsCh {
		if res.ai {
			stats.AIAttempted++
			if res.ok {
				stats.AISucceeded++
			} else {
				stats.AIFailed++
			}
		}
		if !res.ai || !res.ok {
			stats.FallbackUsed++
		}
		blocks[res.lineIndex] = appendBlock(blocks[res.lineIndex], res.block)
	}
	return blocks
}

func appendBlock(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}

func (r *Rewriter) runOne(ctx context.Context, job Job) (block string, usedAI bool, ok bool) {
	if r.canCallVision(job) {
		if text, err := r.callVision(ctx, job); err == nil {
			return normalizeVisionReply(text, job.FigID), true, true
		}
		return buildFallbackBlock(job), true, false
	}
	return buildFallbackBlock(job), false, false
}

func (r *Rewriter) canCallVision(job Job) bool {
	if r.vision == nil || !job.HasAsset {
		return false
	}
	if _, err := os.Stat(job.Asset.DiskPath); err != nil {
		return false
	}
	return true
}

func (r *Rewriter) callVision(ctx context.Context, job Job) (string, error) {
	data, err := os.ReadFile(job.Asset.DiskPath)
	if err != nil {
		return "", err
	}
	dataURI := "data:" + mimeFromExt(job.Asset.DiskPath) + ";base64," + base64.StdEncoding.EncodeToString(data)

	prompt := buildUserPrompt(job)
	resp, err := r.vision.Chat(ctx, visionllm.ChatRequest{
		SystemPrompt: defaultSystemPrompt,
		UserText:     prompt,
		Image:        visionllm.ImageContent{DataURI: dataURI},
		Temperature:  r.cfg.Temperature,
		MaxTokens:    r.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func buildUserPrompt(job Job) string {
	var b strings.Builder
	b.WriteString("Summarize this figure for a scientific literature index. ")
	b.WriteString("Respond with a markdown block starting with `- fig_id: " + job.FigID + "`.\n")
	if len(job.Captions) > 0 {
		b.WriteString("Caption candidates: " + strings.Join(job.Captions, " | ") + "\n")
	}
	if len(job.LocalContext) > 0 {
		b.WriteString("Nearby text: " + strings.Join(job.LocalContext, " ") + "\n")
	}
	return b.String()
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

// normalizeVisionReply strips a leading fenced-code marker and guarantees
// the block begins with `- fig_id:` and is wrapped in split markers
// (spec §4.4 item 5).
func normalizeVisionReply(reply, figID string) string {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\n")

	text = strings.TrimPrefix(text, SplitMarker)
	text = strings.TrimSuffix(text, SplitMarker)
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "- fig_id:") {
		text = "- fig_id: " + figID + "\n" + text
	}
	return SplitMarker + "\n" + text + "\n" + SplitMarker
}

func spliceBlocks(lines []string, jobs []Job, blocks map[int]string) string {
	byLine := map[int]struct{}{}
	for _, j := range jobs {
		byLine[j.LineIndex] = struct{}{}
	}

	var out []string
	for i, line := range lines {
		out = append(out, line)
		if _, has := byLine[i]; !has {
			continue
		}
		if block, ok := blocks[i]; ok && block != "" {
			out = append(out, block)
		}
	}
	return strings.Join(out, "\n")
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
