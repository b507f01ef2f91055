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

package ragclient

// SegmentationConfig mirrors the dify-style segmentation block.
type SegmentationConfig struct {
	Separator    string
	MaxTokens    int
	ChunkOverlap int
}

// ProcessRuleConfig parameterizes BuildProcessRule.
type ProcessRuleConfig struct {
	Mode                 string // "automatic" or "custom"
	DocForm              string
	RemoveExtraSpaces    bool
	RemoveURLsEmails     bool
	Segmentation         SegmentationConfig
	SubchunkSegmentation SegmentationConfig
	ParentMode           string
	Override             *PipelineOverride
}

// EffectiveDocForm applies the precedence rule: dataset value, else
// configured value, else "text_model"; a mismatch is logged by the caller
// and the dataset value always wins (spec §4.6).
func EffectiveDocForm(datasetDocForm, configuredDocForm string) string {
	if datasetDocForm != "" {
		return datasetDocForm
	}
	if configuredDocForm != "" {
		return configuredDocForm
	}
	return "text_model"
}

// BuildProcessRule builds the process-rule JSON body per spec §4.6. When
// cfg.Override is non-nil its fields replace the corresponding defaults
// before the rule is assembled.
func BuildProcessRule(cfg ProcessRuleConfig) map[string]any {
	cfg = applyOverride(cfg)

	if cfg.Mode != "custom" {
		return map[string]any{"mode": "automatic"}
	}

	rule := map[string]any{
		"mode": "custom",
		"pre_processing_rules": []map[string]any{
			{"id": "remove_extra_spaces", "enabled": cfg.RemoveExtraSpaces},
			{"id": "remove_urls_emails", "enabled": cfg.RemoveURLsEmails},
		},
		"segmentation": map[string]any{
			"separator":     cfg.Segmentation.Separator,
			"max_tokens":    cfg.Segmentation.MaxTokens,
			"chunk_overlap": cfg.Segmentation.ChunkOverlap,
		},
	}

	if cfg.DocForm == "hierarchical_model" {
		rule["parent_mode"] = cfg.ParentMode
		rule["subchunk_segmentation"] = map[string]any{
			"separator":     cfg.SubchunkSegmentation.Separator,
			"max_tokens":    cfg.SubchunkSegmentation.MaxTokens,
			"chunk_overlap": cfg.SubchunkSegmentation.ChunkOverlap,
		}
	}
	return rule
}

func applyOverride(cfg ProcessRuleConfig) ProcessRuleConfig {
	if cfg.Override == nil {
		return cfg
	}
	o := cfg.Override
	if o.ParentMode != "" {
		cfg.ParentMode = o.ParentMode
	}
	if o.ParentDelimiter != "" {
		cfg.Segmentation.Separator = o.ParentDelimiter
	}
	if o.ParentLength > 0 {
		cfg.Segmentation.MaxTokens = o.ParentLength
	}
	if o.ChildDelimiter != "" {
		cfg.SubchunkSegmentation.Separator = o.ChildDelimiter
	}
	if o.ChildLength > 0 {
		cfg.SubchunkSegmentation.MaxTokens = o.ChildLength
	}
	cfg.RemoveExtraSpaces = o.Clean1
	cfg.RemoveURLsEmails = o.Clean2
	return cfg
}

// ChooseUploadMethod implements spec §4.6's upload-choice rule.
func ChooseUploadMethod(runtimeMode, effectiveDocForm string) string {
	if runtimeMode == "rag_pipeline" || effectiveDocForm != "text_model" {
		return "create-by-file"
	}
	return "create-by-text"
}
