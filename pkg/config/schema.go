// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package config implements the runtime configuration provider (spec §4.9):
// a versioned, schema-validated, category/field snapshot with atomic
// persistence and masked display of sensitive fields.
package config

// FieldType names a field's primitive type for coercion and validation.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeEnum   FieldType = "enum"
)

// FieldSchema describes one configuration field: its type, optional numeric
// range, default value, enum options, and whether it carries a secret.
type FieldSchema struct {
	Type      FieldType
	Default   any
	Min       *float64
	Max       *float64
	Options   []string
	Sensitive bool
}

// CategorySchema maps field name to its schema within one category.
type CategorySchema map[string]FieldSchema

// Schema maps category name to its fields. The zero value is not usable;
// use DefaultSchema.
type Schema map[string]CategorySchema

func floatPtr(f float64) *float64 { return &f }

// DefaultSchema returns refingest's built-in configuration schema, covering
// every external collaborator and pipeline knob named in spec §4 and §6.
func DefaultSchema() Schema {
	return Schema{
		"zotero": CategorySchema{
			"base_url":  {Type: TypeString, Default: "http://localhost:23119/api"},
			"page_size": {Type: TypeInt, Default: 50, Min: floatPtr(1), Max: floatPtr(500)},
			"recursive": {Type: TypeBool, Default: true},
		},
		"mineru": CategorySchema{
			"base_url":              {Type: TypeString, Default: ""},
			"api_key":               {Type: TypeString, Default: "", Sensitive: true},
			"model_version":         {Type: TypeString, Default: "v2"},
			"max_batch_files":       {Type: TypeInt, Default: 200, Min: floatPtr(1), Max: floatPtr(200)},
			"max_file_size_mb":      {Type: TypeInt, Default: 200, Min: floatPtr(1), Max: floatPtr(200)},
			"poll_interval_seconds": {Type: TypeInt, Default: 30, Min: floatPtr(1), Max: floatPtr(3600)},
			"poll_timeout_seconds":  {Type: TypeInt, Default: 7200, Min: floatPtr(1), Max: floatPtr(86400)},
		},
		"dify": CategorySchema{
			"base_url":                    {Type: TypeString, Default: ""},
			"api_key":                     {Type: TypeString, Default: "", Sensitive: true},
			"dataset_name":                {Type: TypeString, Default: ""},
			"doc_form":                    {Type: TypeEnum, Default: "text_model", Options: []string{"text_model", "hierarchical_model"}},
			"indexing_technique":          {Type: TypeString, Default: "high_quality"},
			"process_rule_mode":           {Type: TypeEnum, Default: "automatic", Options: []string{"automatic", "custom"}},
			"remove_extra_spaces":         {Type: TypeBool, Default: true},
			"remove_urls_emails":          {Type: TypeBool, Default: false},
			"segmentation_separator":      {Type: TypeString, Default: "\n\n"},
			"segmentation_max_tokens":     {Type: TypeInt, Default: 1000, Min: floatPtr(1), Max: floatPtr(8192)},
			"segmentation_chunk_overlap":  {Type: TypeInt, Default: 50, Min: floatPtr(0), Max: floatPtr(4096)},
			"parent_mode":                 {Type: TypeEnum, Default: "paragraph", Options: []string{"paragraph", "full-doc"}},
			"subchunk_separator":          {Type: TypeString, Default: "\n"},
			"subchunk_max_tokens":         {Type: TypeInt, Default: 500, Min: floatPtr(1), Max: floatPtr(8192)},
			"subchunk_chunk_overlap":      {Type: TypeInt, Default: 0, Min: floatPtr(0), Max: floatPtr(4096)},
			"pipeline_override_path":      {Type: TypeString, Default: ""},
			"index_poll_interval_seconds": {Type: TypeInt, Default: 10, Min: floatPtr(1), Max: floatPtr(3600)},
			"index_max_wait_seconds":      {Type: TypeInt, Default: 1800, Min: floatPtr(1), Max: floatPtr(86400)},
		},
		"md_clean": CategorySchema{
			"collapse_blank_lines":     {Type: TypeBool, Default: true},
			"strip_html":               {Type: TypeBool, Default: true},
			"remove_control_chars":     {Type: TypeBool, Default: true},
			"remove_image_placeholders": {Type: TypeBool, Default: true},
			"remove_page_numbers":      {Type: TypeBool, Default: true},
			"remove_watermark":         {Type: TypeBool, Default: false},
			"watermark_patterns":       {Type: TypeString, Default: ""},
		},
		"image_summary": CategorySchema{
			"enabled":             {Type: TypeBool, Default: true},
			"base_url":            {Type: TypeString, Default: ""},
			"api_key":             {Type: TypeString, Default: "", Sensitive: true},
			"model":               {Type: TypeString, Default: ""},
			"provider_tag":        {Type: TypeEnum, Default: "openai", Options: []string{"openai", "newapi"}},
			"workers":             {Type: TypeInt, Default: 4, Min: floatPtr(1), Max: floatPtr(32)},
			"max_images_per_doc":  {Type: TypeInt, Default: 50, Min: floatPtr(1), Max: floatPtr(1000)},
			"max_context_chars":   {Type: TypeInt, Default: 3000, Min: floatPtr(100), Max: floatPtr(20000)},
			"timeout_seconds":     {Type: TypeInt, Default: 120, Min: floatPtr(1), Max: floatPtr(600)},
			"temperature":         {Type: TypeFloat, Default: 0.2, Min: floatPtr(0), Max: floatPtr(2)},
			"max_tokens":          {Type: TypeInt, Default: 500, Min: floatPtr(1), Max: floatPtr(8192)},
		},
		"smart_split": CategorySchema{
			"strategy":                   {Type: TypeEnum, Default: "paragraph_wrap", Options: []string{"paragraph_wrap", "semantic"}},
			"max_chars":                  {Type: TypeInt, Default: 300000, Min: floatPtr(1000), Max: floatPtr(5000000)},
			"force_split_before_heading": {Type: TypeBool, Default: true},
			"heading_cooldown_elements":  {Type: TypeInt, Default: 2, Min: floatPtr(0), Max: floatPtr(50)},
			"min_split_score":            {Type: TypeFloat, Default: 8.0, Min: floatPtr(-100), Max: floatPtr(100)},
			"search_window":              {Type: TypeInt, Default: 5, Min: floatPtr(0), Max: floatPtr(200)},
			"min_length":                 {Type: TypeInt, Default: 400, Min: floatPtr(0), Max: floatPtr(100000)},
			"length_score_factor":        {Type: TypeInt, Default: 200, Min: floatPtr(1), Max: floatPtr(100000)},
			"heading_bonus":              {Type: TypeFloat, Default: 10.0, Min: floatPtr(-100), Max: floatPtr(100)},
			"sentence_end_bonus":         {Type: TypeFloat, Default: 3.0, Min: floatPtr(-100), Max: floatPtr(100)},
			"sentence_integrity_weight":  {Type: TypeFloat, Default: 4.0, Min: floatPtr(-100), Max: floatPtr(100)},
			"heading_after_penalty":      {Type: TypeFloat, Default: 6.0, Min: floatPtr(-100), Max: floatPtr(100)},
			"custom_heading_patterns":    {Type: TypeString, Default: ""},
		},
		"task": CategorySchema{
			"concurrency": {Type: TypeInt, Default: 1, Min: floatPtr(1), Max: floatPtr(64)},
		},
	}
}

// EnvImportMap names the environment variables imported on first run,
// mapping each to its (category, field) home. Only these fixed names are
// ever consulted; unknown env vars are ignored (spec §6/§9).
func EnvImportMap() map[string][2]string {
	return map[string][2]string{
		"ZOTERO_BASE_URL": {"zotero", "base_url"},
		"ZOTERO_PAGE_SIZE": {"zotero", "page_size"},
		"ZOTERO_RECURSIVE": {"zotero", "recursive"},

		"MINERU_BASE_URL":       {"mineru", "base_url"},
		"MINERU_API_KEY":        {"mineru", "api_key"},
		"MINERU_MODEL_VERSION":  {"mineru", "model_version"},
		"POLL_TIMEOUT_MINERU":   {"mineru", "poll_timeout_seconds"},

		"DIFY_BASE_URL":      {"dify", "base_url"},
		"DIFY_API_KEY":       {"dify", "api_key"},
		"DIFY_DATASET_NAME":  {"dify", "dataset_name"},
		"DIFY_DOC_FORM":      {"dify", "doc_form"},

		"MD_CLEAN_COLLAPSE_BLANK_LINES":  {"md_clean", "collapse_blank_lines"},
		"MD_CLEAN_STRIP_HTML":            {"md_clean", "strip_html"},
		"MD_CLEAN_REMOVE_CONTROL_CHARS":  {"md_clean", "remove_control_chars"},
		"MD_CLEAN_REMOVE_IMAGE_PLACEHOLDERS": {"md_clean", "remove_image_placeholders"},
		"MD_CLEAN_REMOVE_PAGE_NUMBERS":   {"md_clean", "remove_page_numbers"},
		"MD_CLEAN_REMOVE_WATERMARK":      {"md_clean", "remove_watermark"},
		"MD_CLEAN_WATERMARK_PATTERNS":    {"md_clean", "watermark_patterns"},

		"IMAGE_SUMMARY_ENABLED":  {"image_summary", "enabled"},
		"IMAGE_SUMMARY_BASE_URL": {"image_summary", "base_url"},
		"IMAGE_SUMMARY_API_KEY":  {"image_summary", "api_key"},
		"IMAGE_SUMMARY_MODEL":    {"image_summary", "model"},
		"IMAGE_SUMMARY_WORKERS":  {"image_summary", "workers"},

		"SMART_SPLIT_STRATEGY":  {"smart_split", "strategy"},
		"SMART_SPLIT_MAX_CHARS": {"smart_split", "max_chars"},
	}
}
