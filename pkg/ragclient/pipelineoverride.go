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

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PipelineOverride is the resolved parentchild_chunker tool-parameter set
// a pipeline YAML override replaces the default process rule fields with.
type PipelineOverride struct {
	ParentMode      string
	ParentDelimiter string
	ParentLength    int
	ChildDelimiter  string
	ChildLength     int
	Clean1          bool
	Clean2          bool
}

// fallbackKeyMap maps the override's logical field names to the
// workflow-variable key they resolve from when no explicit value is set
// (spec §4.6).
var fallbackKeyMap = map[string]string{
	"parent_mode":      "parent_mode",
	"parent_dilmiter":  "parent_delimiter",
	"parent_length":    "parent_length",
	"child_delimiter":  "child_delimiter",
	"child_length":     "child_length",
	"clean_1":          "clean_1",
	"clean_2":          "clean_2",
}

// DiscoverPipelineOverridePath searches, in order: an explicitly
// configured path; the current directory; the client's directory; the
// user's Downloads folder. The filename is `{dataset_name}.pipeline`, with
// suffix variants " (1)", " (2)" also tried (spec §4.6).
func DiscoverPipelineOverridePath(explicitPath, datasetName, clientDir string) (string, bool) {
	if explicitPath != "" {
		if fileExists(explicitPath) {
			return explicitPath, true
		}
	}

	home, _ := os.UserHomeDir()
	dirs := []string{".", clientDir}
	if home != "" {
		dirs = append(dirs, filepath.Join(home, "Downloads"))
	}

	names := []string{
		datasetName + ".pipeline",
		datasetName + " (1).pipeline",
		datasetName + " (2).pipeline",
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if fileExists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// pipelineYAML is the subset of the workflow YAML document this package
// reads: the parentchild_chunker node's tool parameters, and the
// workflow's declared shared-variable defaults.
type pipelineYAML struct {
	Graph struct {
		Nodes []struct {
			Data struct {
				ToolParameters map[string]any `yaml:"tool_parameters"`
			} `yaml:"data"`
			ID string `yaml:"id"`
		} `yaml:"nodes"`
	} `yaml:"graph"`
	RAGPipelineVariables []struct {
		Variable     string `yaml:"variable"`
		DefaultValue any    `yaml:"default_value"`
	} `yaml:"rag_pipeline_variables"`
}

var sharedVarRefRegexp = regexp.MustCompile(`\{\{#rag\.shared\.([a-zA-Z0-9_]+)#\}\}`)

// ParsePipelineOverride reads a pipeline override YAML file, resolves the
// parentchild_chunker node's tool parameters (substituting
// `{{#rag.shared.<var>#}}` references through the workflow's declared
// defaults, falling back to fallbackKeyMap by field name), and returns the
// resolved override.
func ParsePipelineOverride(path string) (PipelineOverride, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PipelineOverride{}, fmt.Errorf("ragclient: read pipeline override: %w", err)
	}

	var doc pipelineYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return PipelineOverride{}, fmt.Errorf("ragclient: parse pipeline override: %w", err)
	}

	defaults := map[string]any{}
	for _, v := range doc.RAGPipelineVariables {
		defaults[v.Variable] = v.DefaultValue
	}

	var params map[string]any
	for _, n := range doc.Graph.Nodes {
		if looksLikeChunkerNode(n.ID, n.Data.ToolParameters) {
			params = n.Data.ToolParameters
			break
		}
	}
	if params == nil {
		for _, n := range doc.Graph.Nodes {
			if len(n.Data.ToolParameters) > 0 {
				params = n.Data.ToolParameters
				break
			}
		}
	}
	if params == nil {
		return PipelineOverride{}, fmt.Errorf("ragclient: no parentchild_chunker node found")
	}

	resolve := func(logicalKey string) string {
		raw, ok := params[logicalKey]
		if !ok {
			raw, ok = params[fallbackKeyMap[logicalKey]]
		}
		if !ok {
			return ""
		}
		return resolveValue(raw, defaults)
	}

	return PipelineOverride{
		ParentMode:      resolve("parent_mode"),
		ParentDelimiter: resolve("parent_dilmiter"),
		ParentLength:    atoiOrZero(resolve("parent_length")),
		ChildDelimiter:  resolve("child_delimiter"),
		ChildLength:     atoiOrZero(resolve("child_length")),
		Clean1:          resolve("clean_1") == "true",
		Clean2:          resolve("clean_2") == "true",
	}, nil
}

func looksLikeChunkerNode(id string, params map[string]any) bool {
	if len(params) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(id), "parentchild_chunker")
}

func resolveValue(raw any, defaults map[string]any) string {
	s := fmt.Sprintf("%v", raw)
	if m := sharedVarRefRegexp.FindStringSubmatch(s); m != nil {
		if v, ok := defaults[m[1]]; ok {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}
	return s
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
