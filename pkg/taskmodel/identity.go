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

package taskmodel

import (
	"fmt"
	"strconv"
	"strings"
)

// SupportedExtensions are the file extensions eligible for OCR ingestion,
// per spec §3. Matching is case-insensitive and ignores the leading dot.
var SupportedExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
	"ppt":  {},
	"pptx": {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// IsSupportedExtension reports whether ext (with or without a leading dot)
// is one of the extensions the pipeline will send to OCR.
func IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	_, ok := SupportedExtensions[ext]
	return ok
}

// TaskKey builds the task_key that addresses the index-th supported
// attachment (zero-based, sorted by path) of itemKey.
func TaskKey(itemKey string, index int) string {
	return fmt.Sprintf("%s#%d", itemKey, index)
}

// PartKey builds the child task_key for part k (1-based) of parentTaskKey,
// produced when the upload-size partitioner splits a document.
func PartKey(parentTaskKey string, k int) string {
	return fmt.Sprintf("%s#part%d", parentTaskKey, k)
}

// ItemKey extracts the item_key portion of a task_key (the text before the
// first "#"). Returns the input unchanged if it has no "#".
func ItemKey(taskKey string) string {
	if i := strings.IndexByte(taskKey, '#'); i >= 0 {
		return taskKey[:i]
	}
	return taskKey
}

// IsPartKey reports whether taskKey addresses a part produced by the
// upload-size partitioner (carries a "#partN" suffix) and, if so, returns
// the parent task key and 1-based part number.
func IsPartKey(taskKey string) (parent string, part int, ok bool) {
	idx := strings.LastIndex(taskKey, "#part")
	if idx < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(taskKey[idx+len("#part"):])
	if err != nil {
		return "", 0, false
	}
	return taskKey[:idx], n, true
}
