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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSupportedExtension(t *testing.T) {
	assert.True(t, IsSupportedExtension("pdf"))
	assert.True(t, IsSupportedExtension(".PDF"))
	assert.True(t, IsSupportedExtension("JPEG"))
	assert.False(t, IsSupportedExtension("txt"))
	assert.False(t, IsSupportedExtension("epub"))
}

func TestTaskKeyAndItemKey(t *testing.T) {
	key := TaskKey("ABCD1234", 2)
	assert.Equal(t, "ABCD1234#2", key)
	assert.Equal(t, "ABCD1234", ItemKey(key))
}

func TestPartKeyAndIsPartKey(t *testing.T) {
	parent := TaskKey("ABCD1234", 0)
	part := PartKey(parent, 3)
	assert.Equal(t, "ABCD1234#0#part3", part)

	gotParent, gotPart, ok := IsPartKey(part)
	assert.True(t, ok)
	assert.Equal(t, parent, gotParent)
	assert.Equal(t, 3, gotPart)

	_, _, ok = IsPartKey(parent)
	assert.False(t, ok)
}
