// Copyright 2026 PhotoFS Authors
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

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"/", ""},
		{"", ""},
		{".", ""},
		{"/Photos", "Photos"},
		{"Photos/", "Photos"},
		{"/Photos/Travel/", "Photos/Travel"},
		{"Photos//Travel", "Photos/Travel"},
		{"Photos/./Travel", "Photos/Travel"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), "NormalizePath(%q)", tt.in)
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SplitPath("/"))
	assert.Nil(t, SplitPath(""))
	assert.Equal(t, []string{"Photos"}, SplitPath("/Photos"))
	assert.Equal(t, []string{"Photos", "Travel", "a.jpg"}, SplitPath("/Photos/Travel/a.jpg"))
}
