// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	filter := NewTopKFilter[int32, float32](3)
	scores := []float32{0.5, 0.1, 0.9, 0.3, 0.7, 0.2}
	for item, score := range scores {
		filter.Push(int32(item), score)
	}
	elems := filter.PopAll()
	assert.Equal(t, []Elem[int32, float32]{
		{Value: 2, Weight: 0.9},
		{Value: 4, Weight: 0.7},
		{Value: 0, Weight: 0.5},
	}, elems)
}

func TestTopKFilter_Underfilled(t *testing.T) {
	filter := NewTopKFilter[int32, float32](10)
	filter.Push(1, 0.2)
	filter.Push(2, 0.4)
	elems := filter.PopAll()
	assert.Equal(t, []Elem[int32, float32]{
		{Value: 2, Weight: 0.4},
		{Value: 1, Weight: 0.2},
	}, elems)
}

func TestTopKFilter_PopAllValues(t *testing.T) {
	filter := NewTopKFilter[string, int](2)
	counts := map[string]int{"good": 16, "bad": 8, "ugly": 4}
	for token, count := range counts {
		filter.Push(token, count)
	}
	assert.Equal(t, []string{"good", "bad"}, filter.PopAllValues())
}
