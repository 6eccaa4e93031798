// Copyright 2025 gorse Project Authors
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

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildTestDataset creates a dataset of 3 users, 3 items and 5 rated reviews.
// Word frequencies are distinct so word ids are deterministic: good=4, bad=5,
// soso=6.
func buildTestDataset() *Dataset {
	vocab := BuildVocabulary([]string{"good good good", "bad bad", "soso"}, 0)
	d := NewDataset(vocab, 3, 3)
	d.AddFeedback("1", "a", 5, "good")
	d.AddFeedback("1", "b", 1, "bad")
	d.AddFeedback("2", "a", 4, "good good")
	d.AddFeedback("2", "c", 3, "soso")
	d.AddFeedback("3", "b", 2, "bad bad bad")
	return d
}

func TestDataset_AddFeedback(t *testing.T) {
	d := buildTestDataset()
	assert.Equal(t, 3, d.CountUsers())
	assert.Equal(t, 3, d.CountItems())
	assert.Equal(t, 5, d.CountFeedback())
	assert.Equal(t, [][]int32{{0, 1}, {0, 2}, {1}}, d.GetUserFeedback())
	assert.Equal(t, [][]int32{{0, 1}, {0, 2}, {1}}, d.GetItemFeedback())

	userIndex, ok := d.GetUserDict().ToNumber("2")
	assert.True(t, ok)
	assert.Equal(t, 1, userIndex)
	itemIndex, ok := d.GetItemDict().ToNumber("c")
	assert.True(t, ok)
	assert.Equal(t, 2, itemIndex)
	assert.Equal(t, int32(6), d.GetVocabulary().Id("soso"))
}

func TestDataset_GlobalMean(t *testing.T) {
	d := NewDataset(NewVocabulary(), 0, 0)
	assert.Zero(t, d.GlobalMean())
	d = buildTestDataset()
	assert.Equal(t, float32(3), d.GlobalMean())
}

func TestDataset_Iter(t *testing.T) {
	d := buildTestDataset()
	assert.Equal(t, [][]int32{{0, 1}, {2}}, d.UserIter(2))
	assert.Equal(t, [][]int32{{0, 1, 2}}, d.ItemIter(5))
}

func TestDataset_NegativeSample(t *testing.T) {
	d := buildTestDataset()
	// Each user has so few candidates that sampling is exhaustive.
	negatives := d.NegativeSample(d, 2)
	assert.Equal(t, [][]int32{{2}, {1}, {0, 2}}, negatives)
	// Samples are memoized.
	assert.Equal(t, negatives, d.NegativeSample(d, 2))
}
