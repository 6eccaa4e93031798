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

func TestDataset_SplitFeedback(t *testing.T) {
	d := buildTestDataset()
	trainSet, testSet := d.SplitFeedback(0.5, 0)
	// Index spaces are shared.
	assert.Equal(t, d.CountUsers(), trainSet.CountUsers())
	assert.Equal(t, d.CountUsers(), testSet.CountUsers())
	assert.Equal(t, d.CountItems(), trainSet.CountItems())
	assert.Equal(t, d.CountItems(), testSet.CountItems())
	assert.Same(t, d.GetVocabulary(), trainSet.GetVocabulary())
	// Every feedback lands on exactly one side.
	assert.Equal(t, d.CountFeedback(), trainSet.CountFeedback()+testSet.CountFeedback())
	// Users 0 and 1 have two feedback each, one on each side.
	for _, userIndex := range []int{0, 1} {
		assert.Len(t, trainSet.GetUserFeedback()[userIndex], 1)
		assert.Len(t, testSet.GetUserFeedback()[userIndex], 1)
	}
	// User 2 has a single feedback and keeps it in the training set.
	assert.Len(t, trainSet.GetUserFeedback()[2], 1)
	assert.Empty(t, testSet.GetUserFeedback()[2])
}

func TestDataset_SplitFeedback_Deterministic(t *testing.T) {
	d := buildTestDataset()
	train1, test1 := d.SplitFeedback(0.5, 42)
	train2, test2 := d.SplitFeedback(0.5, 42)
	assert.Equal(t, train1.GetUserFeedback(), train2.GetUserFeedback())
	assert.Equal(t, test1.GetUserFeedback(), test2.GetUserFeedback())
}

func TestDataset_SplitFeedback_Ratio(t *testing.T) {
	d := buildTestDataset()
	// A non-positive ratio keeps the test set empty.
	trainSet, testSet := d.SplitFeedback(0, 0)
	assert.Equal(t, 5, trainSet.CountFeedback())
	assert.Zero(t, testSet.CountFeedback())
	// The training set keeps at least one feedback per user even when the
	// ratio rounds to the whole history.
	trainSet, testSet = d.SplitFeedback(1, 0)
	assert.Equal(t, 3, trainSet.CountFeedback())
	assert.Equal(t, 2, testSet.CountFeedback())
}
