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

func TestDataset_UserBatch(t *testing.T) {
	d := buildTestDataset()
	reviews, counts, ratings, err := d.UserBatch([]int32{0, 2}, 3, 0)
	assert.NoError(t, err)
	// User 0 rated "good" and "bad", user 2 rated "bad bad bad".
	assert.Equal(t, []int{2, 2, 3}, reviews.Shape())
	assert.Equal(t, []float32{
		4, 0, 0, 5, 0, 0,
		5, 5, 5, 0, 0, 0,
	}, reviews.Data())
	assert.Equal(t, []int32{2, 1}, counts)
	assert.Equal(t, []int{2, 3}, ratings.Shape())
	assert.Equal(t, []float32{
		5, 1, 0,
		0, 2, 0,
	}, ratings.Data())
}

func TestDataset_ItemBatch(t *testing.T) {
	d := buildTestDataset()
	reviews, counts, ratings, err := d.ItemBatch([]int32{1}, 2, 0)
	assert.NoError(t, err)
	// Item 1 was reviewed by user 0 with "bad" and user 2 with "bad bad bad".
	assert.Equal(t, []int{1, 2, 2}, reviews.Shape())
	assert.Equal(t, []float32{5, 0, 5, 5}, reviews.Data())
	assert.Equal(t, []int32{2}, counts)
	assert.Equal(t, []int{1, 3}, ratings.Shape())
	assert.Equal(t, []float32{1, 0, 2}, ratings.Data())
}

func TestDataset_Batch_MaxNumReview(t *testing.T) {
	d := buildTestDataset()
	reviews, counts, ratings, err := d.UserBatch([]int32{0}, 3, 1)
	assert.NoError(t, err)
	// Only the first review survives the cap.
	assert.Equal(t, []int{1, 1, 3}, reviews.Shape())
	assert.Equal(t, []float32{4, 0, 0}, reviews.Data())
	assert.Equal(t, []int32{1}, counts)
	// Ratings always cover all feedback.
	assert.Equal(t, []float32{5, 1, 0}, ratings.Data())
}

func TestDataset_Batch_Empty(t *testing.T) {
	d := buildTestDataset()
	_, testSet := d.SplitFeedback(0.5, 0)
	// User 2 has a single feedback and keeps it in the training set, so the
	// test subset has no reviews for it. The padded width never drops below 1.
	reviews, counts, _, err := testSet.UserBatch([]int32{2}, 3, 0)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3}, reviews.Shape())
	assert.Equal(t, []int32{0}, counts)
}

func TestDataset_Batch_Invalid(t *testing.T) {
	d := buildTestDataset()
	_, _, _, err := d.UserBatch([]int32{0}, 0, 0)
	assert.Error(t, err)
	_, _, _, err = d.UserBatch([]int32{3}, 3, 0)
	assert.Error(t, err)
	_, _, _, err = d.ItemBatch([]int32{-1}, 3, 0)
	assert.Error(t, err)
}
