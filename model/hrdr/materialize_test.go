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

package hrdr

import (
	"bytes"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"

	"github.com/gorse-io/opine/common/floats"
	"github.com/gorse-io/opine/common/nn"
	"github.com/gorse-io/opine/dataset"
	"github.com/gorse-io/opine/model"
)

func TestServingWeights_Score(t *testing.T) {
	weights := &ServingWeights{
		UserFactor: [][]float32{{1, 2}},
		ItemFactor: [][]float32{{3, 4}},
		W1:         []float32{0.5, 0.25},
		UserBias:   []float32{0.1},
		ItemBias:   []float32{0.2},
		GlobalBias: 3,
	}
	// 0.5*1*3 + 0.25*2*4 + 0.1 + 0.2 + 3
	assert.InDelta(t, 6.8, weights.Score(0, 0), 1e-6)
}

func TestServingWeights_Marshal(t *testing.T) {
	weights := &ServingWeights{
		UserFactor: [][]float32{{1, 2}, {3, 4}},
		ItemFactor: [][]float32{{5, 6}, {7, 8}, {9, 10}},
		Attention:  [][]float32{{0.5, 0.5, 0}, {1, 0, 0}, {0, 0, 0}},
		W1:         []float32{0.1, 0.2},
		UserBias:   []float32{0.3, 0.4},
		ItemBias:   []float32{0.5, 0.6, 0.7},
		GlobalBias: 3.5,
	}
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, weights.Marshal(buf))
	loaded := new(ServingWeights)
	assert.NoError(t, loaded.Unmarshal(buf))
	assert.Equal(t, weights, loaded)
}

func TestHRDR_MaterializeWeights(t *testing.T) {
	trainSet := newTestDataset()
	h := NewHRDR(testParams(nil))
	h.Init(trainSet)
	weights, err := h.MaterializeWeights(trainSet, 3, 8)
	assert.NoError(t, err)
	width := 4 + 2 + 3
	assert.Len(t, weights.UserFactor, 4)
	assert.Len(t, weights.ItemFactor, 4)
	assert.Len(t, weights.Attention, 4)
	assert.Len(t, weights.UserFactor[0], width)
	assert.Len(t, weights.ItemFactor[3], width)
	assert.Len(t, weights.Attention[0], 8)
	assert.Len(t, weights.W1, width)
	assert.Equal(t, h.globalBias.Data()[0], weights.GlobalBias)
	// materialized scores match full predictions
	for userIndex := int32(0); userIndex < 4; userIndex++ {
		for itemIndex := int32(0); itemIndex < 4; itemIndex++ {
			assert.InDelta(t, h.internalPredict(userIndex, itemIndex),
				weights.Score(userIndex, itemIndex), 1e-4)
		}
	}
	// attention weights of each item sum to one over its reviews
	for itemIndex, feedback := range trainSet.GetItemFeedback() {
		if len(feedback) > 0 {
			assert.InDelta(t, 1, floats.Sum(weights.Attention[itemIndex]), 1e-4)
		}
	}
}

func TestHRDR_MaterializeWeights_Rectangular(t *testing.T) {
	// more users than items, so swapped user/item dimensions cannot go unnoticed
	vocab := dataset.BuildVocabulary([]string{
		"good camera", "bad screen", "good value",
	}, 0)
	d := dataset.NewDataset(vocab, 3, 2)
	d.AddFeedback("u1", "a", 5, "good camera")
	d.AddFeedback("u2", "b", 2, "bad screen")
	d.AddFeedback("u3", "a", 4, "good value")
	h := NewHRDR(testParams(model.Params{model.MaxTextLength: 5, model.BatchSize: 2}))
	h.Init(d)

	optimizer := nn.NewAdam(h.parameters(), h.lr)
	users, positives, negatives := h.sampleBatch(d, feedbackSets(d))
	loss, err := h.trainStep(optimizer, users, positives, negatives, 1)
	assert.NoError(t, err)
	assert.False(t, math32.IsNaN(loss))
	assert.GreaterOrEqual(t, loss, float32(0))

	weights, err := h.MaterializeWeights(d, 2, 4)
	assert.NoError(t, err)
	width := 4 + 2 + 3
	assert.Len(t, weights.UserFactor, 3)
	assert.Len(t, weights.ItemFactor, 2)
	assert.Len(t, weights.Attention, 2)
	for _, row := range weights.UserFactor {
		assert.Len(t, row, width)
	}
	for i, row := range weights.Attention {
		assert.Len(t, row, 4)
		assert.InDelta(t, 1, floats.Sum(row), 1e-4)
		assert.Len(t, weights.ItemFactor[i], width)
	}
	for userIndex := int32(0); userIndex < 3; userIndex++ {
		for itemIndex := int32(0); itemIndex < 2; itemIndex++ {
			assert.InDelta(t, h.internalPredict(userIndex, itemIndex),
				weights.Score(userIndex, itemIndex), 1e-4)
		}
	}
}

func TestHRDR_MaterializeWeights_EmptyReviews(t *testing.T) {
	d := newTestDataset()
	// users with a single feedback keep it in the training half, so item "e"
	// has no reviews in the test half
	d.AddFeedback("5", "e", 3, "ok")
	_, testSet := d.SplitFeedback(0.5, 0)
	h := NewHRDR(testParams(nil))
	h.Init(testSet)
	weights, err := h.MaterializeWeights(testSet, 2, 4)
	assert.NoError(t, err)
	itemIndex, ok := testSet.GetItemDict().ToNumber("e")
	assert.True(t, ok)
	assert.Empty(t, testSet.GetItemFeedback()[itemIndex])
	assert.Equal(t, make([]float32, 4), weights.Attention[itemIndex])
	// items without reviews still get usable representations
	assert.Len(t, weights.ItemFactor[itemIndex], 4+2+3)
}

func TestHRDR_MaterializeWeights_Defaults(t *testing.T) {
	trainSet := newTestDataset()
	h := NewHRDR(testParams(nil))
	h.Init(trainSet)
	weights, err := h.MaterializeWeights(trainSet, 0, 0)
	assert.NoError(t, err)
	assert.Len(t, weights.Attention[0], 32)
}
