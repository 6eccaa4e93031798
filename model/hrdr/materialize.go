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
	"context"
	"encoding/binary"
	"io"

	"github.com/juju/errors"

	"github.com/gorse-io/opine/base/encoding"
	"github.com/gorse-io/opine/base/progress"
	"github.com/gorse-io/opine/common/util"
	"github.com/gorse-io/opine/dataset"
)

// ServingWeights are dense weights exported from a trained model. Scoring a
// user item pair needs neither the network nor the training set once weights
// are materialized.
type ServingWeights struct {
	UserFactor [][]float32 // fused user representations
	ItemFactor [][]float32 // fused item representations
	Attention  [][]float32 // review attention per item, zero padded
	W1         []float32
	UserBias   []float32
	ItemBias   []float32
	GlobalBias float32
}

// Score predicts the preference of a user for an item from materialized
// weights.
func (weights *ServingWeights) Score(userIndex, itemIndex int32) float32 {
	userFactor := weights.UserFactor[userIndex]
	itemFactor := weights.ItemFactor[itemIndex]
	sum := weights.GlobalBias + weights.UserBias[userIndex] + weights.ItemBias[itemIndex]
	for i, weight := range weights.W1 {
		sum += weight * userFactor[i] * itemFactor[i]
	}
	return sum
}

// Marshal serializes serving weights into a binary stream.
func (weights *ServingWeights) Marshal(w io.Writer) error {
	attentionWidth := 0
	if len(weights.Attention) > 0 {
		attentionWidth = len(weights.Attention[0])
	}
	dimensions := []int32{
		int32(len(weights.UserFactor)),
		int32(len(weights.ItemFactor)),
		int32(len(weights.W1)),
		int32(attentionWidth),
	}
	if err := binary.Write(w, binary.LittleEndian, dimensions); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, weights.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, weights.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, weights.Attention); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, weights.W1); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, weights.UserBias); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, weights.ItemBias); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Write(w, binary.LittleEndian, weights.GlobalBias))
}

// Unmarshal deserializes serving weights from a binary stream.
func (weights *ServingWeights) Unmarshal(r io.Reader) error {
	dimensions := make([]int32, 4)
	if err := binary.Read(r, binary.LittleEndian, dimensions); err != nil {
		return errors.Trace(err)
	}
	numUsers, numItems := int(dimensions[0]), int(dimensions[1])
	width, attentionWidth := int(dimensions[2]), int(dimensions[3])
	weights.UserFactor = util.NewMatrix32(numUsers, width)
	weights.ItemFactor = util.NewMatrix32(numItems, width)
	weights.Attention = util.NewMatrix32(numItems, attentionWidth)
	if err := encoding.ReadMatrix(r, weights.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadMatrix(r, weights.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadMatrix(r, weights.Attention); err != nil {
		return errors.Trace(err)
	}
	weights.W1 = make([]float32, width)
	if err := encoding.ReadVector(r, weights.W1); err != nil {
		return errors.Trace(err)
	}
	weights.UserBias = make([]float32, numUsers)
	if err := encoding.ReadVector(r, weights.UserBias); err != nil {
		return errors.Trace(err)
	}
	weights.ItemBias = make([]float32, numItems)
	if err := encoding.ReadVector(r, weights.ItemBias); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(binary.Read(r, binary.LittleEndian, &weights.GlobalBias))
}

// MaterializeWeights runs the trained model over every user and item and
// exports dense weights for serving. batchSize and maxNumReview fall back to
// 64 and 32 when not positive. Review attention is exported for items only
// and rows are zero padded to maxNumReview.
func (h *HRDR) MaterializeWeights(trainSet dataset.Split, batchSize, maxNumReview int) (*ServingWeights, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	if maxNumReview <= 0 {
		maxNumReview = 32
	}
	numUsers, numItems := trainSet.CountUsers(), trainSet.CountItems()
	weights := &ServingWeights{
		UserFactor: make([][]float32, numUsers),
		ItemFactor: make([][]float32, numItems),
		Attention:  make([][]float32, numItems),
		W1:         make([]float32, len(h.w1.Data())),
		UserBias:   make([]float32, numUsers),
		ItemBias:   make([]float32, numItems),
		GlobalBias: h.globalBias.Data()[0],
	}
	copy(weights.W1, h.w1.Data())
	copy(weights.UserBias, h.userBias.Data())
	copy(weights.ItemBias, h.itemBias.Data())

	userBatches := trainSet.UserIter(batchSize)
	itemBatches := trainSet.ItemIter(batchSize)
	_, span := progress.Start(context.Background(), "HRDR.MaterializeWeights", len(userBatches)+len(itemBatches))
	for _, batch := range userBatches {
		userFactor, _, err := h.userRepresentations(trainSet, batch, maxNumReview, false, 0)
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		width := userFactor.Shape()[1]
		for offset, userIndex := range batch {
			row := make([]float32, width)
			copy(row, userFactor.Data()[offset*width:(offset+1)*width])
			weights.UserFactor[userIndex] = row
		}
		span.Add(1)
	}
	for _, batch := range itemBatches {
		itemFactor, attention, err := h.itemRepresentations(trainSet, batch, maxNumReview, false, 0)
		if err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		width := itemFactor.Shape()[1]
		numReviews := attention.Shape()[1]
		for offset, itemIndex := range batch {
			row := make([]float32, width)
			copy(row, itemFactor.Data()[offset*width:(offset+1)*width])
			weights.ItemFactor[itemIndex] = row
			attentionRow := make([]float32, maxNumReview)
			copy(attentionRow, attention.Data()[offset*numReviews:(offset+1)*numReviews])
			weights.Attention[itemIndex] = attentionRow
		}
		span.Add(1)
	}
	span.End()
	return weights, nil
}
