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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gorse-io/opine/base"
	"github.com/gorse-io/opine/common/nn"
)

func TestSequenceMask(t *testing.T) {
	mask := sequenceMask([]int32{2, 0, 3}, 3)
	assert.Equal(t, []int{3, 3}, mask.Shape())
	assert.Equal(t, []float32{1, 1, 0, 0, 0, 0, 1, 1, 1}, mask.Data())
	// counts beyond the width are capped
	mask = sequenceMask([]int32{5}, 2)
	assert.Equal(t, []float32{1, 1}, mask.Data())
}

func TestIndexTensor(t *testing.T) {
	indices := indexTensor([]int32{3, 1, 2})
	assert.Equal(t, []int{3}, indices.Shape())
	assert.Equal(t, []float32{3, 1, 2}, indices.Data())
}

func TestRatingTower(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	tower := newRatingTower(rng, 10, 8, 4)
	assert.Len(t, tower.Parameters(), 8)
	x := nn.NewTensor(rng.UniformVector(3*10, 0, 1), 3, 10)
	y := tower.Forward(x, true)
	assert.Equal(t, []int{3, 4}, y.Shape())
	y = tower.Forward(x, false)
	assert.Equal(t, []int{3, 4}, y.Shape())
}

func TestTextEncoder(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	embedding := nn.NewTensor(rng.UniformVector(6*4, -0.5, 0.5), 6, 4).RequireGrad()
	encoder := newTextEncoder(rng, embedding, []int{2}, 3)
	assert.Equal(t, 3, encoder.OutputWidth())
	assert.Len(t, encoder.Parameters(), 3)
	x := nn.NewTensor([]float32{
		4, 5, 0,
		1, 0, 0,
		2, 3, 4,
		0, 0, 0,
	}, 2, 2, 3)
	y := encoder.Forward(x, 1)
	assert.Equal(t, []int{2, 2, 3}, y.Shape())

	multi := newTextEncoder(rng, embedding, []int{2, 3}, 3)
	assert.Equal(t, 6, multi.OutputWidth())
	assert.Len(t, multi.Parameters(), 5)
	y = multi.Forward(x, 1)
	assert.Equal(t, []int{2, 2, 6}, y.Shape())
}

func TestAttention(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	att := newAttention(rng, 4, 2)
	assert.Len(t, att.Parameters(), 4)
	reviews := nn.NewTensor(rng.UniformVector(3*2*4, -1, 1), 3, 2, 4)
	ratings := nn.NewTensor(rng.UniformVector(3*4, -1, 1), 3, 4)
	weights := att.Forward(reviews, ratings, []int32{2, 1, 0})
	assert.Equal(t, []int{3, 2}, weights.Shape())
	// weights of real reviews are normalized
	assert.InDelta(t, 1, weights.Data()[0]+weights.Data()[1], 1e-5)
	assert.InDelta(t, 1, weights.Data()[2], 1e-5)
	assert.Equal(t, float32(0), weights.Data()[3])
	// entities without reviews get all zero weights
	assert.Equal(t, float32(0), weights.Data()[4])
	assert.Equal(t, float32(0), weights.Data()[5])
}
