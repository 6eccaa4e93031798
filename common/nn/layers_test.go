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

package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearLayer(t *testing.T) {
	layer := NewLinear(3, 5)
	x := Rand(4, 3)
	y := layer.Forward(x)
	assert.Equal(t, []int{4, 5}, y.Shape())
	assert.Len(t, layer.Parameters(), 2)
}

func TestEmbeddingLayer(t *testing.T) {
	layer := NewEmbedding(10, 4)
	x := NewTensor([]float32{1, 3, 5}, 3)
	y := layer.Forward(x)
	assert.Equal(t, []int{3, 4}, y.Shape())
	assert.Len(t, layer.Parameters(), 1)
}

func TestBatchNorm(t *testing.T) {
	bn := NewBatchNorm(3)
	x := NewTensor([]float32{1, 2, 3, 3, 4, 5, 5, 6, 7, 7, 8, 9}, 4, 3)
	y := bn.Forward(x, true)
	assert.Equal(t, []int{4, 3}, y.Shape())

	// Each column is normalized to zero mean and unit variance.
	for j := 0; j < 3; j++ {
		var mean, variance float32
		for i := 0; i < 4; i++ {
			mean += y.Get(i, j)
		}
		mean /= 4
		for i := 0; i < 4; i++ {
			variance += (y.Get(i, j) - mean) * (y.Get(i, j) - mean)
		}
		variance /= 4
		assert.InDelta(t, float64(0), mean, 1e-5)
		assert.InDelta(t, float64(1), variance, 1e-2)
	}

	// Running statistics absorb a fraction of the batch statistics.
	assert.InDelta(t, float64(0.04), bn.RunningMean.Data()[0], 1e-5)
	assert.InDelta(t, float64(1.04), bn.RunningVar.Data()[0], 1e-5)

	// Gradients flow into gamma and beta.
	loss := Sum(y)
	loss.Backward()
	assert.InDeltaSlice(t, []float32{0, 0, 0}, bn.Gamma.Grad().Data(), 1e-4)
	assert.InDeltaSlice(t, []float32{4, 4, 4}, bn.Beta.Grad().Data(), 1e-5)
}

func TestBatchNormInference(t *testing.T) {
	bn := NewBatchNorm(2)
	bn.RunningMean = NewTensor([]float32{1, 2}, 2)
	bn.RunningVar = NewTensor([]float32{4, 9}, 2)
	x := NewTensor([]float32{3, 5, 1, 2}, 2, 2)
	y := bn.Forward(x, false)
	assert.InDeltaSlice(t, []float32{1, 1, 0, 0}, y.Data(), 1e-3)

	// Inference does not change running statistics.
	assert.Equal(t, []float32{1, 2}, bn.RunningMean.Data())
	assert.Equal(t, []float32{4, 9}, bn.RunningVar.Data())
}
