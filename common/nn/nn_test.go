// Copyright 2024 gorse Project Authors
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
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestLinearRegression(t *testing.T) {
	x := Rand(100, 1)
	y := Add(Rand(100, 1), NewScalar(5), Mul(NewScalar(2), x))

	w := Zeros(1, 1)
	b := Zeros(1)
	predict := func(x *Tensor) *Tensor { return Add(MatMul(x, w, false, false, 0), b) }

	lr := float32(0.1)
	for i := 0; i < 100; i++ {
		yPred := predict(x)
		loss := MeanSquareError(y, yPred)

		w.grad = nil
		b.grad = nil
		loss.Backward()

		w.sub(w.grad.mul(NewScalar(lr)))
		b.sub(b.grad.mul(NewScalar(lr)))
	}

	assert.Equal(t, []int{1, 1}, w.shape)
	assert.InDelta(t, float64(2), w.data[0], 0.5)
	assert.Equal(t, []int{1}, b.shape)
	assert.InDelta(t, float64(5.5), b.data[0], 0.6)
}

func TestNeuralNetwork(t *testing.T) {
	x := Rand(100, 1)
	y := Add(Rand(100, 1), Sin(Mul(x, NewScalar(2*math32.Pi))))

	model := NewSequential(
		NewLinear(1, 10),
		NewSigmoid(),
		NewLinear(10, 1),
	)
	NormalInit(model.(*Sequential).Layers[0].(*LinearLayer).W, 0, 0.01)
	NormalInit(model.(*Sequential).Layers[2].(*LinearLayer).W, 0, 0.01)
	optimizer := NewSGD(model.Parameters(), 0.2)

	var l float32
	for i := 0; i < 10000; i++ {
		yPred := model.Forward(x)
		loss := MeanSquareError(y, yPred)

		optimizer.ZeroGrad()
		loss.Backward()

		optimizer.Step()
		l = loss.data[0]
	}
	assert.InDelta(t, float64(0), l, 0.1)
}

// blobs samples points around anchor corners so that each class is linearly
// separable from the others.
func blobs(n, classes int) (*Tensor, *Tensor) {
	data := make([]float32, n*2)
	target := make([]float32, n)
	for i := 0; i < n; i++ {
		c := i % classes
		angle := 2 * math32.Pi * float32(c) / float32(classes)
		data[i*2] = 4*math32.Cos(angle) + float32(rand.NormFloat64())*0.5
		data[i*2+1] = 4*math32.Sin(angle) + float32(rand.NormFloat64())*0.5
		target[i] = float32(c)
	}
	return NewTensor(data, n, 2), NewTensor(target, n)
}

func TestClassification(t *testing.T) {
	x, y := blobs(300, 3)

	model := NewSequential(
		NewLinear(2, 100),
		NewReLU(),
		NewLinear(100, 3),
	)
	optimizer := NewAdam(model.Parameters(), 0.01)

	var l float32
	for i := 0; i < 1000; i++ {
		yPred := model.Forward(x)
		loss := SoftmaxCrossEntropy(yPred, y)

		optimizer.ZeroGrad()
		loss.Backward()

		optimizer.Step()
		l = loss.data[0]
	}
	assert.InDelta(t, float32(0), l, 0.1)

	// All training points should be recovered.
	yPred := model.Forward(x)
	var precision float32
	for i, gt := range y.data {
		if yPred.Slice(i, i+1).argmax()[1] == int(gt) {
			precision += 1
		}
	}
	precision /= float32(len(y.data))
	assert.Greater(t, precision, float32(0.95))
}

// PairwiseLoss stays positive and finite, and decreases as positive scores
// pull ahead of negative ones.
func TestPairwiseLoss(t *testing.T) {
	negative := NewTensor([]float32{-1, -0.5, 0, 0.5, 1}, 5)
	last := float32(math32.MaxFloat32)
	for _, shift := range []float32{-2, -1, 0, 1, 2, 4} {
		data := make([]float32, len(negative.data))
		for i, v := range negative.data {
			data[i] = v + shift
		}
		loss := PairwiseLoss(NewTensor(data, 5), negative)
		assert.False(t, math32.IsInf(loss.data[0], 0))
		assert.Positive(t, loss.data[0])
		assert.Less(t, loss.data[0], last)
		last = loss.data[0]
	}
}
