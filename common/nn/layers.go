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

import "github.com/chewxy/math32"

type Layer interface {
	Parameters() []*Tensor
	Forward(x *Tensor) *Tensor
}

type Model Layer

type LinearLayer struct {
	W *Tensor
	B *Tensor
}

func NewLinear(in, out int) Layer {
	return &LinearLayer{
		W: Normal(0, 1.0/math32.Sqrt(float32(in)), in, out).RequireGrad(),
		B: Zeros(out).RequireGrad(),
	}
}

func (l *LinearLayer) Forward(x *Tensor) *Tensor {
	return Add(MatMul(x, l.W, false, false, 0), l.B)
}

func (l *LinearLayer) Parameters() []*Tensor {
	return []*Tensor{l.W, l.B}
}

type flattenLayer struct{}

func NewFlatten() Layer {
	return &flattenLayer{}
}

func (f *flattenLayer) Parameters() []*Tensor {
	return nil
}

func (f *flattenLayer) Forward(x *Tensor) *Tensor {
	return Flatten(x)
}

type EmbeddingLayer struct {
	W *Tensor
}

func NewEmbedding(n int, shape ...int) Layer {
	wShape := append([]int{n}, shape...)
	return &EmbeddingLayer{
		W: Rand(wShape...),
	}
}

func (e *EmbeddingLayer) Parameters() []*Tensor {
	return []*Tensor{e.W}
}

func (e *EmbeddingLayer) Forward(x *Tensor) *Tensor {
	return Embedding(e.W, x)
}

// BatchNorm normalizes the rows of its input with batch statistics during
// training and with running estimates during inference. It is not a Layer
// because Forward needs the training flag.
type BatchNorm struct {
	Gamma       *Tensor
	Beta        *Tensor
	RunningMean *Tensor
	RunningVar  *Tensor
	Momentum    float32
	Eps         float32
}

func NewBatchNorm(features int) *BatchNorm {
	return &BatchNorm{
		Gamma:       Ones(features).RequireGrad(),
		Beta:        Zeros(features).RequireGrad(),
		RunningMean: Zeros(features),
		RunningVar:  Ones(features),
		Momentum:    0.99,
		Eps:         1e-3,
	}
}

func (b *BatchNorm) Forward(x *Tensor, training bool) *Tensor {
	if training {
		count := NewScalar(float32(x.shape[0]))
		mean := Div(Sum(x, 0), count)
		centered := Sub(x, mean)
		variance := Div(Sum(Square(centered), 0), count)
		for i := range b.RunningMean.data {
			b.RunningMean.data[i] = b.Momentum*b.RunningMean.data[i] + (1-b.Momentum)*mean.data[i]
			b.RunningVar.data[i] = b.Momentum*b.RunningVar.data[i] + (1-b.Momentum)*variance.data[i]
		}
		std := Pow(Add(variance, NewScalar(b.Eps)), NewScalar(0.5))
		return Add(Mul(Div(centered, std), b.Gamma), b.Beta)
	}
	std := b.RunningVar.clone()
	std.add(NewScalar(b.Eps))
	std.pow(NewScalar(0.5))
	return Add(Mul(Div(Sub(x, b.RunningMean), std), b.Gamma), b.Beta)
}

func (b *BatchNorm) Parameters() []*Tensor {
	return []*Tensor{b.Gamma, b.Beta}
}

type sigmoidLayer struct{}

func NewSigmoid() Layer {
	return &sigmoidLayer{}
}

func (s *sigmoidLayer) Parameters() []*Tensor {
	return nil
}

func (s *sigmoidLayer) Forward(x *Tensor) *Tensor {
	return Sigmoid(x)
}

type reluLayer struct{}

func NewReLU() Layer {
	return &reluLayer{}
}

func (r *reluLayer) Parameters() []*Tensor {
	return nil
}

func (r *reluLayer) Forward(x *Tensor) *Tensor {
	return ReLu(x)
}

type Sequential struct {
	Layers []Layer
}

func NewSequential(layers ...Layer) Model {
	return &Sequential{Layers: layers}
}

func (s *Sequential) Parameters() []*Tensor {
	var params []*Tensor
	for _, l := range s.Layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (s *Sequential) Forward(x *Tensor) *Tensor {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}
