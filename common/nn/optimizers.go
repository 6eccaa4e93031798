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
	"github.com/chewxy/math32"
)

type Optimizer interface {
	SetWeightDecay(rate float32)
	ZeroGrad()
	Step()
}

type baseOptimizer struct {
	params []*Tensor
	wd     float32
}

func (o *baseOptimizer) ZeroGrad() {
	for _, p := range o.params {
		p.grad = nil
	}
}

func (o *baseOptimizer) SetWeightDecay(wd float32) {
	o.wd = wd
}

type SGD struct {
	baseOptimizer
	lr float32
}

func NewSGD(params []*Tensor, lr float32) Optimizer {
	return &SGD{
		baseOptimizer: baseOptimizer{params: params},
		lr:            lr,
	}
}

func (s *SGD) Step() {
	for _, p := range s.params {
		if p.grad == nil {
			continue
		}
		for i := range p.data {
			p.data[i] -= s.lr * (p.grad.data[i] + p.data[i]*s.wd)
		}
	}
}

type moments struct {
	m *Tensor // first moment of the gradient
	v *Tensor // second moment of the gradient
}

type Adam struct {
	baseOptimizer
	alpha   float32
	beta1   float32
	beta2   float32
	eps     float32
	moments map[*Tensor]moments
	t       float32
}

func NewAdam(params []*Tensor, alpha float32) Optimizer {
	return &Adam{
		baseOptimizer: baseOptimizer{params: params},
		alpha:         alpha,
		beta1:         0.9,
		beta2:         0.999,
		eps:           1e-8,
		moments:       make(map[*Tensor]moments),
	}
}

func (a *Adam) Step() {
	a.t++

	// The learning rate carries the bias correction of both moments.
	fix1 := 1 - math32.Pow(a.beta1, a.t)
	fix2 := 1 - math32.Pow(a.beta2, a.t)
	lr := a.alpha * math32.Sqrt(fix2) / fix1

	for _, p := range a.params {
		if p.grad == nil {
			continue
		}
		state, ok := a.moments[p]
		if !ok {
			state = moments{m: Zeros(p.shape...), v: Zeros(p.shape...)}
			a.moments[p] = state
		}
		for i := range p.data {
			g := p.grad.data[i] + a.wd*p.data[i]
			state.m.data[i] += (1 - a.beta1) * (g - state.m.data[i])
			state.v.data[i] += (1 - a.beta2) * (g*g - state.v.data[i])
			p.data[i] -= lr * state.m.data[i] / (math32.Sqrt(state.v.data[i]) + a.eps)
		}
	}
}
