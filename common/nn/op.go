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
	"sync"

	"github.com/chewxy/math32"
	"github.com/gorse-io/opine/common/floats"
)

type op interface {
	String() string
	forward(inputs ...*Tensor) *Tensor
	backward(dy *Tensor) []*Tensor
	inputsAndOutput() ([]*Tensor, *Tensor)
	setInputs(inputs ...*Tensor)
	setOutput(y *Tensor)
}

type base struct {
	inputs []*Tensor
	output *Tensor
}

func (b *base) inputsAndOutput() ([]*Tensor, *Tensor) {
	return b.inputs, b.output
}

func (b *base) setInputs(inputs ...*Tensor) {
	b.inputs = inputs
}

func (b *base) setOutput(y *Tensor) {
	b.output = y
}

func apply[T op](f T, inputs ...*Tensor) *Tensor {
	y := f.forward(inputs...)
	f.setInputs(inputs...)
	f.setOutput(y)
	y.op = f
	return y
}

type add struct {
	base
}

func (a *add) String() string {
	return "Add"
}

func (a *add) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.add(inputs[1])
	return y
}

func (a *add) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := Zeros(a.inputs[1].shape...)
	wSize := 1
	for i := range gx1.shape {
		wSize *= gx1.shape[i]
	}
	for i := range dy.data {
		gx1.data[i%wSize] += dy.data[i]
	}
	return []*Tensor{gx0, gx1}
}

type sub struct {
	base
}

func (s *sub) String() string {
	return "Sub"
}

func (s *sub) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.sub(inputs[1])
	return y
}

func (s *sub) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx1 := Zeros(s.inputs[1].shape...)
	wSize := 1
	for i := range gx1.shape {
		wSize *= gx1.shape[i]
	}
	for i := range dy.data {
		gx1.data[i%wSize] -= dy.data[i]
	}
	return []*Tensor{gx0, gx1}
}

type mul struct {
	base
}

func (m *mul) String() string {
	return "Mul"
}

func (m *mul) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.mul(inputs[1])
	return y
}

func (m *mul) backward(dy *Tensor) []*Tensor {
	gx0 := dy.clone()
	gx0.mul(m.inputs[1])
	gx1 := Zeros(m.inputs[1].shape...)
	wSize := 1
	for i := range gx1.shape {
		wSize *= gx1.shape[i]
	}
	for i := range dy.data {
		gx1.data[i%wSize] += dy.data[i] * m.inputs[0].data[i]
	}
	return []*Tensor{gx0, gx1}
}

type div struct {
	base
}

func (d *div) String() string {
	return "Div"
}

func (d *div) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.div(inputs[1])
	return y
}

func (d *div) backward(dy *Tensor) []*Tensor {
	wSize := 1
	for i := range d.inputs[1].shape {
		wSize *= d.inputs[1].shape[i]
	}
	gx0 := Zeros(d.inputs[0].shape...)
	for i := range dy.data {
		gx0.data[i] = dy.data[i] / d.inputs[1].data[i%wSize]
	}
	gx1 := Zeros(d.inputs[1].shape...)
	for i := range dy.data {
		gx1.data[i%wSize] -= dy.data[i] * d.inputs[0].data[i] / d.inputs[1].data[i%wSize] / d.inputs[1].data[i%wSize]
	}
	return []*Tensor{gx0, gx1}
}

type sin struct {
	base
}

func (s *sin) String() string {
	return "Sin"
}

func (s *sin) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.sin()
	return y
}

func (s *sin) backward(dy *Tensor) []*Tensor {
	dx := s.inputs[0].clone()
	dx.cos()
	dx.mul(dy)
	return []*Tensor{dx}
}

type cos struct {
	base
}

func (c *cos) String() string {
	return "Cos"
}

func (c *cos) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.cos()
	return y
}

func (c *cos) backward(dy *Tensor) []*Tensor {
	dx := c.inputs[0].clone()
	dx.sin()
	dx.neg()
	dx.mul(dy)
	return []*Tensor{dx}
}

type square struct {
	base
}

func (s *square) String() string {
	return "Square"
}

func (s *square) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.square()
	return y
}

func (s *square) backward(dy *Tensor) []*Tensor {
	dx := s.inputs[0].clone()
	dx.mul(dy)
	for i := range dx.data {
		dx.data[i] *= 2
	}
	return []*Tensor{dx}
}

type pow struct {
	base
}

func (p *pow) String() string {
	return "Pow"
}

func (p *pow) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.pow(inputs[1])
	return y
}

func (p *pow) backward(dy *Tensor) []*Tensor {
	dx0 := p.inputs[0].clone()
	dx0.pow(p.inputs[1])
	dx0.mul(p.inputs[1])
	dx0.div(p.inputs[0])
	dx0.mul(dy)
	wSize := 1
	for i := range p.inputs[1].shape {
		wSize *= p.inputs[1].shape[i]
	}
	dx1 := Zeros(p.inputs[1].shape...)
	for i := range dy.data {
		dx1.data[i%wSize] += dy.data[i] * p.output.data[i] * math32.Log(p.inputs[0].data[i])
	}
	return []*Tensor{dx0, dx1}
}

type exp struct {
	base
}

func (e *exp) String() string {
	return "Exp"
}

func (e *exp) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.exp()
	return y
}

func (e *exp) backward(dy *Tensor) []*Tensor {
	dx := e.output.clone()
	dx.mul(dy)
	return []*Tensor{dx}
}

type log struct {
	base
}

func (l *log) String() string {
	return "Log"
}

func (l *log) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.log()
	return y
}

func (l *log) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	dx.div(l.inputs[0])
	return []*Tensor{dx}
}

type sum struct {
	base
}

func (s *sum) String() string {
	return "Sum"
}

func (s *sum) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	y := NewScalar(0)
	for i := range x.data {
		y.data[0] += x.data[i]
	}
	return y
}

func (s *sum) backward(dy *Tensor) []*Tensor {
	dx := Ones(s.inputs[0].shape...)
	dx.mul(dy)
	return []*Tensor{dx}
}

type partialSum struct {
	base
	axis int
}

func (p *partialSum) String() string {
	return "PartialSum"
}

func (p *partialSum) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	outer, mid, inner := splitShape(x.shape, p.axis)
	shape := make([]int, 0, len(x.shape)-1)
	shape = append(shape, x.shape[:p.axis]...)
	shape = append(shape, x.shape[p.axis+1:]...)
	y := Zeros(shape...)
	for o := 0; o < outer; o++ {
		for m := 0; m < mid; m++ {
			for i := 0; i < inner; i++ {
				y.data[o*inner+i] += x.data[(o*mid+m)*inner+i]
			}
		}
	}
	return y
}

func (p *partialSum) backward(dy *Tensor) []*Tensor {
	x := p.inputs[0]
	outer, mid, inner := splitShape(x.shape, p.axis)
	dx := Zeros(x.shape...)
	for o := 0; o < outer; o++ {
		for m := 0; m < mid; m++ {
			for i := 0; i < inner; i++ {
				dx.data[(o*mid+m)*inner+i] = dy.data[o*inner+i]
			}
		}
	}
	return []*Tensor{dx}
}

type mean struct {
	base
}

func (m *mean) String() string {
	return "Mean"
}

func (m *mean) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	y := NewScalar(0)
	for i := range x.data {
		y.data[0] += x.data[i]
	}
	y.data[0] /= float32(len(x.data))
	return y
}

func (m *mean) backward(dy *Tensor) []*Tensor {
	dx := Zeros(m.inputs[0].shape...)
	for i := range dx.data {
		dx.data[i] = dy.data[0] / float32(len(dx.data))
	}
	return []*Tensor{dx}
}

type maxPool struct {
	base
	axis   int
	argmax []int
}

func (m *maxPool) String() string {
	return "Max"
}

func (m *maxPool) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	outer, mid, inner := splitShape(x.shape, m.axis)
	shape := make([]int, 0, len(x.shape)-1)
	shape = append(shape, x.shape[:m.axis]...)
	shape = append(shape, x.shape[m.axis+1:]...)
	y := Zeros(shape...)
	m.argmax = make([]int, len(y.data))
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			bestIndex := (o*mid)*inner + i
			for r := 1; r < mid; r++ {
				index := (o*mid+r)*inner + i
				if x.data[index] > x.data[bestIndex] {
					bestIndex = index
				}
			}
			y.data[o*inner+i] = x.data[bestIndex]
			m.argmax[o*inner+i] = bestIndex
		}
	}
	return y
}

func (m *maxPool) backward(dy *Tensor) []*Tensor {
	dx := Zeros(m.inputs[0].shape...)
	for i := range dy.data {
		dx.data[m.argmax[i]] += dy.data[i]
	}
	return []*Tensor{dx}
}

type matMul struct {
	base
	transpose1 bool
	transpose2 bool
	nJobs      int
}

func (m *matMul) String() string {
	return "MatMul"
}

func (m *matMul) forward(inputs ...*Tensor) *Tensor {
	return inputs[0].matMul(inputs[1], m.transpose1, m.transpose2, m.nJobs)
}

func (m *matMul) backward(dy *Tensor) []*Tensor {
	var dx0, dx1 *Tensor
	switch {
	case !m.transpose1 && !m.transpose2:
		dx0 = dy.matMul(m.inputs[1], false, true, m.nJobs)
		dx1 = m.inputs[0].matMul(dy, true, false, m.nJobs)
	case m.transpose1 && !m.transpose2:
		dx0 = m.inputs[1].matMul(dy, false, true, m.nJobs)
		dx1 = m.inputs[0].matMul(dy, false, false, m.nJobs)
	case !m.transpose1 && m.transpose2:
		dx0 = dy.matMul(m.inputs[1], false, false, m.nJobs)
		dx1 = dy.matMul(m.inputs[0], true, false, m.nJobs)
	default:
		dx0 = m.inputs[1].matMul(dy, true, true, m.nJobs)
		dx1 = dy.matMul(m.inputs[0], true, true, m.nJobs)
	}
	return []*Tensor{dx0, dx1}
}

type batchMatMul struct {
	base
	transpose1 bool
	transpose2 bool
	nJobs      int
}

func (b *batchMatMul) String() string {
	return "BMM"
}

func (b *batchMatMul) forward(inputs ...*Tensor) *Tensor {
	return inputs[0].bmm(inputs[1], b.transpose1, b.transpose2, b.nJobs)
}

func (b *batchMatMul) backward(dy *Tensor) []*Tensor {
	var dx0, dx1 *Tensor
	switch {
	case !b.transpose1 && !b.transpose2:
		dx0 = dy.bmm(b.inputs[1], false, true, b.nJobs)
		dx1 = b.inputs[0].bmm(dy, true, false, b.nJobs)
	case b.transpose1 && !b.transpose2:
		dx0 = b.inputs[1].bmm(dy, false, true, b.nJobs)
		dx1 = b.inputs[0].bmm(dy, false, false, b.nJobs)
	case !b.transpose1 && b.transpose2:
		dx0 = dy.bmm(b.inputs[1], false, false, b.nJobs)
		dx1 = dy.bmm(b.inputs[0], true, false, b.nJobs)
	default:
		dx0 = b.inputs[1].bmm(dy, true, true, b.nJobs)
		dx1 = dy.bmm(b.inputs[0], true, true, b.nJobs)
	}
	return []*Tensor{dx0, dx1}
}

type broadcast struct {
	base
	shape []int
}

func (b *broadcast) String() string {
	return "Broadcast"
}

func (b *broadcast) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	// Concatenate the shape
	shape := make([]int, len(x.shape))
	copy(shape, x.shape)
	shape = append(shape, b.shape...)
	size := 1
	for i := range shape {
		size *= shape[i]
	}
	// Create a new tensor with the new shape
	y := NewTensor(make([]float32, size), shape...)
	wSize := 1
	for i := range b.shape {
		wSize *= b.shape[i]
	}
	for i := range x.data {
		for j := i * wSize; j < (i+1)*wSize; j++ {
			y.data[j] = x.data[i]
		}
	}
	return y
}

func (b *broadcast) backward(dy *Tensor) []*Tensor {
	gx := Zeros(b.inputs[0].shape...)
	wSize := 1
	for i := range b.shape {
		wSize *= b.shape[i]
	}
	for i := range gx.data {
		for j := i * wSize; j < (i+1)*wSize; j++ {
			gx.data[i] += dy.data[j]
		}
	}
	return []*Tensor{gx}
}

type expand struct {
	base
	axis int
	n    int
}

func (e *expand) String() string {
	return "Expand"
}

func (e *expand) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	outer, inner := 1, 1
	for i := 0; i < e.axis; i++ {
		outer *= x.shape[i]
	}
	for i := e.axis; i < len(x.shape); i++ {
		inner *= x.shape[i]
	}
	shape := make([]int, 0, len(x.shape)+1)
	shape = append(shape, x.shape[:e.axis]...)
	shape = append(shape, e.n)
	shape = append(shape, x.shape[e.axis:]...)
	y := Zeros(shape...)
	for o := 0; o < outer; o++ {
		for r := 0; r < e.n; r++ {
			copy(y.data[(o*e.n+r)*inner:(o*e.n+r+1)*inner], x.data[o*inner:(o+1)*inner])
		}
	}
	return y
}

func (e *expand) backward(dy *Tensor) []*Tensor {
	x := e.inputs[0]
	outer, inner := 1, 1
	for i := 0; i < e.axis; i++ {
		outer *= x.shape[i]
	}
	for i := e.axis; i < len(x.shape); i++ {
		inner *= x.shape[i]
	}
	dx := Zeros(x.shape...)
	for o := 0; o < outer; o++ {
		for r := 0; r < e.n; r++ {
			for i := 0; i < inner; i++ {
				dx.data[o*inner+i] += dy.data[(o*e.n+r)*inner+i]
			}
		}
	}
	return []*Tensor{dx}
}

type concat struct {
	base
}

func (c *concat) String() string {
	return "Concat"
}

func (c *concat) forward(inputs ...*Tensor) *Tensor {
	rows := 1
	for i := 0; i < len(inputs[0].shape)-1; i++ {
		rows *= inputs[0].shape[i]
	}
	width := 0
	for _, x := range inputs {
		width += x.shape[len(x.shape)-1]
	}
	shape := make([]int, len(inputs[0].shape))
	copy(shape, inputs[0].shape)
	shape[len(shape)-1] = width
	y := Zeros(shape...)
	for r := 0; r < rows; r++ {
		offset := 0
		for _, x := range inputs {
			w := x.shape[len(x.shape)-1]
			copy(y.data[r*width+offset:r*width+offset+w], x.data[r*w:(r+1)*w])
			offset += w
		}
	}
	return y
}

func (c *concat) backward(dy *Tensor) []*Tensor {
	rows := 1
	for i := 0; i < len(c.inputs[0].shape)-1; i++ {
		rows *= c.inputs[0].shape[i]
	}
	width := dy.shape[len(dy.shape)-1]
	grads := make([]*Tensor, len(c.inputs))
	offset := 0
	for j, x := range c.inputs {
		w := x.shape[len(x.shape)-1]
		dx := Zeros(x.shape...)
		for r := 0; r < rows; r++ {
			copy(dx.data[r*w:(r+1)*w], dy.data[r*width+offset:r*width+offset+w])
		}
		grads[j] = dx
		offset += w
	}
	return grads
}

type flatten struct {
	base
}

func (f *flatten) String() string {
	return "Flatten"
}

func (f *flatten) forward(inputs ...*Tensor) *Tensor {
	return NewTensor(inputs[0].data, len(inputs[0].data))
}

func (f *flatten) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	return []*Tensor{NewTensor(dx.data, f.inputs[0].shape...)}
}

type reshape struct {
	base
	shape []int
}

func (r *reshape) String() string {
	return "Reshape"
}

func (r *reshape) forward(inputs ...*Tensor) *Tensor {
	return NewTensor(inputs[0].data, r.shape...)
}

func (r *reshape) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	return []*Tensor{NewTensor(dx.data, r.inputs[0].shape...)}
}

type embedding struct {
	base
}

func (e *embedding) String() string {
	return "Embedding"
}

func (e *embedding) forward(inputs ...*Tensor) *Tensor {
	w, x := inputs[0], inputs[1]
	dim := 1
	for i := 1; i < len(w.shape); i++ {
		dim *= w.shape[i]
	}
	shape := make([]int, 0, len(x.shape)+len(w.shape)-1)
	shape = append(shape, x.shape...)
	shape = append(shape, w.shape[1:]...)
	y := Zeros(shape...)
	for i := range x.data {
		index := int(x.data[i])
		copy(y.data[i*dim:(i+1)*dim], w.data[index*dim:(index+1)*dim])
	}
	return y
}

func (e *embedding) backward(dy *Tensor) []*Tensor {
	w, x := e.inputs[0], e.inputs[1]
	dim := 1
	for i := 1; i < len(w.shape); i++ {
		dim *= w.shape[i]
	}
	dw := Zeros(w.shape...)
	for i := range x.data {
		index := int(x.data[i])
		for j := 0; j < dim; j++ {
			dw.data[index*dim+j] += dy.data[i*dim+j]
		}
	}
	return []*Tensor{dw, nil}
}

type sigmoid struct {
	base
}

func (s *sigmoid) String() string {
	return "Sigmoid"
}

func (s *sigmoid) forward(inputs ...*Tensor) *Tensor {
	// y = tanh(x * 0.5) * 0.5 + 0.5
	y := inputs[0].clone()
	y.mul(NewScalar(0.5))
	y.tanh()
	y.mul(NewScalar(0.5))
	y.add(NewScalar(0.5))
	return y
}

func (s *sigmoid) backward(dy *Tensor) []*Tensor {
	// dx = dy * y * (1 - y)
	dx := dy.clone()
	dx.mul(s.output)
	complement := s.output.clone()
	complement.neg()
	complement.add(NewScalar(1))
	dx.mul(complement)
	return []*Tensor{dx}
}

type relu struct {
	base
}

func (r *relu) String() string {
	return "ReLU"
}

func (r *relu) forward(inputs ...*Tensor) *Tensor {
	y := inputs[0].clone()
	y.maximum(NewScalar(0))
	return y
}

func (r *relu) backward(dy *Tensor) []*Tensor {
	dx := dy.clone()
	for i := range dx.data {
		if r.inputs[0].data[i] <= 0 {
			dx.data[i] = 0
		}
	}
	return []*Tensor{dx}
}

type softplus struct {
	base
}

func (s *softplus) String() string {
	return "Softplus"
}

func (s *softplus) forward(inputs ...*Tensor) *Tensor {
	// y = max(x, 0) + log(1 + exp(-|x|))
	y := inputs[0].clone()
	for i := range y.data {
		y.data[i] = math32.Max(y.data[i], 0) + math32.Log1p(math32.Exp(-math32.Abs(y.data[i])))
	}
	return y
}

func (s *softplus) backward(dy *Tensor) []*Tensor {
	// dx = dy * sigmoid(x)
	dx := s.inputs[0].clone()
	dx.mul(NewScalar(0.5))
	dx.tanh()
	dx.mul(NewScalar(0.5))
	dx.add(NewScalar(0.5))
	dx.mul(dy)
	return []*Tensor{dx}
}

type softmax struct {
	base
	axis int
}

func (s *softmax) String() string {
	return "Softmax"
}

func (s *softmax) forward(inputs ...*Tensor) *Tensor {
	x := inputs[0]
	outer, mid, inner := splitShape(x.shape, s.axis)
	y := Zeros(x.shape...)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			maxValue := x.data[(o*mid)*inner+i]
			for m := 1; m < mid; m++ {
				maxValue = math32.Max(maxValue, x.data[(o*mid+m)*inner+i])
			}
			var sum float32
			for m := 0; m < mid; m++ {
				e := math32.Exp(x.data[(o*mid+m)*inner+i] - maxValue)
				y.data[(o*mid+m)*inner+i] = e
				sum += e
			}
			for m := 0; m < mid; m++ {
				y.data[(o*mid+m)*inner+i] /= sum
			}
		}
	}
	return y
}

func (s *softmax) backward(dy *Tensor) []*Tensor {
	y := s.output
	outer, mid, inner := splitShape(y.shape, s.axis)
	dx := Zeros(y.shape...)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var dot float32
			for m := 0; m < mid; m++ {
				dot += dy.data[(o*mid+m)*inner+i] * y.data[(o*mid+m)*inner+i]
			}
			for m := 0; m < mid; m++ {
				index := (o*mid+m)*inner + i
				dx.data[index] = y.data[index] * (dy.data[index] - dot)
			}
		}
	}
	return []*Tensor{dx}
}

type maskedSoftmax struct {
	base
}

func (s *maskedSoftmax) String() string {
	return "MaskedSoftmax"
}

func (s *maskedSoftmax) forward(inputs ...*Tensor) *Tensor {
	x, mask := inputs[0], inputs[1]
	width := x.shape[len(x.shape)-1]
	rows := len(x.data) / width
	y := Zeros(x.shape...)
	for r := 0; r < rows; r++ {
		maxValue := math32.Inf(-1)
		for i := 0; i < width; i++ {
			if mask.data[r*width+i] > 0 {
				maxValue = math32.Max(maxValue, x.data[r*width+i])
			}
		}
		if math32.IsInf(maxValue, -1) {
			// Rows without any valid position stay zero.
			continue
		}
		var sum float32
		for i := 0; i < width; i++ {
			if mask.data[r*width+i] > 0 {
				e := math32.Exp(x.data[r*width+i] - maxValue)
				y.data[r*width+i] = e
				sum += e
			}
		}
		for i := 0; i < width; i++ {
			y.data[r*width+i] /= sum
		}
	}
	return y
}

func (s *maskedSoftmax) backward(dy *Tensor) []*Tensor {
	y := s.output
	width := y.shape[len(y.shape)-1]
	rows := len(y.data) / width
	dx := Zeros(y.shape...)
	for r := 0; r < rows; r++ {
		var dot float32
		for i := 0; i < width; i++ {
			dot += dy.data[r*width+i] * y.data[r*width+i]
		}
		for i := 0; i < width; i++ {
			index := r*width + i
			dx.data[index] = y.data[index] * (dy.data[index] - dot)
		}
	}
	return []*Tensor{dx, nil}
}

type conv1d struct {
	base
	nJobs int
}

func (c *conv1d) String() string {
	return "Conv1D"
}

func (c *conv1d) forward(inputs ...*Tensor) *Tensor {
	x, w := inputs[0], inputs[1]
	batch, length, channels := x.shape[0], x.shape[1], x.shape[2]
	filters, kernel := w.shape[0], w.shape[1]
	steps := length - kernel + 1
	window := kernel * channels
	y := Zeros(batch, steps, filters)
	convolve := func(n int) {
		for t := 0; t < steps; t++ {
			slide := x.data[n*length*channels+t*channels : n*length*channels+t*channels+window]
			for f := 0; f < filters; f++ {
				y.data[(n*steps+t)*filters+f] = floats.Dot(slide, w.data[f*window:(f+1)*window])
			}
		}
	}
	if c.nJobs > 1 && batch > 1 {
		parallelFor(batch, c.nJobs, convolve)
	} else {
		for n := 0; n < batch; n++ {
			convolve(n)
		}
	}
	return y
}

func (c *conv1d) backward(dy *Tensor) []*Tensor {
	x, w := c.inputs[0], c.inputs[1]
	batch, length, channels := x.shape[0], x.shape[1], x.shape[2]
	filters, kernel := w.shape[0], w.shape[1]
	steps := length - kernel + 1
	window := kernel * channels
	dx := Zeros(x.shape...)
	dw := Zeros(w.shape...)
	for n := 0; n < batch; n++ {
		for t := 0; t < steps; t++ {
			slide := x.data[n*length*channels+t*channels : n*length*channels+t*channels+window]
			dSlide := dx.data[n*length*channels+t*channels : n*length*channels+t*channels+window]
			for f := 0; f < filters; f++ {
				g := dy.data[(n*steps+t)*filters+f]
				floats.MulConstAdd(w.data[f*window:(f+1)*window], g, dSlide)
				floats.MulConstAdd(slide, g, dw.data[f*window:(f+1)*window])
			}
		}
	}
	return []*Tensor{dx, dw}
}

type softmaxCrossEntropy struct {
	base
}

func (c *softmaxCrossEntropy) String() string {
	return "SoftmaxCrossEntropy"
}

func (c *softmaxCrossEntropy) forward(inputs ...*Tensor) *Tensor {
	x, target := inputs[0], inputs[1]
	rows, width := x.shape[0], x.shape[1]
	var loss float32
	for r := 0; r < rows; r++ {
		maxValue := x.data[r*width]
		for i := 1; i < width; i++ {
			maxValue = math32.Max(maxValue, x.data[r*width+i])
		}
		var sum float32
		for i := 0; i < width; i++ {
			sum += math32.Exp(x.data[r*width+i] - maxValue)
		}
		logSumExp := maxValue + math32.Log(sum)
		loss += logSumExp - x.data[r*width+int(target.data[r])]
	}
	return NewScalar(loss / float32(rows))
}

func (c *softmaxCrossEntropy) backward(dy *Tensor) []*Tensor {
	x, target := c.inputs[0], c.inputs[1]
	rows, width := x.shape[0], x.shape[1]
	dx := Zeros(x.shape...)
	for r := 0; r < rows; r++ {
		maxValue := x.data[r*width]
		for i := 1; i < width; i++ {
			maxValue = math32.Max(maxValue, x.data[r*width+i])
		}
		var sum float32
		for i := 0; i < width; i++ {
			sum += math32.Exp(x.data[r*width+i] - maxValue)
		}
		for i := 0; i < width; i++ {
			p := math32.Exp(x.data[r*width+i]-maxValue) / sum
			if i == int(target.data[r]) {
				p -= 1
			}
			dx.data[r*width+i] = dy.data[0] * p / float32(rows)
		}
	}
	return []*Tensor{dx, nil}
}

// parallelFor runs f over [0, n) with at most nJobs parallel workers.
func parallelFor(n, nJobs int, f func(i int)) {
	var wg sync.WaitGroup
	chunk := (n + nJobs - 1) / nJobs
	for begin := 0; begin < n; begin += chunk {
		begin := begin
		end := min(begin+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := begin; i < end; i++ {
				f(i)
			}
		}()
	}
	wg.Wait()
}

// splitShape factors a shape into sizes before, at and after an axis.
func splitShape(shape []int, axis int) (outer, mid, inner int) {
	outer, mid, inner = 1, shape[axis], 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	for i := axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return
}

func checkSuffixShape(x0, x1 *Tensor) {
	for i := 0; i < len(x1.shape); i++ {
		if x0.shape[len(x0.shape)-len(x1.shape)+i] != x1.shape[i] {
			panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
		}
	}
}

// Add returns the element-wise sum of tensors. The shape of any shorter tensor
// must be a suffix sequence of the shape of the longest tensor.
func Add(x0 *Tensor, x ...*Tensor) *Tensor {
	y := x0
	for _, x1 := range x {
		a, b := y, x1
		if len(a.shape) < len(b.shape) {
			a, b = b, a
		}
		checkSuffixShape(a, b)
		y = apply(&add{}, a, b)
	}
	return y
}

// Sub returns the element-wise difference of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Sub(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
	}
	checkSuffixShape(x0, x1)
	return apply(&sub{}, x0, x1)
}

// Mul returns the element-wise product of tensors. The shape of any shorter
// tensor must be a suffix sequence of the shape of the longest tensor.
func Mul(x0 *Tensor, x ...*Tensor) *Tensor {
	y := x0
	for _, x1 := range x {
		a, b := y, x1
		if len(a.shape) < len(b.shape) {
			a, b = b, a
		}
		checkSuffixShape(a, b)
		y = apply(&mul{}, a, b)
	}
	return y
}

// Div returns the element-wise division of two tensors. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Div(x0, x1 *Tensor) *Tensor {
	if len(x0.shape) < len(x1.shape) {
		panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
	}
	checkSuffixShape(x0, x1)
	return apply(&div{}, x0, x1)
}

// Square returns the element-wise square of a tensor.
func Square(x *Tensor) *Tensor {
	return apply(&square{}, x)
}

// Pow returns the element-wise power of a tensor. The shape of the second tensor must be a suffix sequence of the shape of the first tensor.
func Pow(x *Tensor, n *Tensor) *Tensor {
	if len(x.shape) < len(n.shape) {
		panic("the shape of the second tensor must be a suffix sequence of the shape of the first tensor")
	}
	checkSuffixShape(x, n)
	return apply(&pow{}, x, n)
}

// Exp returns the element-wise exponential of a tensor.
func Exp(x *Tensor) *Tensor {
	return apply(&exp{}, x)
}

// Log returns the element-wise natural logarithm of a tensor.
func Log(x *Tensor) *Tensor {
	return apply(&log{}, x)
}

// Sin returns the element-wise sine of a tensor.
func Sin(x *Tensor) *Tensor {
	return apply(&sin{}, x)
}

func Cos(x *Tensor) *Tensor {
	return apply(&cos{}, x)
}

// Sum returns the sum of all elements in a tensor. If an axis is given, the
// tensor is reduced along that axis instead.
func Sum(x *Tensor, along ...int) *Tensor {
	if len(along) > 1 {
		panic("sum supports at most one axis")
	}
	if len(along) == 1 {
		return apply(&partialSum{axis: along[0]}, x)
	}
	return apply(&sum{}, x)
}

// Mean returns the mean of all elements in a tensor.
func Mean(x *Tensor) *Tensor {
	return apply(&mean{}, x)
}

// Max reduces a tensor along an axis by taking the maximum.
func Max(x *Tensor, axis int) *Tensor {
	if axis < 0 || axis >= len(x.shape) {
		panic("axis out of range")
	}
	return apply(&maxPool{axis: axis}, x)
}

// MatMul returns the matrix product of two 2-D tensors. Either operand is
// transposed before the product when its flag is set. nJobs limits the number
// of parallel workers and zero means serial execution.
func MatMul(x, y *Tensor, transpose1, transpose2 bool, nJobs int) *Tensor {
	return apply(&matMul{transpose1: transpose1, transpose2: transpose2, nJobs: nJobs}, x, y)
}

// BMM returns the batched matrix product of two 3-D tensors. Either operand is
// transposed before the product when its flag is set. nJobs limits the number
// of parallel workers and zero means serial execution.
func BMM(x, y *Tensor, transpose1, transpose2 bool, nJobs int) *Tensor {
	return apply(&batchMatMul{transpose1: transpose1, transpose2: transpose2, nJobs: nJobs}, x, y)
}

// Broadcast repeats each element of a tensor over appended trailing dimensions.
func Broadcast(x *Tensor, shape ...int) *Tensor {
	return apply(&broadcast{shape: shape}, x)
}

// Expand inserts a new dimension of size n at the given axis and repeats the
// tensor along it.
func Expand(x *Tensor, axis, n int) *Tensor {
	if axis < 0 || axis > len(x.shape) {
		panic("axis out of range")
	}
	return apply(&expand{axis: axis, n: n}, x)
}

// Concat joins tensors along the last axis. All other dimensions must be equal.
func Concat(x ...*Tensor) *Tensor {
	if len(x) == 0 {
		panic("concat requires at least one tensor")
	}
	for _, t := range x {
		if len(t.shape) != len(x[0].shape) {
			panic("concat requires tensors with the same number of dimensions")
		}
		for i := 0; i < len(t.shape)-1; i++ {
			if t.shape[i] != x[0].shape[i] {
				panic("concat requires tensors with the same leading dimensions")
			}
		}
	}
	return apply(&concat{}, x...)
}

func Flatten(x *Tensor) *Tensor {
	return apply(&flatten{}, x)
}

// Reshape returns a tensor with the same data and a new shape.
func Reshape(x *Tensor, shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != len(x.data) {
		panic("the size of the new shape must match the size of the tensor")
	}
	return apply(&reshape{shape: shape}, x)
}

// Embedding returns the rows of w selected by the indices in x. Gradients flow
// into w only.
func Embedding(w, x *Tensor) *Tensor {
	return apply(&embedding{}, w, x)
}

func Sigmoid(x *Tensor) *Tensor {
	return apply(&sigmoid{}, x)
}

func ReLu(x *Tensor) *Tensor {
	return apply(&relu{}, x)
}

// Softplus returns the element-wise softplus of a tensor.
func Softplus(x *Tensor) *Tensor {
	return apply(&softplus{}, x)
}

// Softmax computes the softmax of a tensor along an axis.
func Softmax(x *Tensor, axis int) *Tensor {
	if axis < 0 || axis >= len(x.shape) {
		panic("axis out of range")
	}
	return apply(&softmax{axis: axis}, x)
}

// MaskedSoftmax computes the softmax over the last axis restricted to
// positions where the mask is positive. Masked positions receive zero weight
// and rows without any valid position stay all-zero.
func MaskedSoftmax(x, mask *Tensor) *Tensor {
	if len(x.data) != len(mask.data) {
		panic("the mask must have the same size as the tensor")
	}
	return apply(&maskedSoftmax{}, x, mask)
}

// Conv1D computes a valid 1-D convolution with stride 1. The input x has shape
// (batch, length, channels) and the kernel w has shape (filters, kernel,
// channels). The result has shape (batch, length-kernel+1, filters).
func Conv1D(x, w *Tensor, nJobs int) *Tensor {
	if len(x.shape) != 3 || len(w.shape) != 3 {
		panic("conv1d requires 3-D tensors")
	}
	if x.shape[2] != w.shape[2] {
		panic("the channels of the input and the kernel must be equal")
	}
	if w.shape[1] > x.shape[1] {
		panic("the kernel must not be longer than the input")
	}
	return apply(&conv1d{nJobs: nJobs}, x, w)
}

// SoftmaxCrossEntropy returns the mean cross-entropy between rows of logits x
// and integer target classes y.
func SoftmaxCrossEntropy(x, y *Tensor) *Tensor {
	if len(x.shape) != 2 || len(y.shape) != 1 {
		panic("SoftmaxCrossEntropy requires 2-D logits and 1-D targets")
	}
	if x.shape[0] != y.shape[0] {
		panic("the number of rows of logits and targets must be equal")
	}
	return apply(&softmaxCrossEntropy{}, x, y)
}
