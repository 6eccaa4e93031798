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
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/chewxy/math32"
	"github.com/gorse-io/opine/common/floats"
)

type Tensor struct {
	data        []float32
	shape       []int
	grad        *Tensor
	op          op
	requireGrad bool
}

func NewTensor(data []float32, shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	if n != len(data) {
		panic(fmt.Sprintf("shape %v does not match data size %v", shape, len(data)))
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

func NewScalar(data float32) *Tensor {
	return &Tensor{
		data:  []float32{data},
		shape: []int{},
	}
}

// LinSpace creates a tensor with evenly spaced values between start and end.
func LinSpace(start, end float32, shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	delta := (end - start) / float32(n-1)
	for i := range data {
		data[i] = start + delta*float32(i)
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Rand creates a tensor with random values between 0 and 1.
func Rand(shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = rand.Float32()
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// RandN creates a tensor with random values from the standard normal distribution.
func RandN(shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rand.NormFloat64())
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Uniform creates a tensor with random values between low and high.
func Uniform(low, high float32, shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = low + (high-low)*rand.Float32()
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Normal creates a tensor with random values from a normal distribution.
func Normal(mean, std float32, shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = mean + std*float32(rand.NormFloat64())
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// NormalInit fills a tensor with random values from a normal distribution.
func NormalInit(t *Tensor, mean, std float32) {
	for i := range t.data {
		t.data[i] = mean + std*float32(rand.NormFloat64())
	}
}

// Ones creates a tensor filled with ones.
func Ones(shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = 1
	}
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape ...int) *Tensor {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float32, n)
	return &Tensor{
		data:  data,
		shape: shape,
	}
}

// RequireGrad marks the tensor as a parameter that collects gradients.
func (t *Tensor) RequireGrad() *Tensor {
	t.requireGrad = true
	return t
}

func (t *Tensor) Data() []float32 {
	return t.data
}

func (t *Tensor) Shape() []int {
	return t.shape
}

// Get returns the value of the tensor at the given indices.
func (t *Tensor) Get(indices ...int) float32 {
	if len(indices) != len(t.shape) {
		panic("the number of indices does not match the shape of the tensor")
	}
	index := 0
	for i := range indices {
		if indices[i] < 0 || indices[i] >= t.shape[i] {
			panic("index out of range")
		}
		index = index*t.shape[i] + indices[i]
	}
	return t.data[index]
}

// Slice returns a copy of a sub-tensor along the first axis.
func (t *Tensor) Slice(start, end int) *Tensor {
	if len(t.shape) < 1 {
		panic("slice requires at least 1-D tensor")
	}
	if start < 0 || end > t.shape[0] || start >= end {
		panic("invalid slice range")
	}
	subSize := 1
	for i := 1; i < len(t.shape); i++ {
		subSize *= t.shape[i]
	}
	data := make([]float32, (end-start)*subSize)
	copy(data, t.data[start*subSize:end*subSize])
	shape := make([]int, len(t.shape))
	copy(shape, t.shape)
	shape[0] = end - start
	return NewTensor(data, shape...)
}

func (t *Tensor) String() string {
	// Print scalar value
	if len(t.shape) == 0 {
		return fmt.Sprint(t.data[0])
	}

	builder := strings.Builder{}
	builder.WriteString("[")
	if len(t.data) <= 10 {
		for i := 0; i < len(t.data); i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			if i != len(t.data)-1 {
				builder.WriteString(", ")
			}
		}
	} else {
		for i := 0; i < 5; i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			builder.WriteString(", ")
		}
		builder.WriteString("..., ")
		for i := len(t.data) - 5; i < len(t.data); i++ {
			builder.WriteString(fmt.Sprint(t.data[i]))
			if i != len(t.data)-1 {
				builder.WriteString(", ")
			}
		}
	}
	builder.WriteString("]")
	return builder.String()
}

// Backward propagates gradients from the tensor to all leaves of the
// computation graph. Operators are visited in reverse topological order so
// that gradients of shared nodes are accumulated before they are consumed.
func (t *Tensor) Backward() {
	t.grad = Ones(t.shape...)
	if t.op == nil {
		return
	}
	var (
		ordered []op
		visited = make(map[op]struct{})
		visit   func(o op)
	)
	visit = func(o op) {
		if _, ok := visited[o]; ok {
			return
		}
		visited[o] = struct{}{}
		inputs, _ := o.inputsAndOutput()
		for _, input := range inputs {
			if input.op != nil {
				visit(input.op)
			}
		}
		ordered = append(ordered, o)
	}
	visit(t.op)
	for i := len(ordered) - 1; i >= 0; i-- {
		op := ordered[i]
		inputs, output := op.inputsAndOutput()
		grads := op.backward(output.grad)
		for j := range grads {
			if grads[j] == nil {
				// Integral inputs such as embedding indices have no gradient.
				continue
			}
			if inputs[j].grad == nil {
				inputs[j].grad = grads[j]
			} else {
				inputs[j].grad.add(grads[j])
			}
		}
	}
}

func (t *Tensor) Grad() *Tensor {
	return t.grad
}

func (t *Tensor) clone() *Tensor {
	newData := make([]float32, len(t.data))
	copy(newData, t.data)
	return &Tensor{
		data:  newData,
		shape: t.shape,
	}
}

func (t *Tensor) add(other *Tensor) *Tensor {
	wSize := 1
	for i := range other.shape {
		wSize *= other.shape[i]
	}
	for i := range t.data {
		t.data[i] += other.data[i%wSize]
	}
	return t
}

func (t *Tensor) sub(other *Tensor) *Tensor {
	wSize := 1
	for i := range other.shape {
		wSize *= other.shape[i]
	}
	for i := range t.data {
		t.data[i] -= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) mul(other *Tensor) *Tensor {
	wSize := 1
	for i := range other.shape {
		wSize *= other.shape[i]
	}
	for i := range t.data {
		t.data[i] *= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) div(other *Tensor) *Tensor {
	wSize := 1
	for i := range other.shape {
		wSize *= other.shape[i]
	}
	for i := range t.data {
		t.data[i] /= other.data[i%wSize]
	}
	return t
}

func (t *Tensor) square() *Tensor {
	for i := range t.data {
		t.data[i] = t.data[i] * t.data[i]
	}
	return t
}

func (t *Tensor) pow(other *Tensor) *Tensor {
	wSize := 1
	for i := range other.shape {
		wSize *= other.shape[i]
	}
	for i := range t.data {
		t.data[i] = math32.Pow(t.data[i], other.data[i%wSize])
	}
	return t
}

func (t *Tensor) exp() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Exp(t.data[i])
	}
	return t
}

func (t *Tensor) log() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Log(t.data[i])
	}
	return t
}

func (t *Tensor) sin() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Sin(t.data[i])
	}
	return t
}

func (t *Tensor) cos() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Cos(t.data[i])
	}
	return t
}

func (t *Tensor) tanh() *Tensor {
	for i := range t.data {
		t.data[i] = math32.Tanh(t.data[i])
	}
	return t
}

func (t *Tensor) neg() *Tensor {
	for i := range t.data {
		t.data[i] = -t.data[i]
	}
	return t
}

func (t *Tensor) maximum(other *Tensor) *Tensor {
	wSize := 1
	for i := range other.shape {
		wSize *= other.shape[i]
	}
	for i := range t.data {
		t.data[i] = math32.Max(t.data[i], other.data[i%wSize])
	}
	return t
}

// matMul returns the matrix product of two 2-D tensors. Rows of the result
// are computed by parallel workers when nJobs is greater than 1.
func (t *Tensor) matMul(other *Tensor, transpose1, transpose2 bool, nJobs int) *Tensor {
	if len(t.shape) != 2 || len(other.shape) != 2 {
		panic("matMul requires 2-D tensors")
	}
	var m, k, n int
	if transpose1 {
		m, k = t.shape[1], t.shape[0]
	} else {
		m, k = t.shape[0], t.shape[1]
	}
	if transpose2 {
		if other.shape[1] != k {
			panic("matMul requires the shapes of tensors are compatible")
		}
		n = other.shape[0]
	} else {
		if other.shape[0] != k {
			panic("matMul requires the shapes of tensors are compatible")
		}
		n = other.shape[1]
	}
	result := make([]float32, m*n)
	if nJobs > 1 && m >= nJobs {
		var wg sync.WaitGroup
		chunk := (m + nJobs - 1) / nJobs
		for begin := 0; begin < m; begin += chunk {
			begin := begin
			end := min(begin+chunk, m)
			wg.Add(1)
			go func() {
				defer wg.Done()
				offset := begin * t.shape[1]
				if transpose1 {
					offset = begin
				}
				floats.MM(transpose1, transpose2, end-begin, n, k, t.data[offset:], t.shape[1], other.data, other.shape[1], result[begin*n:], n)
			}()
		}
		wg.Wait()
	} else {
		floats.MM(transpose1, transpose2, m, n, k, t.data, t.shape[1], other.data, other.shape[1], result, n)
	}
	return NewTensor(result, m, n)
}

// bmm returns the batched matrix product of two 3-D tensors. Batches are
// computed by parallel workers when nJobs is greater than 1.
func (t *Tensor) bmm(other *Tensor, transpose1, transpose2 bool, nJobs int) *Tensor {
	if len(t.shape) != 3 || len(other.shape) != 3 {
		panic("bmm requires 3-D tensors")
	}
	if t.shape[0] != other.shape[0] {
		panic("bmm requires the batch sizes of tensors are equal")
	}
	batch := t.shape[0]
	var m, k, n int
	if transpose1 {
		m, k = t.shape[2], t.shape[1]
	} else {
		m, k = t.shape[1], t.shape[2]
	}
	if transpose2 {
		if other.shape[2] != k {
			panic("bmm requires the shapes of tensors are compatible")
		}
		n = other.shape[1]
	} else {
		if other.shape[1] != k {
			panic("bmm requires the shapes of tensors are compatible")
		}
		n = other.shape[2]
	}
	result := make([]float32, batch*m*n)
	singleBatch := func(b int) {
		floats.MM(transpose1, transpose2, m, n, k,
			t.data[b*t.shape[1]*t.shape[2]:(b+1)*t.shape[1]*t.shape[2]], t.shape[2],
			other.data[b*other.shape[1]*other.shape[2]:(b+1)*other.shape[1]*other.shape[2]], other.shape[2],
			result[b*m*n:(b+1)*m*n], n)
	}
	if nJobs > 1 && batch > 1 {
		var wg sync.WaitGroup
		chunk := (batch + nJobs - 1) / nJobs
		for begin := 0; begin < batch; begin += chunk {
			begin := begin
			end := min(begin+chunk, batch)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for b := begin; b < end; b++ {
					singleBatch(b)
				}
			}()
		}
		wg.Wait()
	} else {
		for b := 0; b < batch; b++ {
			singleBatch(b)
		}
	}
	return NewTensor(result, batch, m, n)
}

func (t *Tensor) argmax() []int {
	if len(t.data) == 0 {
		return nil
	}
	maxValue := t.data[0]
	maxIndex := 0
	for i := range t.data {
		if t.data[i] > maxValue {
			maxValue = t.data[i]
			maxIndex = i
		}
	}
	indices := make([]int, len(t.shape))
	for i := len(t.shape) - 1; i >= 0; i-- {
		indices[i] = maxIndex % t.shape[i]
		maxIndex /= t.shape[i]
	}
	return indices
}
