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

package floats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	Add(a, b)
	assert.Equal(t, []float32{6, 8, 10, 12}, a)
	assert.Panics(t, func() { Add([]float32{1}, nil) })
}

func TestMulConst(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	MulConst(a, 2)
	assert.Equal(t, []float32{2, 4, 6, 8}, a)
}

func TestMulConstAdd(t *testing.T) {
	a := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	dst := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	target := []float32{0, 3, 6, 9, 12, 15, 18, 21, 24, 27, 30}
	MulConstAdd(a, 2, dst)
	assert.Equal(t, target, dst)
	assert.Panics(t, func() { MulConstAdd(nil, 1, dst) })
}

func TestDot(t *testing.T) {
	a := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	b := []float32{0, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20}
	assert.Equal(t, float32(770), Dot(a, b))
	assert.Panics(t, func() { Dot([]float32{1}, nil) })
}

func TestSum(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	assert.Equal(t, float32(10), Sum(a))
}

func TestMean(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	assert.Equal(t, float32(2.5), Mean(a))
}

func TestStdDev(t *testing.T) {
	a := []float32{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.13809, StdDev(a), 1e-4)
}

func TestMin(t *testing.T) {
	a := []float32{3, 1, 4, 1, 5}
	assert.Equal(t, float32(1), Min(a))
	assert.Panics(t, func() { Min(nil) })
}

func TestMax(t *testing.T) {
	a := []float32{3, 1, 4, 1, 5}
	assert.Equal(t, float32(5), Max(a))
	assert.Panics(t, func() { Max(nil) })
}

func TestMM(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	c := make([]float32, 8)
	target := []float32{38, 44, 50, 56, 83, 98, 113, 128}
	MM(false, false, 2, 4, 3, a, 3, b, 4, c, 4)
	assert.Equal(t, target, c)
	// the result accumulates into c
	MM(false, false, 2, 4, 3, a, 3, b, 4, c, 4)
	assert.Equal(t, []float32{76, 88, 100, 112, 166, 196, 226, 256}, c)

	c = make([]float32, 8)
	target = []float32{14, 32, 50, 68, 32, 77, 122, 167}
	MM(false, true, 2, 4, 3, a, 3, b, 3, c, 4)
	assert.Equal(t, target, c)

	c = make([]float32, 8)
	target = []float32{61, 70, 79, 88, 76, 88, 100, 112}
	MM(true, false, 2, 4, 3, a, 2, b, 4, c, 4)
	assert.Equal(t, target, c)

	c = make([]float32, 8)
	target = []float32{22, 49, 76, 103, 28, 64, 100, 136}
	MM(true, true, 2, 4, 3, a, 2, b, 3, c, 4)
	assert.Equal(t, target, c)
}
