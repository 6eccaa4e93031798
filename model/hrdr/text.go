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
	"github.com/chewxy/math32"

	"github.com/gorse-io/opine/base"
	"github.com/gorse-io/opine/common/nn"
)

// newLinear creates a fully connected layer initialized from a seeded random
// generator so that models with the same RandomState are reproducible.
func newLinear(rng base.RandomGenerator, in, out int) *nn.LinearLayer {
	return &nn.LinearLayer{
		W: nn.NewTensor(rng.NormalVector(in*out, 0, 1.0/math32.Sqrt(float32(in))), in, out).RequireGrad(),
		B: nn.Zeros(out).RequireGrad(),
	}
}

// ratingTower summarizes the dense rating vector of a user or an item with a
// three layer perceptron. Batch normalization follows the last layer.
type ratingTower struct {
	layers []*nn.LinearLayer
	norm   *nn.BatchNorm
}

func newRatingTower(rng base.RandomGenerator, in, width, out int) *ratingTower {
	return &ratingTower{
		layers: []*nn.LinearLayer{
			newLinear(rng, in, width),
			newLinear(rng, width, width/2),
			newLinear(rng, width/2, out),
		},
		norm: nn.NewBatchNorm(out),
	}
}

func (t *ratingTower) Forward(x *nn.Tensor, training bool) *nn.Tensor {
	for _, layer := range t.layers {
		x = nn.ReLu(layer.Forward(x))
	}
	return t.norm.Forward(x, training)
}

func (t *ratingTower) Parameters() []*nn.Tensor {
	var params []*nn.Tensor
	for _, layer := range t.layers {
		params = append(params, layer.Parameters()...)
	}
	return append(params, t.norm.Parameters()...)
}

// textEncoder turns padded review word ids into fixed width feature vectors
// with a word embedding table and 1-D convolutions max pooled over time. The
// word embedding table is owned by the encoder while its initial values are
// managed by the model.
type textEncoder struct {
	embedding *nn.Tensor
	kernels   []*nn.Tensor
	biases    []*nn.Tensor
}

func newTextEncoder(rng base.RandomGenerator, embedding *nn.Tensor, kernelSizes []int, nFilters int) *textEncoder {
	embeddingSize := embedding.Shape()[1]
	encoder := &textEncoder{embedding: embedding}
	for _, kernelSize := range kernelSizes {
		fanIn := kernelSize * embeddingSize
		encoder.kernels = append(encoder.kernels, nn.NewTensor(
			rng.NormalVector(nFilters*fanIn, 0, 1.0/math32.Sqrt(float32(fanIn))),
			nFilters, kernelSize, embeddingSize).RequireGrad())
		encoder.biases = append(encoder.biases, nn.Zeros(nFilters).RequireGrad())
	}
	return encoder
}

// OutputWidth returns the width of encoded review vectors, which is the
// total number of convolution filters.
func (e *textEncoder) OutputWidth() int {
	width := 0
	for _, kernel := range e.kernels {
		width += kernel.Shape()[0]
	}
	return width
}

// Forward encodes a (batch, reviews, words) tensor of word ids into a
// (batch, reviews, OutputWidth) tensor of review features.
func (e *textEncoder) Forward(x *nn.Tensor, nJobs int) *nn.Tensor {
	batchSize, numReviews, numWords := x.Shape()[0], x.Shape()[1], x.Shape()[2]
	words := nn.Embedding(e.embedding, nn.Reshape(x, batchSize*numReviews, numWords))
	pooled := make([]*nn.Tensor, len(e.kernels))
	for i, kernel := range e.kernels {
		convolved := nn.ReLu(nn.Add(nn.Conv1D(words, kernel, nJobs), e.biases[i]))
		pooled[i] = nn.Max(convolved, 1)
	}
	features := pooled[0]
	if len(pooled) > 1 {
		features = nn.Concat(pooled...)
	}
	return nn.Reshape(features, batchSize, numReviews, e.OutputWidth())
}

func (e *textEncoder) Parameters() []*nn.Tensor {
	params := []*nn.Tensor{e.embedding}
	params = append(params, e.kernels...)
	return append(params, e.biases...)
}

// attention weighs the reviews of a user or an item conditioned on the rating
// feature of the same entity. Weights of entities without reviews are all
// zero.
type attention struct {
	hidden *nn.LinearLayer
	output *nn.LinearLayer
}

func newAttention(rng base.RandomGenerator, in, attentionSize int) *attention {
	return &attention{
		hidden: newLinear(rng, in, attentionSize),
		output: newLinear(rng, attentionSize, 1),
	}
}

// Forward scores each review against the rating feature and normalizes the
// scores over real reviews. reviews is (batch, reviews, width), ratings is
// (batch, width) and the result is (batch, reviews).
func (a *attention) Forward(reviews, ratings *nn.Tensor, counts []int32) *nn.Tensor {
	batchSize, numReviews, width := reviews.Shape()[0], reviews.Shape()[1], reviews.Shape()[2]
	conditioned := nn.Mul(reviews, nn.Expand(ratings, 1, numReviews))
	hidden := nn.ReLu(a.hidden.Forward(nn.Reshape(conditioned, batchSize*numReviews, width)))
	logits := nn.Reshape(a.output.Forward(hidden), batchSize, numReviews)
	return nn.MaskedSoftmax(logits, sequenceMask(counts, numReviews))
}

func (a *attention) Parameters() []*nn.Tensor {
	return append(a.hidden.Parameters(), a.output.Parameters()...)
}

// sequenceMask returns a (len(counts), width) tensor with ones at positions
// below the count of each row.
func sequenceMask(counts []int32, width int) *nn.Tensor {
	mask := make([]float32, len(counts)*width)
	for i, count := range counts {
		for j := 0; j < int(count) && j < width; j++ {
			mask[i*width+j] = 1
		}
	}
	return nn.NewTensor(mask, len(counts), width)
}

// indexTensor encodes indices for embedding lookups.
func indexTensor(indices []int32) *nn.Tensor {
	data := make([]float32, len(indices))
	for i, index := range indices {
		data[i] = float32(index)
	}
	return nn.NewTensor(data, len(indices))
}
