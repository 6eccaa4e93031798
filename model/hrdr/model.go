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
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gorse-io/opine/base/encoding"
	"github.com/gorse-io/opine/base/log"
	"github.com/gorse-io/opine/common/nn"
	"github.com/gorse-io/opine/dataset"
	"github.com/gorse-io/opine/model"
)

var _ model.Model = &HRDR{}

// HRDR is a hybrid neural recommendation model which learns user and item
// representations jointly from rating patterns and review texts [1]. Each
// entity is described by a multi-layer perceptron over its dense rating
// vector, an attention weighted summary of its reviews encoded by a
// convolutional network, and a free id embedding. The three parts are
// concatenated and scored by a biased bilinear interaction, trained on
// pairwise comparisons between rated and unrated items.
//
// Hyper-parameters:
//
//	Lr              - The learning rate of Adam. Default is 0.001.
//	Reg             - The weight decay of Adam. Default is 0.
//	NEpochs         - The number of training epochs. Default is 20.
//	NFactors        - The size of review based factors. Default is 32.
//	BatchSize       - The size of training batches. Default is 64.
//	EmbeddingSize   - The size of word embeddings. Default is 100.
//	IDEmbeddingSize - The size of user and item id embeddings. Default is 32.
//	AttentionSize   - The hidden size of review attention. Default is 16.
//	KernelSizes     - The kernel sizes of review convolutions. Default is [3].
//	NFilters        - The number of convolution filters. Default is 64.
//	NUserMLPFactors - The width of the user rating perceptron. Default is 128.
//	NItemMLPFactors - The width of the item rating perceptron. Default is 128.
//	DropoutRate     - The dropout rate of review features. Default is 0.5.
//	MaxTextLength   - The number of words kept per review. Default is 50.
//
// [1] Liu, Hongtao, et al. "Hybrid neural recommendation with joint deep
// representation learning of ratings and reviews." Neurocomputing 374 (2020): 77-85.
type HRDR struct {
	model.BaseModel
	UserIndex       *dataset.FreqDict
	ItemIndex       *dataset.FreqDict
	Vocabulary      *dataset.Vocabulary
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet

	// parameters
	userIdEmbedding   *nn.Tensor
	itemIdEmbedding   *nn.Tensor
	userWordEmbedding *nn.Tensor
	itemWordEmbedding *nn.Tensor
	userBias          *nn.Tensor
	itemBias          *nn.Tensor
	globalBias        *nn.Tensor
	w1                *nn.Tensor

	// layers
	userTower      *ratingTower
	itemTower      *ratingTower
	userEncoder    *textEncoder
	itemEncoder    *textEncoder
	userAttention  *attention
	itemAttention  *attention // shared by rated and unrated items
	userProjection *nn.LinearLayer
	itemProjection *nn.LinearLayer

	trainSet   dataset.Split
	pretrained map[string][]float32

	// Hyper parameters
	nFactors        int
	nEpochs         int
	batchSize       int
	lr              float32
	reg             float32
	embeddingSize   int
	idEmbeddingSize int
	attentionSize   int
	kernelSizes     []int
	nFilters        int
	nUserMLPFactors int
	nItemMLPFactors int
	dropoutRate     float32
	maxTextLength   int
}

// NewHRDR builds a HRDR model from hyper-parameters.
func NewHRDR(params model.Params) *HRDR {
	h := new(HRDR)
	h.SetParams(params)
	return h
}

// SetParams sets hyper-parameters for the HRDR model.
func (h *HRDR) SetParams(params model.Params) {
	h.BaseModel.SetParams(params)
	h.nFactors = h.Params.GetInt(model.NFactors, 32)
	h.nEpochs = h.Params.GetInt(model.NEpochs, 20)
	h.batchSize = h.Params.GetInt(model.BatchSize, 64)
	h.lr = h.Params.GetFloat32(model.Lr, 0.001)
	h.reg = h.Params.GetFloat32(model.Reg, 0)
	h.embeddingSize = h.Params.GetInt(model.EmbeddingSize, 100)
	h.idEmbeddingSize = h.Params.GetInt(model.IDEmbeddingSize, 32)
	h.attentionSize = h.Params.GetInt(model.AttentionSize, 16)
	h.kernelSizes = h.Params.GetIntSlice(model.KernelSizes, []int{3})
	h.nFilters = h.Params.GetInt(model.NFilters, 64)
	h.nUserMLPFactors = h.Params.GetInt(model.NUserMLPFactors, 128)
	h.nItemMLPFactors = h.Params.GetInt(model.NItemMLPFactors, 128)
	h.dropoutRate = h.Params.GetFloat32(model.DropoutRate, 0.5)
	h.maxTextLength = h.Params.GetInt(model.MaxTextLength, 50)
}

// SetPretrainedWordEmbeddings replaces the initial word embeddings with
// pretrained vectors on the next Init. Words outside the vocabulary and
// vectors of mismatched sizes are ignored.
func (h *HRDR) SetPretrainedWordEmbeddings(vectors map[string][]float32) {
	h.pretrained = vectors
}

// Clear releases the weights of the model.
func (h *HRDR) Clear() {
	h.UserIndex = nil
	h.ItemIndex = nil
	h.Vocabulary = nil
	h.trainSet = nil
	h.w1 = nil
}

// Invalid reports whether the model misses weights.
func (h *HRDR) Invalid() bool {
	return h == nil ||
		h.UserIndex == nil ||
		h.ItemIndex == nil ||
		h.Vocabulary == nil ||
		h.w1 == nil
}

// Init initializes the model from a training set. The training set stays
// attached to the model since predictions read historical reviews and
// ratings from it.
func (h *HRDR) Init(trainSet dataset.Split) {
	h.UserIndex = trainSet.GetUserDict()
	h.ItemIndex = trainSet.GetItemDict()
	h.Vocabulary = trainSet.GetVocabulary()
	h.UserPredictable = bitset.New(uint(trainSet.CountUsers()))
	h.ItemPredictable = bitset.New(uint(trainSet.CountItems()))
	for userIndex, feedback := range trainSet.GetUserFeedback() {
		if len(feedback) > 0 {
			h.UserPredictable.Set(uint(userIndex))
		}
	}
	for itemIndex, feedback := range trainSet.GetItemFeedback() {
		if len(feedback) > 0 {
			h.ItemPredictable.Set(uint(itemIndex))
		}
	}
	h.build()
	h.globalBias.Data()[0] = trainSet.GlobalMean()
	h.trainSet = trainSet
}

// AttachTrainSet attaches a training set to the model. Predictions need
// historical reviews and ratings which are not part of the marshaled model.
func (h *HRDR) AttachTrainSet(trainSet dataset.Split) {
	h.trainSet = trainSet
}

// IsUserPredictable returns false if the user has no training feedback and
// its embedding was never trained.
func (h *HRDR) IsUserPredictable(userIndex int32) bool {
	if userIndex < 0 || userIndex >= int32(h.UserIndex.Count()) {
		return false
	}
	return h.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if the item has no training feedback and
// its embedding was never trained.
func (h *HRDR) IsItemPredictable(itemIndex int32) bool {
	if itemIndex < 0 || itemIndex >= int32(h.ItemIndex.Count()) {
		return false
	}
	return h.ItemPredictable.Test(uint(itemIndex))
}

// build allocates weights and layers for the current index spaces. Both word
// embedding tables start from the same matrix so that user and item reviews
// share initial word semantics, and the rows of reserved tokens start at
// zero.
func (h *HRDR) build() {
	rng := h.GetRandomGenerator()
	numUsers := h.UserIndex.Count()
	numItems := h.ItemIndex.Count()
	numWords := h.Vocabulary.Size()
	reserved := int(dataset.EosId) + 1

	words := rng.UniformVector(numWords*h.embeddingSize, -0.5, 0.5)
	if len(h.pretrained) > 0 {
		hits, misses := 0, 0
		for id := reserved; id < numWords; id++ {
			token, _ := h.Vocabulary.Token(int32(id))
			if vector, ok := h.pretrained[token]; ok && len(vector) == h.embeddingSize {
				copy(words[id*h.embeddingSize:(id+1)*h.embeddingSize], vector)
				hits++
			} else {
				misses++
			}
		}
		log.Logger().Info("use pretrained word embeddings",
			zap.Int("hits", hits), zap.Int("misses", misses))
	}
	for i := 0; i < reserved*h.embeddingSize; i++ {
		words[i] = 0
	}
	h.userWordEmbedding = nn.NewTensor(words, numWords, h.embeddingSize).RequireGrad()
	itemWords := make([]float32, len(words))
	copy(itemWords, words)
	h.itemWordEmbedding = nn.NewTensor(itemWords, numWords, h.embeddingSize).RequireGrad()

	h.userIdEmbedding = nn.NewTensor(rng.UniformVector(numUsers*h.idEmbeddingSize, -0.05, 0.05),
		numUsers, h.idEmbeddingSize).RequireGrad()
	h.itemIdEmbedding = nn.NewTensor(rng.UniformVector(numItems*h.idEmbeddingSize, -0.05, 0.05),
		numItems, h.idEmbeddingSize).RequireGrad()
	h.userBias = nn.NewTensor(constantVector(numUsers, 0.1), numUsers, 1).RequireGrad()
	h.itemBias = nn.NewTensor(constantVector(numItems, 0.1), numItems, 1).RequireGrad()
	h.globalBias = nn.Zeros(1).RequireGrad()
	width := h.nFilters + h.nFactors + h.idEmbeddingSize
	h.w1 = nn.NewTensor(rng.NormalVector(width, 0, 1.0/math32.Sqrt(float32(width))), width, 1).RequireGrad()

	h.userTower = newRatingTower(rng, numItems, h.nUserMLPFactors, h.nFilters)
	h.itemTower = newRatingTower(rng, numUsers, h.nItemMLPFactors, h.nFilters)
	for _, kernelSize := range h.kernelSizes {
		if kernelSize > h.maxTextLength {
			panic("kernel sizes must not exceed MaxTextLength")
		}
	}
	h.userEncoder = newTextEncoder(rng, h.userWordEmbedding, h.kernelSizes, h.nFilters)
	h.itemEncoder = newTextEncoder(rng, h.itemWordEmbedding, h.kernelSizes, h.nFilters)
	if h.userEncoder.OutputWidth() != h.nFilters {
		panic("the output width of the text encoder must match NFilters")
	}
	h.userAttention = newAttention(rng, h.nFilters, h.attentionSize)
	h.itemAttention = newAttention(rng, h.nFilters, h.attentionSize)
	h.userProjection = newLinear(rng, h.nFilters, h.nFactors)
	h.itemProjection = newLinear(rng, h.nFilters, h.nFactors)
}

// parameters returns all trainable weights of the model. The word embedding
// tables are owned by the text encoders.
func (h *HRDR) parameters() []*nn.Tensor {
	params := []*nn.Tensor{
		h.userIdEmbedding, h.itemIdEmbedding,
		h.userBias, h.itemBias, h.globalBias, h.w1,
	}
	params = append(params, h.userTower.Parameters()...)
	params = append(params, h.itemTower.Parameters()...)
	params = append(params, h.userEncoder.Parameters()...)
	params = append(params, h.itemEncoder.Parameters()...)
	params = append(params, h.userAttention.Parameters()...)
	params = append(params, h.itemAttention.Parameters()...)
	params = append(params, h.userProjection.Parameters()...)
	params = append(params, h.itemProjection.Parameters()...)
	return params
}

// userRepresentations builds fused vectors for a batch of users and returns
// the attention weights over their reviews.
func (h *HRDR) userRepresentations(trainSet dataset.Split, users []int32, maxNumReview int,
	training bool, nJobs int) (*nn.Tensor, *nn.Tensor, error) {
	reviews, counts, ratings, err := trainSet.UserBatch(users, h.maxTextLength, maxNumReview)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	representation, weights := h.fuse(h.userTower, h.userEncoder, h.userAttention, h.userProjection,
		h.userIdEmbedding, users, reviews, counts, ratings, training, nJobs)
	return representation, weights, nil
}

// itemRepresentations builds fused vectors for a batch of items and returns
// the attention weights over their reviews.
func (h *HRDR) itemRepresentations(trainSet dataset.Split, items []int32, maxNumReview int,
	training bool, nJobs int) (*nn.Tensor, *nn.Tensor, error) {
	reviews, counts, ratings, err := trainSet.ItemBatch(items, h.maxTextLength, maxNumReview)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	representation, weights := h.fuse(h.itemTower, h.itemEncoder, h.itemAttention, h.itemProjection,
		h.itemIdEmbedding, items, reviews, counts, ratings, training, nJobs)
	return representation, weights, nil
}

// fuse concatenates the rating feature, the attention weighted review
// feature and the id embedding of each entity in a batch.
func (h *HRDR) fuse(tower *ratingTower, encoder *textEncoder, att *attention, projection *nn.LinearLayer,
	idEmbedding *nn.Tensor, indices []int32, reviews *nn.Tensor, counts []int32, ratings *nn.Tensor,
	training bool, nJobs int) (*nn.Tensor, *nn.Tensor) {
	batchSize, numReviews := reviews.Shape()[0], reviews.Shape()[1]
	ratingFeature := tower.Forward(ratings, training)
	reviewFeature := h.dropout(encoder.Forward(reviews, nJobs), training)
	weights := att.Forward(reviewFeature, ratingFeature, counts)
	opinion := nn.Reshape(
		nn.BMM(nn.Reshape(weights, batchSize, 1, numReviews), reviewFeature, false, false, nJobs),
		batchSize, h.nFilters)
	opinion = projection.Forward(h.dropout(opinion, training))
	idFeature := nn.Embedding(idEmbedding, indexTensor(indices))
	return nn.Concat(ratingFeature, opinion, idFeature), weights
}

// dropout applies inverted dropout during training.
func (h *HRDR) dropout(x *nn.Tensor, training bool) *nn.Tensor {
	if !training || h.dropoutRate <= 0 {
		return x
	}
	rng := h.GetRandomGenerator()
	scale := 1 / (1 - h.dropoutRate)
	mask := make([]float32, len(x.Data()))
	for i := range mask {
		if rng.Float32() >= h.dropoutRate {
			mask[i] = scale
		}
	}
	return nn.Mul(x, nn.NewTensor(mask, x.Shape()...))
}

// score computes bias augmented bilinear scores for pairs of user and item
// representations.
func (h *HRDR) score(users, items []int32, userFactor, itemFactor *nn.Tensor, nJobs int) *nn.Tensor {
	interaction := nn.MatMul(nn.Mul(userFactor, itemFactor), h.w1, false, false, nJobs)
	return nn.Add(interaction,
		nn.Embedding(h.userBias, indexTensor(users)),
		nn.Embedding(h.itemBias, indexTensor(items)),
		h.globalBias)
}

// Predict predicts the preference of a user for an item by running the full
// network over their historical reviews and ratings. Unknown and unpredictable
// users and items fall back to the global bias.
func (h *HRDR) Predict(userId, itemId string) float32 {
	userIndex, hasUser := h.UserIndex.ToNumber(userId)
	if !hasUser {
		log.Logger().Warn("unknown user", zap.String("user_id", userId))
	}
	itemIndex, hasItem := h.ItemIndex.ToNumber(itemId)
	if !hasItem {
		log.Logger().Warn("unknown item", zap.String("item_id", itemId))
	}
	if !hasUser || !hasItem {
		return h.globalBias.Data()[0]
	}
	if !h.IsUserPredictable(int32(userIndex)) || !h.IsItemPredictable(int32(itemIndex)) {
		return h.globalBias.Data()[0]
	}
	return h.internalPredict(int32(userIndex), int32(itemIndex))
}

func (h *HRDR) internalPredict(userIndex, itemIndex int32) float32 {
	if h.trainSet == nil {
		log.Logger().Warn("predict without a training set attached")
		return h.globalBias.Data()[0]
	}
	userFactor, _, err := h.userRepresentations(h.trainSet, []int32{userIndex}, 0, false, 0)
	if err != nil {
		log.Logger().Error("failed to build user representation", zap.Error(err))
		return h.globalBias.Data()[0]
	}
	itemFactor, _, err := h.itemRepresentations(h.trainSet, []int32{itemIndex}, 0, false, 0)
	if err != nil {
		log.Logger().Error("failed to build item representation", zap.Error(err))
		return h.globalBias.Data()[0]
	}
	return h.score([]int32{userIndex}, []int32{itemIndex}, userFactor, itemFactor, 0).Data()[0]
}

// tensors lists every tensor of the model in marshal order. Running
// statistics of batch normalization are included.
func (h *HRDR) tensors() []*nn.Tensor {
	tensors := []*nn.Tensor{
		h.userIdEmbedding, h.itemIdEmbedding,
		h.userBias, h.itemBias, h.globalBias, h.w1,
	}
	tensors = append(tensors, h.userTower.Parameters()...)
	tensors = append(tensors, h.userTower.norm.RunningMean, h.userTower.norm.RunningVar)
	tensors = append(tensors, h.itemTower.Parameters()...)
	tensors = append(tensors, h.itemTower.norm.RunningMean, h.itemTower.norm.RunningVar)
	tensors = append(tensors, h.userEncoder.Parameters()...)
	tensors = append(tensors, h.itemEncoder.Parameters()...)
	tensors = append(tensors, h.userAttention.Parameters()...)
	tensors = append(tensors, h.itemAttention.Parameters()...)
	tensors = append(tensors, h.userProjection.Parameters()...)
	tensors = append(tensors, h.itemProjection.Parameters()...)
	return tensors
}

// Marshal serializes the model into a binary stream.
func (h *HRDR) Marshal(w io.Writer) error {
	if err := encoding.WriteGob(w, h.Params); err != nil {
		return errors.Trace(err)
	}
	if err := h.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := h.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := h.Vocabulary.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if _, err := h.UserPredictable.WriteTo(w); err != nil {
		return errors.Trace(err)
	}
	if _, err := h.ItemPredictable.WriteTo(w); err != nil {
		return errors.Trace(err)
	}
	for _, tensor := range h.tensors() {
		if err := encoding.WriteVector(w, tensor.Data()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal deserializes the model from a binary stream. The training set is
// not part of the stream and must be attached before Predict.
func (h *HRDR) Unmarshal(r io.Reader) error {
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	h.SetParams(params)
	h.UserIndex = dataset.NewFreqDict()
	if err := h.UserIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	h.ItemIndex = dataset.NewFreqDict()
	if err := h.ItemIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	h.Vocabulary = new(dataset.Vocabulary)
	if err := h.Vocabulary.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	h.UserPredictable = new(bitset.BitSet)
	if _, err := h.UserPredictable.ReadFrom(r); err != nil {
		return errors.Trace(err)
	}
	h.ItemPredictable = new(bitset.BitSet)
	if _, err := h.ItemPredictable.ReadFrom(r); err != nil {
		return errors.Trace(err)
	}
	h.build()
	for _, tensor := range h.tensors() {
		if err := encoding.ReadVector(r, tensor.Data()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func constantVector(size int, value float32) []float32 {
	data := make([]float32, size)
	for i := range data {
		data[i] = value
	}
	return data
}
