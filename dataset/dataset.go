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

package dataset

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/opine/base"
	"github.com/gorse-io/opine/common/nn"
	"github.com/samber/lo"
)

// Split is the view of a dataset consumed by models and evaluators. Both the
// training split and the test split of a dataset implement this interface and
// share the same user, item and word index spaces.
type Split interface {
	CountUsers() int
	CountItems() int
	CountFeedback() int
	GlobalMean() float32
	GetUserDict() *FreqDict
	GetItemDict() *FreqDict
	GetVocabulary() *Vocabulary
	GetUserFeedback() [][]int32
	GetItemFeedback() [][]int32
	UserIter(batchSize int) [][]int32
	ItemIter(batchSize int) [][]int32
	UserBatch(users []int32, maxTextLength, maxNumReview int) (*nn.Tensor, []int32, *nn.Tensor, error)
	ItemBatch(items []int32, maxTextLength, maxNumReview int) (*nn.Tensor, []int32, *nn.Tensor, error)
	NegativeSample(excludeSet Split, numCandidates int) [][]int32
}

var _ Split = &Dataset{}

// Dataset is a collection of rated reviews. Each feedback carries a rating
// and a tokenized review text. Feedback is indexed from both sides:
// userFeedback[u][k] is the item of the k-th feedback of user u while
// userReviews[u][k] is its global feedback id.
type Dataset struct {
	userDict      *FreqDict
	itemDict      *FreqDict
	vocab         *Vocabulary
	userFeedback  [][]int32
	itemFeedback  [][]int32
	userReviews   [][]int32
	itemReviews   [][]int32
	reviews       [][]int32
	reviewRatings []float32
	ratingSum     float64
	negatives     [][]int32
}

func NewDataset(vocab *Vocabulary, userCount, itemCount int) *Dataset {
	return &Dataset{
		userDict:     NewFreqDict(),
		itemDict:     NewFreqDict(),
		vocab:        vocab,
		userFeedback: make([][]int32, 0, userCount),
		itemFeedback: make([][]int32, 0, itemCount),
		userReviews:  make([][]int32, 0, userCount),
		itemReviews:  make([][]int32, 0, itemCount),
	}
}

// newSubset creates an empty dataset sharing the index spaces of d. Feedback
// lists are pre-sized so every known user and item has an entry even if no
// feedback is routed to the subset.
func newSubset(d *Dataset) *Dataset {
	return &Dataset{
		userDict:     d.userDict,
		itemDict:     d.itemDict,
		vocab:        d.vocab,
		userFeedback: make([][]int32, d.userDict.Count()),
		itemFeedback: make([][]int32, d.itemDict.Count()),
		userReviews:  make([][]int32, d.userDict.Count()),
		itemReviews:  make([][]int32, d.itemDict.Count()),
	}
}

func (d *Dataset) CountUsers() int {
	return d.userDict.Count()
}

func (d *Dataset) CountItems() int {
	return d.itemDict.Count()
}

func (d *Dataset) CountFeedback() int {
	return len(d.reviews)
}

// GlobalMean returns the mean of all ratings in the dataset.
func (d *Dataset) GlobalMean() float32 {
	if len(d.reviews) == 0 {
		return 0
	}
	return float32(d.ratingSum / float64(len(d.reviews)))
}

func (d *Dataset) GetUserDict() *FreqDict {
	return d.userDict
}

func (d *Dataset) GetItemDict() *FreqDict {
	return d.itemDict
}

func (d *Dataset) GetVocabulary() *Vocabulary {
	return d.vocab
}

func (d *Dataset) GetUserFeedback() [][]int32 {
	return d.userFeedback
}

func (d *Dataset) GetItemFeedback() [][]int32 {
	return d.itemFeedback
}

// AddFeedback appends a rated review. Unseen users and items are assigned new
// indices and the review text is tokenized by the vocabulary.
func (d *Dataset) AddFeedback(userId, itemId string, rating float32, text string) {
	userIndex := int32(d.userDict.Id(userId))
	itemIndex := int32(d.itemDict.Id(itemId))
	d.addFeedback(userIndex, itemIndex, rating, d.vocab.Tokenize(text))
}

func (d *Dataset) addFeedback(userIndex, itemIndex int32, rating float32, tokens []int32) {
	for len(d.userFeedback) <= int(userIndex) {
		d.userFeedback = append(d.userFeedback, nil)
		d.userReviews = append(d.userReviews, nil)
	}
	for len(d.itemFeedback) <= int(itemIndex) {
		d.itemFeedback = append(d.itemFeedback, nil)
		d.itemReviews = append(d.itemReviews, nil)
	}
	id := int32(len(d.reviews))
	d.reviews = append(d.reviews, tokens)
	d.reviewRatings = append(d.reviewRatings, rating)
	d.ratingSum += float64(rating)
	d.userFeedback[userIndex] = append(d.userFeedback[userIndex], itemIndex)
	d.userReviews[userIndex] = append(d.userReviews[userIndex], id)
	d.itemFeedback[itemIndex] = append(d.itemFeedback[itemIndex], userIndex)
	d.itemReviews[itemIndex] = append(d.itemReviews[itemIndex], id)
}

// UserIter splits user indices into batches of batchSize.
func (d *Dataset) UserIter(batchSize int) [][]int32 {
	return lo.Chunk(lo.RangeFrom(int32(0), d.CountUsers()), batchSize)
}

// ItemIter splits item indices into batches of batchSize.
func (d *Dataset) ItemIter(batchSize int) [][]int32 {
	return lo.Chunk(lo.RangeFrom(int32(0), d.CountItems()), batchSize)
}

// NegativeSample samples negative items for every user. Items interacted in
// this dataset and the exclude dataset are excluded. Samples are memoized so
// repeated evaluations rank the same candidates.
func (d *Dataset) NegativeSample(excludeSet Split, numCandidates int) [][]int32 {
	if len(d.negatives) == 0 {
		rng := base.NewRandomGenerator(0)
		d.negatives = make([][]int32, d.CountUsers())
		for userIndex := 0; userIndex < d.CountUsers(); userIndex++ {
			s1 := mapset.NewSet(d.GetUserFeedback()[userIndex]...)
			s2 := mapset.NewSet(excludeSet.GetUserFeedback()[userIndex]...)
			d.negatives[userIndex] = rng.SampleInt32(0, int32(d.CountItems()), numCandidates, s1, s2)
		}
	}
	return d.negatives
}
