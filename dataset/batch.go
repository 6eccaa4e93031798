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
	"github.com/gorse-io/opine/common/nn"
	"github.com/juju/errors"
	"modernc.org/mathutil"
)

// UserBatch assembles training inputs for a batch of users:
//   - a (len(users), R, maxTextLength) tensor of review word ids, where R is
//     the largest review count in the batch capped by maxNumReview,
//   - the number of real reviews of each user,
//   - a (len(users), CountItems()) tensor of ratings.
//
// Reviews are truncated to the first maxNumReview per user and the first
// maxTextLength words per review. Missing positions are zero padded. A
// non-positive maxNumReview keeps all reviews. The rating rows always cover
// all feedback of a user regardless of maxNumReview.
func (d *Dataset) UserBatch(users []int32, maxTextLength, maxNumReview int) (*nn.Tensor, []int32, *nn.Tensor, error) {
	return d.batch(users, d.userReviews, d.userFeedback, d.CountItems(), maxTextLength, maxNumReview)
}

// ItemBatch assembles training inputs for a batch of items. See UserBatch.
func (d *Dataset) ItemBatch(items []int32, maxTextLength, maxNumReview int) (*nn.Tensor, []int32, *nn.Tensor, error) {
	return d.batch(items, d.itemReviews, d.itemFeedback, d.CountUsers(), maxTextLength, maxNumReview)
}

func (d *Dataset) batch(indices []int32, reviewLists, feedbackLists [][]int32, opposite, maxTextLength, maxNumReview int) (*nn.Tensor, []int32, *nn.Tensor, error) {
	if maxTextLength <= 0 {
		return nil, nil, nil, errors.Errorf("maxTextLength must be positive: %v", maxTextLength)
	}
	// Count real reviews and find the padded width of the batch.
	r := 1
	counts := make([]int32, len(indices))
	for b, index := range indices {
		if index < 0 || int(index) >= len(reviewLists) {
			return nil, nil, nil, errors.Errorf("index %v out of range", index)
		}
		n := len(reviewLists[index])
		if maxNumReview > 0 {
			n = mathutil.Min(n, maxNumReview)
		}
		counts[b] = int32(n)
		r = mathutil.Max(r, n)
	}
	tokens := make([]float32, len(indices)*r*maxTextLength)
	for b, index := range indices {
		for k := 0; k < int(counts[b]); k++ {
			review := d.reviews[reviewLists[index][k]]
			for t := 0; t < mathutil.Min(len(review), maxTextLength); t++ {
				tokens[(b*r+k)*maxTextLength+t] = float32(review[t])
			}
		}
	}
	ratings := make([]float32, len(indices)*opposite)
	for b, index := range indices {
		for k, opposed := range feedbackLists[index] {
			ratings[b*opposite+int(opposed)] = d.reviewRatings[reviewLists[index][k]]
		}
	}
	return nn.NewTensor(tokens, len(indices), r, maxTextLength), counts,
		nn.NewTensor(ratings, len(indices), opposite), nil
}
