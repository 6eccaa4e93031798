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
	"modernc.org/mathutil"
)

// SplitFeedback splits the dataset into a training set and a test set. For
// each user, a ratio of feedback is routed to the test set with at least one
// feedback kept on each side. Users with less than two feedback keep all
// feedback in the training set, and a non-positive ratio keeps the test set
// empty. Both splits share the index spaces of the source dataset.
func (d *Dataset) SplitFeedback(ratio float32, seed int64) (*Dataset, *Dataset) {
	trainSet, testSet := newSubset(d), newSubset(d)
	rng := base.NewRandomGenerator(seed)
	for userIndex := 0; userIndex < d.CountUsers(); userIndex++ {
		feedback := d.userReviews[userIndex]
		if len(feedback) < 2 || ratio <= 0 {
			for position := range feedback {
				d.route(trainSet, userIndex, position)
			}
			continue
		}
		k := int(ratio * float32(len(feedback)))
		k = mathutil.Max(1, mathutil.Min(k, len(feedback)-1))
		test := mapset.NewSet(rng.Perm(len(feedback))[:k]...)
		for position := range feedback {
			if test.Contains(position) {
				d.route(testSet, userIndex, position)
			} else {
				d.route(trainSet, userIndex, position)
			}
		}
	}
	return trainSet, testSet
}

// route copies the feedback at a position of a user's history into dst.
func (d *Dataset) route(dst *Dataset, userIndex, position int) {
	id := d.userReviews[userIndex][position]
	dst.addFeedback(int32(userIndex), d.userFeedback[userIndex][position], d.reviewRatings[id], d.reviews[id])
}
