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
	"context"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"modernc.org/mathutil"

	"github.com/gorse-io/opine/common/floats"
	"github.com/gorse-io/opine/common/heap"
	"github.com/gorse-io/opine/common/parallel"
	"github.com/gorse-io/opine/dataset"
)

// Metric is used by evaluators in personalized ranking tasks.
type Metric func(targetSet mapset.Set[int32], rankList []int32) float32

// Evaluate evaluates serving weights in top-n tasks. Candidates of each user
// are the items of the test set plus sampled items without feedback in
// either set.
func Evaluate(weights *ServingWeights, testSet, excludeSet dataset.Split, topK, numCandidates, nJobs int, scorers ...Metric) []float32 {
	nJobs = mathutil.Max(nJobs, 1)
	partSum := make([][]float32, nJobs)
	partCount := make([]float32, nJobs)
	for i := 0; i < nJobs; i++ {
		partSum[i] = make([]float32, len(scorers))
	}
	negatives := testSet.NegativeSample(excludeSet, numCandidates)
	_ = parallel.Parallel(context.Background(), testSet.CountUsers(), nJobs, func(workerId, userIndex int) error {
		targets := testSet.GetUserFeedback()[userIndex]
		if len(targets) > 0 {
			targetSet := mapset.NewSet(targets...)
			negativeSample := negatives[userIndex]
			candidates := make([]int32, 0, len(targets)+len(negativeSample))
			candidates = append(candidates, targets...)
			candidates = append(candidates, negativeSample...)
			rankList, _ := Rank(weights, int32(userIndex), candidates, topK)
			partCount[workerId]++
			for i, scorer := range scorers {
				partSum[workerId][i] += scorer(targetSet, rankList)
			}
		}
		return nil
	})
	sum := make([]float32, len(scorers))
	for i := 0; i < nJobs; i++ {
		floats.Add(sum, partSum[i])
	}
	count := floats.Sum(partCount)
	if count == 0 {
		return sum
	}
	floats.MulConst(sum, 1/count)
	return sum
}

// Rank ranks candidate items of a user by materialized scores and returns
// the top-k list.
func Rank(weights *ServingWeights, userIndex int32, candidates []int32, topK int) ([]int32, []float32) {
	filter := heap.NewTopKFilter[int32, float32](topK)
	for _, itemIndex := range candidates {
		filter.Push(itemIndex, weights.Score(userIndex, itemIndex))
	}
	elems := filter.PopAll()
	recommends := make([]int32, len(elems))
	scores := make([]float32, len(elems))
	for i, elem := range elems {
		recommends[i] = elem.Value
		scores[i] = elem.Weight
	}
	return recommends, scores
}

// NDCG means Normalized Discounted Cumulative Gain.
func NDCG(targetSet mapset.Set[int32], rankList []int32) float32 {
	// IDCG = \sum^{|REL|}_{i=1} \frac {1} {\log_2(i+1)}
	idcg := float32(0)
	for i := 0; i < mathutil.Min(targetSet.Cardinality(), len(rankList)); i++ {
		idcg += 1.0 / math32.Log2(float32(i)+2.0)
	}
	// DCG = \sum^{N}_{i=1} \frac {2^{rel_i}-1} {\log_2(i+1)}
	dcg := float32(0)
	for i, itemIndex := range rankList {
		if targetSet.Contains(itemIndex) {
			dcg += 1.0 / math32.Log2(float32(i)+2.0)
		}
	}
	return dcg / idcg
}

// Precision is the fraction of relevant items among the ranking list.
func Precision(targetSet mapset.Set[int32], rankList []int32) float32 {
	hit := float32(0)
	for _, itemIndex := range rankList {
		if targetSet.Contains(itemIndex) {
			hit++
		}
	}
	return hit / float32(len(rankList))
}

// Recall is the fraction of relevant items in the ranking list among all
// relevant items.
func Recall(targetSet mapset.Set[int32], rankList []int32) float32 {
	hit := float32(0)
	for _, itemIndex := range rankList {
		if targetSet.Contains(itemIndex) {
			hit++
		}
	}
	return hit / float32(targetSet.Cardinality())
}
