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
	"fmt"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/mathutil"

	"github.com/gorse-io/opine/base/log"
	"github.com/gorse-io/opine/base/progress"
	"github.com/gorse-io/opine/common/nn"
	"github.com/gorse-io/opine/dataset"
)

// Score represents the evaluation score.
type Score struct {
	NDCG      float32
	Precision float32
	Recall    float32
}

// FitConfig is the configuration of model fitting.
type FitConfig struct {
	Jobs       int
	Verbose    int
	Candidates int
	TopK       int
}

// NewFitConfig creates a default fit config.
func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:       1,
		Verbose:    10,
		Candidates: 100,
		TopK:       10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(nJobs int) *FitConfig {
	config.Jobs = nJobs
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// Fit trains the model on the training set. The test set is used to report
// ranking scores of materialized weights during training and the scores of
// the last evaluation are returned.
func (h *HRDR) Fit(ctx context.Context, trainSet, testSet dataset.Split, config *FitConfig) Score {
	config = config.LoadDefaultIfNil()
	log.Logger().Info("fit hrdr",
		zap.Int("train_set_size", trainSet.CountFeedback()),
		zap.Int("test_set_size", testSet.CountFeedback()),
		zap.Any("params", h.GetParams()),
		zap.Any("config", config))
	h.Init(trainSet)

	// users are sampled with their rated items excluded from negatives
	userFeedback := make([]mapset.Set[int32], trainSet.CountUsers())
	for userIndex, feedback := range trainSet.GetUserFeedback() {
		userFeedback[userIndex] = mapset.NewSet(feedback...)
	}

	evalStart := time.Now()
	scores := h.evaluateRanking(testSet, trainSet, config)
	evalTime := time.Since(evalStart)
	log.Logger().Debug(fmt.Sprintf("fit hrdr %v/%v", 0, h.nEpochs),
		zap.String("eval_time", evalTime.String()),
		zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), scores[0]),
		zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), scores[1]),
		zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), scores[2]))

	optimizer := nn.NewAdam(h.parameters(), h.lr)
	optimizer.SetWeightDecay(h.reg)
	steps := mathutil.Max(trainSet.CountFeedback()/h.batchSize, 1)
	_, span := progress.Start(ctx, "HRDR.Fit", h.nEpochs)
	for epoch := 1; epoch <= h.nEpochs; epoch++ {
		fitStart := time.Now()
		cost := float32(0)
		for step := 0; step < steps; step++ {
			users, positives, negatives := h.sampleBatch(trainSet, userFeedback)
			loss, err := h.trainStep(optimizer, users, positives, negatives, config.Jobs)
			if err != nil {
				log.Logger().Error("failed to fit a batch", zap.Error(err))
				span.Fail(err)
				return Score{NDCG: scores[0], Precision: scores[1], Recall: scores[2]}
			}
			cost += loss
		}
		fitTime := time.Since(fitStart)
		if math32.IsNaN(cost) {
			log.Logger().Warn("model diverged", zap.Float32("lr", h.lr))
			break
		}
		if epoch%config.Verbose == 0 || epoch == h.nEpochs {
			evalStart = time.Now()
			scores = h.evaluateRanking(testSet, trainSet, config)
			evalTime = time.Since(evalStart)
			log.Logger().Debug(fmt.Sprintf("fit hrdr %v/%v", epoch, h.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", evalTime.String()),
				zap.Float32("loss", cost),
				zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), scores[0]),
				zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), scores[1]),
				zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), scores[2]))
		}
		span.Add(1)
	}
	span.End()
	log.Logger().Info("fit hrdr complete",
		zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), scores[0]),
		zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), scores[1]),
		zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), scores[2]))
	return Score{NDCG: scores[0], Precision: scores[1], Recall: scores[2]}
}

// sampleBatch samples users with one rated and one unrated item each.
func (h *HRDR) sampleBatch(trainSet dataset.Split, userFeedback []mapset.Set[int32]) (users, positives, negatives []int32) {
	rng := h.GetRandomGenerator()
	users = make([]int32, 0, h.batchSize)
	positives = make([]int32, 0, h.batchSize)
	negatives = make([]int32, 0, h.batchSize)
	for len(users) < h.batchSize {
		userIndex := rng.Int31n(int32(trainSet.CountUsers()))
		feedback := trainSet.GetUserFeedback()[userIndex]
		if len(feedback) == 0 {
			continue
		}
		positive := feedback[rng.Intn(len(feedback))]
		var negative int32
		for {
			negative = rng.Int31n(int32(trainSet.CountItems()))
			if !userFeedback[userIndex].Contains(negative) {
				break
			}
		}
		users = append(users, userIndex)
		positives = append(positives, positive)
		negatives = append(negatives, negative)
	}
	return
}

// trainStep fits one batch of pairwise comparisons and returns the loss.
func (h *HRDR) trainStep(optimizer nn.Optimizer, users, positives, negatives []int32, nJobs int) (float32, error) {
	userFactor, _, err := h.userRepresentations(h.trainSet, users, 0, true, nJobs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	positiveFactor, _, err := h.itemRepresentations(h.trainSet, positives, 0, true, nJobs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	negativeFactor, _, err := h.itemRepresentations(h.trainSet, negatives, 0, true, nJobs)
	if err != nil {
		return 0, errors.Trace(err)
	}
	positiveScore := h.score(users, positives, userFactor, positiveFactor, nJobs)
	negativeScore := h.score(users, negatives, userFactor, negativeFactor, nJobs)
	loss := nn.PairwiseLoss(positiveScore, negativeScore)
	optimizer.ZeroGrad()
	loss.Backward()
	optimizer.Step()
	return loss.Data()[0], nil
}

// evaluateRanking materializes serving weights and evaluates them in top-k
// ranking tasks.
func (h *HRDR) evaluateRanking(testSet, trainSet dataset.Split, config *FitConfig) []float32 {
	weights, err := h.MaterializeWeights(trainSet, h.batchSize, 0)
	if err != nil {
		log.Logger().Error("failed to materialize weights", zap.Error(err))
		return make([]float32, 3)
	}
	return Evaluate(weights, testSet, trainSet, config.TopK, config.Candidates, config.Jobs, NDCG, Precision, Recall)
}
