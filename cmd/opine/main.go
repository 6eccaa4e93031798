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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gorse-io/opine/base/log"
	"github.com/gorse-io/opine/cmd/version"
	"github.com/gorse-io/opine/dataset"
	"github.com/gorse-io/opine/model"
	"github.com/gorse-io/opine/model/hrdr"
)

var rootCommand = &cobra.Command{
	Use:   "opine",
	Short: "Review based recommender built on the HRDR model.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Check the version of opine.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.BuildInfo())
	},
}

var trainCommand = &cobra.Command{
	Use:   "train DATASET",
	Short: "Train a HRDR model and export weights for serving.",
	Long: "Train a HRDR model on a review dataset and export weights for serving. " +
		"DATASET is either the path of a CSV file with user_id, item_id, rating and " +
		"review columns, or the name of a built-in dataset.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)

		// load dataset
		vocabSize, _ := cmd.Flags().GetInt("vocab-size")
		var (
			data *dataset.Dataset
			err  error
		)
		if _, statErr := os.Stat(args[0]); statErr == nil {
			data, err = dataset.LoadCSV(args[0], ',', true, vocabSize)
		} else {
			data, err = dataset.LoadBuiltIn(args[0], vocabSize)
		}
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.String("dataset", args[0]), zap.Error(err))
		}
		testRatio, _ := cmd.Flags().GetFloat32("test-ratio")
		splitSeed, _ := cmd.Flags().GetInt64("split-seed")
		trainSet, testSet := data.SplitFeedback(testRatio, splitSeed)

		// train model
		h := hrdr.NewHRDR(flagsToParams(cmd))
		config := hrdr.NewFitConfig()
		config.Verbose, _ = cmd.Flags().GetInt("verbose")
		config.Jobs, _ = cmd.Flags().GetInt("jobs")
		config.TopK, _ = cmd.Flags().GetInt("top-k")
		config.Candidates, _ = cmd.Flags().GetInt("candidates")
		score := h.Fit(cmd.Context(), trainSet, testSet, config)
		log.Logger().Info("training complete",
			zap.Float32(fmt.Sprintf("NDCG@%d", config.TopK), score.NDCG),
			zap.Float32(fmt.Sprintf("Precision@%d", config.TopK), score.Precision),
			zap.Float32(fmt.Sprintf("Recall@%d", config.TopK), score.Recall))

		// save model
		if modelPath, _ := cmd.Flags().GetString("model-path"); modelPath != "" {
			if err = save(modelPath, h.Marshal); err != nil {
				log.Logger().Fatal("failed to save model", zap.String("path", modelPath), zap.Error(err))
			}
			log.Logger().Info("model saved", zap.String("path", modelPath))
		}

		// export serving weights
		if weightsPath, _ := cmd.Flags().GetString("weights-path"); weightsPath != "" {
			batchSize, _ := cmd.Flags().GetInt("serving-batch-size")
			maxNumReview, _ := cmd.Flags().GetInt("max-num-review")
			weights, err := h.MaterializeWeights(trainSet, batchSize, maxNumReview)
			if err != nil {
				log.Logger().Fatal("failed to materialize weights", zap.Error(err))
			}
			if err = save(weightsPath, weights.Marshal); err != nil {
				log.Logger().Fatal("failed to save weights", zap.String("path", weightsPath), zap.Error(err))
			}
			log.Logger().Info("weights saved", zap.String("path", weightsPath))
		}
	},
}

func init() {
	rootCommand.PersistentFlags().BoolP("version", "v", false, "opine version")
	rootCommand.AddCommand(versionCommand)
	rootCommand.AddCommand(trainCommand)

	log.AddFlags(trainCommand.Flags())
	trainCommand.Flags().Bool("debug", false, "use debug log mode")
	trainCommand.Flags().Int("vocab-size", 4000, "maximum size of the vocabulary")
	trainCommand.Flags().Float32("test-ratio", 0.2, "fraction of feedback put aside for evaluation")
	trainCommand.Flags().Int64("split-seed", 0, "random seed of the train test split")
	trainCommand.Flags().Int("jobs", 1, "number of working jobs")
	trainCommand.Flags().Int("verbose", 10, "number of epochs between evaluations")
	trainCommand.Flags().Int("top-k", 10, "size of evaluated ranking lists")
	trainCommand.Flags().Int("candidates", 100, "number of sampled candidate items")
	trainCommand.Flags().Int("epochs", 20, "number of training epochs")
	trainCommand.Flags().Int("factors", 32, "size of review based factors")
	trainCommand.Flags().Int("batch-size", 64, "size of training batches")
	trainCommand.Flags().Float32("lr", 0.001, "learning rate")
	trainCommand.Flags().Float32("reg", 0, "weight decay")
	trainCommand.Flags().Float32("dropout", 0.5, "dropout rate of review features")
	trainCommand.Flags().Int("embedding-size", 100, "size of word embeddings")
	trainCommand.Flags().Int("id-embedding-size", 32, "size of user and item id embeddings")
	trainCommand.Flags().Int("attention-size", 16, "hidden size of review attention")
	trainCommand.Flags().IntSlice("kernel-sizes", []int{3}, "kernel sizes of review convolutions")
	trainCommand.Flags().Int("filters", 64, "number of convolution filters")
	trainCommand.Flags().Int("mlp-factors", 128, "width of rating perceptrons")
	trainCommand.Flags().Int("max-text-length", 50, "number of words kept per review")
	trainCommand.Flags().Int64("random-state", 0, "random seed of the model")
	trainCommand.Flags().String("model-path", "", "path to save the trained model")
	trainCommand.Flags().String("weights-path", "", "path to save materialized serving weights")
	trainCommand.Flags().Int("serving-batch-size", 0, "batch size of weight materialization")
	trainCommand.Flags().Int("max-num-review", 0, "number of attention weights kept per item")
}

// flagsToParams collects hyper-parameters from changed flags so that model
// defaults stay in one place.
func flagsToParams(cmd *cobra.Command) model.Params {
	flags := cmd.Flags()
	params := make(model.Params)
	for flag, name := range map[string]model.ParamName{
		"epochs":            model.NEpochs,
		"factors":           model.NFactors,
		"batch-size":        model.BatchSize,
		"embedding-size":    model.EmbeddingSize,
		"id-embedding-size": model.IDEmbeddingSize,
		"attention-size":    model.AttentionSize,
		"filters":           model.NFilters,
		"max-text-length":   model.MaxTextLength,
	} {
		if flags.Changed(flag) {
			value, _ := flags.GetInt(flag)
			params[name] = value
		}
	}
	for flag, name := range map[string]model.ParamName{
		"lr":      model.Lr,
		"reg":     model.Reg,
		"dropout": model.DropoutRate,
	} {
		if flags.Changed(flag) {
			value, _ := flags.GetFloat32(flag)
			params[name] = value
		}
	}
	if flags.Changed("kernel-sizes") {
		value, _ := flags.GetIntSlice("kernel-sizes")
		params[model.KernelSizes] = value
	}
	if flags.Changed("mlp-factors") {
		value, _ := flags.GetInt("mlp-factors")
		params[model.NUserMLPFactors] = value
		params[model.NItemMLPFactors] = value
	}
	if flags.Changed("random-state") {
		value, _ := flags.GetInt64("random-state")
		params[model.RandomState] = value
	}
	return params
}

func save(path string, marshal func(w io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	return errors.Trace(marshal(file))
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
