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

// MeanSquareError returns the mean squared difference between two tensors.
func MeanSquareError(x, y *Tensor) *Tensor {
	return Mean(Square(Sub(x, y)))
}

// MSE is a shorthand for MeanSquareError.
func MSE(x, y *Tensor) *Tensor {
	return MeanSquareError(x, y)
}

// PairwiseLoss returns the Bayesian personalized ranking loss for positive and
// negative scores: mean(-log(sigmoid(positive - negative))).
func PairwiseLoss(positive, negative *Tensor) *Tensor {
	return Mean(Softplus(Sub(negative, positive)))
}
