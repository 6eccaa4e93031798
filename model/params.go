// Copyright 2020 gorse Project Authors
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

package model

import (
	"reflect"

	"github.com/gorse-io/opine/base/log"
	"go.uber.org/zap"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	Lr              ParamName = "Lr"              // learning rate
	Reg             ParamName = "Reg"             // regularization strength
	NEpochs         ParamName = "NEpochs"         // number of epochs
	NFactors        ParamName = "NFactors"        // number of latent factors
	RandomState     ParamName = "RandomState"     // random state (seed)
	BatchSize       ParamName = "BatchSize"       // batch size
	EmbeddingSize   ParamName = "EmbeddingSize"   // word embedding size
	IDEmbeddingSize ParamName = "IDEmbeddingSize" // user/item id embedding size
	AttentionSize   ParamName = "AttentionSize"   // attention hidden size
	KernelSizes     ParamName = "KernelSizes"     // convolution kernel sizes
	NFilters        ParamName = "NFilters"        // number of convolution filters
	NUserMLPFactors ParamName = "NUserMLPFactors" // width of the user rating tower
	NItemMLPFactors ParamName = "NItemMLPFactors" // width of the item rating tower
	DropoutRate     ParamName = "DropoutRate"     // dropout rate
	MaxTextLength   ParamName = "MaxTextLength"   // maximal number of tokens per review
)

// Params stores hyper-parameters for a model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for HRDR
// is given by:
//
//	model.Params{
//		model.Lr:       0.001,
//		model.NEpochs:  20,
//		model.NFactors: 32,
//		model.Reg:      0.01,
//	}
type Params map[ParamName]interface{}

// GetInt gets a integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("type mismatch in hyper-parameters",
				zap.String("expect", "int"),
				zap.String("name", string(name)),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't match.
// The type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch in hyper-parameters",
				zap.String("expect", "int64"),
				zap.String("name", string(name)),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetFloat32 gets a float parameter by name. Returns _default if not exists or type doesn't match.
// The type will be converted if given float64 or int.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float32:
			return val
		case float64:
			return float32(val)
		case int:
			return float32(val)
		default:
			log.Logger().Error("type mismatch in hyper-parameters",
				zap.String("expect", "float32"),
				zap.String("name", string(name)),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetIntSlice gets a integer slice parameter by name. Returns _default if not exists or
// type doesn't match.
func (parameters Params) GetIntSlice(name ParamName, _default []int) []int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case []int:
			return val
		default:
			log.Logger().Error("type mismatch in hyper-parameters",
				zap.String("expect", "[]int"),
				zap.String("name", string(name)),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// Overwrite merges parameters, the existed parameter will be overwritten.
func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
