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
	"encoding/csv"
	"os"

	"github.com/gorse-io/opine/common/util"
	"github.com/juju/errors"
)

// LoadCSV loads a dataset from a CSV file. Each row consists of a user id, an
// item id, a rating and a review text. The vocabulary is built from the most
// frequent vocabSize words in review texts before feedback is inserted, so
// insertion order never changes word ids.
func LoadCSV(path string, sep rune, hasHeader bool, vocabSize int) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if hasHeader && len(rows) > 0 {
		rows = rows[1:]
	}
	texts := make([]string, 0, len(rows))
	for i, row := range rows {
		if len(row) < 4 {
			return nil, errors.Errorf("expect 4 fields in line %d, got %d", i+1, len(row))
		}
		texts = append(texts, row[3])
	}
	vocab := BuildVocabulary(texts, vocabSize)
	dataset := NewDataset(vocab, 0, 0)
	for _, row := range rows {
		rating, err := util.ParseFloat[float32](row[2])
		if err != nil {
			return nil, errors.Trace(err)
		}
		dataset.AddFeedback(row[0], row[1], rating, row[3])
	}
	return dataset, nil
}
