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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeTempCSV(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "reviews.csv")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTempCSV(t, `user_id,item_id,rating,review
1,a,5,"good, good stuff"
2,a,4,good
2,b,3,meh
`)
	d, err := LoadCSV(path, ',', true, 0)
	assert.NoError(t, err)
	assert.Equal(t, 2, d.CountUsers())
	assert.Equal(t, 2, d.CountItems())
	assert.Equal(t, 3, d.CountFeedback())
	assert.Equal(t, float32(4), d.GlobalMean())
	// The vocabulary covers all review texts.
	assert.Equal(t, 4+4, d.GetVocabulary().Size())
	assert.Equal(t, int32(4), d.GetVocabulary().Id("good"))
	assert.Equal(t, [][]int32{{0}, {0, 1}}, d.GetUserFeedback())
}

func TestLoadCSV_MissingFields(t *testing.T) {
	path := writeTempCSV(t, "1,a,5\n")
	_, err := LoadCSV(path, ',', false, 0)
	assert.Error(t, err)
}

func TestLoadCSV_BadRating(t *testing.T) {
	path := writeTempCSV(t, "1,a,great,nice\n")
	_, err := LoadCSV(path, ',', false, 0)
	assert.Error(t, err)
}

func TestLoadCSV_NotFound(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), ',', true, 0)
	assert.Error(t, err)
}
