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
	"io"
	"strings"

	"github.com/gorse-io/opine/common/heap"
)

const (
	PadToken = "<PAD>"
	UnkToken = "<UNK>"
	BosToken = "<BOS>"
	EosToken = "<EOS>"
)

const (
	PadId int32 = iota
	UnkId
	BosId
	EosId
)

// Vocabulary maps tokens to dense word ids. The first four ids are reserved
// for control tokens, so word embeddings can keep zero vectors at these rows.
type Vocabulary struct {
	words *FreqDict
}

func NewVocabulary() *Vocabulary {
	words := NewFreqDict()
	words.NotCount(PadToken)
	words.NotCount(UnkToken)
	words.NotCount(BosToken)
	words.NotCount(EosToken)
	return &Vocabulary{words: words}
}

// BuildVocabulary collects the most frequent maxSize tokens from texts. Word
// ids are assigned in decreasing frequency order after the reserved tokens.
// If maxSize is not positive, all tokens are kept.
func BuildVocabulary(texts []string, maxSize int) *Vocabulary {
	counts := NewFreqDict()
	for _, text := range texts {
		for _, token := range tokenize(text) {
			counts.Id(token)
		}
	}
	if maxSize <= 0 {
		maxSize = counts.Count()
	}
	filter := heap.NewTopKFilter[string, int](maxSize)
	for id := 0; id < counts.Count(); id++ {
		token, _ := counts.String(id)
		filter.Push(token, counts.Freq(id))
	}
	v := NewVocabulary()
	for _, token := range filter.PopAllValues() {
		v.words.NotCount(token)
	}
	return v
}

// tokenize splits a text into lowercase tokens. Lowercasing keeps user text
// from colliding with the reserved control tokens.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func (v *Vocabulary) Size() int {
	return v.words.Count()
}

// Id returns the id of a token, or UnkId for tokens outside the vocabulary.
func (v *Vocabulary) Id(token string) int32 {
	if id, ok := v.words.ToNumber(token); ok {
		return int32(id)
	}
	return UnkId
}

func (v *Vocabulary) Token(id int32) (string, bool) {
	return v.words.String(int(id))
}

// Tokenize converts a text to word ids.
func (v *Vocabulary) Tokenize(text string) []int32 {
	tokens := tokenize(text)
	ids := make([]int32, len(tokens))
	for i, token := range tokens {
		ids[i] = v.Id(token)
	}
	return ids
}

func (v *Vocabulary) Marshal(w io.Writer) error {
	return v.words.Marshal(w)
}

func (v *Vocabulary) Unmarshal(r io.Reader) error {
	v.words = NewFreqDict()
	return v.words.Unmarshal(r)
}
