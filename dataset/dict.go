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
	"encoding/binary"
	"io"

	"github.com/gorse-io/opine/base/encoding"
	"github.com/juju/errors"
)

// FreqDict maps strings to dense integer ids and counts occurrences.
type FreqDict struct {
	si  map[string]int
	is  []string
	cnt []int
}

func NewFreqDict() (d *FreqDict) {
	d = &FreqDict{map[string]int{}, []string{}, []int{}}
	return
}

func (d *FreqDict) Count() int {
	return len(d.is)
}

// Id returns the id of a string and increases its frequency. A new id is
// allocated if the string is unseen.
func (d *FreqDict) Id(s string) (y int) {
	if y, ok := d.si[s]; ok {
		d.cnt[y]++
		return y
	}

	y = len(d.is)
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 1)
	return
}

// NotCount returns the id of a string without increasing its frequency.
func (d *FreqDict) NotCount(s string) (y int) {
	if y, ok := d.si[s]; ok {
		return y
	}

	y = len(d.is)
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 0)
	return
}

// ToNumber looks up the id of a string without modifying the dictionary.
func (d *FreqDict) ToNumber(s string) (y int, ok bool) {
	y, ok = d.si[s]
	return
}

func (d *FreqDict) String(id int) (s string, ok bool) {
	if id >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

func (d *FreqDict) Freq(id int) int {
	if id >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

func (d *FreqDict) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(d.is))); err != nil {
		return errors.Trace(err)
	}
	for id, s := range d.is {
		if err := encoding.WriteString(w, s); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(d.cnt[id])); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *FreqDict) Unmarshal(r io.Reader) error {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return errors.Trace(err)
	}
	d.si = make(map[string]int, count)
	d.is = make([]string, 0, count)
	d.cnt = make([]int, 0, count)
	for i := 0; i < int(count); i++ {
		s, err := encoding.ReadString(r)
		if err != nil {
			return errors.Trace(err)
		}
		var freq int32
		if err := binary.Read(r, binary.LittleEndian, &freq); err != nil {
			return errors.Trace(err)
		}
		d.si[s] = len(d.is)
		d.is = append(d.is, s)
		d.cnt = append(d.cnt, int(freq))
	}
	return nil
}
