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

package base

// Index manages the map between sparse IDs and dense indices. A sparse ID is
// a user ID or item ID. The dense index is the internal user index or item index
// optimized for faster parameter access and less memory usage.
//
// Indices are assigned on first sight, form the contiguous range [0, Len()) and
// are never reused or reassigned.
type Index struct {
	numbers map[int64]int // sparse ID -> dense index
	names   []int64       // dense index -> sparse ID
}

// NotId represents an ID doesn't exist.
const NotId = -1

// NewIndex creates an Index.
func NewIndex() *Index {
	return &Index{
		numbers: make(map[int64]int),
		names:   make([]int64, 0),
	}
}

// Len returns the number of indexed IDs.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.names)
}

// Add adds a new ID to the indexer and returns its dense index. Adding an
// existing ID returns the index assigned at its first sight.
func (idx *Index) Add(id int64) int {
	if index, exist := idx.numbers[id]; exist {
		return index
	}
	index := len(idx.names)
	idx.numbers[id] = index
	idx.names = append(idx.names, id)
	return index
}

// ToNumber converts a sparse ID to a dense index. NotId is returned for unknown IDs.
func (idx *Index) ToNumber(id int64) int {
	if idx == nil {
		return NotId
	}
	if index, exist := idx.numbers[id]; exist {
		return index
	}
	return NotId
}

// ToName converts a dense index to a sparse ID.
func (idx *Index) ToName(index int) int64 {
	return idx.names[index]
}

// GetNames returns all IDs ordered by their dense indices.
func (idx *Index) GetNames() []int64 {
	names := make([]int64, len(idx.names))
	copy(names, idx.names)
	return names
}

// Range calls f for every (id, index) pair in index order until f returns false.
func (idx *Index) Range(f func(id int64, index int) bool) {
	for index, id := range idx.names {
		if !f(id, index) {
			return
		}
	}
}

// Clone returns a deep copy of the index.
func (idx *Index) Clone() *Index {
	cloned := &Index{
		numbers: make(map[int64]int, len(idx.numbers)),
		names:   make([]int64, len(idx.names)),
	}
	copy(cloned.names, idx.names)
	for id, index := range idx.numbers {
		cloned.numbers[id] = index
	}
	return cloned
}
