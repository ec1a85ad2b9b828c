// Copyright 2026 gorse Project Authors
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

package mf

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/factorizer/base"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

// Factorization is the result of a factorizer: one feature vector per user and
// per item. The preference of a user for an item is estimated by the dot
// product of their vectors. A Factorization is immutable and safe for
// concurrent use.
type Factorization struct {
	userIndex       *base.Index
	itemIndex       *base.Index
	userFeatures    *FeatureMatrix
	itemFeatures    *FeatureMatrix
	userPredictable *bitset.BitSet
	itemPredictable *bitset.BitSet
}

// NewFactorization creates a Factorization. Rows of the feature matrices must
// follow the dense indices. Entities absent from the predictable sets kept
// their initial vectors.
func NewFactorization(userIndex, itemIndex *base.Index, userFeatures, itemFeatures *FeatureMatrix,
	userPredictable, itemPredictable *bitset.BitSet) (*Factorization, error) {
	if userFeatures.Rows() != userIndex.Len() {
		return nil, errors.NotValidf("%d user vectors for %d users", userFeatures.Rows(), userIndex.Len())
	}
	if itemFeatures.Rows() != itemIndex.Len() {
		return nil, errors.NotValidf("%d item vectors for %d items", itemFeatures.Rows(), itemIndex.Len())
	}
	if userFeatures.Columns() != itemFeatures.Columns() {
		return nil, errors.NotValidf("user vectors of length %d and item vectors of length %d",
			userFeatures.Columns(), itemFeatures.Columns())
	}
	if userPredictable == nil {
		userPredictable = bitset.New(uint(userIndex.Len())).Complement()
	}
	if itemPredictable == nil {
		itemPredictable = bitset.New(uint(itemIndex.Len())).Complement()
	}
	return &Factorization{
		userIndex:       userIndex,
		itemIndex:       itemIndex,
		userFeatures:    userFeatures,
		itemFeatures:    itemFeatures,
		userPredictable: userPredictable,
		itemPredictable: itemPredictable,
	}, nil
}

// UserFeatures returns a copy of the feature vector of a user.
func (f *Factorization) UserFeatures(userId int64) ([]float64, error) {
	index := f.userIndex.ToNumber(userId)
	if index == base.NotId {
		return nil, errors.NotFoundf("user %d", userId)
	}
	return append([]float64(nil), f.userFeatures.Row(index)...), nil
}

// ItemFeatures returns a copy of the feature vector of an item.
func (f *Factorization) ItemFeatures(itemId int64) ([]float64, error) {
	index := f.itemIndex.ToNumber(itemId)
	if index == base.NotId {
		return nil, errors.NotFoundf("item %d", itemId)
	}
	return append([]float64(nil), f.itemFeatures.Row(index)...), nil
}

// Estimate returns the estimated preference of a user for an item.
func (f *Factorization) Estimate(userId, itemId int64) (float64, error) {
	userIndex := f.userIndex.ToNumber(userId)
	if userIndex == base.NotId {
		return 0, errors.NotFoundf("user %d", userId)
	}
	itemIndex := f.itemIndex.ToNumber(itemId)
	if itemIndex == base.NotId {
		return 0, errors.NotFoundf("item %d", itemId)
	}
	return floats.Dot(f.userFeatures.Row(userIndex), f.itemFeatures.Row(itemIndex)), nil
}

// NumFeatures returns the length of feature vectors.
func (f *Factorization) NumFeatures() int {
	return f.userFeatures.Columns()
}

func (f *Factorization) NumUsers() int {
	return f.userIndex.Len()
}

func (f *Factorization) NumItems() int {
	return f.itemIndex.Len()
}

// UserIndex returns a copy of the user id mapping.
func (f *Factorization) UserIndex() *base.Index {
	return f.userIndex.Clone()
}

// ItemIndex returns a copy of the item id mapping.
func (f *Factorization) ItemIndex() *base.Index {
	return f.itemIndex.Clone()
}

// IsUserPredictable returns false if the user has no ratings and its vector was never trained.
func (f *Factorization) IsUserPredictable(userId int64) bool {
	index := f.userIndex.ToNumber(userId)
	return index != base.NotId && f.userPredictable.Test(uint(index))
}

// IsItemPredictable returns false if the item has no ratings and its vector was never trained.
func (f *Factorization) IsItemPredictable(itemId int64) bool {
	index := f.itemIndex.ToNumber(itemId)
	return index != base.NotId && f.itemPredictable.Test(uint(index))
}

// Finite reports whether all vectors are free of NaN and Inf. A rank deficient
// system in ALS may leave non-finite values behind.
func (f *Factorization) Finite() bool {
	return f.userFeatures.Finite() && f.itemFeatures.Finite()
}
