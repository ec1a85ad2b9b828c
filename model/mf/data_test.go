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
	"github.com/gorse-io/factorizer/base"
	"github.com/gorse-io/factorizer/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// mockData is a DataModel whose enumerations may disagree with its ratings.
type mockData struct {
	userIds []int64
	itemIds []int64
	ratings []dataset.Rating
}

func (m *mockData) UserIds() []int64 { return m.userIds }

func (m *mockData) ItemIds() []int64 { return m.itemIds }

func (m *mockData) UserRatings(userId int64) ([]dataset.Preference, error) {
	if !lo.Contains(m.userIds, userId) {
		return nil, errors.NotFoundf("user %d", userId)
	}
	var preferences []dataset.Preference
	for _, r := range m.ratings {
		if r.UserId == userId {
			preferences = append(preferences, dataset.Preference{Id: r.ItemId, Value: r.Value})
		}
	}
	return preferences, nil
}

func (m *mockData) ItemRatings(itemId int64) ([]dataset.Preference, error) {
	if !lo.Contains(m.itemIds, itemId) {
		return nil, errors.NotFoundf("item %d", itemId)
	}
	var preferences []dataset.Preference
	for _, r := range m.ratings {
		if r.ItemId == itemId {
			preferences = append(preferences, dataset.Preference{Id: r.UserId, Value: r.Value})
		}
	}
	return preferences, nil
}

func (m *mockData) CountUsers() int { return len(m.userIds) }

func (m *mockData) CountItems() int { return len(m.itemIds) }

func (m *mockData) Ratings() []dataset.Rating { return m.ratings }

func (m *mockData) GlobalMean() float64 {
	return lo.MeanBy(m.ratings, func(r dataset.Rating) float64 { return float64(r.Value) })
}

// smallRatings is the 3×3 scenario with three missing cells.
func smallRatings() *dataset.Dataset {
	return dataset.NewDataset([]dataset.Rating{
		{UserId: 1, ItemId: 1, Value: 5},
		{UserId: 1, ItemId: 2, Value: 3},
		{UserId: 2, ItemId: 1, Value: 4},
		{UserId: 2, ItemId: 3, Value: 2},
		{UserId: 3, ItemId: 2, Value: 5},
		{UserId: 3, ItemId: 3, Value: 1},
	})
}

// lowRankRatings generates a complete nUsers×nItems rating matrix of exact rank f.
func lowRankRatings(seed int64, nUsers, nItems, f int) *dataset.Dataset {
	rng := base.NewRandomGenerator(seed)
	userVectors := rng.UniformMatrix(nUsers, f, 0, 1)
	itemVectors := rng.UniformMatrix(nItems, f, 0, 1)
	var ratings []dataset.Rating
	for u := 0; u < nUsers; u++ {
		for i := 0; i < nItems; i++ {
			value := 0.0
			for k := 0; k < f; k++ {
				value += userVectors[u][k] * itemVectors[i][k]
			}
			ratings = append(ratings, dataset.Rating{UserId: int64(u), ItemId: int64(i), Value: float32(value)})
		}
	}
	return dataset.NewDataset(ratings)
}

// biasRatings generates r = 3 + a_u + b_i without interaction.
func biasRatings(nUsers, nItems int) *dataset.Dataset {
	var ratings []dataset.Rating
	for u := 0; u < nUsers; u++ {
		a := 0.5 * (float64(u) - 3.5) / 3.5
		for i := 0; i < nItems; i++ {
			b := 0.8 * (float64(i) - 2.5) / 2.5
			ratings = append(ratings, dataset.Rating{UserId: int64(u), ItemId: int64(i), Value: float32(3 + a + b)})
		}
	}
	return dataset.NewDataset(ratings)
}
