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
	"github.com/gorse-io/factorizer/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Rating is an observed preference of a user for an item.
type Rating struct {
	UserId int64
	ItemId int64
	Value  float32
}

// Preference is one entry of a per-user or per-item rating list. Id is the
// other side of the observation.
type Preference struct {
	Id    int64
	Value float32
}

// DataModel is a read-only source of ratings. Enumerations are replayable and
// return users and items in a stable order.
type DataModel interface {
	// UserIds returns all users.
	UserIds() []int64
	// ItemIds returns all items.
	ItemIds() []int64
	// UserRatings returns ratings given by a user. Unknown users are NotFound.
	// The returned slice must not be modified.
	UserRatings(userId int64) ([]Preference, error)
	// ItemRatings returns ratings received by an item. Unknown items are NotFound.
	ItemRatings(itemId int64) ([]Preference, error)
	// CountUsers returns the number of users.
	CountUsers() int
	// CountItems returns the number of items.
	CountItems() int
	// Ratings returns every observation grouped by user.
	Ratings() []Rating
	// GlobalMean returns the mean of all ratings.
	GlobalMean() float64
}

// Dataset is an in-memory DataModel. Users and items are ordered by first sight
// and a repeated (user, item) pair keeps the last value.
type Dataset struct {
	userIndex   *base.Index
	itemIndex   *base.Index
	userRatings [][]Preference
	itemRatings [][]Preference
	// positions of a (user, item) pair in userRatings and itemRatings
	positions map[[2]int][2]int
	count     int
	sum       float64
}

// NewDataset creates a Dataset from ratings.
func NewDataset(ratings []Rating) *Dataset {
	d := &Dataset{
		userIndex: base.NewIndex(),
		itemIndex: base.NewIndex(),
		positions: make(map[[2]int][2]int, len(ratings)),
	}
	for _, rating := range ratings {
		d.Add(rating)
	}
	return d
}

// Add inserts a rating or replaces the value of an existing (user, item) pair.
func (d *Dataset) Add(rating Rating) {
	userIndex := d.userIndex.Add(rating.UserId)
	if userIndex == len(d.userRatings) {
		d.userRatings = append(d.userRatings, nil)
	}
	itemIndex := d.itemIndex.Add(rating.ItemId)
	if itemIndex == len(d.itemRatings) {
		d.itemRatings = append(d.itemRatings, nil)
	}
	key := [2]int{userIndex, itemIndex}
	if pos, found := d.positions[key]; found {
		d.sum += float64(rating.Value) - float64(d.userRatings[userIndex][pos[0]].Value)
		d.userRatings[userIndex][pos[0]].Value = rating.Value
		d.itemRatings[itemIndex][pos[1]].Value = rating.Value
		return
	}
	d.positions[key] = [2]int{len(d.userRatings[userIndex]), len(d.itemRatings[itemIndex])}
	d.userRatings[userIndex] = append(d.userRatings[userIndex], Preference{Id: rating.ItemId, Value: rating.Value})
	d.itemRatings[itemIndex] = append(d.itemRatings[itemIndex], Preference{Id: rating.UserId, Value: rating.Value})
	d.count++
	d.sum += float64(rating.Value)
}

func (d *Dataset) UserIds() []int64 {
	return d.userIndex.GetNames()
}

func (d *Dataset) ItemIds() []int64 {
	return d.itemIndex.GetNames()
}

func (d *Dataset) UserRatings(userId int64) ([]Preference, error) {
	index := d.userIndex.ToNumber(userId)
	if index == base.NotId {
		return nil, errors.NotFoundf("user %d", userId)
	}
	return d.userRatings[index], nil
}

func (d *Dataset) ItemRatings(itemId int64) ([]Preference, error) {
	index := d.itemIndex.ToNumber(itemId)
	if index == base.NotId {
		return nil, errors.NotFoundf("item %d", itemId)
	}
	return d.itemRatings[index], nil
}

func (d *Dataset) CountUsers() int {
	return d.userIndex.Len()
}

func (d *Dataset) CountItems() int {
	return d.itemIndex.Len()
}

// Count returns the number of distinct (user, item) pairs.
func (d *Dataset) Count() int {
	return d.count
}

func (d *Dataset) Ratings() []Rating {
	ratings := make([]Rating, 0, d.count)
	d.userIndex.Range(func(userId int64, index int) bool {
		for _, p := range d.userRatings[index] {
			ratings = append(ratings, Rating{UserId: userId, ItemId: p.Id, Value: p.Value})
		}
		return true
	})
	return ratings
}

func (d *Dataset) GlobalMean() float64 {
	if d.count == 0 {
		return 0
	}
	return d.sum / float64(d.count)
}

// UserMean returns the mean rating given by a user.
func (d *Dataset) UserMean(userId int64) (float64, error) {
	ratings, err := d.UserRatings(userId)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return mean(ratings), nil
}

// ItemMean returns the mean rating received by an item.
func (d *Dataset) ItemMean(itemId int64) (float64, error) {
	ratings, err := d.ItemRatings(itemId)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return mean(ratings), nil
}

func mean(preferences []Preference) float64 {
	if len(preferences) == 0 {
		return 0
	}
	return lo.SumBy(preferences, func(p Preference) float64 {
		return float64(p.Value)
	}) / float64(len(preferences))
}

// SplitRatings shuffles ratings with a seeded generator and holds out a testRatio
// share of them as the test set.
func SplitRatings(ratings []Rating, testRatio float64, seed int64) (train, test []Rating) {
	shuffled := make([]Rating, len(ratings))
	copy(shuffled, ratings)
	rng := base.NewRandomGenerator(seed)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	numTest := int(float64(len(shuffled)) * testRatio)
	return shuffled[numTest:], shuffled[:numTest]
}
