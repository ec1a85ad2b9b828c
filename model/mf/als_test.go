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
	"context"
	"math"
	"testing"
	"time"

	"github.com/gorse-io/factorizer/base/progress"
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestALS_Small(t *testing.T) {
	params := model.Params{
		model.NFactors:    2,
		model.Reg:         0.1,
		model.NEpochs:     15,
		model.RandomState: 0,
	}
	als, err := NewALS(params)
	require.NoError(t, err)
	f, err := als.Factorize(context.Background(), smallRatings(), NewFitConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, f.NumFeatures())
	assert.Equal(t, 3, f.NumUsers())
	assert.Equal(t, 3, f.NumItems())
	assert.True(t, f.Finite())
	estimate, err := f.Estimate(1, 3)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, estimate, 1.0)
	assert.LessOrEqual(t, estimate, 5.0)
	// observed ratings are fitted
	assert.Less(t, RMSE(f, smallRatings().Ratings()), 0.5)

	// same seed, same result
	als, err = NewALS(params)
	require.NoError(t, err)
	g, err := als.Factorize(context.Background(), smallRatings(), NewFitConfig().SetJobs(4))
	require.NoError(t, err)
	for _, userId := range []int64{1, 2, 3} {
		expected, err := f.UserFeatures(userId)
		require.NoError(t, err)
		actual, err := g.UserFeatures(userId)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
	for _, itemId := range []int64{1, 2, 3} {
		expected, err := f.ItemFeatures(itemId)
		require.NoError(t, err)
		actual, err := g.ItemFeatures(itemId)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
}

func TestALS_Convergence(t *testing.T) {
	data := lowRankRatings(42, 12, 10, 3)
	als, err := NewALS(model.Params{
		model.NFactors:    3,
		model.Reg:         1e-6,
		model.NEpochs:     20,
		model.RandomState: 0,
	})
	require.NoError(t, err)
	f, err := als.Factorize(context.Background(), data, NewFitConfig().SetJobs(2).SetVerbose(5))
	require.NoError(t, err)
	for _, r := range data.Ratings() {
		estimate, err := f.Estimate(r.UserId, r.ItemId)
		require.NoError(t, err)
		assert.InDelta(t, float64(r.Value), estimate, 1e-3)
	}
}

func TestALS_Implicit(t *testing.T) {
	// two disjoint communities
	var ratings []dataset.Rating
	for u := 0; u < 8; u++ {
		for i := 0; i < 8; i++ {
			if (u < 4) == (i < 4) {
				ratings = append(ratings, dataset.Rating{UserId: int64(u), ItemId: int64(i), Value: 1})
			}
		}
	}
	als, err := NewALS(model.Params{
		model.NFactors: 2,
		model.Reg:      0.1,
		model.NEpochs:  10,
		model.Implicit: true,
		model.Alpha:    10.0,
	})
	require.NoError(t, err)
	f, err := als.Factorize(context.Background(), dataset.NewDataset(ratings), NewFitConfig().SetJobs(3))
	require.NoError(t, err)
	assert.True(t, f.Finite())
	for u := 0; u < 8; u++ {
		for i := 0; i < 8; i++ {
			estimate, err := f.Estimate(int64(u), int64(i))
			require.NoError(t, err)
			if (u < 4) == (i < 4) {
				assert.Greater(t, estimate, 0.9)
			} else {
				assert.Less(t, estimate, 0.1)
			}
		}
	}
}

func TestALS_Unobserved(t *testing.T) {
	data := &mockData{
		userIds: []int64{1, 2, 3},
		itemIds: []int64{10, 20, 30},
		ratings: []dataset.Rating{
			{UserId: 1, ItemId: 10, Value: 4},
			{UserId: 2, ItemId: 10, Value: 3},
			{UserId: 2, ItemId: 20, Value: 5},
		},
	}
	als, err := NewALS(model.Params{model.NFactors: 2, model.NEpochs: 3})
	require.NoError(t, err)
	f, err := als.Factorize(context.Background(), data, NewFitConfig().SetVerbose(1))
	require.NoError(t, err)
	assert.True(t, f.IsUserPredictable(1))
	assert.False(t, f.IsUserPredictable(3))
	assert.False(t, f.IsItemPredictable(30))
	// vectors without observations keep their initial values
	features, err := f.UserFeatures(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, features)
	features, err = f.ItemFeatures(30)
	require.NoError(t, err)
	assert.Zero(t, features[0])
	assert.GreaterOrEqual(t, features[1], 0.0)
	assert.Less(t, features[1], 0.1)
}

func TestAssignRow(t *testing.T) {
	target := NewFeatureMatrix(2, 3)
	require.NoError(t, assignRow(target, 1, []float64{1, 2, 3}))
	assert.Equal(t, []float64{0, 0, 0}, target.Row(0))
	assert.Equal(t, []float64{1, 2, 3}, target.Row(1))

	assert.True(t, errors.Is(assignRow(target, 2, []float64{1, 2, 3}), errors.NotValid))
	assert.True(t, errors.Is(assignRow(target, -1, []float64{1, 2, 3}), errors.NotValid))
	assert.True(t, errors.Is(assignRow(target, 0, []float64{1, 2}), errors.NotValid))
	assert.True(t, errors.Is(assignRow(target, 0, []float64{1, 2, 3, 4}), errors.NotValid))
	// rejected solutions leave the matrix untouched
	assert.Equal(t, []float64{0, 0, 0}, target.Row(0))
	assert.Equal(t, []float64{1, 2, 3}, target.Row(1))
}

func TestALS_NotFound(t *testing.T) {
	data := &mockData{
		userIds: []int64{1},
		itemIds: []int64{10},
		ratings: []dataset.Rating{
			{UserId: 1, ItemId: 10, Value: 4},
			{UserId: 1, ItemId: 99, Value: 3},
		},
	}
	als, err := NewALS(model.Params{model.NFactors: 2})
	require.NoError(t, err)
	_, err = als.Factorize(context.Background(), data, nil)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestALS_InvalidParams(t *testing.T) {
	for _, params := range []model.Params{
		{model.NFactors: 0},
		{model.NFactors: -1},
		{model.Reg: 0.0},
		{model.Reg: -0.1},
		{model.NEpochs: 0},
		{model.Implicit: true, model.Alpha: -1.0},
	} {
		_, err := NewALS(params)
		assert.True(t, errors.Is(err, errors.NotValid), params)
	}
	// parameters changed after construction are checked before training
	als, err := NewALS(model.Params{})
	require.NoError(t, err)
	als.SetParams(model.Params{model.NFactors: 0})
	_, err = als.Factorize(context.Background(), smallRatings(), nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestALS_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	als, err := NewALS(model.Params{model.NFactors: 2})
	require.NoError(t, err)
	_, err = als.Factorize(ctx, smallRatings(), NewFitConfig().SetJobs(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, errors.Timeout))
}

func TestALS_Timeout(t *testing.T) {
	data := lowRankRatings(0, 3000, 20, 5)
	als, err := NewALS(model.Params{model.NFactors: 20, model.NEpochs: 1})
	require.NoError(t, err)
	_, err = als.Factorize(context.Background(), data, NewFitConfig().SetJobs(2).SetTimeout(time.Nanosecond))
	assert.True(t, errors.Is(err, errors.Timeout))
}

func TestALS_Progress(t *testing.T) {
	tracer := progress.NewTracer("test")
	ctx, span := tracer.Start(context.Background(), "fit", 1)
	als, err := NewALS(model.Params{model.NFactors: 2, model.NEpochs: 4})
	require.NoError(t, err)
	_, err = als.Factorize(ctx, smallRatings(), nil)
	require.NoError(t, err)
	span.End()
	list := tracer.List()
	require.Len(t, list, 1)
	require.Len(t, list[0].Children, 1)
	assert.Equal(t, "ALS.Factorize", list[0].Children[0].Name)
	assert.Equal(t, progress.StatusComplete, list[0].Children[0].Status)
	assert.Equal(t, 4, list[0].Children[0].Count)
}

func TestALS_HighRank(t *testing.T) {
	// more factors than observations
	data := dataset.NewDataset([]dataset.Rating{
		{UserId: 1, ItemId: 1, Value: 1},
		{UserId: 2, ItemId: 1, Value: 1},
	})
	als, err := NewALS(model.Params{model.NFactors: 4, model.Reg: 1e-3, model.NEpochs: 2})
	require.NoError(t, err)
	f, err := als.Factorize(context.Background(), data, nil)
	require.NoError(t, err)
	features, err := f.UserFeatures(1)
	require.NoError(t, err)
	assert.Len(t, features, 4)
	for _, v := range features {
		assert.False(t, math.IsNaN(v))
	}
}
