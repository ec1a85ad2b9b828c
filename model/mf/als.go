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
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/factorizer/base"
	"github.com/gorse-io/factorizer/base/log"
	"github.com/gorse-io/factorizer/base/progress"
	"github.com/gorse-io/factorizer/common/parallel"
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// observations of one entity in dense indices of the other side.
type observations struct {
	indices []int
	values  []float64
}

// ALS factorizes ratings by alternating least squares. User vectors are solved
// with item vectors fixed, then item vectors with user vectors fixed. Every
// phase runs in parallel since the vector of one entity only depends on the
// fixed side.
//
// Hyper-parameters:
//
//	NFactors    - rank of vectors (default 10)
//	NEpochs     - number of iterations (default 10)
//	Reg         - regularization λ (default 0.065)
//	Implicit    - solve the implicit feedback problem (default false)
//	Alpha       - confidence weight of implicit feedback (default 40)
//	RandomState - seed of item vector initialization
type ALS struct {
	model.BaseModel
	// Hyper parameters
	nFactors int
	nEpochs  int
	reg      float64
	implicit bool
	alpha    float64
}

// NewALS creates an ALS factorizer.
func NewALS(params model.Params) (*ALS, error) {
	als := new(ALS)
	als.SetParams(params)
	if err := als.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return als, nil
}

func (als *ALS) SetParams(params model.Params) {
	als.BaseModel.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 10)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 10)
	als.reg = als.Params.GetFloat64(model.Reg, 0.065)
	als.implicit = als.Params.GetBool(model.Implicit, false)
	als.alpha = als.Params.GetFloat64(model.Alpha, 40)
}

func (als *ALS) validate() error {
	if als.nFactors < 1 {
		return errors.NotValidf("NFactors %d", als.nFactors)
	}
	if als.nEpochs < 1 {
		return errors.NotValidf("NEpochs %d", als.nEpochs)
	}
	if als.reg <= 0 {
		return errors.NotValidf("Reg %v", als.reg)
	}
	if als.implicit && als.alpha < 0 {
		return errors.NotValidf("Alpha %v", als.alpha)
	}
	return nil
}

func (als *ALS) name() string {
	if als.implicit {
		return "als_implicit"
	}
	return "als"
}

func (als *ALS) Factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error) {
	config = validateConfig(config)
	if err := als.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("fit als",
		zap.Int("n_users", data.CountUsers()),
		zap.Int("n_items", data.CountItems()),
		zap.Bool("implicit", als.implicit),
		zap.Any("params", als.GetParams()),
		zap.Any("config", config))
	start := time.Now()
	factorization, err := als.factorize(ctx, data, config)
	if err != nil {
		FitFailuresTotalVec.WithLabelValues(als.name()).Inc()
		return nil, errors.Trace(err)
	}
	FitSecondsVec.WithLabelValues(als.name()).Set(time.Since(start).Seconds())
	log.Logger().Info("fit als complete", zap.Duration("fit_time", time.Since(start)))
	return factorization, nil
}

func (als *ALS) factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error) {
	userIndex, itemIndex := buildIndices(data)
	userObservations, err := collectObservations(userIndex, data.UserRatings, itemIndex, "item")
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemObservations, err := collectObservations(itemIndex, data.ItemRatings, userIndex, "user")
	if err != nil {
		return nil, errors.Trace(err)
	}

	// Users start at zero. Items start with their mean rating in the first
	// column and small uniform noise elsewhere.
	rng := als.GetRandomGenerator()
	userFeatures := NewFeatureMatrix(userIndex.Len(), als.nFactors)
	itemFeatures := NewFeatureMatrix(itemIndex.Len(), als.nFactors)
	for i, obs := range itemObservations {
		itemFeatures.Set(i, 0, mean(obs.values))
		for k := 1; k < als.nFactors; k++ {
			itemFeatures.Set(i, k, rng.Float64()*0.1)
		}
	}

	userPredictable := bitset.New(uint(userIndex.Len()))
	for u, obs := range userObservations {
		if len(obs.indices) > 0 {
			userPredictable.Set(uint(u))
		}
	}
	itemPredictable := bitset.New(uint(itemIndex.Len()))
	for i, obs := range itemObservations {
		if len(obs.indices) > 0 {
			itemPredictable.Set(uint(i))
		}
	}

	_, span := progress.Start(ctx, "ALS.Factorize", als.nEpochs)
	for ep := 1; ep <= als.nEpochs; ep++ {
		fitStart := time.Now()
		if err = als.phase(ctx, config, userFeatures, itemFeatures, userObservations); err != nil {
			span.Fail(err)
			return nil, errors.Annotatef(err, "user phase of iteration %d", ep)
		}
		if err = als.phase(ctx, config, itemFeatures, userFeatures, itemObservations); err != nil {
			span.Fail(err)
			return nil, errors.Annotatef(err, "item phase of iteration %d", ep)
		}
		fitTime := time.Since(fitStart)
		FitEpochsTotalVec.WithLabelValues(als.name()).Inc()
		span.Add(1)
		if config.verbose(ep, als.nEpochs) {
			fields := []zap.Field{zap.String("fit_time", fitTime.String())}
			if !als.implicit {
				factorization, err := NewFactorization(userIndex, itemIndex, userFeatures, itemFeatures, userPredictable, itemPredictable)
				if err != nil {
					span.Fail(err)
					return nil, errors.Trace(err)
				}
				score := RMSE(factorization, data.Ratings())
				TrainRMSEVec.WithLabelValues(als.name()).Set(score)
				fields = append(fields, zap.Float64("train_rmse", score))
			}
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", ep, als.nEpochs), fields...)
		}
	}
	span.End()
	return NewFactorization(userIndex, itemIndex, userFeatures, itemFeatures, userPredictable, itemPredictable)
}

// phase recomputes every row of target against the fixed matrix. Task j only
// writes row j of target.
func (als *ALS) phase(ctx context.Context, config *FitConfig, target, fixed *FeatureMatrix, obs []observations) error {
	phaseCtx, cancel := fitContext(ctx, config)
	defer cancel()
	var solver *ImplicitSolver
	if als.implicit {
		solver = NewImplicitSolver(fixed, als.alpha, als.reg)
	}
	err := parallel.Parallel(phaseCtx, len(obs), config.Jobs, func(_, jobId int) error {
		if len(obs[jobId].indices) == 0 {
			return nil
		}
		var (
			x   []float64
			err error
		)
		if als.implicit {
			x, err = solver.Solve(obs[jobId].indices, obs[jobId].values)
		} else {
			x, err = SolveExplicit(fixed, obs[jobId].indices, obs[jobId].values, als.reg)
		}
		if err != nil {
			return errors.Trace(err)
		}
		return assignRow(target, jobId, x)
	})
	return phaseError(ctx, err, config)
}

// assignRow writes x into row of target after checking that both fit.
func assignRow(target *FeatureMatrix, row int, x []float64) error {
	if row < 0 || row >= target.Rows() {
		return errors.NotValidf("row %d of %d rows", row, target.Rows())
	}
	if len(x) != target.Columns() {
		return errors.NotValidf("solution of length %d for %d columns", len(x), target.Columns())
	}
	target.SetRow(row, x)
	return nil
}

// collectObservations converts the rating lists of entities into dense indices
// of the other side. A rating of an id missing from other is NotFound.
func collectObservations(own *base.Index, ratings func(int64) ([]dataset.Preference, error),
	other *base.Index, otherName string) ([]observations, error) {
	result := make([]observations, own.Len())
	for n, id := range own.GetNames() {
		preferences, err := ratings(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		result[n].indices = make([]int, len(preferences))
		result[n].values = make([]float64, len(preferences))
		for k, p := range preferences {
			index := other.ToNumber(p.Id)
			if index == base.NotId {
				return nil, errors.NotFoundf("%s %d", otherName, p.Id)
			}
			result[n].indices[k] = index
			result[n].values[k] = float64(p.Value)
		}
	}
	return result, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}
