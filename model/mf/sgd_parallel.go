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
	"time"

	"github.com/gorse-io/factorizer/base/log"
	"github.com/gorse-io/factorizer/base/progress"
	"github.com/gorse-io/factorizer/common/parallel"
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ParallelSGD runs the updates of SGD from FitConfig.Jobs workers at once
// (Hogwild). Every epoch the shuffled ratings are split into contiguous
// chunks, one per worker, and workers update shared vectors without locks.
// Workers join at the end of each epoch.
//
// The learning rate of epoch t (1-based) is
//
//	Lr · Decay^(t-1) · (t + StepOffset)^ForgettingExponent
//
// With a single job and ForgettingExponent zero the result equals SGD with
// the same parameters.
type ParallelSGD struct {
	model.BaseModel
	sgdParams
	stepOffset         float64
	forgettingExponent float64
}

// NewParallelSGD creates a Hogwild SGD factorizer.
func NewParallelSGD(params model.Params) (*ParallelSGD, error) {
	sgd := new(ParallelSGD)
	sgd.SetParams(params)
	if err := sgd.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return sgd, nil
}

func (sgd *ParallelSGD) SetParams(params model.Params) {
	sgd.BaseModel.SetParams(params)
	sgd.sgdParams = newSGDParams(sgd.Params)
	sgd.stepOffset = sgd.Params.GetFloat64(model.StepOffset, 0)
	sgd.forgettingExponent = sgd.Params.GetFloat64(model.ForgettingExponent, 0)
}

func (sgd *ParallelSGD) Factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error) {
	config = validateConfig(config)
	if err := sgd.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("fit parallel sgd",
		zap.Int("n_users", data.CountUsers()),
		zap.Int("n_items", data.CountItems()),
		zap.Any("params", sgd.GetParams()),
		zap.Any("config", config))
	start := time.Now()
	factorization, err := sgd.factorize(ctx, data, config)
	if err != nil {
		FitFailuresTotalVec.WithLabelValues("parallel_sgd").Inc()
		return nil, errors.Trace(err)
	}
	FitSecondsVec.WithLabelValues("parallel_sgd").Set(time.Since(start).Seconds())
	log.Logger().Info("fit parallel sgd complete", zap.Duration("fit_time", time.Since(start)))
	return factorization, nil
}

func (sgd *ParallelSGD) factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error) {
	cache, err := newSGDCache(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rng := sgd.GetRandomGenerator()
	users := NewSharedMatrix(cache.userIndex.Len(), sgd.columns())
	items := NewSharedMatrix(cache.itemIndex.Len(), sgd.columns())
	initSGDFeatures(rng, users, items, cache.userIndex.Len(), cache.itemIndex.Len(), &sgd.sgdParams, cache.mean)

	_, span := progress.Start(ctx, "ParallelSGD.Factorize", sgd.nEpochs)
	rate := sgd.lr
	for ep := 1; ep <= sgd.nEpochs; ep++ {
		// cancellation is only observed between epochs
		if err = ctx.Err(); err != nil {
			span.Fail(err)
			return nil, errors.Trace(err)
		}
		fitStart := time.Now()
		cache.shuffle(rng)
		lr := rate * math.Pow(float64(ep)+sgd.stepOffset, sgd.forgettingExponent)
		chunks := parallel.Split(cache.ratings, config.Jobs)
		epochCtx, cancel := fitContext(context.WithoutCancel(ctx), config)
		err = parallel.Parallel(epochCtx, len(chunks), len(chunks), func(_, jobId int) error {
			for _, r := range chunks[jobId] {
				sgdUpdate(users, items, r, lr, &sgd.sgdParams)
			}
			return nil
		})
		cancel()
		if err = phaseError(ctx, err, config); err != nil {
			span.Fail(err)
			return nil, errors.Annotatef(err, "epoch %d", ep)
		}
		rate *= sgd.decay
		FitEpochsTotalVec.WithLabelValues("parallel_sgd").Inc()
		span.Add(1)
		if config.verbose(ep, sgd.nEpochs) {
			logEpoch("parallel_sgd", ep, sgd.nEpochs, time.Since(fitStart), cache, users.Dense(), items.Dense(), data)
		}
	}
	span.End()
	return NewFactorization(cache.userIndex, cache.itemIndex, users.Dense(), items.Dense(),
		cache.userPredictable, cache.itemPredictable)
}
