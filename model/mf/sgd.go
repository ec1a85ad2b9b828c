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
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Layout of SGD feature vectors. A user vector is [μ, b_u, 1, p...] and an
// item vector is [1, 1, b_i, q...] so their dot product is μ + b_u + b_i + p·q.
const (
	globalBiasIndex = 0
	userBiasIndex   = 1
	itemBiasIndex   = 2
	featureOffset   = 3
)

// sgdParams are hyper-parameters shared by SGD factorizers.
type sgdParams struct {
	nFactors   int
	nEpochs    int
	lr         float64
	reg        float64
	initStdDev float64
	decay      float64
	biasLr     float64
	biasReg    float64
}

func newSGDParams(params model.Params) sgdParams {
	return sgdParams{
		nFactors:   params.GetInt(model.NFactors, 10),
		nEpochs:    params.GetInt(model.NEpochs, 20),
		lr:         params.GetFloat64(model.Lr, 0.01),
		reg:        params.GetFloat64(model.Reg, 0.1),
		initStdDev: params.GetFloat64(model.InitStdDev, 0.01),
		decay:      params.GetFloat64(model.Decay, 1),
		biasLr:     params.GetFloat64(model.BiasLr, 0.5),
		biasReg:    params.GetFloat64(model.BiasReg, 0.1),
	}
}

func (p *sgdParams) validate() error {
	if p.nFactors < 0 {
		return errors.NotValidf("NFactors %d", p.nFactors)
	}
	if p.nEpochs < 1 {
		return errors.NotValidf("NEpochs %d", p.nEpochs)
	}
	if p.lr <= 0 {
		return errors.NotValidf("Lr %v", p.lr)
	}
	if p.reg <= 0 {
		return errors.NotValidf("Reg %v", p.reg)
	}
	if p.initStdDev < 0 {
		return errors.NotValidf("InitStdDev %v", p.initStdDev)
	}
	return nil
}

func (p *sgdParams) columns() int {
	return p.nFactors + featureOffset
}

// cachedRating is a rating in dense indices.
type cachedRating struct {
	user   int
	item   int
	rating float64
}

// sgdCache is the private training state built once per Factorize.
type sgdCache struct {
	userIndex       *base.Index
	itemIndex       *base.Index
	ratings         []cachedRating
	mean            float64
	userPredictable *bitset.BitSet
	itemPredictable *bitset.BitSet
}

// newSGDCache copies ratings user by user in enumeration order.
func newSGDCache(data dataset.DataModel) (*sgdCache, error) {
	userIndex, itemIndex := buildIndices(data)
	cache := &sgdCache{
		userIndex:       userIndex,
		itemIndex:       itemIndex,
		userPredictable: bitset.New(uint(userIndex.Len())),
		itemPredictable: bitset.New(uint(itemIndex.Len())),
	}
	sum := 0.0
	for userNumber, userId := range userIndex.GetNames() {
		preferences, err := data.UserRatings(userId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, p := range preferences {
			itemNumber := itemIndex.ToNumber(p.Id)
			if itemNumber == base.NotId {
				return nil, errors.NotFoundf("item %d", p.Id)
			}
			cache.ratings = append(cache.ratings, cachedRating{user: userNumber, item: itemNumber, rating: float64(p.Value)})
			cache.userPredictable.Set(uint(userNumber))
			cache.itemPredictable.Set(uint(itemNumber))
			sum += float64(p.Value)
		}
	}
	if len(cache.ratings) > 0 {
		cache.mean = sum / float64(len(cache.ratings))
	}
	return cache, nil
}

func (cache *sgdCache) shuffle(rng base.RandomGenerator) {
	rng.Shuffle(len(cache.ratings), func(i, j int) {
		cache.ratings[i], cache.ratings[j] = cache.ratings[j], cache.ratings[i]
	})
}

// initSGDFeatures fills user vectors then item vectors, drawing gaussian noise
// for latent columns in row order.
func initSGDFeatures[M matrix](rng base.RandomGenerator, users, items M, nUsers, nItems int, p *sgdParams, mean float64) {
	for u := 0; u < nUsers; u++ {
		users.Set(u, globalBiasIndex, mean)
		users.Set(u, userBiasIndex, 0)
		users.Set(u, itemBiasIndex, 1)
		for k := featureOffset; k < p.columns(); k++ {
			users.Set(u, k, rng.NormFloat64()*p.initStdDev)
		}
	}
	for i := 0; i < nItems; i++ {
		items.Set(i, globalBiasIndex, 1)
		items.Set(i, userBiasIndex, 1)
		items.Set(i, itemBiasIndex, 0)
		for k := featureOffset; k < p.columns(); k++ {
			items.Set(i, k, rng.NormFloat64()*p.initStdDev)
		}
	}
}

// sgdUpdate applies one stochastic gradient step for a rating. Latent updates
// of both sides use the values from before the step.
func sgdUpdate[M matrix](users, items M, r cachedRating, lr float64, p *sgdParams) {
	columns := p.columns()
	prediction := 0.0
	for k := 0; k < columns; k++ {
		prediction += users.At(r.user, k) * items.At(r.item, k)
	}
	err := r.rating - prediction
	// adjust biases
	userBias := users.At(r.user, userBiasIndex)
	users.Set(r.user, userBiasIndex, userBias+p.biasLr*lr*(err-p.biasReg*p.reg*userBias))
	itemBias := items.At(r.item, itemBiasIndex)
	items.Set(r.item, itemBiasIndex, itemBias+p.biasLr*lr*(err-p.biasReg*p.reg*itemBias))
	// adjust latent factors
	for k := featureOffset; k < columns; k++ {
		userFactor := users.At(r.user, k)
		itemFactor := items.At(r.item, k)
		users.Set(r.user, k, userFactor+lr*(err*itemFactor-p.reg*userFactor))
		items.Set(r.item, k, itemFactor+lr*(err*userFactor-p.reg*itemFactor))
	}
}

// SGD factorizes ratings by biased stochastic gradient descent. Each epoch
// visits all ratings once in a freshly shuffled order.
//
// Hyper-parameters:
//
//	NFactors    - number of latent factors (default 10, zero keeps only biases)
//	NEpochs     - number of epochs (default 20)
//	Lr          - learning rate (default 0.01)
//	Reg         - regularization strength (default 0.1)
//	InitStdDev  - standard deviation of initial latent factors (default 0.01)
//	Decay       - learning rate multiplier applied after each epoch (default 1)
//	BiasLr      - learning rate multiplier for biases (default 0.5)
//	BiasReg     - regularization multiplier for biases (default 0.1)
//	RandomState - seed of initialization and shuffling
type SGD struct {
	model.BaseModel
	sgdParams
}

// NewSGD creates a SGD factorizer.
func NewSGD(params model.Params) (*SGD, error) {
	sgd := new(SGD)
	sgd.SetParams(params)
	if err := sgd.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return sgd, nil
}

func (sgd *SGD) SetParams(params model.Params) {
	sgd.BaseModel.SetParams(params)
	sgd.sgdParams = newSGDParams(sgd.Params)
}

func (sgd *SGD) Factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error) {
	config = validateConfig(config)
	if err := sgd.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("fit sgd",
		zap.Int("n_users", data.CountUsers()),
		zap.Int("n_items", data.CountItems()),
		zap.Any("params", sgd.GetParams()),
		zap.Any("config", config))
	start := time.Now()
	cache, err := newSGDCache(data)
	if err != nil {
		FitFailuresTotalVec.WithLabelValues("sgd").Inc()
		return nil, errors.Trace(err)
	}
	rng := sgd.GetRandomGenerator()
	users := NewFeatureMatrix(cache.userIndex.Len(), sgd.columns())
	items := NewFeatureMatrix(cache.itemIndex.Len(), sgd.columns())
	initSGDFeatures(rng, users, items, users.Rows(), items.Rows(), &sgd.sgdParams, cache.mean)

	_, span := progress.Start(ctx, "SGD.Factorize", sgd.nEpochs)
	lr := sgd.lr
	for ep := 1; ep <= sgd.nEpochs; ep++ {
		if err = ctx.Err(); err != nil {
			span.Fail(err)
			FitFailuresTotalVec.WithLabelValues("sgd").Inc()
			return nil, errors.Trace(err)
		}
		fitStart := time.Now()
		cache.shuffle(rng)
		for _, r := range cache.ratings {
			sgdUpdate(users, items, r, lr, &sgd.sgdParams)
		}
		lr *= sgd.decay
		FitEpochsTotalVec.WithLabelValues("sgd").Inc()
		span.Add(1)
		if config.verbose(ep, sgd.nEpochs) {
			logEpoch("sgd", ep, sgd.nEpochs, time.Since(fitStart), cache, users, items, data)
		}
	}
	span.End()
	FitSecondsVec.WithLabelValues("sgd").Set(time.Since(start).Seconds())
	log.Logger().Info("fit sgd complete", zap.Duration("fit_time", time.Since(start)))
	return NewFactorization(cache.userIndex, cache.itemIndex, users, items, cache.userPredictable, cache.itemPredictable)
}

func logEpoch(name string, ep, nEpochs int, fitTime time.Duration, cache *sgdCache, users, items *FeatureMatrix, data dataset.DataModel) {
	factorization, err := NewFactorization(cache.userIndex, cache.itemIndex, users, items, cache.userPredictable, cache.itemPredictable)
	if err != nil {
		return
	}
	score := RMSE(factorization, data.Ratings())
	TrainRMSEVec.WithLabelValues(name).Set(score)
	log.Logger().Debug(fmt.Sprintf("fit %s %v/%v", name, ep, nEpochs),
		zap.String("fit_time", fitTime.String()),
		zap.Float64("train_rmse", score))
}
