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
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// SVDpp extends SGD with implicit feedback from the set N(u) of items rated
// by a user [1]. The effective latent vector of user u is
//
//	p_u + |N(u)|^(-1/2) · Σ_{j∈N(u)} y_j
//
// while bias columns come from p_u alone. The returned user vectors are the
// effective vectors, so estimates stay plain dot products. Hyper-parameters
// are the same as SGD.
//
// [1] Koren, Yehuda. "Factorization meets the neighborhood: a multifaceted
// collaborative filtering model." Proceedings of the 14th ACM SIGKDD
// international conference on Knowledge discovery and data mining. 2008.
type SVDpp struct {
	model.BaseModel
	sgdParams
}

// NewSVDpp creates a SVD++ factorizer.
func NewSVDpp(params model.Params) (*SVDpp, error) {
	svd := new(SVDpp)
	svd.SetParams(params)
	if err := svd.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return svd, nil
}

func (svd *SVDpp) SetParams(params model.Params) {
	svd.BaseModel.SetParams(params)
	svd.sgdParams = newSGDParams(svd.Params)
}

// svdppState holds the parameters being trained.
type svdppState struct {
	p             *FeatureMatrix // personal vectors
	items         *FeatureMatrix
	y             *FeatureMatrix // implicit vectors
	neighborhoods [][]int
}

// effective writes the effective vector of user u into dst.
func (s *svdppState) effective(dst []float64, u int) {
	copy(dst, s.p.Row(u))
	neighbors := s.neighborhoods[u]
	if len(neighbors) == 0 {
		return
	}
	norm := math.Sqrt(float64(len(neighbors)))
	for k := featureOffset; k < len(dst); k++ {
		sum := 0.0
		for _, j := range neighbors {
			sum += s.y.At(j, k)
		}
		dst[k] += sum / norm
	}
}

func (s *svdppState) update(r cachedRating, lr float64, p *sgdParams, buffer []float64) {
	s.effective(buffer, r.user)
	userVector := s.p.Row(r.user)
	itemVector := s.items.Row(r.item)
	neighbors := s.neighborhoods[r.user]
	err := r.rating - floats.Dot(buffer, itemVector)
	normalizedErr := err
	if len(neighbors) > 0 {
		normalizedErr = err / math.Sqrt(float64(len(neighbors)))
	}
	// adjust biases
	userVector[userBiasIndex] += p.biasLr * lr * (err - p.biasReg*p.reg*userVector[userBiasIndex])
	itemVector[itemBiasIndex] += p.biasLr * lr * (err - p.biasReg*p.reg*itemVector[itemBiasIndex])
	// adjust latent factors
	for k := featureOffset; k < len(buffer); k++ {
		userFactor := userVector[k]
		itemFactor := itemVector[k]
		userVector[k] = userFactor + lr*(err*itemFactor-p.reg*userFactor)
		itemVector[k] = itemFactor + lr*(err*buffer[k]-p.reg*itemFactor)
		for _, j := range neighbors {
			implicitFactor := s.y.At(j, k)
			s.y.Set(j, k, implicitFactor+lr*(normalizedErr*itemFactor-p.reg*implicitFactor))
		}
	}
}

func (s *svdppState) userFeatures() *FeatureMatrix {
	users := NewFeatureMatrix(s.p.Rows(), s.p.Columns())
	for u := 0; u < users.Rows(); u++ {
		s.effective(users.Row(u), u)
	}
	return users
}

func (svd *SVDpp) Factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error) {
	config = validateConfig(config)
	if err := svd.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("fit svd++",
		zap.Int("n_users", data.CountUsers()),
		zap.Int("n_items", data.CountItems()),
		zap.Any("params", svd.GetParams()),
		zap.Any("config", config))
	start := time.Now()
	cache, err := newSGDCache(data)
	if err != nil {
		FitFailuresTotalVec.WithLabelValues("svdpp").Inc()
		return nil, errors.Trace(err)
	}
	nUsers, nItems := cache.userIndex.Len(), cache.itemIndex.Len()
	state := &svdppState{
		p:             NewFeatureMatrix(nUsers, svd.columns()),
		items:         NewFeatureMatrix(nItems, svd.columns()),
		y:             NewFeatureMatrix(nItems, svd.columns()),
		neighborhoods: make([][]int, nUsers),
	}
	for _, r := range cache.ratings {
		state.neighborhoods[r.user] = append(state.neighborhoods[r.user], r.item)
	}
	for u := range state.neighborhoods {
		state.neighborhoods[u] = lo.Uniq(state.neighborhoods[u])
	}
	rng := svd.GetRandomGenerator()
	initSGDFeatures(rng, state.p, state.items, nUsers, nItems, &svd.sgdParams, cache.mean)
	for i := 0; i < nItems; i++ {
		for k := featureOffset; k < svd.columns(); k++ {
			state.y.Set(i, k, rng.NormFloat64()*svd.initStdDev)
		}
	}

	_, span := progress.Start(ctx, "SVDpp.Factorize", svd.nEpochs)
	buffer := make([]float64, svd.columns())
	lr := svd.lr
	for ep := 1; ep <= svd.nEpochs; ep++ {
		if err = ctx.Err(); err != nil {
			span.Fail(err)
			FitFailuresTotalVec.WithLabelValues("svdpp").Inc()
			return nil, errors.Trace(err)
		}
		fitStart := time.Now()
		cache.shuffle(rng)
		for _, r := range cache.ratings {
			state.update(r, lr, &svd.sgdParams, buffer)
		}
		lr *= svd.decay
		FitEpochsTotalVec.WithLabelValues("svdpp").Inc()
		span.Add(1)
		if config.verbose(ep, svd.nEpochs) {
			logEpoch("svdpp", ep, svd.nEpochs, time.Since(fitStart), cache, state.userFeatures(), state.items, data)
		}
	}
	span.End()
	FitSecondsVec.WithLabelValues("svdpp").Set(time.Since(start).Seconds())
	log.Logger().Info("fit svd++ complete", zap.Duration("fit_time", time.Since(start)))
	return NewFactorization(cache.userIndex, cache.itemIndex, state.userFeatures(), state.items,
		cache.userPredictable, cache.itemPredictable)
}
