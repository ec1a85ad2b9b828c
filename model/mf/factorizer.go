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
	"strings"
	"time"

	"github.com/gorse-io/factorizer/base"
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
)

type FitConfig struct {
	Jobs    int
	Verbose int
	// Timeout bounds every parallel phase. Zero means no limit.
	Timeout time.Duration
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetTimeout(timeout time.Duration) *FitConfig {
	config.Timeout = timeout
	return config
}

func (config *FitConfig) verbose(epoch, nEpochs int) bool {
	return config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == nEpochs)
}

// Factorizer computes a Factorization from ratings. A factorizer instance
// serves one Factorize call per training session.
type Factorizer interface {
	model.Model
	// Factorize trains feature vectors for every user and item in data.
	Factorize(ctx context.Context, data dataset.DataModel, config *FitConfig) (*Factorization, error)
}

// New creates a factorizer by name: "als", "sgd", "parallel_sgd" or "svdpp".
func New(name string, params model.Params) (Factorizer, error) {
	switch strings.ToLower(name) {
	case "als":
		return NewALS(params)
	case "sgd":
		return NewSGD(params)
	case "parallel_sgd":
		return NewParallelSGD(params)
	case "svdpp":
		return NewSVDpp(params)
	}
	return nil, errors.NotSupportedf("factorizer %s", name)
}

// buildIndices assigns dense indices to users and items in enumeration order.
func buildIndices(data dataset.DataModel) (userIndex, itemIndex *base.Index) {
	userIndex, itemIndex = base.NewIndex(), base.NewIndex()
	for _, userId := range data.UserIds() {
		userIndex.Add(userId)
	}
	for _, itemId := range data.ItemIds() {
		itemIndex.Add(itemId)
	}
	return
}

// fitContext applies the phase timeout of config.
func fitContext(ctx context.Context, config *FitConfig) (context.Context, context.CancelFunc) {
	if config.Timeout > 0 {
		return context.WithTimeout(ctx, config.Timeout)
	}
	return context.WithCancel(ctx)
}

// phaseError reports a phase that ran out of its own deadline as Timeout.
func phaseError(ctx context.Context, err error, config *FitConfig) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return errors.NewTimeout(err, fmt.Sprintf("phase exceeded %v", config.Timeout))
	}
	return err
}

func validateConfig(config *FitConfig) *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	validated := *config
	if validated.Jobs < 1 {
		validated.Jobs = 1
	}
	return &validated
}
