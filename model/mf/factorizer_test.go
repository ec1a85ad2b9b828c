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
	"testing"
	"time"

	"github.com/gorse-io/factorizer/base/progress"
	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for name, expected := range map[string]any{
		"als":          &ALS{},
		"sgd":          &SGD{},
		"parallel_sgd": &ParallelSGD{},
		"svdpp":        &SVDpp{},
		"SVDPP":        &SVDpp{},
	} {
		factorizer, err := New(name, model.Params{model.NFactors: 4})
		require.NoError(t, err)
		assert.IsType(t, expected, factorizer)
		assert.Equal(t, 4, factorizer.GetParams().GetInt(model.NFactors, 0))
	}
	_, err := New("bpr", nil)
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestFitConfig(t *testing.T) {
	config := NewFitConfig()
	assert.Equal(t, 1, config.Jobs)
	assert.Equal(t, 10, config.Verbose)
	assert.Zero(t, config.Timeout)
	config.SetJobs(4).SetVerbose(5).SetTimeout(time.Second)
	assert.Equal(t, 4, config.Jobs)
	assert.Equal(t, 5, config.Verbose)
	assert.Equal(t, time.Second, config.Timeout)

	assert.True(t, config.verbose(5, 12))
	assert.False(t, config.verbose(6, 12))
	assert.True(t, config.verbose(12, 12))
	assert.False(t, NewFitConfig().SetVerbose(0).verbose(10, 10))

	// validation never modifies the caller's config
	invalid := NewFitConfig().SetJobs(-2)
	validated := validateConfig(invalid)
	assert.Equal(t, 1, validated.Jobs)
	assert.Equal(t, -2, invalid.Jobs)
	assert.Equal(t, NewFitConfig(), validateConfig(nil))
}

func TestPhaseError(t *testing.T) {
	config := NewFitConfig().SetTimeout(time.Millisecond)
	assert.NoError(t, phaseError(context.Background(), nil, config))
	// own deadline
	err := phaseError(context.Background(), context.DeadlineExceeded, config)
	assert.True(t, errors.Is(err, errors.Timeout))
	// deadline of the caller
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	err = phaseError(ctx, context.DeadlineExceeded, config)
	assert.False(t, errors.Is(err, errors.Timeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFactorizer_Metrics(t *testing.T) {
	epochs := testutil.ToFloat64(FitEpochsTotalVec.WithLabelValues("sgd"))
	failures := testutil.ToFloat64(FitFailuresTotalVec.WithLabelValues("sgd"))
	sgd, err := NewSGD(model.Params{model.NFactors: 2, model.NEpochs: 3})
	require.NoError(t, err)
	_, err = sgd.Factorize(context.Background(), smallRatings(), NewFitConfig().SetVerbose(1))
	require.NoError(t, err)
	assert.Equal(t, epochs+3, testutil.ToFloat64(FitEpochsTotalVec.WithLabelValues("sgd")))
	assert.Equal(t, failures, testutil.ToFloat64(FitFailuresTotalVec.WithLabelValues("sgd")))
	assert.Positive(t, testutil.ToFloat64(FitSecondsVec.WithLabelValues("sgd")))
	assert.Positive(t, testutil.ToFloat64(TrainRMSEVec.WithLabelValues("sgd")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sgd.Factorize(ctx, smallRatings(), nil)
	assert.Error(t, err)
	assert.Equal(t, failures+1, testutil.ToFloat64(FitFailuresTotalVec.WithLabelValues("sgd")))
}

func TestFactorizer_Progress(t *testing.T) {
	for _, name := range []string{"sgd", "parallel_sgd", "svdpp"} {
		tracer := progress.NewTracer("test")
		ctx, span := tracer.Start(context.Background(), "Fit", 1)
		factorizer, err := New(name, model.Params{model.NFactors: 2, model.NEpochs: 4})
		require.NoError(t, err)
		_, err = factorizer.Factorize(ctx, smallRatings(), NewFitConfig().SetJobs(2))
		require.NoError(t, err)
		span.End()
		list := tracer.List()
		require.Len(t, list, 1)
		require.Len(t, list[0].Children, 1)
		child := list[0].Children[0]
		assert.Equal(t, progress.StatusComplete, child.Status)
		assert.Equal(t, 4, child.Count)
		assert.Equal(t, 4, child.Total)
	}
}
