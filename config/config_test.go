// Copyright 2020 gorse Project Authors
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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorse-io/factorizer/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("config.toml.template")
	require.NoError(t, err)
	assert.Equal(t, "als", config.Model)
	// [params]
	assert.Equal(t, model.Params{
		model.NFactors:    16,
		model.NEpochs:     20,
		model.Reg:         0.06,
		model.RandomState: int64(42),
	}, config.GetParams())
	// [fit]
	assert.Equal(t, 4, config.Fit.Jobs)
	assert.Equal(t, 5, config.Fit.Verbose)
	assert.Equal(t, 30*time.Second, config.Fit.Timeout)
	fitConfig := config.GetFitConfig()
	assert.Equal(t, 4, fitConfig.Jobs)
	assert.Equal(t, 5, fitConfig.Verbose)
	assert.Equal(t, 30*time.Second, fitConfig.Timeout)
	// [data]
	assert.Equal(t, "ratings.csv", config.Data.Path)
	assert.Equal(t, ",", config.Data.Separator)
	assert.Equal(t, 0.1, config.Data.TestRatio)
	assert.Equal(t, int64(1), config.Data.Seed)
}

func TestLoadConfig_Default(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
	assert.Empty(t, config.GetParams())
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("GORSE_MODEL", "sgd")
	t.Setenv("GORSE_PARAMS_LR", "0.05")
	t.Setenv("GORSE_PARAMS_N_FACTORS", "8")
	t.Setenv("GORSE_FIT_JOBS", "2")
	t.Setenv("GORSE_FIT_TIMEOUT", "1m")
	config, err := LoadConfig("config.toml.template")
	require.NoError(t, err)
	assert.Equal(t, "sgd", config.Model)
	params := config.GetParams()
	assert.Equal(t, 0.05, params.GetFloat64(model.Lr, 0))
	assert.Equal(t, 8, params.GetInt(model.NFactors, 0))
	assert.Equal(t, 20, params.GetInt(model.NEpochs, 0))
	assert.Equal(t, 2, config.Fit.Jobs)
	assert.Equal(t, time.Minute, config.Fit.Timeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for _, text := range []string{
		`model = "knn"`,
		"[params]\nlr = -0.1",
		"[params]\nn_epochs = 0",
		"[fit]\njobs = 0",
		"[data]\ntest_ratio = 1.0",
	} {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(text), 0644))
		_, err := LoadConfig(path)
		assert.True(t, errors.Is(err, errors.NotValid), text)
	}
	// missing file
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
