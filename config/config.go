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
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/factorizer/model"
	"github.com/gorse-io/factorizer/model/mf"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration of a training session.
type Config struct {
	Model  string       `mapstructure:"model" validate:"oneof=als sgd parallel_sgd svdpp"`
	Params ParamsConfig `mapstructure:"params"`
	Fit    FitConfig    `mapstructure:"fit"`
	Data   DataConfig   `mapstructure:"data"`
}

// ParamsConfig holds hyper-parameters. Only parameters present in the file or
// the environment are passed to the factorizer, the rest keep the defaults
// of the chosen model.
type ParamsConfig struct {
	NFactors           *int     `mapstructure:"n_factors" validate:"omitempty,gte=0"`
	NEpochs            *int     `mapstructure:"n_epochs" validate:"omitempty,gt=0"`
	Lr                 *float64 `mapstructure:"lr" validate:"omitempty,gt=0"`
	Reg                *float64 `mapstructure:"reg" validate:"omitempty,gt=0"`
	Alpha              *float64 `mapstructure:"alpha" validate:"omitempty,gte=0"`
	Implicit           *bool    `mapstructure:"implicit"`
	RandomState        *int64   `mapstructure:"random_state"`
	InitStdDev         *float64 `mapstructure:"init_std_dev" validate:"omitempty,gte=0"`
	Decay              *float64 `mapstructure:"decay" validate:"omitempty,gt=0"`
	BiasLr             *float64 `mapstructure:"bias_lr" validate:"omitempty,gte=0"`
	BiasReg            *float64 `mapstructure:"bias_reg" validate:"omitempty,gte=0"`
	StepOffset         *float64 `mapstructure:"step_offset" validate:"omitempty,gte=0"`
	ForgettingExponent *float64 `mapstructure:"forgetting_exponent"`
}

var paramsKeys = []string{
	"n_factors", "n_epochs", "lr", "reg", "alpha", "implicit", "random_state",
	"init_std_dev", "decay", "bias_lr", "bias_reg", "step_offset", "forgetting_exponent",
}

type FitConfig struct {
	Jobs    int           `mapstructure:"jobs" validate:"gt=0"`
	Verbose int           `mapstructure:"verbose" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type DataConfig struct {
	Path      string  `mapstructure:"path"`
	Separator string  `mapstructure:"separator" validate:"required"`
	TestRatio float64 `mapstructure:"test_ratio" validate:"gte=0,lt=1"`
	Seed      int64   `mapstructure:"seed"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Model: "als",
		Fit: FitConfig{
			Jobs:    1,
			Verbose: 10,
		},
		Data: DataConfig{
			Separator: ",",
			TestRatio: 0.2,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	viper.SetDefault("model", defaultConfig.Model)
	// [fit]
	viper.SetDefault("fit.jobs", defaultConfig.Fit.Jobs)
	viper.SetDefault("fit.verbose", defaultConfig.Fit.Verbose)
	viper.SetDefault("fit.timeout", defaultConfig.Fit.Timeout)
	// [data]
	viper.SetDefault("data.path", defaultConfig.Data.Path)
	viper.SetDefault("data.separator", defaultConfig.Data.Separator)
	viper.SetDefault("data.test_ratio", defaultConfig.Data.TestRatio)
	viper.SetDefault("data.seed", defaultConfig.Data.Seed)
}

// LoadConfig loads configuration from a TOML file. Environment variables
// prefixed by GORSE_ override the file, e.g. GORSE_PARAMS_LR for params.lr.
// An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefault()
	viper.SetEnvPrefix("gorse")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range paramsKeys {
		if err := viper.BindEnv("params." + key); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		viper.SetConfigType("toml")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. Violations are reported as NotValid.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	return nil
}

// GetParams converts configured hyper-parameters to model.Params.
func (config *Config) GetParams() model.Params {
	c := config.Params
	params := model.Params{}
	if c.NFactors != nil {
		params[model.NFactors] = *c.NFactors
	}
	if c.NEpochs != nil {
		params[model.NEpochs] = *c.NEpochs
	}
	if c.Lr != nil {
		params[model.Lr] = *c.Lr
	}
	if c.Reg != nil {
		params[model.Reg] = *c.Reg
	}
	if c.Alpha != nil {
		params[model.Alpha] = *c.Alpha
	}
	if c.Implicit != nil {
		params[model.Implicit] = *c.Implicit
	}
	if c.RandomState != nil {
		params[model.RandomState] = *c.RandomState
	}
	if c.InitStdDev != nil {
		params[model.InitStdDev] = *c.InitStdDev
	}
	if c.Decay != nil {
		params[model.Decay] = *c.Decay
	}
	if c.BiasLr != nil {
		params[model.BiasLr] = *c.BiasLr
	}
	if c.BiasReg != nil {
		params[model.BiasReg] = *c.BiasReg
	}
	if c.StepOffset != nil {
		params[model.StepOffset] = *c.StepOffset
	}
	if c.ForgettingExponent != nil {
		params[model.ForgettingExponent] = *c.ForgettingExponent
	}
	return params
}

func (config *Config) GetFitConfig() *mf.FitConfig {
	return mf.NewFitConfig().
		SetJobs(config.Fit.Jobs).
		SetVerbose(config.Fit.Verbose).
		SetTimeout(config.Fit.Timeout)
}
