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

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gorse-io/factorizer/base/log"
	"github.com/gorse-io/factorizer/base/progress"
	"github.com/gorse-io/factorizer/cmd/version"
	"github.com/gorse-io/factorizer/config"
	"github.com/gorse-io/factorizer/dataset"
	"github.com/gorse-io/factorizer/model/mf"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "gorse-mf",
	Short: "Matrix factorization for collaborative filtering.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Fprint(cmd.OutOrStdout(), version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var fitCommand = &cobra.Command{
	Use:   "fit",
	Short: "Train a factorizer on a ratings file and report its accuracy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetLogger(cmd.Flags())

		configPath, _ := cmd.Flags().GetString("config")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Annotate(err, "failed to load config")
		}
		// flags take precedence over the config file
		if cmd.Flags().Changed("model") {
			conf.Model, _ = cmd.Flags().GetString("model")
		}
		if cmd.Flags().Changed("data") {
			conf.Data.Path, _ = cmd.Flags().GetString("data")
		}
		if cmd.Flags().Changed("sep") {
			conf.Data.Separator, _ = cmd.Flags().GetString("sep")
		}
		if cmd.Flags().Changed("test-ratio") {
			conf.Data.TestRatio, _ = cmd.Flags().GetFloat64("test-ratio")
		}
		if cmd.Flags().Changed("jobs") {
			conf.Fit.Jobs, _ = cmd.Flags().GetInt("jobs")
		}
		if err = conf.Validate(); err != nil {
			return errors.Trace(err)
		}
		if conf.Data.Path == "" {
			return errors.NotValidf("empty data path")
		}
		return fit(cmd.Context(), conf, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// Summary is the outcome of a training session.
type Summary struct {
	Model     string
	Users     int
	Items     int
	Features  int
	TrainRMSE float64
	TestRMSE  float64
	Coverage  float64
}

func train(ctx context.Context, conf *config.Config, progressOut io.Writer) (*Summary, error) {
	ratings, err := dataset.LoadRatingsFromFile(conf.Data.Path, conf.Data.Separator)
	if err != nil {
		return nil, errors.Trace(err)
	}
	trainRatings, testRatings := dataset.SplitRatings(ratings, conf.Data.TestRatio, conf.Data.Seed)
	trainSet := dataset.NewDataset(trainRatings)
	log.Logger().Info("load ratings",
		zap.String("path", conf.Data.Path),
		zap.Int("n_ratings", len(ratings)),
		zap.Int("n_train", len(trainRatings)),
		zap.Int("n_test", len(testRatings)))

	factorizer, err := mf.New(conf.Model, conf.GetParams())
	if err != nil {
		return nil, errors.Trace(err)
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(progressOut),
		progressbar.OptionSetDescription(conf.Model),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())
	tracer := progress.NewTracer("gorse-mf")
	tracer.OnUpdate(func(p progress.Progress) {
		if p.Total > 0 && len(p.Children) == 0 {
			bar.ChangeMax(p.Total)
			_ = bar.Set(p.Count)
		}
	})
	ctx, span := tracer.Start(ctx, "Fit", 1)
	factorization, err := factorizer.Factorize(ctx, trainSet, conf.GetFitConfig())
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.End()
	_ = bar.Finish()

	return &Summary{
		Model:     conf.Model,
		Users:     factorization.NumUsers(),
		Items:     factorization.NumItems(),
		Features:  factorization.NumFeatures(),
		TrainRMSE: mf.RMSE(factorization, trainRatings),
		TestRMSE:  mf.RMSE(factorization, testRatings),
		Coverage:  mf.Coverage(factorization, testRatings),
	}, nil
}

func fit(ctx context.Context, conf *config.Config, out, progressOut io.Writer) error {
	summary, err := train(ctx, conf, progressOut)
	if err != nil {
		return errors.Trace(err)
	}
	table := tablewriter.NewWriter(out)
	table.Header("model", "users", "items", "features", "train RMSE", "test RMSE", "coverage")
	row := lo.Map([]float64{summary.TrainRMSE, summary.TestRMSE, summary.Coverage}, func(v float64, _ int) string {
		return strconv.FormatFloat(v, 'f', 4, 64)
	})
	if err = table.Append(append([]string{
		summary.Model,
		strconv.Itoa(summary.Users),
		strconv.Itoa(summary.Items),
		strconv.Itoa(summary.Features),
	}, row...)); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(table.Render())
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().BoolP("version", "v", false, "gorse-mf version")
	fitCommand.Flags().StringP("config", "c", "", "configuration file path")
	fitCommand.Flags().StringP("model", "m", "als", "factorizer: als, sgd, parallel_sgd or svdpp")
	fitCommand.Flags().StringP("data", "d", "", "path of the ratings file")
	fitCommand.Flags().String("sep", ",", "field separator of the ratings file")
	fitCommand.Flags().Float64("test-ratio", 0.2, "share of ratings held out for evaluation")
	fitCommand.Flags().IntP("jobs", "j", 1, "number of workers")
	rootCommand.AddCommand(fitCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
