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
	"math"

	"github.com/gorse-io/factorizer/dataset"
)

// RMSE is the root mean square error of estimates on ratings. Ratings of
// unknown users or items are skipped. Zero is returned if nothing is left.
func RMSE(f *Factorization, ratings []dataset.Rating) float64 {
	sum, count := 0.0, 0
	for _, rating := range ratings {
		estimate, err := f.Estimate(rating.UserId, rating.ItemId)
		if err != nil {
			continue
		}
		diff := estimate - float64(rating.Value)
		sum += diff * diff
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

// Coverage is the share of ratings whose user and item are both known.
func Coverage(f *Factorization, ratings []dataset.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	count := 0
	for _, rating := range ratings {
		if f.IsUserPredictable(rating.UserId) && f.IsItemPredictable(rating.ItemId) {
			count++
		}
	}
	return float64(count) / float64(len(ratings))
}
