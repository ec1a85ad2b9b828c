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
	"github.com/gorse-io/factorizer/common/linalg"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SolveExplicit solves the regularized least squares problem of one entity
// against the fixed vectors of the entities it rated:
//
//	(M·Mᵗ + λ·n·I)·x = M·r
//
// where the columns of M are the fixed vectors at indices and n = len(indices).
func SolveExplicit(fixed *FeatureMatrix, indices []int, values []float64, lambda float64) ([]float64, error) {
	if len(indices) != len(values) {
		return nil, errors.NotValidf("%d indices with %d values", len(indices), len(values))
	}
	if len(indices) == 0 {
		return nil, errors.NotValidf("empty observations")
	}
	nFactors := fixed.Columns()
	m := mat.NewDense(len(indices), nFactors, nil)
	for row, index := range indices {
		m.SetRow(row, fixed.Row(index))
	}
	var a mat.Dense
	a.Mul(m.T(), m)
	for k := 0; k < nFactors; k++ {
		a.Set(k, k, a.At(k, k)+lambda*float64(len(indices)))
	}
	var v mat.VecDense
	v.MulVec(m.T(), mat.NewVecDense(len(values), values))
	x, err := linalg.NewQR(&a).SolveVec(v.RawVector().Data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return x, nil
}

// Confidence maps an implicit rating to its confidence weight 1 + α·r.
func Confidence(alpha, rating float64) float64 {
	return 1 + alpha*rating
}

// ImplicitSolver solves the weighted problem of implicit feedback:
//
//	(YᵗY + Yᵗ(Cu − I)Y + λI)·x = YᵗCu·pu
//
// YᵗY covers every fixed vector and is computed once per phase. Only observed
// entries contribute to the correction term, and pu is one on them.
type ImplicitSolver struct {
	fixed  *FeatureMatrix
	yty    *mat.SymDense
	alpha  float64
	lambda float64
}

func NewImplicitSolver(fixed *FeatureMatrix, alpha, lambda float64) *ImplicitSolver {
	nFactors := fixed.Columns()
	yty := mat.NewSymDense(nFactors, nil)
	if fixed.Rows() > 0 {
		y := mat.NewDense(fixed.Rows(), nFactors, fixed.data)
		yty.SymOuterK(1, y.T())
	}
	return &ImplicitSolver{
		fixed:  fixed,
		yty:    yty,
		alpha:  alpha,
		lambda: lambda,
	}
}

// YtY returns the precomputed Gram matrix of fixed vectors.
func (s *ImplicitSolver) YtY() mat.Symmetric {
	return s.yty
}

func (s *ImplicitSolver) Solve(indices []int, values []float64) ([]float64, error) {
	if len(indices) != len(values) {
		return nil, errors.NotValidf("%d indices with %d values", len(indices), len(values))
	}
	nFactors := s.fixed.Columns()
	a := mat.NewDense(nFactors, nFactors, nil)
	a.Copy(s.yty)
	b := make([]float64, nFactors)
	for n, index := range indices {
		y := s.fixed.Row(index)
		c := Confidence(s.alpha, values[n])
		for i := 0; i < nFactors; i++ {
			for j := 0; j < nFactors; j++ {
				a.Set(i, j, a.At(i, j)+(c-1)*y[i]*y[j])
			}
		}
		floats.AddScaled(b, c, y)
	}
	for k := 0; k < nFactors; k++ {
		a.Set(k, k, a.At(k, k)+s.lambda)
	}
	x, err := linalg.NewQR(a).SolveVec(b)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return x, nil
}
