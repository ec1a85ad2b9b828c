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
	"testing"

	"github.com/gorse-io/factorizer/base"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const solverEpsilon = 1e-9

func randomFeatures(seed int64, rows, columns int) *FeatureMatrix {
	rng := base.NewRandomGenerator(seed)
	m := NewFeatureMatrix(rows, columns)
	for i, row := range rng.UniformMatrix(rows, columns, -1, 1) {
		m.SetRow(i, row)
	}
	return m
}

func TestConfidence(t *testing.T) {
	for _, c := range []struct {
		alpha, rating, expected float64
	}{
		{40, 0, 1},
		{40, 1, 41},
		{0.5, 4, 3},
		{0, 10, 1},
	} {
		assert.Equal(t, c.expected, Confidence(c.alpha, c.rating))
	}
}

func TestSolveExplicit(t *testing.T) {
	fixed := randomFeatures(0, 10, 4)
	indices := []int{1, 3, 4, 7, 9}
	values := []float64{5, 3, 4, 1, 2}
	lambda := 0.1
	x, err := SolveExplicit(fixed, indices, values, lambda)
	require.NoError(t, err)

	// (MᵗM + λnI)x = Mᵗr solved by LU
	m := mat.NewDense(len(indices), 4, nil)
	for row, index := range indices {
		m.SetRow(row, fixed.Row(index))
	}
	var a mat.Dense
	a.Mul(m.T(), m)
	for k := 0; k < 4; k++ {
		a.Set(k, k, a.At(k, k)+lambda*float64(len(indices)))
	}
	var b mat.VecDense
	b.MulVec(m.T(), mat.NewVecDense(len(values), values))
	var expected mat.VecDense
	require.NoError(t, expected.SolveVec(&a, &b))
	assert.InDeltaSlice(t, expected.RawVector().Data, x, solverEpsilon)

	_, err = SolveExplicit(fixed, indices, values[:2], lambda)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = SolveExplicit(fixed, nil, nil, lambda)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestImplicitSolver(t *testing.T) {
	fixed := randomFeatures(1, 12, 3)
	alpha, lambda := 2.0, 0.5
	solver := NewImplicitSolver(fixed, alpha, lambda)

	y := mat.NewDense(12, 3, nil)
	for i := 0; i < 12; i++ {
		y.SetRow(i, fixed.Row(i))
	}
	var yty mat.Dense
	yty.Mul(y.T(), y)
	assert.True(t, mat.EqualApprox(solver.YtY(), &yty, solverEpsilon))

	indices := []int{0, 2, 5, 11}
	values := []float64{1, 3, 2, 5}
	x, err := solver.Solve(indices, values)
	require.NoError(t, err)

	// (YᵗCY + λI)x = YᵗCp with C and p over all fixed vectors
	c := mat.NewDiagDense(12, nil)
	p := mat.NewVecDense(12, nil)
	for i := 0; i < 12; i++ {
		c.SetDiag(i, 1)
	}
	for n, index := range indices {
		c.SetDiag(index, Confidence(alpha, values[n]))
		p.SetVec(index, 1)
	}
	var cy, a mat.Dense
	cy.Mul(c, y)
	a.Mul(y.T(), &cy)
	for k := 0; k < 3; k++ {
		a.Set(k, k, a.At(k, k)+lambda)
	}
	var cp, b, expected mat.VecDense
	cp.MulVec(c, p)
	b.MulVec(y.T(), &cp)
	require.NoError(t, expected.SolveVec(&a, &b))
	assert.InDeltaSlice(t, expected.RawVector().Data, x, solverEpsilon)

	// no observations
	x, err = solver.Solve(nil, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, x, solverEpsilon)
	_, err = solver.Solve(indices, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}
