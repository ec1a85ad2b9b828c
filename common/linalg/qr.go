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

package linalg

import (
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Epsilon is the machine epsilon of float64.
var Epsilon = math.Nextafter(1, 2) - 1

// QR is the QR decomposition of a m×n matrix A computed by modified
// Gram-Schmidt column orthogonalization. Q is m×min(m,n) and R is min(m,n)×n.
//
// Columns whose norm does not exceed Epsilon are left unnormalized and mark
// the decomposition as rank deficient. No error is raised in that case: a
// zero diagonal entry of R propagates NaN or Inf through Solve.
type QR struct {
	q        *mat.Dense
	r        *mat.Dense
	rows     int
	columns  int
	fullRank bool
}

// NewQR decomposes a.
func NewQR(a mat.Matrix) *QR {
	rows, columns := a.Dims()
	size := min(rows, columns)
	// work on columns of a copy
	q := make([][]float64, columns)
	for j := range q {
		q[j] = mat.Col(nil, j, a)
	}
	r := mat.NewDense(max(size, 1), max(columns, 1), nil)
	fullRank := true
	for i := 0; i < size; i++ {
		qi := q[i]
		alpha := floats.Norm(qi, 2)
		if alpha > Epsilon {
			floats.Scale(1/alpha, qi)
		} else {
			fullRank = false
		}
		r.Set(i, i, alpha)
		for j := i + 1; j < columns; j++ {
			qj := q[j]
			if floats.Norm(qj, 2) > Epsilon {
				beta := floats.Dot(qi, qj)
				r.Set(i, j, beta)
				if j < size {
					floats.AddScaled(qj, -beta, qi)
				}
			}
		}
	}
	qr := &QR{rows: rows, columns: columns, fullRank: fullRank}
	if size > 0 {
		qr.q = mat.NewDense(rows, size, nil)
		for j := 0; j < size; j++ {
			qr.q.SetCol(j, q[j])
		}
		qr.r = mat.DenseCopyOf(r.Slice(0, size, 0, columns))
	}
	return qr
}

// Q returns a copy of the orthonormal factor.
func (qr *QR) Q() *mat.Dense {
	if qr.q == nil {
		return &mat.Dense{}
	}
	return mat.DenseCopyOf(qr.q)
}

// R returns a copy of the upper triangular factor.
func (qr *QR) R() *mat.Dense {
	if qr.r == nil {
		return &mat.Dense{}
	}
	return mat.DenseCopyOf(qr.r)
}

// FullRank reports whether every column had a norm above Epsilon.
func (qr *QR) FullRank() bool {
	return qr.fullRank
}

// Solve returns the least-squares solution X (n×c) of A·X = B. B must have as
// many rows as A. When n or c is zero the result is an empty Dense, since
// gonum cannot hold a matrix with a zero dimension.
func (qr *QR) Solve(b mat.Matrix) (*mat.Dense, error) {
	rows, columns := b.Dims()
	if rows != qr.rows {
		return nil, errors.NotValidf("right-hand side with %d rows for matrix with %d rows", rows, qr.rows)
	}
	if qr.columns == 0 || columns == 0 {
		return &mat.Dense{}, nil
	}
	if qr.q == nil {
		// no equations
		return mat.NewDense(qr.columns, columns, nil), nil
	}
	_, size := qr.q.Dims()
	var y mat.Dense
	y.Mul(qr.q.T(), b)
	x := mat.NewDense(qr.columns, columns, nil)
	for k := size - 1; k >= 0; k-- {
		diag := qr.r.At(k, k)
		for c := 0; c < columns; c++ {
			x.Set(k, c, y.At(k, c)/diag)
		}
		for i := 0; i < k; i++ {
			rik := qr.r.At(i, k)
			for c := 0; c < columns; c++ {
				y.Set(i, c, y.At(i, c)-x.At(k, c)*rik)
			}
		}
	}
	return x, nil
}

// SolveVec solves A·x = b for a single right-hand side.
func (qr *QR) SolveVec(b []float64) ([]float64, error) {
	if len(b) != qr.rows || len(b) == 0 {
		return nil, errors.NotValidf("right-hand side with %d rows for matrix with %d rows", len(b), qr.rows)
	}
	x, err := qr.Solve(mat.NewVecDense(len(b), b))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if x.IsEmpty() {
		return []float64{}, nil
	}
	return mat.Col(nil, 0, x), nil
}
