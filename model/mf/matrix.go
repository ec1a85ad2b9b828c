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

	"go.uber.org/atomic"
)

// matrix is the element access shared by dense and Hogwild matrices.
type matrix interface {
	At(i, j int) float64
	Set(i, j int, v float64)
}

// FeatureMatrix is a dense row-major matrix. Row i belongs to the entity with
// dense index i.
type FeatureMatrix struct {
	rows    int
	columns int
	data    []float64
}

func NewFeatureMatrix(rows, columns int) *FeatureMatrix {
	return &FeatureMatrix{
		rows:    rows,
		columns: columns,
		data:    make([]float64, rows*columns),
	}
}

func (m *FeatureMatrix) Rows() int {
	return m.rows
}

func (m *FeatureMatrix) Columns() int {
	return m.columns
}

func (m *FeatureMatrix) At(i, j int) float64 {
	return m.data[i*m.columns+j]
}

func (m *FeatureMatrix) Set(i, j int, v float64) {
	m.data[i*m.columns+j] = v
}

// Row returns row i. The returned slice aliases the matrix.
func (m *FeatureMatrix) Row(i int) []float64 {
	return m.data[i*m.columns : (i+1)*m.columns : (i+1)*m.columns]
}

// SetRow copies v into row i.
func (m *FeatureMatrix) SetRow(i int, v []float64) {
	copy(m.Row(i), v)
}

func (m *FeatureMatrix) Clone() *FeatureMatrix {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return &FeatureMatrix{rows: m.rows, columns: m.columns, data: data}
}

// Finite reports whether every element is neither NaN nor Inf.
func (m *FeatureMatrix) Finite() bool {
	for _, v := range m.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SharedMatrix is a matrix updated by many workers without locks. Every
// element access is atomic while read-modify-write sequences are not, so
// concurrent updates of one row may overwrite each other.
type SharedMatrix struct {
	rows    int
	columns int
	data    []atomic.Float64
}

func NewSharedMatrix(rows, columns int) *SharedMatrix {
	return &SharedMatrix{
		rows:    rows,
		columns: columns,
		data:    make([]atomic.Float64, rows*columns),
	}
}

func (m *SharedMatrix) At(i, j int) float64 {
	return m.data[i*m.columns+j].Load()
}

func (m *SharedMatrix) Set(i, j int, v float64) {
	m.data[i*m.columns+j].Store(v)
}

// Dense copies the current values into a FeatureMatrix.
func (m *SharedMatrix) Dense() *FeatureMatrix {
	dense := NewFeatureMatrix(m.rows, m.columns)
	for i := range m.data {
		dense.data[i] = m.data[i].Load()
	}
	return dense
}
