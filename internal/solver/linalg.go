package solver

import (
	"math"
)

// pivotEps is the singularity threshold for Gaussian elimination.
const pivotEps = 1e-14

// gaussSolve solves Ax = b by Gaussian elimination with partial pivoting.
// Returns false when a pivot falls below the singularity threshold.
func gaussSolve(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	if n == 0 {
		return nil, true
	}

	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		maxVal := math.Abs(m[col][col])
		maxRow := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > maxVal {
				maxVal = math.Abs(m[row][col])
				maxRow = row
			}
		}
		if maxVal < pivotEps {
			return nil, false
		}
		if maxRow != col {
			m[col], m[maxRow] = m[maxRow], m[col]
		}
		for row := col + 1; row < n; row++ {
			f := m[row][col] / m[col][col]
			for j := col; j <= n; j++ {
				m[row][j] -= f * m[col][j]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		if math.Abs(m[i][i]) < pivotEps {
			return nil, false
		}
		x[i] = m[i][n]
		for j := i + 1; j < n; j++ {
			x[i] -= m[i][j] * x[j]
		}
		x[i] /= m[i][i]
	}
	return x, true
}

// nnls minimises ||Ax - b||² subject to x >= 0 using the Lawson-Hanson
// active set method. columns holds the columns of A; the result has one
// entry per column.
func nnls(columns [][]float64, b []float64) []float64 {
	n := len(b)
	k := len(columns)
	if k == 0 {
		return nil
	}

	x := make([]float64, k)
	free := make([]bool, k)

	for outer := 0; outer < 3*k+1; outer++ {
		// Residual r = b - Ax.
		r := make([]float64, n)
		copy(r, b)
		for j := 0; j < k; j++ {
			if x[j] != 0 {
				for i := 0; i < n; i++ {
					r[i] -= columns[j][i] * x[j]
				}
			}
		}

		// Gradient w = Aᵀr; admit the constrained column with the most
		// positive gradient.
		bestJ := -1
		bestW := 1e-10
		for j := 0; j < k; j++ {
			if free[j] {
				continue
			}
			w := 0.0
			for i := 0; i < n; i++ {
				w += columns[j][i] * r[i]
			}
			if w > bestW {
				bestW = w
				bestJ = j
			}
		}
		if bestJ < 0 {
			break
		}
		free[bestJ] = true

		// Solve the unconstrained problem on the free set, stepping back
		// toward the previous iterate whenever a coefficient would go
		// negative.
		for inner := 0; inner < 3*k+1; inner++ {
			var freeIdx []int
			for j := 0; j < k; j++ {
				if free[j] {
					freeIdx = append(freeIdx, j)
				}
			}
			nf := len(freeIdx)

			ata := make([][]float64, nf)
			atb := make([]float64, nf)
			for ii, ci := range freeIdx {
				ata[ii] = make([]float64, nf)
				for jj, cj := range freeIdx {
					s := 0.0
					for i := 0; i < n; i++ {
						s += columns[ci][i] * columns[cj][i]
					}
					ata[ii][jj] = s
				}
				s := 0.0
				for i := 0; i < n; i++ {
					s += columns[ci][i] * b[i]
				}
				atb[ii] = s
			}

			sFree, ok := gaussSolve(ata, atb)
			if !ok {
				break
			}

			negative := false
			for _, v := range sFree {
				if v < 0 {
					negative = true
					break
				}
			}
			if !negative {
				for ii, j := range freeIdx {
					x[j] = sFree[ii]
				}
				break
			}

			alpha := 1.0
			for ii, j := range freeIdx {
				if sFree[ii] <= 0 && x[j] > 0 {
					if a := x[j] / (x[j] - sFree[ii]); a < alpha {
						alpha = a
					}
				}
			}
			for ii, j := range freeIdx {
				x[j] += alpha * (sFree[ii] - x[j])
				if x[j] <= 1e-12 {
					free[j] = false
					x[j] = 0
				}
			}
		}
	}
	return x
}
