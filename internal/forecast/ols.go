// internal/forecast/ols.go
package forecast

import (
	"errors"
	"math"
)

var errSingularMatrix = errors.New("normal equations are singular")

// solveWeightedOLS fits y = X*beta by weighted least squares via the normal
// equations X'WX beta = X'Wy. A small ridge term keeps the system solvable
// when observations are fewer than features or columns are collinear (the
// day-of-week block always sums to one). Returns errSingularMatrix when the
// system still has no unique solution.
func solveWeightedOLS(x [][]float64, y, weights []float64, ridge float64) ([]float64, error) {
	n := len(x)
	if n == 0 || n != len(y) || n != len(weights) {
		return nil, errors.New("dimension mismatch in weighted OLS input")
	}
	p := len(x[0])

	// Build X'WX (p x p) and X'Wy (p).
	xtwx := make([][]float64, p)
	for i := range xtwx {
		xtwx[i] = make([]float64, p)
	}
	xtwy := make([]float64, p)

	for r := 0; r < n; r++ {
		w := weights[r]
		row := x[r]
		for i := 0; i < p; i++ {
			wi := w * row[i]
			xtwy[i] += wi * y[r]
			for j := i; j < p; j++ {
				xtwx[i][j] += wi * row[j]
			}
		}
	}
	// Mirror the upper triangle.
	for i := 0; i < p; i++ {
		for j := 0; j < i; j++ {
			xtwx[i][j] = xtwx[j][i]
		}
	}
	for i := 0; i < p; i++ {
		xtwx[i][i] += ridge
	}

	return solveLinearSystem(xtwx, xtwy)
}

// solveLinearSystem solves a*x = b in place using Gaussian elimination with
// partial pivoting.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	p := len(a)

	for col := 0; col < p; col++ {
		// Pivot selection.
		pivot := col
		maxAbs := math.Abs(a[col][col])
		for r := col + 1; r < p; r++ {
			if abs := math.Abs(a[r][col]); abs > maxAbs {
				maxAbs = abs
				pivot = r
			}
		}
		if maxAbs < 1e-10 {
			return nil, errSingularMatrix
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}

		for r := col + 1; r < p; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < p; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	// Back substitution.
	x := make([]float64, p)
	for i := p - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < p; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}

	return x, nil
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// meanOf returns the arithmetic mean, 0 for empty input.
func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStd is the square root of the mean squared deviation.
func populationStd(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// sampleStd uses the n-1 denominator; 0 when fewer than two values.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := meanOf(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
