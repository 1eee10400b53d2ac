// Package vecmath provides small generic kernels over float vectors and
// row-major matrices.
package vecmath

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Dot returns the inner product of a and b over their common length.
func Dot[T constraints.Float](a, b []T) T {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum T
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// AddScaled performs dst += alpha*x elementwise.
func AddScaled[T constraints.Float](dst []T, alpha T, x []T) {
	for i := range dst {
		if i >= len(x) {
			return
		}
		dst[i] += alpha * x[i]
	}
}

// MulElementwise returns a*b elementwise.
func MulElementwise[T constraints.Float](a, b []T) []T {
	out := make([]T, len(a))
	for i := range a {
		if i < len(b) {
			out[i] = a[i] * b[i]
		}
	}
	return out
}

// DivElementwise returns a/b elementwise; zero divisors leave the entry 0.
func DivElementwise[T constraints.Float](a, b []T) []T {
	out := make([]T, len(a))
	for i := range a {
		if i < len(b) && b[i] != 0 {
			out[i] = a[i] / b[i]
		}
	}
	return out
}

// MatVec returns m*x for a row-major matrix.
func MatVec[T constraints.Float](m [][]T, x []T) []T {
	out := make([]T, len(m))
	for i, row := range m {
		out[i] = Dot(row, x)
	}
	return out
}

// MeanSquare returns the mean of squared entries, 0 for an empty vector.
func MeanSquare[T constraints.Float](v []T) T {
	if len(v) == 0 {
		return 0
	}
	return Dot(v, v) / T(len(v))
}

// Norm returns the Euclidean norm.
func Norm[T constraints.Float](v []T) T {
	return T(math.Sqrt(float64(Dot(v, v))))
}

// IsMatrix reports whether m has at least one row and every row has the same
// non-zero length.
func IsMatrix[T constraints.Float](m [][]T) bool {
	if len(m) == 0 || len(m[0]) == 0 {
		return false
	}
	cols := len(m[0])
	for _, row := range m[1:] {
		if len(row) != cols {
			return false
		}
	}
	return true
}

// CloneMatrix deep-copies m.
func CloneMatrix[T constraints.Float](m [][]T) [][]T {
	if m == nil {
		return nil
	}
	out := make([][]T, len(m))
	for i, row := range m {
		out[i] = append([]T(nil), row...)
	}
	return out
}

// Zeros returns a rows x cols matrix of zeros.
func Zeros[T constraints.Float](rows, cols int) [][]T {
	out := make([][]T, rows)
	for i := range out {
		out[i] = make([]T, cols)
	}
	return out
}
