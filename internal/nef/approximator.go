package nef

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"nefsim/internal/model"
)

// LinearApproximator finds one coefficient per node such that the weighted
// sum of node activities approximates a function.
type LinearApproximator interface {
	Coefficients(fn Function) ([]float64, error)
}

// LeastSquaresApproximator solves the regularized normal equations
//
//	(A Aᵀ/P + σ²I) d = A f/P
//
// where A holds node activities at P evaluation points and σ is the noise
// level relative to the peak activity.
type LeastSquaresApproximator struct {
	points     [][]float64
	activities [][]float64
	chol       mat.Cholesky
}

// NewLeastSquaresApproximator factors the Gram matrix once; Coefficients can
// then be called for any number of functions. activities[i][p] is the
// activity of node i at points[p].
func NewLeastSquaresApproximator(points, activities [][]float64, noise float64) (*LeastSquaresApproximator, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: at least one evaluation point is required", model.ErrStructural)
	}
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: at least one node is required", model.ErrStructural)
	}
	nodes, samples := len(activities), len(points)
	peak := 0.0
	for i, row := range activities {
		if len(row) != samples {
			return nil, fmt.Errorf("%w: %w: node %d has %d activities for %d points", model.ErrStructural, model.ErrDimensionMismatch, i, len(row), samples)
		}
		for _, a := range row {
			if a > peak {
				peak = a
			}
		}
	}

	sigma := noise * peak
	gram := mat.NewSymDense(nodes, nil)
	for i := 0; i < nodes; i++ {
		for j := i; j < nodes; j++ {
			sum := 0.0
			for p := 0; p < samples; p++ {
				sum += activities[i][p] * activities[j][p]
			}
			sum /= float64(samples)
			if i == j {
				sum += sigma * sigma
			}
			gram.SetSym(i, j, sum)
		}
	}

	approx := &LeastSquaresApproximator{points: points, activities: activities}
	if ok := approx.chol.Factorize(gram); !ok {
		return nil, fmt.Errorf("%w: activity gram matrix is not positive definite; increase noise", model.ErrStructural)
	}
	return approx, nil
}

func (a *LeastSquaresApproximator) Coefficients(fn Function) ([]float64, error) {
	if fn.Dimension() != len(a.points[0]) {
		return nil, fmt.Errorf("%w: %w: function dimension %d, points dimension %d", model.ErrStructural, model.ErrDimensionMismatch, fn.Dimension(), len(a.points[0]))
	}
	nodes, samples := len(a.activities), len(a.points)
	target := make([]float64, samples)
	for p, x := range a.points {
		target[p] = fn.Map(x)
	}
	upsilon := mat.NewVecDense(nodes, nil)
	for i := 0; i < nodes; i++ {
		sum := 0.0
		for p := 0; p < samples; p++ {
			sum += a.activities[i][p] * target[p]
		}
		upsilon.SetVec(i, sum/float64(samples))
	}

	var d mat.VecDense
	if err := a.chol.SolveVecTo(&d, upsilon); err != nil {
		// An ill-conditioned solve still yields usable decoders.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: solve decoders: %v", model.ErrStructural, err)
		}
	}
	out := make([]float64, nodes)
	for i := range out {
		out[i] = d.AtVec(i)
	}
	return out, nil
}
