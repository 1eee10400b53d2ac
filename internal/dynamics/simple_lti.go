package dynamics

import (
	"fmt"

	"nefsim/internal/model"
	"nefsim/internal/vecmath"
)

// SimpleLTI is a linear time-invariant system with a diagonal dynamics
// matrix and no input-to-output passthrough:
//
//	x' = A x + B u
//	y  = C x
//
// A is stored as its diagonal.
type SimpleLTI struct {
	a []float64
	b [][]float64
	c [][]float64
	x []float64
}

func NewSimpleLTI(a []float64, b, c [][]float64, x0 []float64) (*SimpleLTI, error) {
	n := len(a)
	if n == 0 {
		return nil, fmt.Errorf("%w: state dimension must be > 0", model.ErrStructural)
	}
	if !vecmath.IsMatrix(b) || len(b) != n {
		return nil, fmt.Errorf("%w: %w: B must be a %dxm matrix", model.ErrStructural, model.ErrDimensionMismatch, n)
	}
	if !vecmath.IsMatrix(c) || len(c[0]) != n {
		return nil, fmt.Errorf("%w: %w: C must be a px%d matrix", model.ErrStructural, model.ErrDimensionMismatch, n)
	}
	x := make([]float64, n)
	if x0 != nil {
		if len(x0) != n {
			return nil, fmt.Errorf("%w: %w: initial state has %d entries, want %d", model.ErrStructural, model.ErrDimensionMismatch, len(x0), n)
		}
		copy(x, x0)
	}
	return &SimpleLTI{
		a: append([]float64(nil), a...),
		b: vecmath.CloneMatrix(b),
		c: vecmath.CloneMatrix(c),
		x: x,
	}, nil
}

// NewZeroLTI builds an all-zero system of the given shape so entries can be
// set later.
func NewZeroLTI(stateDim, inputDim, outputDim int) (*SimpleLTI, error) {
	return NewSimpleLTI(make([]float64, stateDim), vecmath.Zeros[float64](stateDim, inputDim), vecmath.Zeros[float64](outputDim, stateDim), nil)
}

// NewLowpass builds dim independent first-order filters with time constant
// tau, the usual post-synaptic current model.
func NewLowpass(tau float64, dim int) (*SimpleLTI, error) {
	if tau <= 0 {
		return nil, fmt.Errorf("%w: time constant must be > 0", model.ErrStructural)
	}
	a := make([]float64, dim)
	b := vecmath.Zeros[float64](dim, dim)
	c := vecmath.Zeros[float64](dim, dim)
	for i := 0; i < dim; i++ {
		a[i] = -1 / tau
		b[i][i] = 1 / tau
		c[i][i] = 1
	}
	return NewSimpleLTI(a, b, c, nil)
}

// F returns the state derivative without forming the full A matrix.
// It panics if len(u) differs from the input dimension.
func (s *SimpleLTI) F(_ float64, u []float64) []float64 {
	s.checkInput(u)
	result := make([]float64, len(s.x))
	for i := range result {
		result[i] = s.a[i]*s.x[i] + vecmath.Dot(s.b[i], u)
	}
	return result
}

// G returns C x. The input is ignored because there is no passthrough term,
// but its length is still checked.
func (s *SimpleLTI) G(_ float64, u []float64) []float64 {
	s.checkInput(u)
	return vecmath.MatVec(s.c, s.x)
}

func (s *SimpleLTI) checkInput(u []float64) {
	if len(u) != s.InputDimension() {
		panic(fmt.Sprintf("dynamics: input has %d entries, system expects %d", len(u), s.InputDimension()))
	}
}

func (s *SimpleLTI) State() []float64 { return append([]float64(nil), s.x...) }

func (s *SimpleLTI) SetState(x []float64) {
	if len(x) != len(s.x) {
		panic(fmt.Sprintf("dynamics: state has %d entries, system expects %d", len(x), len(s.x)))
	}
	copy(s.x, x)
}

func (s *SimpleLTI) InputDimension() int  { return len(s.b[0]) }
func (s *SimpleLTI) OutputDimension() int { return len(s.c) }
func (s *SimpleLTI) StateDimension() int  { return len(s.x) }

// ADiagonal returns the cached diagonal of A.
func (s *SimpleLTI) ADiagonal() []float64 { return append([]float64(nil), s.a...) }

// A returns the full dynamics matrix.
func (s *SimpleLTI) A() [][]float64 {
	out := vecmath.Zeros[float64](len(s.a), len(s.a))
	for i, v := range s.a {
		out[i][i] = v
	}
	return out
}

func (s *SimpleLTI) B() [][]float64 { return vecmath.CloneMatrix(s.b) }
func (s *SimpleLTI) C() [][]float64 { return vecmath.CloneMatrix(s.c) }

// D is always zero.
func (s *SimpleLTI) D() [][]float64 {
	return vecmath.Zeros[float64](s.OutputDimension(), s.InputDimension())
}

// SetA replaces the dynamics matrix. Only square diagonal matrices of the
// current state dimension are accepted; the diagonal is cached.
func (s *SimpleLTI) SetA(m [][]float64) error {
	n := len(s.a)
	if len(m) != n {
		return fmt.Errorf("%w: %w: A must be %dx%d", model.ErrStructural, model.ErrDimensionMismatch, n, n)
	}
	diag := make([]float64, n)
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: %w: A must be %dx%d", model.ErrStructural, model.ErrDimensionMismatch, n, n)
		}
		for j, v := range row {
			if i != j && v != 0 {
				return fmt.Errorf("%w: A must be diagonal, found %v at (%d,%d)", model.ErrStructural, v, i, j)
			}
		}
		diag[i] = row[i]
	}
	s.a = diag
	return nil
}

func (s *SimpleLTI) SetB(m [][]float64) error {
	if !vecmath.IsMatrix(m) || len(m) != len(s.a) {
		return fmt.Errorf("%w: %w: B must have %d rows", model.ErrStructural, model.ErrDimensionMismatch, len(s.a))
	}
	s.b = vecmath.CloneMatrix(m)
	return nil
}

func (s *SimpleLTI) SetC(m [][]float64) error {
	if !vecmath.IsMatrix(m) || len(m[0]) != len(s.a) {
		return fmt.Errorf("%w: %w: C must have %d columns", model.ErrStructural, model.ErrDimensionMismatch, len(s.a))
	}
	s.c = vecmath.CloneMatrix(m)
	return nil
}

func (s *SimpleLTI) Clone() DynamicalSystem {
	return &SimpleLTI{
		a: append([]float64(nil), s.a...),
		b: vecmath.CloneMatrix(s.b),
		c: vecmath.CloneMatrix(s.c),
		x: append([]float64(nil), s.x...),
	}
}
