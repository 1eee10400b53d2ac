package nef

import (
	"errors"
	"math"
	"testing"
)

func TestBuiltInFunctions(t *testing.T) {
	resetFunctionRegistryForTests()
	t.Cleanup(resetFunctionRegistryForTests)

	cases := []struct {
		name string
		dim  int
		x    []float64
		want []float64
	}{
		{name: "identity", dim: 2, x: []float64{0.3, -0.2}, want: []float64{0.3, -0.2}},
		{name: "square", dim: 2, x: []float64{0.5, -2}, want: []float64{0.25, 4}},
		{name: "constant", dim: 3, x: []float64{1, 2, 3}, want: []float64{1}},
		{name: "product", dim: 3, x: []float64{2, 3, 4}, want: []float64{24}},
		{name: "sine", dim: 1, x: []float64{0.5}, want: []float64{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fns, err := BuildFunctions(tc.name, tc.dim)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if len(fns) != len(tc.want) {
				t.Fatalf("unexpected function count: got=%d want=%d", len(fns), len(tc.want))
			}
			for i, fn := range fns {
				if fn.Dimension() != tc.dim {
					t.Fatalf("unexpected dimension: got=%d want=%d", fn.Dimension(), tc.dim)
				}
				if got := fn.Map(tc.x); math.Abs(got-tc.want[i]) > 1e-12 {
					t.Fatalf("unexpected value %d: got=%f want=%f", i, got, tc.want[i])
				}
			}
		})
	}
}

func TestRegisterFunctionValidation(t *testing.T) {
	resetFunctionRegistryForTests()
	t.Cleanup(resetFunctionRegistryForTests)

	build := func(dim int) ([]Function, error) { return []Function{Component(dim, 0)}, nil }
	if err := RegisterFunction("", build); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterFunction("nil", nil); err == nil {
		t.Fatal("expected nil builder error")
	}
	if err := RegisterFunctionWithSpec(FunctionSpec{Name: "v", Build: build, SchemaVersion: 99, CodecVersion: 1}); !errors.Is(err, ErrFunctionVersion) {
		t.Fatalf("expected ErrFunctionVersion, got: %v", err)
	}
	if err := RegisterFunction("first", build); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterFunction("first", build); !errors.Is(err, ErrFunctionExists) {
		t.Fatalf("expected ErrFunctionExists, got: %v", err)
	}
	if _, err := BuildFunctions("missing", 1); !errors.Is(err, ErrFunctionNotFound) {
		t.Fatalf("expected ErrFunctionNotFound, got: %v", err)
	}
	if _, err := BuildFunctions("product", 1); err == nil {
		t.Fatal("expected product to reject dimension 1")
	}
}

func TestListFunctionsSorted(t *testing.T) {
	resetFunctionRegistryForTests()
	t.Cleanup(resetFunctionRegistryForTests)

	names := ListFunctions()
	want := []string{"constant", "identity", "product", "sine", "square"}
	if len(names) != len(want) {
		t.Fatalf("unexpected functions: got=%v want=%v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected functions: got=%v want=%v", names, want)
		}
	}
}

func TestGaussianNoiseResetAndClone(t *testing.T) {
	noise := NewGaussianNoise(1, 11)
	a := noise.Value(0, 1, 0)
	noise.Reset(false)
	if b := noise.Value(0, 1, 0); a != b {
		t.Fatalf("reset must replay: got=%f want=%f", b, a)
	}
	clone := noise.Clone()
	if clone == Noise(noise) {
		t.Fatal("clone must be a new generator")
	}
	if got := (NoNoise{}).Value(0, 1, 3); got != 3 {
		t.Fatalf("NoNoise changed value: got=%f want=3", got)
	}
}

func TestLeastSquaresApproximatorValidation(t *testing.T) {
	if _, err := NewLeastSquaresApproximator(nil, [][]float64{{1}}, 0.1); err == nil {
		t.Fatal("expected error for no points")
	}
	if _, err := NewLeastSquaresApproximator([][]float64{{0}}, nil, 0.1); err == nil {
		t.Fatal("expected error for no nodes")
	}
	if _, err := NewLeastSquaresApproximator([][]float64{{0}, {1}}, [][]float64{{1}}, 0.1); err == nil {
		t.Fatal("expected error for activity count mismatch")
	}
	if _, err := NewLeastSquaresApproximator([][]float64{{0}}, [][]float64{{0}, {0}}, 0); err == nil {
		t.Fatal("expected error for singular gram matrix")
	}
}
