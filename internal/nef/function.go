package nef

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrFunctionExists   = errors.New("function already registered")
	ErrFunctionNotFound = errors.New("function not found")
	ErrFunctionVersion  = errors.New("function version mismatch")
)

// Function maps a point of an ensemble's represented space to one scalar.
type Function interface {
	Dimension() int
	Map(x []float64) float64
}

// FuncOf adapts a plain function of a dim-dimensional point.
func FuncOf(dim int, fn func(x []float64) float64) Function {
	return mapFunc{dim: dim, fn: fn}
}

type mapFunc struct {
	dim int
	fn  func(x []float64) float64
}

func (f mapFunc) Dimension() int          { return f.dim }
func (f mapFunc) Map(x []float64) float64 { return f.fn(x) }

// Component returns x[i] of a dim-dimensional point.
func Component(dim, i int) Function {
	return FuncOf(dim, func(x []float64) float64 { return x[i] })
}

// FunctionSet builds the target functions of a decoded origin for an
// ensemble of the given dimension, one function per output dimension.
type FunctionSet func(dim int) ([]Function, error)

type FunctionSpec struct {
	Name          string
	Build         FunctionSet
	SchemaVersion int
	CodecVersion  int
}

type registeredFunction struct {
	build         FunctionSet
	schemaVersion int
	codecVersion  int
}

var functionRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredFunction
}{
	m: make(map[string]registeredFunction),
}

func init() {
	initializeBuiltInFunctions()
}

func initializeBuiltInFunctions() {
	MustRegisterFunction("identity", perComponent(func(v float64) float64 { return v }))
	MustRegisterFunction("square", perComponent(func(v float64) float64 { return v * v }))
	MustRegisterFunction("sine", perComponent(func(v float64) float64 { return math.Sin(math.Pi * v) }))
	MustRegisterFunction("constant", func(dim int) ([]Function, error) {
		if dim < 1 {
			return nil, fmt.Errorf("constant: dimension must be > 0")
		}
		return []Function{FuncOf(dim, func([]float64) float64 { return 1 })}, nil
	})
	MustRegisterFunction("product", func(dim int) ([]Function, error) {
		if dim < 2 {
			return nil, fmt.Errorf("product: dimension must be >= 2, got %d", dim)
		}
		return []Function{FuncOf(dim, func(x []float64) float64 {
			p := 1.0
			for _, v := range x {
				p *= v
			}
			return p
		})}, nil
	})
}

func perComponent(fn func(v float64) float64) FunctionSet {
	return func(dim int) ([]Function, error) {
		if dim < 1 {
			return nil, fmt.Errorf("dimension must be > 0")
		}
		out := make([]Function, dim)
		for i := range out {
			i := i
			out[i] = FuncOf(dim, func(x []float64) float64 { return fn(x[i]) })
		}
		return out, nil
	}
}

func RegisterFunction(name string, build FunctionSet) error {
	return RegisterFunctionWithSpec(FunctionSpec{
		Name:          name,
		Build:         build,
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
	})
}

func MustRegisterFunction(name string, build FunctionSet) {
	if err := RegisterFunction(name, build); err != nil {
		panic(err)
	}
}

func RegisterFunctionWithSpec(spec FunctionSpec) error {
	if spec.Name == "" {
		return errors.New("function name is required")
	}
	if spec.Build == nil {
		return errors.New("function builder is required")
	}
	if spec.SchemaVersion != SupportedSchemaVersion || spec.CodecVersion != SupportedCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrFunctionVersion, spec.SchemaVersion, spec.CodecVersion)
	}

	functionRegistry.mu.Lock()
	defer functionRegistry.mu.Unlock()

	if _, exists := functionRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrFunctionExists, spec.Name)
	}
	functionRegistry.m[spec.Name] = registeredFunction{
		build:         spec.Build,
		schemaVersion: spec.SchemaVersion,
		codecVersion:  spec.CodecVersion,
	}
	return nil
}

// BuildFunctions resolves name and builds its functions for dim.
func BuildFunctions(name string, dim int) ([]Function, error) {
	functionRegistry.mu.RLock()
	entry, ok := functionRegistry.m[name]
	functionRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if entry.schemaVersion != SupportedSchemaVersion || entry.codecVersion != SupportedCodecVersion {
		return nil, fmt.Errorf("%w: %s", ErrFunctionVersion, name)
	}
	fns, err := entry.build(dim)
	if err != nil {
		return nil, fmt.Errorf("build function %s: %w", name, err)
	}
	return fns, nil
}

func ListFunctions() []string {
	functionRegistry.mu.RLock()
	defer functionRegistry.mu.RUnlock()

	names := make([]string, 0, len(functionRegistry.m))
	for name := range functionRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetFunctionRegistryForTests() {
	functionRegistry.mu.Lock()
	functionRegistry.m = make(map[string]registeredFunction)
	functionRegistry.mu.Unlock()
	initializeBuiltInFunctions()
}
