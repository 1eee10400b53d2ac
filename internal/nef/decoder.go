package nef

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"nefsim/internal/logging"
	"nefsim/internal/model"
	"nefsim/internal/vecmath"
)

// ErrorSamples is the number of random points used by DecodedOrigin.Error.
const ErrorSamples = 500

// StateSpace is implemented by parents whose represented space can be
// sampled. Error estimation needs it.
type StateSpace interface {
	Dimension() int
	Radii() []float64
	// RatesAt returns the steady-state activity of every member at x, in
	// member order.
	RatesAt(x []float64) []float64
}

// DecodedOrigin is an origin whose value is a linear readout of the outputs
// of a population of nodes, approximating one target function per output
// dimension.
type DecodedOrigin struct {
	parent     model.Node
	name       string
	nodes      []model.Node
	nodeOrigin string
	functions  []Function

	mu       sync.RWMutex
	decoders [][]float64
	mode     model.SimulationMode
	noise    Noise
	noises   []Noise
	output   model.RealOutput
	logger   *slog.Logger
}

// NewDecodedOrigin fits decoders for functions with approx.
func NewDecodedOrigin(parent model.Node, name string, nodes []model.Node, nodeOrigin string, functions []Function, approx LinearApproximator) (*DecodedOrigin, error) {
	if err := checkFunctions(functions); err != nil {
		return nil, err
	}
	if approx == nil {
		return nil, fmt.Errorf("%w: approximator is required", model.ErrStructural)
	}
	decoders, err := findDecoders(len(nodes), functions, approx)
	if err != nil {
		return nil, err
	}
	return newDecodedOrigin(parent, name, nodes, nodeOrigin, functions, decoders), nil
}

// NewDecodedOriginWithDecoders uses caller-supplied decoders, one row per
// node and one column per function.
func NewDecodedOriginWithDecoders(parent model.Node, name string, nodes []model.Node, nodeOrigin string, functions []Function, decoders [][]float64) (*DecodedOrigin, error) {
	if err := checkFunctions(functions); err != nil {
		return nil, err
	}
	if err := checkDecoders(decoders, len(nodes), len(functions)); err != nil {
		return nil, err
	}
	return newDecodedOrigin(parent, name, nodes, nodeOrigin, functions, vecmath.CloneMatrix(decoders)), nil
}

func newDecodedOrigin(parent model.Node, name string, nodes []model.Node, nodeOrigin string, functions []Function, decoders [][]float64) *DecodedOrigin {
	return &DecodedOrigin{
		parent:     parent,
		name:       name,
		nodes:      append([]model.Node(nil), nodes...),
		nodeOrigin: nodeOrigin,
		functions:  append([]Function(nil), functions...),
		decoders:   decoders,
		output:     model.RealOutput{Values: make([]float64, len(functions))},
	}
}

func checkFunctions(functions []Function) error {
	if len(functions) == 0 {
		return fmt.Errorf("%w: at least one function is required", model.ErrStructural)
	}
	dim := functions[0].Dimension()
	for i, fn := range functions[1:] {
		if fn.Dimension() != dim {
			return fmt.Errorf("%w: %w: function %d has input dimension %d, function 0 has %d", model.ErrStructural, model.ErrDimensionMismatch, i+1, fn.Dimension(), dim)
		}
	}
	return nil
}

func checkDecoders(decoders [][]float64, rows, cols int) error {
	if len(decoders) != rows {
		return fmt.Errorf("%w: %w: %d decoder rows for %d nodes", model.ErrStructural, model.ErrDimensionMismatch, len(decoders), rows)
	}
	for i, row := range decoders {
		if len(row) != cols {
			return fmt.Errorf("%w: %w: decoder row %d has %d entries for %d functions", model.ErrStructural, model.ErrDimensionMismatch, i, len(row), cols)
		}
	}
	return nil
}

func findDecoders(nodes int, functions []Function, approx LinearApproximator) ([][]float64, error) {
	out := vecmath.Zeros[float64](nodes, len(functions))
	for j, fn := range functions {
		coeffs, err := approx.Coefficients(fn)
		if err != nil {
			return nil, fmt.Errorf("fit function %d: %w", j, err)
		}
		if len(coeffs) != nodes {
			return nil, fmt.Errorf("%w: %w: approximator returned %d coefficients for %d nodes", model.ErrStructural, model.ErrDimensionMismatch, len(coeffs), nodes)
		}
		for i := range out {
			out[i][j] = coeffs[i]
		}
	}
	return out, nil
}

func (d *DecodedOrigin) Name() string     { return d.name }
func (d *DecodedOrigin) Node() model.Node { return d.parent }
func (d *DecodedOrigin) Dimensions() int  { return len(d.functions) }

// InputDimension is the dimension of the state the functions accept.
func (d *DecodedOrigin) InputDimension() int { return d.functions[0].Dimension() }

func (d *DecodedOrigin) Functions() []Function {
	return append([]Function(nil), d.functions...)
}

func (d *DecodedOrigin) Values() model.OutputValue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.output
}

func (d *DecodedOrigin) SetLogger(logger *slog.Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

func (d *DecodedOrigin) SetMode(mode model.SimulationMode) {
	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()
}

func (d *DecodedOrigin) Mode() model.SimulationMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// SetNoise installs noise on every output dimension, each dimension using
// its own clone. A nil noise removes it.
func (d *DecodedOrigin) SetNoise(noise Noise) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noise = noise
	d.noises = nil
	if noise == nil {
		return
	}
	d.noises = make([]Noise, len(d.functions))
	for i := range d.noises {
		d.noises[i] = noise.Clone()
	}
}

func (d *DecodedOrigin) Noise() Noise {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.noise
}

// Decoders returns a copy of the coefficient matrix.
func (d *DecodedOrigin) Decoders() [][]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return vecmath.CloneMatrix(d.decoders)
}

// SetDecoders replaces the whole coefficient matrix. The shape must not
// change.
func (d *DecodedOrigin) SetDecoders(decoders [][]float64) error {
	if err := checkDecoders(decoders, len(d.nodes), len(d.functions)); err != nil {
		return err
	}
	d.mu.Lock()
	d.decoders = vecmath.CloneMatrix(decoders)
	d.mu.Unlock()
	return nil
}

// Refit recomputes every decoder with approx.
func (d *DecodedOrigin) Refit(approx LinearApproximator) error {
	if approx == nil {
		return fmt.Errorf("%w: origin %s needs an approximator", model.ErrStructural, d.name)
	}
	decoders, err := findDecoders(len(d.nodes), d.functions, approx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.decoders = decoders
	d.mu.Unlock()
	return nil
}

// Evaluate computes the output for the step [startTime, endTime]. state is
// the idealized represented value; it is required in direct mode and
// ignored otherwise, but is still checked when given.
func (d *DecodedOrigin) Evaluate(state []float64, startTime, endTime float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	inputDim := d.functions[0].Dimension()
	if state != nil && len(state) != inputDim {
		return fmt.Errorf("%w: %w: origin %s expects a state of dimension %d, got %d", model.ErrSimulation, model.ErrDimensionMismatch, d.name, inputDim, len(state))
	}

	values := make([]float64, len(d.functions))
	if d.mode == model.ModeDirect {
		if state == nil {
			return fmt.Errorf("%w: origin %s needs a state in direct mode", model.ErrSimulation, d.name)
		}
		for i, fn := range d.functions {
			values[i] = fn.Map(state)
		}
	} else {
		stepSize := endTime - startTime
		for i, node := range d.nodes {
			origin, err := node.Origin(d.nodeOrigin)
			if err != nil {
				return fmt.Errorf("%w: origin %s: %w", model.ErrSimulation, d.name, err)
			}
			v, err := scalarOf(origin.Values(), stepSize)
			if err != nil {
				return fmt.Errorf("%w: origin %s node %s: %w", model.ErrSimulation, d.name, node.Name(), err)
			}
			vecmath.AddScaled(values, v, d.decoders[i])
		}
	}

	for i, noise := range d.noises {
		values[i] = noise.Value(startTime, endTime, values[i])
	}
	d.output = model.RealOutput{Values: values, At: endTime}
	return nil
}

func scalarOf(v model.OutputValue, stepSize float64) (float64, error) {
	switch out := v.(type) {
	case model.SpikeOutput:
		if len(out.Spikes) > 0 && out.Spikes[0] && stepSize > 0 {
			return 1 / stepSize, nil
		}
		return 0, nil
	case model.RealOutput:
		if len(out.Values) == 0 {
			return 0, nil
		}
		return out.Values[0], nil
	default:
		return 0, fmt.Errorf("%w: %T", model.ErrUnsupportedOutput, v)
	}
}

// Reset zeroes the output and resets the noise generators.
func (d *DecodedOrigin) Reset(randomize bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = model.RealOutput{Values: make([]float64, len(d.functions))}
	if d.noise != nil {
		d.noise.Reset(randomize)
	}
	for _, noise := range d.noises {
		noise.Reset(randomize)
	}
}

// Error estimates the per-dimension mean squared error of the decoders over
// random points of the parent's represented space, comparing the target
// functions with the constant-rate decoded output. It returns zeros and
// logs a warning when the parent cannot be sampled.
func (d *DecodedOrigin) Error() []float64 {
	result := make([]float64, len(d.functions))
	space, ok := d.parent.(StateSpace)
	if !ok {
		d.warn("decoder error needs a parent with a sampleable state space", "parent", nodeName(d.parent))
		return result
	}

	decoders := d.Decoders()
	rng := rand.New(rand.NewSource(1))
	radii := space.Radii()
	for s := 0; s < ErrorSamples; s++ {
		x := vecmath.MulElementwise(sampleBall(rng, space.Dimension()), radii)
		rates := space.RatesAt(x)
		if len(rates) != len(decoders) {
			d.warn("decoder error needs one decoder row per parent neuron", "parent", nodeName(d.parent), "rates", len(rates), "decoders", len(decoders))
			return make([]float64, len(d.functions))
		}
		for j, fn := range d.functions {
			actual := 0.0
			for i, r := range rates {
				actual += r * decoders[i][j]
			}
			diff := actual - fn.Map(x)
			result[j] += diff * diff
		}
	}
	for j := range result {
		result[j] /= ErrorSamples
	}
	return result
}

func (d *DecodedOrigin) warn(msg string, args ...any) {
	d.mu.RLock()
	logger := logging.OrDefault(d.logger)
	d.mu.RUnlock()
	logger.Warn(msg, append([]any{"origin", d.name}, args...)...)
}

// Clone returns an independent copy on the same parent and nodes.
func (d *DecodedOrigin) Clone() *DecodedOrigin {
	return d.cloneFor(d.parent, d.nodes)
}

func (d *DecodedOrigin) cloneFor(parent model.Node, nodes []model.Node) *DecodedOrigin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := newDecodedOrigin(parent, d.name, nodes, d.nodeOrigin, d.functions, vecmath.CloneMatrix(d.decoders))
	out.mode = d.mode
	out.logger = d.logger
	if d.noise != nil {
		out.noise = d.noise.Clone()
		out.noises = make([]Noise, len(d.functions))
		for i := range out.noises {
			out.noises[i] = out.noise.Clone()
		}
	}
	return out
}

// sampleBall draws a point uniformly from the unit ball.
func sampleBall(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	norm := vecmath.Norm(v)
	if norm == 0 {
		return v
	}
	scale := math.Pow(rng.Float64(), 1/float64(dim)) / norm
	for i := range v {
		v[i] *= scale
	}
	return v
}

func nodeName(n model.Node) string {
	if n == nil {
		return "<nil>"
	}
	return n.Name()
}
