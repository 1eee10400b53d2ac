package nef

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"nefsim/internal/dynamics"
	"nefsim/internal/model"
	"nefsim/internal/vecmath"
)

const (
	// InputTerminationName receives the (unfiltered) input of an ensemble.
	InputTerminationName = "input"
	// IdentityOriginName decodes the represented value itself.
	IdentityOriginName = "X"
)

// EnsembleConfig describes a population. Zero fields take defaults.
type EnsembleConfig struct {
	Neurons       int
	Dimension     int
	Radii         []float64
	MaxRateLow    float64
	MaxRateHigh   float64
	InterceptLow  float64
	InterceptHigh float64
	TauSynapse    float64
	EvalPoints    int
	Noise         float64
	Seed          int64
	Spiking       bool
	Accelerate    bool
}

func (c EnsembleConfig) withDefaults() EnsembleConfig {
	if c.MaxRateLow == 0 && c.MaxRateHigh == 0 {
		c.MaxRateLow, c.MaxRateHigh = 100, 200
	}
	if c.InterceptLow == 0 && c.InterceptHigh == 0 {
		c.InterceptLow, c.InterceptHigh = -0.95, 0.95
	}
	if c.TauSynapse == 0 {
		c.TauSynapse = 0.005
	}
	if c.EvalPoints == 0 {
		c.EvalPoints = 250
	}
	if c.Noise == 0 {
		c.Noise = 0.1
	}
	if len(c.Radii) == 0 && c.Dimension > 0 {
		c.Radii = make([]float64, c.Dimension)
		for i := range c.Radii {
			c.Radii[i] = 1
		}
	}
	return c
}

func (c EnsembleConfig) validate() error {
	if c.Neurons < 1 {
		return fmt.Errorf("%w: ensemble needs at least one neuron", model.ErrStructural)
	}
	if c.Dimension < 1 {
		return fmt.Errorf("%w: ensemble dimension must be > 0", model.ErrStructural)
	}
	if len(c.Radii) != c.Dimension {
		return fmt.Errorf("%w: %w: %d radii for dimension %d", model.ErrStructural, model.ErrDimensionMismatch, len(c.Radii), c.Dimension)
	}
	for _, r := range c.Radii {
		if r <= 0 {
			return fmt.Errorf("%w: radii must be > 0", model.ErrStructural)
		}
	}
	if c.InterceptLow >= 1 || c.InterceptHigh >= 1 {
		return fmt.Errorf("%w: intercepts must be < 1", model.ErrStructural)
	}
	return nil
}

// Ensemble is a population of rate neurons representing a vector. Input
// arrives on a lowpass-filtered termination; decoded origins read the
// neuron outputs.
type Ensemble struct {
	name       string
	cfg        EnsembleConfig
	neurons    []*RateNeuron
	members    []model.Node
	input      *model.BasicTermination
	filter     *dynamics.SimpleLTI
	integrator dynamics.EulerIntegrator
	approx     *LeastSquaresApproximator

	mu          sync.RWMutex
	origins     map[string]*DecodedOrigin
	originOrder []string
	mode        model.SimulationMode
	state       []float64
	logger      *slog.Logger
}

// NewEnsemble builds the neurons, fits the identity origin X and returns
// the ensemble.
func NewEnsemble(name string, cfg EnsembleConfig) (*Ensemble, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("ensemble %s: %w", name, err)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	neurons := make([]*RateNeuron, cfg.Neurons)
	for i := range neurons {
		encoder := sampleSphere(rng, cfg.Dimension)
		maxRate := cfg.MaxRateLow + rng.Float64()*(cfg.MaxRateHigh-cfg.MaxRateLow)
		intercept := cfg.InterceptLow + rng.Float64()*(cfg.InterceptHigh-cfg.InterceptLow)
		gain := maxRate / (1 - intercept)
		neurons[i] = newRateNeuron(fmt.Sprintf("%s[%d]", name, i), encoder, gain, -gain*intercept)
	}

	e, err := assembleEnsemble(name, cfg, neurons)
	if err != nil {
		return nil, err
	}

	points := make([][]float64, cfg.EvalPoints)
	for p := range points {
		points[p] = vecmath.MulElementwise(sampleBall(rng, cfg.Dimension), cfg.Radii)
	}
	activities := vecmath.Zeros[float64](len(neurons), len(points))
	for p, x := range points {
		for i, r := range e.RatesAt(x) {
			activities[i][p] = r
		}
	}
	approx, err := NewLeastSquaresApproximator(points, activities, cfg.Noise)
	if err != nil {
		return nil, fmt.Errorf("ensemble %s: %w", name, err)
	}
	e.approx = approx

	identity, err := BuildFunctions("identity", cfg.Dimension)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddDecodedOrigin(IdentityOriginName, identity); err != nil {
		return nil, err
	}
	return e, nil
}

func assembleEnsemble(name string, cfg EnsembleConfig, neurons []*RateNeuron) (*Ensemble, error) {
	filter, err := dynamics.NewLowpass(cfg.TauSynapse, cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("ensemble %s: %w", name, err)
	}
	e := &Ensemble{
		name:       name,
		cfg:        cfg,
		neurons:    neurons,
		members:    make([]model.Node, len(neurons)),
		filter:     filter,
		integrator: dynamics.EulerIntegrator{MaxStep: cfg.TauSynapse / 4},
		origins:    make(map[string]*DecodedOrigin),
		state:      make([]float64, cfg.Dimension),
	}
	for i, n := range neurons {
		e.members[i] = n
	}
	e.input = model.NewBasicTermination(e, InputTerminationName, cfg.Dimension)
	return e, nil
}

func (e *Ensemble) Name() string           { return e.name }
func (e *Ensemble) Dimension() int         { return e.cfg.Dimension }
func (e *Ensemble) Radii() []float64       { return append([]float64(nil), e.cfg.Radii...) }
func (e *Ensemble) Members() []model.Node  { return append([]model.Node(nil), e.members...) }
func (e *Ensemble) Neurons() []*RateNeuron { return append([]*RateNeuron(nil), e.neurons...) }

// AcceleratorEligible reports whether an accelerator may claim this
// ensemble.
func (e *Ensemble) AcceleratorEligible() bool { return e.cfg.Accelerate }

// Approximator returns the fitted least-squares approximator shared by the
// ensemble's origins.
func (e *Ensemble) Approximator() LinearApproximator { return e.approx }

// RatesAt returns every neuron's steady-state rate at x.
func (e *Ensemble) RatesAt(x []float64) []float64 {
	normalized := vecmath.DivElementwise(x, e.cfg.Radii)
	rates := make([]float64, len(e.neurons))
	for i, n := range e.neurons {
		rates[i] = n.RateAt(normalized)
	}
	return rates
}

// AddDecodedOrigin fits a new origin for functions.
func (e *Ensemble) AddDecodedOrigin(name string, functions []Function) (*DecodedOrigin, error) {
	origin, err := NewDecodedOrigin(e, name, e.members, NeuronOriginName, functions, e.approx)
	if err != nil {
		return nil, fmt.Errorf("ensemble %s origin %s: %w", e.name, name, err)
	}
	if origin.InputDimension() != e.cfg.Dimension {
		return nil, fmt.Errorf("%w: %w: ensemble %s origin %s functions take dimension %d, ensemble has %d", model.ErrStructural, model.ErrDimensionMismatch, e.name, name, origin.InputDimension(), e.cfg.Dimension)
	}
	if err := e.attach(origin); err != nil {
		return nil, err
	}
	return origin, nil
}

// AddFunctionOrigin fits an origin for a registered function set.
func (e *Ensemble) AddFunctionOrigin(name, function string) (*DecodedOrigin, error) {
	functions, err := BuildFunctions(function, e.cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("ensemble %s origin %s: %w", e.name, name, err)
	}
	return e.AddDecodedOrigin(name, functions)
}

func (e *Ensemble) attach(origin *DecodedOrigin) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.origins[origin.Name()]; exists {
		return fmt.Errorf("%w: origin %s on ensemble %s", model.ErrDuplicateName, origin.Name(), e.name)
	}
	origin.SetMode(e.mode)
	origin.SetLogger(e.logger)
	e.origins[origin.Name()] = origin
	e.originOrder = append(e.originOrder, origin.Name())
	return nil
}

// DecodedOrigins returns the origins in the order they were added.
func (e *Ensemble) DecodedOrigins() []*DecodedOrigin {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*DecodedOrigin, len(e.originOrder))
	for i, name := range e.originOrder {
		out[i] = e.origins[name]
	}
	return out
}

func (e *Ensemble) Origin(name string) (model.Origin, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	origin, ok := e.origins[name]
	if !ok {
		return nil, fmt.Errorf("%w: origin %s on ensemble %s", model.ErrNotFound, name, e.name)
	}
	return origin, nil
}

func (e *Ensemble) Termination(name string) (model.Termination, error) {
	if name != InputTerminationName {
		return nil, fmt.Errorf("%w: termination %s on ensemble %s", model.ErrNotFound, name, e.name)
	}
	return e.input, nil
}

func (e *Ensemble) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
	for _, origin := range e.DecodedOrigins() {
		origin.SetLogger(logger)
	}
}

func (e *Ensemble) SetMode(mode model.SimulationMode) {
	e.mu.Lock()
	e.mode = mode
	e.mu.Unlock()
	for _, origin := range e.DecodedOrigins() {
		origin.SetMode(mode)
	}
}

func (e *Ensemble) Mode() model.SimulationMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// Advance filters the input, runs the neurons unless in direct mode and
// evaluates every decoded origin.
func (e *Ensemble) Advance(startTime, endTime float64) error {
	x := e.integrator.Integrate(e.filter, startTime, endTime, e.input.RealValues())

	e.mu.Lock()
	e.state = x
	mode := e.mode
	e.mu.Unlock()

	if mode != model.ModeDirect {
		normalized := vecmath.DivElementwise(x, e.cfg.Radii)
		spiking := mode == model.ModeDefault && e.cfg.Spiking
		for _, n := range e.neurons {
			n.drive(normalized, spiking)
			if err := n.Advance(startTime, endTime); err != nil {
				return err
			}
		}
	}
	for _, origin := range e.DecodedOrigins() {
		if err := origin.Evaluate(x, startTime, endTime); err != nil {
			return fmt.Errorf("ensemble %s: %w", e.name, err)
		}
	}
	return nil
}

func (e *Ensemble) Reset(randomize bool) {
	e.filter.SetState(make([]float64, e.cfg.Dimension))
	e.input.Reset()
	for _, n := range e.neurons {
		n.Reset(randomize)
	}
	for _, origin := range e.DecodedOrigins() {
		origin.Reset(randomize)
	}
	e.mu.Lock()
	e.state = make([]float64, e.cfg.Dimension)
	e.mu.Unlock()
}

// ProbeStates lists "state", the filtered represented value, and every decoded
// origin.
func (e *Ensemble) ProbeStates() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string{"state"}, e.originOrder...)
}

func (e *Ensemble) ProbeState(state string) ([]float64, error) {
	if state == "state" {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return append([]float64(nil), e.state...), nil
	}
	origin, err := e.Origin(state)
	if err != nil {
		return nil, err
	}
	return model.AsReal(origin.Values()), nil
}

// Clone duplicates the ensemble under a new name. Neurons, filter state and
// decoders are copied; nothing mutable is shared.
func (e *Ensemble) Clone(name string) (*Ensemble, error) {
	neurons := make([]*RateNeuron, len(e.neurons))
	for i, n := range e.neurons {
		neurons[i] = n.clone()
	}
	out, err := assembleEnsemble(name, e.cfg, neurons)
	if err != nil {
		return nil, err
	}
	out.cfg.Radii = append([]float64(nil), e.cfg.Radii...)
	out.filter.SetState(e.filter.State())
	out.approx = e.approx

	e.mu.RLock()
	out.mode = e.mode
	out.logger = e.logger
	e.mu.RUnlock()
	for _, origin := range e.DecodedOrigins() {
		clone := origin.cloneFor(out, out.members)
		out.origins[clone.Name()] = clone
		out.originOrder = append(out.originOrder, clone.Name())
	}
	return out, nil
}

// sampleSphere draws a point uniformly from the unit sphere surface.
func sampleSphere(rng *rand.Rand, dim int) []float64 {
	for {
		v := make([]float64, dim)
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		norm := vecmath.Norm(v)
		if norm == 0 {
			continue
		}
		for i := range v {
			v[i] /= norm
		}
		return v
	}
}
