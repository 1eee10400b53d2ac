package nef

import (
	"fmt"
	"sync"

	"nefsim/internal/model"
	"nefsim/internal/vecmath"
)

// NeuronOriginName is the origin every neuron publishes its output on.
const NeuronOriginName = "AXON"

// RateNeuron is a rectified-linear neuron driven by the projection of the
// ensemble state onto its encoder. It publishes either its firing rate or,
// when spiking, one spike flag per step.
type RateNeuron struct {
	name    string
	encoder []float64
	gain    float64
	bias    float64
	origin  *model.BasicOrigin

	mu          sync.Mutex
	current     float64
	rate        float64
	accumulator float64
	spiking     bool
}

func newRateNeuron(name string, encoder []float64, gain, bias float64) *RateNeuron {
	n := &RateNeuron{
		name:    name,
		encoder: append([]float64(nil), encoder...),
		gain:    gain,
		bias:    bias,
	}
	n.origin = model.NewBasicOrigin(n, NeuronOriginName, 1)
	return n
}

func (n *RateNeuron) Name() string       { return n.name }
func (n *RateNeuron) Encoder() []float64 { return append([]float64(nil), n.encoder...) }
func (n *RateNeuron) Gain() float64      { return n.gain }
func (n *RateNeuron) Bias() float64      { return n.bias }
func (n *RateNeuron) Origin(name string) (model.Origin, error) {
	if name != NeuronOriginName {
		return nil, fmt.Errorf("%w: origin %s on neuron %s", model.ErrNotFound, name, n.name)
	}
	return n.origin, nil
}

func (n *RateNeuron) Termination(name string) (model.Termination, error) {
	return nil, fmt.Errorf("%w: termination %s on neuron %s", model.ErrNotFound, name, n.name)
}

// RateAt is the steady-state rate for the represented value x, with x
// already normalized by the ensemble radii.
func (n *RateNeuron) RateAt(x []float64) float64 {
	r := n.gain*vecmath.Dot(n.encoder, x) + n.bias
	if r < 0 {
		return 0
	}
	return r
}

func (n *RateNeuron) drive(x []float64, spiking bool) {
	n.mu.Lock()
	n.current = vecmath.Dot(n.encoder, x)
	n.spiking = spiking
	n.mu.Unlock()
}

func (n *RateNeuron) Advance(startTime, endTime float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rate = n.gain*n.current + n.bias
	if n.rate < 0 {
		n.rate = 0
	}
	if !n.spiking {
		n.origin.Set(model.RealOutput{Values: []float64{n.rate}, At: endTime})
		return nil
	}
	n.accumulator += n.rate * (endTime - startTime)
	spike := n.accumulator >= 1
	if spike {
		n.accumulator--
	}
	n.origin.Set(model.SpikeOutput{Spikes: []bool{spike}, At: endTime})
	return nil
}

func (n *RateNeuron) Reset(bool) {
	n.mu.Lock()
	n.current, n.rate, n.accumulator = 0, 0, 0
	n.mu.Unlock()
	n.origin.Set(model.RealOutput{Values: []float64{0}})
}

func (n *RateNeuron) ProbeStates() []string { return []string{"rate", "current"} }

func (n *RateNeuron) ProbeState(state string) ([]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch state {
	case "rate":
		return []float64{n.rate}, nil
	case "current":
		return []float64{n.current}, nil
	default:
		return nil, fmt.Errorf("%w: state %s on neuron %s", model.ErrNotFound, state, n.name)
	}
}

func (n *RateNeuron) clone() *RateNeuron {
	return newRateNeuron(n.name, n.encoder, n.gain, n.bias)
}
