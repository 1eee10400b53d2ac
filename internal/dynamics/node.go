package dynamics

import (
	"fmt"

	"nefsim/internal/model"
)

const (
	SystemInputName  = "input"
	SystemOutputName = "output"
)

// SystemNode is a leaf node that integrates a dynamical system over each step
// using the value on its input termination.
type SystemNode struct {
	name       string
	system     DynamicalSystem
	initial    []float64
	integrator EulerIntegrator

	input  *model.BasicTermination
	output *model.BasicOrigin
}

func NewSystemNode(name string, system DynamicalSystem, integrator EulerIntegrator) (*SystemNode, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: node name is required", model.ErrStructural)
	}
	if system == nil {
		return nil, fmt.Errorf("%w: dynamical system is required", model.ErrStructural)
	}
	n := &SystemNode{
		name:       name,
		system:     system,
		initial:    system.State(),
		integrator: integrator,
	}
	n.input = model.NewBasicTermination(n, SystemInputName, system.InputDimension())
	n.output = model.NewBasicOrigin(n, SystemOutputName, system.OutputDimension())
	return n, nil
}

func (n *SystemNode) Name() string { return n.name }

func (n *SystemNode) Advance(startTime, endTime float64) error {
	u := n.input.RealValues()
	if len(u) != n.system.InputDimension() {
		return fmt.Errorf("%w: %w: node %s got %d inputs, want %d", model.ErrSimulation, model.ErrDimensionMismatch, n.name, len(u), n.system.InputDimension())
	}
	y := n.integrator.Integrate(n.system, startTime, endTime, u)
	n.output.Set(model.RealOutput{Values: y, At: endTime})
	return nil
}

func (n *SystemNode) Reset(bool) {
	n.system.SetState(n.initial)
	n.input.Reset()
	n.output.Set(model.RealOutput{Values: make([]float64, n.system.OutputDimension())})
}

func (n *SystemNode) Origin(name string) (model.Origin, error) {
	if name != SystemOutputName {
		return nil, fmt.Errorf("%w: origin %s on node %s", model.ErrNotFound, name, n.name)
	}
	return n.output, nil
}

func (n *SystemNode) Termination(name string) (model.Termination, error) {
	if name != SystemInputName {
		return nil, fmt.Errorf("%w: termination %s on node %s", model.ErrNotFound, name, n.name)
	}
	return n.input, nil
}

func (n *SystemNode) ProbeStates() []string { return []string{"state", SystemOutputName} }

func (n *SystemNode) ProbeState(state string) ([]float64, error) {
	switch state {
	case "state":
		return n.system.State(), nil
	case SystemOutputName:
		return model.AsReal(n.output.Values()), nil
	default:
		return nil, fmt.Errorf("%w: state %s on node %s", model.ErrNotFound, state, n.name)
	}
}
