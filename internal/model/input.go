package model

import (
	"fmt"
	"math"
)

// InputOriginName is the origin exposed by FunctionInput.
const InputOriginName = "origin"

// TimeFunction maps simulation time to a scalar.
type TimeFunction func(t float64) float64

func Constant(v float64) TimeFunction {
	return func(float64) float64 { return v }
}

func Sine(amplitude, frequency float64) TimeFunction {
	return func(t float64) float64 { return amplitude * math.Sin(2*math.Pi*frequency*t) }
}

// Step switches from before to after at time at.
func Step(at, before, after float64) TimeFunction {
	return func(t float64) float64 {
		if t < at {
			return before
		}
		return after
	}
}

// FunctionInput is a leaf node whose output is a vector of functions of time.
type FunctionInput struct {
	name      string
	functions []TimeFunction
	origin    *BasicOrigin
}

func NewFunctionInput(name string, functions ...TimeFunction) (*FunctionInput, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: input name is required", ErrStructural)
	}
	if len(functions) == 0 {
		return nil, fmt.Errorf("%w: input %s needs at least one function", ErrStructural, name)
	}
	in := &FunctionInput{name: name, functions: append([]TimeFunction(nil), functions...)}
	in.origin = NewBasicOrigin(in, InputOriginName, len(functions))
	return in, nil
}

func (in *FunctionInput) Name() string { return in.name }

func (in *FunctionInput) Advance(startTime, _ float64) error {
	values := make([]float64, len(in.functions))
	for i, fn := range in.functions {
		values[i] = fn(startTime)
	}
	in.origin.Set(RealOutput{Values: values, At: startTime})
	return nil
}

func (in *FunctionInput) Reset(bool) {
	in.origin.Set(RealOutput{Values: make([]float64, len(in.functions))})
}

func (in *FunctionInput) Origin(name string) (Origin, error) {
	if name != InputOriginName {
		return nil, fmt.Errorf("%w: origin %s on input %s", ErrNotFound, name, in.name)
	}
	return in.origin, nil
}

func (in *FunctionInput) Termination(name string) (Termination, error) {
	return nil, fmt.Errorf("%w: input %s has no terminations", ErrNotFound, in.name)
}

func (in *FunctionInput) ProbeStates() []string { return []string{InputOriginName} }

func (in *FunctionInput) ProbeState(state string) ([]float64, error) {
	if state != InputOriginName {
		return nil, fmt.Errorf("%w: state %s on input %s", ErrNotFound, state, in.name)
	}
	return AsReal(in.origin.Values()), nil
}
