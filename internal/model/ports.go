package model

import (
	"fmt"
	"sync"
)

// BasicOrigin is an origin whose value is set by its owning node.
type BasicOrigin struct {
	name string
	node Node
	dims int

	mu    sync.RWMutex
	value OutputValue
}

func NewBasicOrigin(node Node, name string, dims int) *BasicOrigin {
	return &BasicOrigin{
		name:  name,
		node:  node,
		dims:  dims,
		value: RealOutput{Values: make([]float64, dims)},
	}
}

func (o *BasicOrigin) Name() string    { return o.name }
func (o *BasicOrigin) Node() Node      { return o.node }
func (o *BasicOrigin) Dimensions() int { return o.dims }

func (o *BasicOrigin) Values() OutputValue {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

func (o *BasicOrigin) Set(v OutputValue) {
	o.mu.Lock()
	o.value = v
	o.mu.Unlock()
}

// BasicTermination stores the last value delivered to it.
type BasicTermination struct {
	name string
	node Node
	dims int

	mu    sync.RWMutex
	value OutputValue
}

func NewBasicTermination(node Node, name string, dims int) *BasicTermination {
	return &BasicTermination{
		name:  name,
		node:  node,
		dims:  dims,
		value: RealOutput{Values: make([]float64, dims)},
	}
}

func (t *BasicTermination) Name() string    { return t.name }
func (t *BasicTermination) Node() Node      { return t.node }
func (t *BasicTermination) Dimensions() int { return t.dims }

func (t *BasicTermination) SetValues(v OutputValue) error {
	if v == nil {
		return fmt.Errorf("%w: nil value for termination %s", ErrSimulation, t.name)
	}
	if v.Dimension() != t.dims {
		return fmt.Errorf("%w: %w: termination %s expects %d got %d", ErrSimulation, ErrDimensionMismatch, t.name, t.dims, v.Dimension())
	}
	t.mu.Lock()
	t.value = v
	t.mu.Unlock()
	return nil
}

func (t *BasicTermination) Values() OutputValue {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// RealValues returns the last delivered value as floats. Spikes map to 1/0.
func (t *BasicTermination) RealValues() []float64 {
	return AsReal(t.Values())
}

// Reset clears the stored value.
func (t *BasicTermination) Reset() {
	t.mu.Lock()
	t.value = RealOutput{Values: make([]float64, t.dims)}
	t.mu.Unlock()
}

// AsReal converts an output value to floats.
func AsReal(v OutputValue) []float64 {
	switch out := v.(type) {
	case RealOutput:
		return append([]float64(nil), out.Values...)
	case SpikeOutput:
		values := make([]float64, len(out.Spikes))
		for i, s := range out.Spikes {
			if s {
				values[i] = 1
			}
		}
		return values
	default:
		return nil
	}
}
