package sim

import (
	"fmt"
	"sync"

	"nefsim/internal/model"
)

// Probe samples one named state of a node at the end of every step. A probe
// that does not record keeps only the latest sample.
type Probe struct {
	id     string
	target string
	member int
	state  string
	record bool
	source model.Probeable

	mu     sync.Mutex
	times  []float64
	values [][]float64
}

func (p *Probe) ID() string     { return p.id }
func (p *Probe) Target() string { return p.target }

// Member is the ensemble member index, or -1 for a node-level probe.
func (p *Probe) Member() int   { return p.member }
func (p *Probe) State() string { return p.state }

// Collect samples the state at time at.
func (p *Probe) Collect(at float64) error {
	v, err := p.source.ProbeState(p.state)
	if err != nil {
		return fmt.Errorf("probe %s on %s: %w", p.state, p.target, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.record {
		p.times = p.times[:0]
		p.values = p.values[:0]
	}
	p.times = append(p.times, at)
	p.values = append(p.values, append([]float64(nil), v...))
	return nil
}

// Latest returns the most recent sample.
func (p *Probe) Latest() (float64, []float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.times) == 0 {
		return 0, nil, false
	}
	last := len(p.times) - 1
	return p.times[last], append([]float64(nil), p.values[last]...), true
}

func (p *Probe) reset() {
	p.mu.Lock()
	p.times = nil
	p.values = nil
	p.mu.Unlock()
}

// Series copies the collected samples into a storable record.
func (p *Probe) Series() model.ProbeSeries {
	p.mu.Lock()
	defer p.mu.Unlock()
	values := make([][]float64, len(p.values))
	for i, v := range p.values {
		values[i] = append([]float64(nil), v...)
	}
	return model.ProbeSeries{
		ProbeID: p.id,
		Target:  p.target,
		Member:  p.member,
		State:   p.state,
		Times:   append([]float64(nil), p.times...),
		Values:  values,
	}
}
