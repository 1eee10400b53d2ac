package model

import "fmt"

// Projection connects one origin to one termination and caches the value it
// last transmitted.
type Projection struct {
	origin      Origin
	termination Termination
	last        OutputValue
}

func NewProjection(origin Origin, termination Termination) (*Projection, error) {
	if origin == nil || termination == nil {
		return nil, fmt.Errorf("%w: projection requires an origin and a termination", ErrStructural)
	}
	if origin.Dimensions() != termination.Dimensions() {
		return nil, fmt.Errorf("%w: %w: origin %s has %d dimensions, termination %s has %d",
			ErrStructural, ErrDimensionMismatch, origin.Name(), origin.Dimensions(), termination.Name(), termination.Dimensions())
	}
	return &Projection{origin: origin, termination: termination}, nil
}

func (p *Projection) Origin() Origin           { return p.origin }
func (p *Projection) Termination() Termination { return p.termination }

// Last returns the value most recently delivered, or nil before the first
// propagation.
func (p *Projection) Last() OutputValue { return p.last }

// Propagate reads the origin's current value and writes it into the
// termination.
func (p *Projection) Propagate() error {
	value := p.origin.Values()
	if err := p.termination.SetValues(value); err != nil {
		return fmt.Errorf("projection %s: %w", p, err)
	}
	p.last = value
	return nil
}

func (p *Projection) String() string {
	return fmt.Sprintf("%s.%s->%s.%s", nodeName(p.origin.Node()), p.origin.Name(), nodeName(p.termination.Node()), p.termination.Name())
}

func nodeName(n Node) string {
	if n == nil {
		return "?"
	}
	return n.Name()
}
