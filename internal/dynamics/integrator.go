package dynamics

import "nefsim/internal/vecmath"

// EulerIntegrator advances a system with fixed-size forward Euler sub-steps.
// A zero MaxStep takes a single step across the interval.
type EulerIntegrator struct {
	MaxStep float64
}

// Integrate holds u constant over [startTime, endTime], updates the system
// state and returns the output at endTime.
func (e EulerIntegrator) Integrate(sys DynamicalSystem, startTime, endTime float64, u []float64) []float64 {
	span := endTime - startTime
	if span > 0 {
		steps := 1
		if e.MaxStep > 0 && span > e.MaxStep {
			steps = int(span/e.MaxStep + 0.5)
			if steps < 1 {
				steps = 1
			}
		}
		dt := span / float64(steps)
		t := startTime
		for i := 0; i < steps; i++ {
			x := sys.State()
			vecmath.AddScaled(x, dt, sys.F(t, u))
			sys.SetState(x)
			t += dt
		}
	}
	return sys.G(endTime, u)
}
