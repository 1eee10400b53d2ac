// Package dynamics holds continuous-time dynamical systems and the
// integrators that advance them across a simulation step.
package dynamics

// DynamicalSystem evolves a state x under input u: x' = f(t, u) and
// y = g(t, u).
type DynamicalSystem interface {
	F(t float64, u []float64) []float64
	G(t float64, u []float64) []float64
	State() []float64
	SetState(x []float64)
	InputDimension() int
	OutputDimension() int
	Clone() DynamicalSystem
}
