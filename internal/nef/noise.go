package nef

import "math/rand"

// Noise corrupts one output dimension of a decoded origin.
type Noise interface {
	Value(startTime, endTime, x float64) float64
	Reset(randomize bool)
	Clone() Noise
}

// NoNoise passes values through unchanged.
type NoNoise struct{}

func (NoNoise) Value(_, _, x float64) float64 { return x }
func (NoNoise) Reset(bool)                    {}
func (NoNoise) Clone() Noise                  { return NoNoise{} }

// GaussianNoise adds zero-mean normal noise with a fixed standard deviation.
// Reset(false) replays the same sequence; Reset(true) draws a new seed.
type GaussianNoise struct {
	StdDev float64

	seed int64
	rng  *rand.Rand
}

func NewGaussianNoise(stdDev float64, seed int64) *GaussianNoise {
	return &GaussianNoise{StdDev: stdDev, seed: seed, rng: rand.New(rand.NewSource(seed))}
}

func (g *GaussianNoise) Value(_, _, x float64) float64 {
	return x + g.StdDev*g.rng.NormFloat64()
}

func (g *GaussianNoise) Reset(randomize bool) {
	if randomize {
		g.seed = g.rng.Int63()
	}
	g.rng = rand.New(rand.NewSource(g.seed))
}

// Clone returns an independent generator seeded from this one's stream, so
// clones used for different dimensions are not correlated.
func (g *GaussianNoise) Clone() Noise {
	return NewGaussianNoise(g.StdDev, g.rng.Int63())
}
