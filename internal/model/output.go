package model

// OutputValue is the instantaneous value held by an origin or delivered to a
// termination. The concrete representations are RealOutput and SpikeOutput.
type OutputValue interface {
	Dimension() int
	Time() float64
}

// RealOutput carries continuous values.
type RealOutput struct {
	Values []float64
	At     float64
}

func NewRealOutput(values []float64, at float64) RealOutput {
	return RealOutput{Values: append([]float64(nil), values...), At: at}
}

func (o RealOutput) Dimension() int { return len(o.Values) }
func (o RealOutput) Time() float64  { return o.At }

// SpikeOutput carries discrete events, one flag per dimension.
type SpikeOutput struct {
	Spikes []bool
	At     float64
}

func (o SpikeOutput) Dimension() int { return len(o.Spikes) }
func (o SpikeOutput) Time() float64  { return o.At }
