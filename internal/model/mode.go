package model

import "fmt"

// SimulationMode selects how a node produces its output.
type SimulationMode int

const (
	// ModeDefault runs the most detailed representation a node supports
	// (spiking neurons for ensembles).
	ModeDefault SimulationMode = iota
	// ModeConstantRate uses steady-state rate responses.
	ModeConstantRate
	// ModeRate runs rate neurons.
	ModeRate
	// ModeDirect bypasses neurons and evaluates target functions on the
	// idealized state.
	ModeDirect
)

func (m SimulationMode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeConstantRate:
		return "constant_rate"
	case ModeRate:
		return "rate"
	case ModeDirect:
		return "direct"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string to a SimulationMode.
func ParseMode(s string) (SimulationMode, error) {
	switch s {
	case "", "default", "spiking":
		return ModeDefault, nil
	case "constant_rate":
		return ModeConstantRate, nil
	case "rate":
		return ModeRate, nil
	case "direct":
		return ModeDirect, nil
	default:
		return ModeDefault, fmt.Errorf("unsupported simulation mode: %s", s)
	}
}

// ModeConfigurable is implemented by nodes and origins whose mode can change
// between runs.
type ModeConfigurable interface {
	SetMode(mode SimulationMode)
	Mode() SimulationMode
}
