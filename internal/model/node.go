package model

// Node is a computational unit advanced by the simulator once per step.
type Node interface {
	Name() string
	Advance(startTime, endTime float64) error
	Reset(randomize bool)
	Origin(name string) (Origin, error)
	Termination(name string) (Termination, error)
}

// Origin is a named output port.
type Origin interface {
	Name() string
	Node() Node
	Dimensions() int
	Values() OutputValue
}

// Termination is a named input port.
type Termination interface {
	Name() string
	Node() Node
	Dimensions() int
	SetValues(v OutputValue) error
}

// ContainerKind tags how the flattener treats a container node.
type ContainerKind int

const (
	// KindNetwork containers are always expanded.
	KindNetwork ContainerKind = iota
	// KindArray containers emulate one large ensemble; they are expanded only
	// when the caller asks for arrays to be broken down.
	KindArray
	// KindOpaque containers run their own internals and are never expanded.
	KindOpaque
)

func (k ContainerKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindArray:
		return "array"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Container is a node that wraps a nested network.
type Container interface {
	Node
	ContainerKind() ContainerKind
	Nodes() []Node
	Projections() []*Projection
}

// TaskSpawner is implemented by nodes that contribute per-step tasks.
type TaskSpawner interface {
	Tasks() []Task
}

// Ensemble is a node made of addressable member nodes.
type Ensemble interface {
	Node
	Members() []Node
}

// Probeable exposes named state for instrumentation.
type Probeable interface {
	ProbeStates() []string
	ProbeState(state string) ([]float64, error)
}
