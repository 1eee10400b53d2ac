package model

import "fmt"

// Network is a container of nodes and the projections between them.
type Network struct {
	name string
	kind ContainerKind

	nodes       []Node
	byName      map[string]Node
	projections []*Projection
	connected   map[Termination]*Projection

	origins      map[string]Origin
	terminations map[string]Termination
}

func NewNetwork(name string) *Network {
	return newNetwork(name, KindNetwork)
}

// NewNetworkArray builds a container that the flattener breaks down only on
// request.
func NewNetworkArray(name string) *Network {
	return newNetwork(name, KindArray)
}

// NewOpaqueNetwork builds a container that always runs as a single node.
func NewOpaqueNetwork(name string) *Network {
	return newNetwork(name, KindOpaque)
}

func newNetwork(name string, kind ContainerKind) *Network {
	return &Network{
		name:         name,
		kind:         kind,
		byName:       make(map[string]Node),
		connected:    make(map[Termination]*Projection),
		origins:      make(map[string]Origin),
		terminations: make(map[string]Termination),
	}
}

func (n *Network) Name() string                 { return n.name }
func (n *Network) ContainerKind() ContainerKind { return n.kind }

func (n *Network) Nodes() []Node {
	return append([]Node(nil), n.nodes...)
}

func (n *Network) Projections() []*Projection {
	return append([]*Projection(nil), n.projections...)
}

func (n *Network) AddNode(node Node) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrStructural)
	}
	if _, exists := n.byName[node.Name()]; exists {
		return fmt.Errorf("%w: %w: node %s in network %s", ErrStructural, ErrDuplicateName, node.Name(), n.name)
	}
	n.nodes = append(n.nodes, node)
	n.byName[node.Name()] = node
	return nil
}

func (n *Network) Node(name string) (Node, error) {
	node, ok := n.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: node %s in network %s", ErrNotFound, name, n.name)
	}
	return node, nil
}

// AddProjection connects origin to termination. A termination accepts at most
// one projection so that each value has a single writer per step.
func (n *Network) AddProjection(origin Origin, termination Termination) (*Projection, error) {
	if _, exists := n.connected[termination]; exists {
		return nil, fmt.Errorf("%w: %w: %s", ErrStructural, ErrAlreadyConnected, termination.Name())
	}
	p, err := NewProjection(origin, termination)
	if err != nil {
		return nil, err
	}
	n.projections = append(n.projections, p)
	n.connected[termination] = p
	return p, nil
}

// Connect resolves ports by node and port name and adds a projection.
func (n *Network) Connect(originNode, originName, terminationNode, terminationName string) (*Projection, error) {
	src, err := n.Node(originNode)
	if err != nil {
		return nil, err
	}
	dst, err := n.Node(terminationNode)
	if err != nil {
		return nil, err
	}
	origin, err := src.Origin(originName)
	if err != nil {
		return nil, err
	}
	termination, err := dst.Termination(terminationName)
	if err != nil {
		return nil, err
	}
	return n.AddProjection(origin, termination)
}

// ExposeOrigin publishes an inner origin on the network under name.
func (n *Network) ExposeOrigin(origin Origin, name string) {
	n.origins[name] = exposedOrigin{Origin: origin, name: name}
}

// ExposeTermination publishes an inner termination on the network under name.
func (n *Network) ExposeTermination(termination Termination, name string) {
	n.terminations[name] = exposedTermination{Termination: termination, name: name}
}

func (n *Network) Origin(name string) (Origin, error) {
	origin, ok := n.origins[name]
	if !ok {
		return nil, fmt.Errorf("%w: origin %s on network %s", ErrNotFound, name, n.name)
	}
	return origin, nil
}

func (n *Network) Termination(name string) (Termination, error) {
	termination, ok := n.terminations[name]
	if !ok {
		return nil, fmt.Errorf("%w: termination %s on network %s", ErrNotFound, name, n.name)
	}
	return termination, nil
}

// Advance runs the network as a single node: its own projections first, then
// every child. Nested containers advance their internals the same way.
func (n *Network) Advance(startTime, endTime float64) error {
	for _, p := range n.projections {
		if err := p.Propagate(); err != nil {
			return err
		}
	}
	for _, node := range n.nodes {
		if err := node.Advance(startTime, endTime); err != nil {
			return fmt.Errorf("network %s: node %s: %w", n.name, node.Name(), err)
		}
	}
	return nil
}

func (n *Network) Reset(randomize bool) {
	for _, node := range n.nodes {
		node.Reset(randomize)
	}
}

type exposedOrigin struct {
	Origin
	name string
}

func (o exposedOrigin) Name() string { return o.name }

type exposedTermination struct {
	Termination
	name string
}

func (t exposedTermination) Name() string { return t.name }
