// Package flatten expands a tree of nodes, where some nodes are themselves
// networks, into the flat node, connection and task lists that the
// scheduler partitions across lanes.
//
// Traversal is breadth-first and left to right, so the output order is fully
// determined by the input order. Lane partitioning is positional and relies
// on this.
package flatten

import "nefsim/internal/model"

// Options controls container expansion.
type Options struct {
	// ExpandArrays breaks array containers down into their members. Network
	// containers are always expanded; opaque containers never are.
	ExpandArrays bool
}

// Work is the flattened content of a network.
type Work struct {
	Nodes       []model.Node
	Connections []*model.Projection
	Tasks       []model.Task
}

// Flatten flattens the content of net. The container itself is not part of
// the output; its projections are.
func Flatten(net model.Container, opts Options) Work {
	top := net.Nodes()
	return Work{
		Nodes:       Nodes(top, opts),
		Connections: Connections(top, net.Projections()),
		Tasks:       Tasks(top),
	}
}

// Nodes returns the nodes to execute directly.
func Nodes(top []model.Node, opts Options) []model.Node {
	out := make([]model.Node, 0, len(top))
	queue := append([]model.Node(nil), top...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if children, ok := expand(node, opts.ExpandArrays); ok {
			queue = append(queue, children...)
			continue
		}
		out = append(out, node)
	}
	return out
}

// Connections returns extra followed by every projection declared inside a
// network or array container reachable from top.
func Connections(top []model.Node, extra []*model.Projection) []*model.Projection {
	out := append([]*model.Projection(nil), extra...)
	queue := append([]model.Node(nil), top...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		children, ok := expand(node, true)
		if !ok {
			continue
		}
		queue = append(queue, children...)
		out = append(out, node.(model.Container).Projections()...)
	}
	return out
}

// Tasks returns the tasks of every task spawner reachable from top. Opaque
// containers contribute only their own tasks.
func Tasks(top []model.Node) []model.Task {
	var out []model.Task
	queue := append([]model.Node(nil), top...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if spawner, ok := node.(model.TaskSpawner); ok {
			out = append(out, spawner.Tasks()...)
		}
		if children, ok := expand(node, true); ok {
			queue = append(queue, children...)
		}
	}
	return out
}

// IsContainer reports whether node is a container of any kind.
func IsContainer(node model.Node) bool {
	_, ok := node.(model.Container)
	return ok
}

func expand(node model.Node, expandArrays bool) ([]model.Node, bool) {
	container, ok := node.(model.Container)
	if !ok {
		return nil, false
	}
	switch container.ContainerKind() {
	case model.KindNetwork:
		return container.Nodes(), true
	case model.KindArray:
		if expandArrays {
			return container.Nodes(), true
		}
		return nil, false
	default:
		return nil, false
	}
}
