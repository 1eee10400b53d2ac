package schedule

import (
	"context"
	"fmt"

	"nefsim/internal/model"
)

// Phase is one of the three ordered sub-steps of a simulation step.
type Phase int

const (
	PhaseConnections Phase = iota
	PhaseNodes
	PhaseTasks
)

// Phases lists the phases in execution order.
var Phases = [...]Phase{PhaseConnections, PhaseNodes, PhaseTasks}

func (p Phase) String() string {
	switch p {
	case PhaseConnections:
		return "connections"
	case PhaseNodes:
		return "nodes"
	case PhaseTasks:
		return "tasks"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Lane executes its share of one phase. RunPhase must return promptly once
// ctx is cancelled.
type Lane interface {
	Name() string
	RunPhase(ctx context.Context, phase Phase, startTime, endTime float64) error
	Shutdown()
}

// CPULane runs a fixed slice of connections, nodes and tasks in the calling
// goroutine.
type CPULane struct {
	name        string
	connections []*model.Projection
	nodes       []model.Node
	tasks       []model.Task
}

func NewCPULane(name string, connections []*model.Projection, nodes []model.Node, tasks []model.Task) *CPULane {
	return &CPULane{name: name, connections: connections, nodes: nodes, tasks: tasks}
}

func (l *CPULane) Name() string { return l.name }

func (l *CPULane) RunPhase(ctx context.Context, phase Phase, startTime, endTime float64) error {
	switch phase {
	case PhaseConnections:
		for _, p := range l.connections {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.Propagate(); err != nil {
				return fmt.Errorf("lane %s: %w", l.name, err)
			}
		}
	case PhaseNodes:
		for _, n := range l.nodes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := n.Advance(startTime, endTime); err != nil {
				return fmt.Errorf("lane %s node %s: %w", l.name, n.Name(), err)
			}
		}
	case PhaseTasks:
		for i, t := range l.tasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.Run(startTime, endTime); err != nil {
				return fmt.Errorf("lane %s task %d: %w", l.name, i, err)
			}
		}
	default:
		return fmt.Errorf("lane %s: unknown %s", l.name, phase)
	}
	return nil
}

func (l *CPULane) Shutdown() {}

// Accelerator is a lane with its own execution context. Before CPU work is
// partitioned it claims the nodes and connections it will run; everything
// it does not claim stays on the CPU lanes.
type Accelerator interface {
	Lane
	// Claim returns the accepted subsets of the candidates.
	Claim(nodes []model.Node, connections []*model.Projection) ([]model.Node, []*model.Projection)
	Initialize(ctx context.Context) error
}
