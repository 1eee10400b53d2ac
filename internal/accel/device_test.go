package accel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"nefsim/internal/flatten"
	"nefsim/internal/logging"
	"nefsim/internal/model"
	"nefsim/internal/schedule"
)

type node struct {
	name     string
	eligible bool
	in       *model.BasicTermination
	out      *model.BasicOrigin

	mu       sync.Mutex
	advances int
}

func newNode(name string, eligible bool) *node {
	n := &node{name: name, eligible: eligible}
	n.in = model.NewBasicTermination(n, "in", 1)
	n.out = model.NewBasicOrigin(n, "out", 1)
	return n
}

func (n *node) Name() string              { return n.name }
func (n *node) AcceleratorEligible() bool { return n.eligible }
func (n *node) Advance(_, end float64) error {
	n.mu.Lock()
	n.advances++
	n.mu.Unlock()
	n.out.Set(model.RealOutput{Values: []float64{end}, At: end})
	return nil
}
func (n *node) Reset(bool)                                    {}
func (n *node) Origin(string) (model.Origin, error)           { return n.out, nil }
func (n *node) Termination(string) (model.Termination, error) { return n.in, nil }

func connect(t *testing.T, from, to *node) *model.Projection {
	t.Helper()
	p, err := model.NewProjection(from.out, to.in)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	return p
}

func TestClaimTakesEligibleNodesAndInternalConnections(t *testing.T) {
	a, b, c := newNode("a", true), newNode("b", true), newNode("c", false)
	ab, bc := connect(t, a, b), connect(t, b, c)

	d := New("dev", logging.Nop())
	nodes, conns := d.Claim([]model.Node{a, b, c}, []*model.Projection{ab, bc})
	if len(nodes) != 2 || nodes[0] != a || nodes[1] != b {
		t.Fatalf("unexpected claimed nodes: %v", nodes)
	}
	if len(conns) != 1 || conns[0] != ab {
		t.Fatalf("unexpected claimed connections: %v", conns)
	}
}

func TestClaimTakesFullyEligibleArrays(t *testing.T) {
	eligibleArray := model.NewNetworkArray("fast")
	m0, m1 := newNode("fast[0]", true), newNode("fast[1]", true)
	mixedArray := model.NewNetworkArray("mixed")
	m2, m3 := newNode("mixed[0]", true), newNode("mixed[1]", false)
	for _, add := range []struct {
		array *model.Network
		nodes []*node
	}{{eligibleArray, []*node{m0, m1}}, {mixedArray, []*node{m2, m3}}} {
		for _, n := range add.nodes {
			if err := add.array.AddNode(n); err != nil {
				t.Fatalf("add node: %v", err)
			}
		}
	}
	src := newNode("src", true)
	into := connect(t, src, m0)
	internal, err := eligibleArray.AddProjection(m0.out, m1.in)
	if err != nil {
		t.Fatalf("array projection: %v", err)
	}

	d := New("dev", logging.Nop())
	nodes, conns := d.Claim([]model.Node{eligibleArray, mixedArray, src}, []*model.Projection{into, internal})
	if len(nodes) != 2 || nodes[0] != model.Node(eligibleArray) || nodes[1] != model.Node(src) {
		t.Fatalf("unexpected claimed nodes: %v", nodes)
	}
	if len(conns) != 2 {
		t.Fatalf("claimed connections: got=%d want=2", len(conns))
	}
	// the array propagates its own projections when it advances
	if len(d.connections) != 1 || d.connections[0] != into {
		t.Fatalf("device-propagated connections: got=%v want=[into]", d.connections)
	}
}

func TestRunPhaseBeforeInitialize(t *testing.T) {
	d := New("dev", logging.Nop())
	if err := d.RunPhase(context.Background(), schedule.PhaseNodes, 0, 1); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got: %v", err)
	}
	d.Shutdown()
}

func TestDeviceRunsUnderScheduler(t *testing.T) {
	a, b, c := newNode("a", true), newNode("b", true), newNode("c", false)
	ab, bc := connect(t, a, b), connect(t, b, c)

	d := New("dev", logging.Nop())
	s, err := schedule.New(schedule.Config{Lanes: 2, Accelerator: d, Logger: logging.Nop()})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	work := flatten.Work{Nodes: []model.Node{a, b, c}, Connections: []*model.Projection{ab, bc}}
	if err := s.Initialize(context.Background(), work); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := s.Step(float64(i), float64(i+1)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	s.Kill()

	for _, n := range []*node{a, b, c} {
		if n.advances != 4 {
			t.Fatalf("node %s advanced %d times, want 4", n.name, n.advances)
		}
	}
	if got := d.Phases(); got != 12 {
		t.Fatalf("device phases: got=%d want=12", got)
	}
	// b's output at the end of step 3 (t=3) reached c at the start of step 4
	if got := c.in.RealValues()[0]; got != 3 {
		t.Fatalf("cpu connection from accelerator node: got=%v want=3", got)
	}
	if got := b.in.RealValues()[0]; got != 3 {
		t.Fatalf("accelerator connection: got=%v want=3", got)
	}
}
