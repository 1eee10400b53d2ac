package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nefsim/internal/flatten"
	"nefsim/internal/model"
)

type stubNode struct {
	name     string
	in       *model.BasicTermination
	out      *model.BasicOrigin
	mu       sync.Mutex
	advances int
	onAdv    func(start, end float64) error
}

func newStubNode(name string) *stubNode {
	n := &stubNode{name: name}
	n.in = model.NewBasicTermination(n, "in", 1)
	n.out = model.NewBasicOrigin(n, "out", 1)
	return n
}

func (n *stubNode) Name() string { return n.name }
func (n *stubNode) Advance(start, end float64) error {
	n.mu.Lock()
	n.advances++
	n.mu.Unlock()
	if n.onAdv != nil {
		return n.onAdv(start, end)
	}
	return nil
}
func (n *stubNode) Reset(bool)                                    {}
func (n *stubNode) Origin(string) (model.Origin, error)           { return n.out, nil }
func (n *stubNode) Termination(string) (model.Termination, error) { return n.in, nil }
func (n *stubNode) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.advances
}

// slowOrigin delays every read, simulating a lane that is late to finish
// its connection phase.
type slowOrigin struct {
	*model.BasicOrigin
	delay time.Duration
	value func() float64
}

func (o slowOrigin) Values() model.OutputValue {
	time.Sleep(o.delay)
	return model.RealOutput{Values: []float64{o.value()}}
}

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(s.Kill)
	return s
}

func TestPartitionCoversRangeExactlyOnce(t *testing.T) {
	for lanes := 1; lanes <= 9; lanes++ {
		for total := 0; total <= 40; total++ {
			ranges := Partition(total, lanes)
			if len(ranges) != lanes {
				t.Fatalf("lanes=%d total=%d: got %d ranges", lanes, total, len(ranges))
			}
			size := (total + lanes - 1) / lanes
			next := 0
			for i, r := range ranges {
				if r.Start != next {
					t.Fatalf("lanes=%d total=%d: range %d starts at %d, want %d", lanes, total, i, r.Start, next)
				}
				if r.Len() < 0 || r.Len() > size {
					t.Fatalf("lanes=%d total=%d: range %d has size %d (max %d)", lanes, total, i, r.Len(), size)
				}
				next = r.End
			}
			if next != total {
				t.Fatalf("lanes=%d total=%d: ranges end at %d", lanes, total, next)
			}
		}
	}
	if got := Partition(5, 0); got != nil {
		t.Fatalf("expected no ranges for zero lanes, got %v", got)
	}
}

func TestSchedulerRequiresLanes(t *testing.T) {
	if _, err := New(Config{Lanes: 0}); err == nil {
		t.Fatal("expected error for zero lanes")
	}
}

func TestStepBeforeInitialize(t *testing.T) {
	s := newTestScheduler(t, Config{Lanes: 1})
	if err := s.Step(0, 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got: %v", err)
	}
}

func TestBarrierPreventsReadBeforeWrite(t *testing.T) {
	var step float64
	reader := newStubNode("reader")
	filler := newStubNode("filler")
	src := newStubNode("src")

	slow := slowOrigin{BasicOrigin: src.out, delay: 20 * time.Millisecond, value: func() float64 { return step }}
	slowProj, err := model.NewProjection(slow, reader.in)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	fastProj, err := model.NewProjection(src.out, filler.in)
	if err != nil {
		t.Fatalf("projection: %v", err)
	}

	var mu sync.Mutex
	var stale []string
	reader.onAdv = func(start, _ float64) error {
		got := reader.in.RealValues()[0]
		if got != start {
			mu.Lock()
			stale = append(stale, fmt.Sprintf("step %v read %v", start, got))
			mu.Unlock()
		}
		return nil
	}

	s := newTestScheduler(t, Config{Lanes: 2})
	// slow connection and filler on lane 0, fast connection and reader on lane 1
	work := flatten.Work{
		Nodes:       []model.Node{filler, reader},
		Connections: []*model.Projection{slowProj, fastProj},
	}
	if err := s.Initialize(context.Background(), work); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 5; i++ {
		step = float64(i)
		if err := s.Step(step, step+1); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if len(stale) != 0 {
		t.Fatalf("nodes observed stale connection values: %v", stale)
	}
}

func TestPhasesAreGloballyOrdered(t *testing.T) {
	var mu sync.Mutex
	var events []Phase
	record := func(p Phase) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}

	var nodes []model.Node
	var tasks []model.Task
	var conns []*model.Projection
	for i := 0; i < 6; i++ {
		n := newStubNode(fmt.Sprintf("n%d", i))
		delay := time.Duration(i%3) * time.Millisecond
		n.onAdv = func(float64, float64) error { time.Sleep(delay); record(PhaseNodes); return nil }
		nodes = append(nodes, n)
		tasks = append(tasks, model.TaskFunc(func(float64, float64) error { record(PhaseTasks); return nil }))
		src := newStubNode(fmt.Sprintf("s%d", i))
		origin := slowOrigin{BasicOrigin: src.out, delay: delay, value: func() float64 { record(PhaseConnections); return 0 }}
		p, err := model.NewProjection(origin, n.in)
		if err != nil {
			t.Fatalf("projection: %v", err)
		}
		conns = append(conns, p)
	}

	s := newTestScheduler(t, Config{Lanes: 3})
	if err := s.Initialize(context.Background(), flatten.Work{Nodes: nodes, Connections: conns, Tasks: tasks}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Step(float64(i), float64(i+1)); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if len(events) != 3*18 {
		t.Fatalf("unexpected event count: got=%d want=54", len(events))
	}
	for i := 1; i < len(events); i++ {
		if (i%18) != 0 && events[i] < events[i-1] {
			t.Fatalf("phase %s ran after %s within a step", events[i], events[i-1])
		}
	}
}

func TestLaneErrorFailsStepAndBlocksFurtherSteps(t *testing.T) {
	boom := errors.New("boom")
	bad := newStubNode("bad")
	bad.onAdv = func(float64, float64) error { return boom }
	good := newStubNode("good")

	s := newTestScheduler(t, Config{Lanes: 2})
	if err := s.Initialize(context.Background(), flatten.Work{Nodes: []model.Node{good, bad}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	err := s.Step(0, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected lane error, got: %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("unexpected state: got=%s want=%s", s.State(), StateFailed)
	}
	if err := s.Step(1, 2); !errors.Is(err, ErrFailed) {
		t.Fatalf("expected ErrFailed, got: %v", err)
	}
	s.Kill()
	if s.State() != StateKilled {
		t.Fatalf("unexpected state after kill: %s", s.State())
	}
}

func TestKillIsIdempotentAndStopsSteps(t *testing.T) {
	n := newStubNode("n")
	s := newTestScheduler(t, Config{Lanes: 2})
	if err := s.Initialize(context.Background(), flatten.Work{Nodes: []model.Node{n}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := s.Step(0, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	s.Kill()
	s.Kill()
	if err := s.Step(1, 2); !errors.Is(err, ErrKilled) {
		t.Fatalf("expected ErrKilled, got: %v", err)
	}
	if got := n.count(); got != 1 {
		t.Fatalf("node advanced after kill: got=%d want=1", got)
	}
}

func TestKillWakesBlockedStep(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	slow := newStubNode("slow")
	slow.onAdv = func(float64, float64) error {
		close(started)
		<-release
		return nil
	}

	s := newTestScheduler(t, Config{Lanes: 1})
	if err := s.Initialize(context.Background(), flatten.Work{Nodes: []model.Node{slow}}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Step(0, 1) }()
	<-started

	killed := make(chan struct{})
	go func() { s.Kill(); close(killed) }()
	if err := <-errCh; !errors.Is(err, ErrKilled) {
		t.Fatalf("expected ErrKilled from interrupted step, got: %v", err)
	}
	close(release)
	<-killed
}

func TestTimings(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		s := newTestScheduler(t, Config{Lanes: 2, CollectTimings: enabled})
		if err := s.Initialize(context.Background(), flatten.Work{Nodes: []model.Node{newStubNode("a")}}); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		for i := 0; i < 3; i++ {
			if err := s.Step(float64(i), float64(i+1)); err != nil {
				t.Fatalf("step: %v", err)
			}
		}
		got := s.Timings()
		want := 0
		if enabled {
			want = 3
		}
		if got.Enabled != enabled || got.Steps != want {
			t.Fatalf("unexpected timings: got=%+v want steps=%d enabled=%v", got, want, enabled)
		}
		if enabled && got.ApproxRun() != got.Average*3 {
			t.Fatalf("unexpected approx run: %v", got.ApproxRun())
		}
	}
}

func TestObserveKeepsRunningAverage(t *testing.T) {
	s := &Scheduler{}
	s.observe(10 * time.Millisecond)
	s.observe(20 * time.Millisecond)
	s.observe(30 * time.Millisecond)
	if got := s.timing.Average; got < 19*time.Millisecond || got > 21*time.Millisecond {
		t.Fatalf("unexpected average: got=%v want=20ms", got)
	}
	if s.timing.Last != 30*time.Millisecond || s.timing.Steps != 3 {
		t.Fatalf("unexpected timing: %+v", s.timing)
	}
}

type recordingAccelerator struct {
	mu       sync.Mutex
	claim    string
	offered  []model.Node
	phases   []Phase
	shutdown int
	nodes    []model.Node
	cheat    model.Node
}

func (a *recordingAccelerator) Name() string { return "fake-accel" }

func (a *recordingAccelerator) Claim(nodes []model.Node, conns []*model.Projection) ([]model.Node, []*model.Projection) {
	a.offered = nodes
	if a.cheat != nil {
		return []model.Node{a.cheat}, nil
	}
	for _, n := range nodes {
		if n.Name() == a.claim {
			a.nodes = append(a.nodes, n)
		}
	}
	return a.nodes, nil
}

func (a *recordingAccelerator) Initialize(context.Context) error { return nil }

func (a *recordingAccelerator) RunPhase(_ context.Context, phase Phase, start, end float64) error {
	a.mu.Lock()
	a.phases = append(a.phases, phase)
	a.mu.Unlock()
	if phase == PhaseNodes {
		for _, n := range a.nodes {
			if err := n.Advance(start, end); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *recordingAccelerator) Shutdown() {
	a.mu.Lock()
	a.shutdown++
	a.mu.Unlock()
}

func TestAcceleratorClaimRemovesWorkFromCPULanes(t *testing.T) {
	claimed := newStubNode("gpu")
	array := model.NewNetworkArray("array")
	members := []*stubNode{newStubNode("m0"), newStubNode("m1")}
	for _, m := range members {
		_ = array.AddNode(m)
	}
	cpu := newStubNode("cpu")

	acc := &recordingAccelerator{claim: "gpu"}
	s := newTestScheduler(t, Config{Lanes: 2, Accelerator: acc})
	work := flatten.Work{Nodes: []model.Node{claimed, array, cpu}}
	if err := s.Initialize(context.Background(), work); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(acc.offered) != 3 {
		t.Fatalf("accelerator must be offered arrays whole, got %d nodes", len(acc.offered))
	}
	lanes := s.LaneNames()
	if len(lanes) != 3 || lanes[2] != "fake-accel" {
		t.Fatalf("unexpected lanes: %v", lanes)
	}
	total := 0
	for _, a := range s.Assignments() {
		total += a.Nodes.Len()
	}
	if total != 3 {
		t.Fatalf("cpu lanes should run the cpu node and both array members, got %d nodes", total)
	}

	for i := 0; i < 2; i++ {
		if err := s.Step(float64(i), float64(i+1)); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	for _, n := range []*stubNode{claimed, cpu, members[0], members[1]} {
		if got := n.count(); got != 2 {
			t.Fatalf("node %s advanced %d times, want 2", n.Name(), got)
		}
	}
	want := []Phase{PhaseConnections, PhaseNodes, PhaseTasks, PhaseConnections, PhaseNodes, PhaseTasks}
	if len(acc.phases) != len(want) {
		t.Fatalf("unexpected accelerator phases: %v", acc.phases)
	}
	for i := range want {
		if acc.phases[i] != want[i] {
			t.Fatalf("unexpected accelerator phases: %v", acc.phases)
		}
	}
	s.Kill()
	if acc.shutdown != 1 {
		t.Fatalf("accelerator shutdown count: got=%d want=1", acc.shutdown)
	}
}

func TestAcceleratorInvalidClaim(t *testing.T) {
	acc := &recordingAccelerator{cheat: newStubNode("stranger")}
	s := newTestScheduler(t, Config{Lanes: 1, Accelerator: acc})
	err := s.Initialize(context.Background(), flatten.Work{Nodes: []model.Node{newStubNode("a")}})
	if !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim, got: %v", err)
	}
}
