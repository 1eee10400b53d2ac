// Package sim owns the step loop of a simulation: it flattens a network,
// hands the flattened work to the scheduler (or runs it serially), collects
// probes and notifies listeners.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"nefsim/internal/flatten"
	"nefsim/internal/logging"
	"nefsim/internal/model"
	"nefsim/internal/schedule"
)

var (
	ErrNotInitialized = errors.New("simulator not initialized")
	ErrClosed         = errors.New("simulator closed")
	ErrNodeNotFound   = fmt.Errorf("%w: node", model.ErrNotFound)
	ErrProbeNotFound  = fmt.Errorf("%w: probe", model.ErrNotFound)
	ErrNotProbeable   = errors.New("target does not expose probeable state")
	ErrNotEnsemble    = errors.New("target is not an ensemble")
)

type Config struct {
	// Lanes is the number of scheduler lanes. Zero runs every phase serially
	// on the calling goroutine.
	Lanes          int
	CollectTimings bool
	Accelerator    schedule.Accelerator
	Logger         *slog.Logger
}

type Simulator struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	network    model.Container
	work       flatten.Work
	byName     map[string]model.Node
	scheduler  *schedule.Scheduler
	serial     *schedule.CPULane
	probes     map[string]*Probe
	probeOrder []string
	listeners  []registeredListener
	closed     bool

	nextListener int
}

type registeredListener struct {
	id       int
	listener Listener
}

func New(cfg Config) *Simulator {
	return &Simulator{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger),
		probes: make(map[string]*Probe),
	}
}

// Initialize flattens net and prepares the execution lanes. Arrays are kept
// whole when an accelerator is configured so it can claim them; the
// scheduler breaks down whatever it leaves.
func (s *Simulator) Initialize(ctx context.Context, net model.Container) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.network != nil {
		return fmt.Errorf("simulator already initialized with network %s", s.network.Name())
	}

	work := flatten.Flatten(net, flatten.Options{ExpandArrays: s.cfg.Accelerator == nil})
	// Names resolve across nested networks and arrays, so they must be
	// unique there. Nodes inside opaque containers are not addressable.
	byName := make(map[string]model.Node)
	for _, n := range append(net.Nodes(), flatten.Nodes(net.Nodes(), flatten.Options{ExpandArrays: true})...) {
		if existing, exists := byName[n.Name()]; exists && existing != n {
			return fmt.Errorf("%w: %w: node %s appears in more than one sub-network", model.ErrStructural, model.ErrDuplicateName, n.Name())
		}
		byName[n.Name()] = n
	}

	if s.cfg.Lanes > 0 {
		scheduler, err := schedule.New(schedule.Config{
			Lanes:          s.cfg.Lanes,
			CollectTimings: s.cfg.CollectTimings,
			Accelerator:    s.cfg.Accelerator,
			Logger:         s.logger,
		})
		if err != nil {
			return err
		}
		if err := scheduler.Initialize(ctx, work); err != nil {
			scheduler.Kill()
			return err
		}
		s.scheduler = scheduler
	} else {
		if s.cfg.Accelerator != nil {
			return fmt.Errorf("an accelerator needs at least one scheduler lane")
		}
		s.serial = schedule.NewCPULane("serial", work.Connections, work.Nodes, work.Tasks)
	}

	s.network = net
	s.work = work
	s.byName = byName
	s.logger.Info("simulator initialized",
		"network", net.Name(),
		"nodes", len(work.Nodes),
		"connections", len(work.Connections),
		"tasks", len(work.Tasks),
		"lanes", s.cfg.Lanes,
	)
	return nil
}

// Work returns the flattened work the simulator runs.
func (s *Simulator) Work() flatten.Work {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.work
}

// Timings returns the scheduler timings; zero when running serially.
func (s *Simulator) Timings() schedule.Timing {
	s.mu.Lock()
	scheduler := s.scheduler
	s.mu.Unlock()
	if scheduler == nil {
		return schedule.Timing{}
	}
	return scheduler.Timings()
}

// Run steps from startTime to endTime. The loop stops when the remaining
// time is below a ten-thousandth of a step, absorbing accumulated rounding.
// A failed step ends the run without a FINISHED event.
func (s *Simulator) Run(ctx context.Context, startTime, endTime, stepSize float64) error {
	if stepSize <= 0 {
		return fmt.Errorf("step size must be > 0, got %g", stepSize)
	}
	if endTime < startTime {
		return fmt.Errorf("end time %g is before start time %g", endTime, startTime)
	}

	s.fire(Event{Type: EventStarted, Time: startTime})
	t := startTime
	for t < endTime-stepSize/10000 {
		if err := ctx.Err(); err != nil {
			return err
		}
		progress := (t - startTime) / (endTime - startTime)
		if err := s.Step(t, t+stepSize); err != nil {
			return err
		}
		s.fire(Event{Type: EventStepTaken, Progress: progress, Time: t + stepSize})
		t += stepSize
	}
	s.fire(Event{Type: EventFinished, Progress: 1, Time: t})
	return nil
}

// Step propagates connections, advances nodes, runs tasks and then collects
// every probe at endTime.
func (s *Simulator) Step(startTime, endTime float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.network == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	scheduler, serial := s.scheduler, s.serial
	s.mu.Unlock()

	if scheduler != nil {
		if err := scheduler.Step(startTime, endTime); err != nil {
			return err
		}
	} else {
		for _, phase := range schedule.Phases {
			if err := serial.RunPhase(context.Background(), phase, startTime, endTime); err != nil {
				return fmt.Errorf("step [%g, %g] %s phase: %w", startTime, endTime, phase, err)
			}
		}
	}

	for _, p := range s.Probes() {
		if err := p.Collect(endTime); err != nil {
			return err
		}
	}
	s.logger.Log(context.Background(), logging.LevelTrace, "step taken", "start", startTime, "end", endTime)
	return nil
}

// ResetNetwork resets every node and clears probe samples.
func (s *Simulator) ResetNetwork(randomize bool) error {
	s.mu.Lock()
	net := s.network
	s.mu.Unlock()
	if net == nil {
		return ErrNotInitialized
	}
	net.Reset(randomize)
	for _, p := range s.Probes() {
		p.reset()
	}
	return nil
}

// SetMode switches every mode-configurable node.
func (s *Simulator) SetMode(mode model.SimulationMode) error {
	s.mu.Lock()
	net := s.network
	s.mu.Unlock()
	if net == nil {
		return ErrNotInitialized
	}
	count := 0
	for _, n := range flatten.Nodes(net.Nodes(), flatten.Options{ExpandArrays: true}) {
		if mc, ok := n.(model.ModeConfigurable); ok {
			mc.SetMode(mode)
			count++
		}
	}
	s.logger.Debug("simulation mode set", "mode", mode, "nodes", count)
	return nil
}

// Node resolves a node by name.
func (s *Simulator) Node(name string) (model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network == nil {
		return nil, ErrNotInitialized
	}
	n, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return n, nil
}

// Nodes returns every addressable node name, sorted.
func (s *Simulator) Nodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// AddProbe attaches a probe to a state of the named node.
func (s *Simulator) AddProbe(nodeName, state string, record bool) (*Probe, error) {
	n, err := s.Node(nodeName)
	if err != nil {
		return nil, err
	}
	return s.attach(n, nodeName, -1, state, record)
}

// AddNeuronProbe attaches a probe to a state of one member of the named
// ensemble.
func (s *Simulator) AddNeuronProbe(ensembleName string, member int, state string, record bool) (*Probe, error) {
	n, err := s.Node(ensembleName)
	if err != nil {
		return nil, err
	}
	ensemble, ok := n.(model.Ensemble)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEnsemble, ensembleName)
	}
	members := ensemble.Members()
	if member < 0 || member >= len(members) {
		return nil, fmt.Errorf("%w: member %d of %s (%d members)", ErrNodeNotFound, member, ensembleName, len(members))
	}
	return s.attach(members[member], ensembleName, member, state, record)
}

func (s *Simulator) attach(n model.Node, target string, member int, state string, record bool) (*Probe, error) {
	source, ok := n.(model.Probeable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotProbeable, n.Name())
	}
	if !slices.Contains(source.ProbeStates(), state) {
		return nil, fmt.Errorf("%w: %s has no state %q", ErrNotProbeable, n.Name(), state)
	}
	p := &Probe{
		id:     uuid.NewString(),
		target: target,
		member: member,
		state:  state,
		record: record,
		source: source,
	}
	s.mu.Lock()
	s.probes[p.id] = p
	s.probeOrder = append(s.probeOrder, p.id)
	s.mu.Unlock()
	return p, nil
}

// RemoveProbe detaches a probe by id.
func (s *Simulator) RemoveProbe(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.probes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProbeNotFound, id)
	}
	delete(s.probes, id)
	s.probeOrder = slices.DeleteFunc(s.probeOrder, func(other string) bool { return other == id })
	return nil
}

// Probes returns the attached probes in attachment order.
func (s *Simulator) Probes() []*Probe {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Probe, len(s.probeOrder))
	for i, id := range s.probeOrder {
		out[i] = s.probes[id]
	}
	return out
}

// AddListener registers l and returns a function that removes it.
func (s *Simulator) AddListener(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, registeredListener{id: id, listener: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(r registeredListener) bool { return r.id == id })
	}
}

func (s *Simulator) fire(e Event) {
	s.mu.Lock()
	listeners := append([]registeredListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, r := range listeners {
		r.listener.OnEvent(e)
	}
}

// Close stops the scheduler lanes. It is safe to call more than once.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	scheduler := s.scheduler
	s.mu.Unlock()
	if scheduler != nil {
		scheduler.Kill()
	}
}
