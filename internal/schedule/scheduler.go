// Package schedule runs a flattened network across a fixed set of lanes.
// Every step is split into three phases (propagate connections, advance
// nodes, run tasks) and every lane finishes a phase before any lane starts
// the next one.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nefsim/internal/flatten"
	"nefsim/internal/logging"
)

var (
	ErrNotInitialized     = errors.New("scheduler not initialized")
	ErrAlreadyInitialized = errors.New("scheduler already initialized")
	ErrKilled             = errors.New("scheduler killed")
	ErrFailed             = errors.New("scheduler failed; only kill is allowed")
	ErrStepInProgress     = errors.New("step already in progress")
	ErrInvalidClaim       = errors.New("accelerator claimed work it was not offered")
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateRunning
	StateFailed
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	// Lanes is the number of CPU lanes. It is fixed for the scheduler's
	// lifetime.
	Lanes          int
	CollectTimings bool
	Accelerator    Accelerator
	Logger         *slog.Logger
}

// Timing summarizes wall-clock step durations.
type Timing struct {
	Enabled bool
	Steps   int
	Average time.Duration
	Last    time.Duration
}

// ApproxRun is the average step duration times the number of steps.
func (t Timing) ApproxRun() time.Duration {
	return t.Average * time.Duration(t.Steps)
}

type command struct {
	phase     Phase
	startTime float64
	endTime   float64
}

type completion struct {
	lane int
	err  error
}

type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	lanes       []Lane
	commands    []chan command
	done        chan completion
	assignments []Assignment
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	killOnce    sync.Once

	avgSeconds float64
	timing     Timing
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Lanes < 1 {
		return nil, fmt.Errorf("lane count must be >= 1, got %d", cfg.Lanes)
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger),
		timing: Timing{Enabled: cfg.CollectTimings},
	}, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Assignments returns the CPU lane partitions.
func (s *Scheduler) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Assignment(nil), s.assignments...)
}

// LaneNames returns every lane, CPU lanes first.
func (s *Scheduler) LaneNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lanes))
	for i, l := range s.lanes {
		out[i] = l.Name()
	}
	return out
}

// Initialize hands the accelerator its claim, partitions the rest across the
// CPU lanes and starts one goroutine per lane. Lanes stop when ctx is done
// or Kill is called.
func (s *Scheduler) Initialize(ctx context.Context, work flatten.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	nodes, connections := work.Nodes, work.Connections
	var lanes []Lane
	if acc := s.cfg.Accelerator; acc != nil {
		claimedNodes, claimedConnections := acc.Claim(nodes, connections)
		remainingNodes, err := without(nodes, claimedNodes)
		if err != nil {
			return fmt.Errorf("%w: nodes: %w", ErrInvalidClaim, err)
		}
		remainingConnections, err := without(connections, claimedConnections)
		if err != nil {
			return fmt.Errorf("%w: connections: %w", ErrInvalidClaim, err)
		}
		if err := acc.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize accelerator %s: %w", acc.Name(), err)
		}
		nodes = flatten.Nodes(remainingNodes, flatten.Options{ExpandArrays: true})
		connections = remainingConnections
		s.logger.Info("accelerator claimed work", "accelerator", acc.Name(), "nodes", len(claimedNodes), "connections", len(claimedConnections))
	}

	connRanges := Partition(len(connections), s.cfg.Lanes)
	nodeRanges := Partition(len(nodes), s.cfg.Lanes)
	taskRanges := Partition(len(work.Tasks), s.cfg.Lanes)
	s.assignments = make([]Assignment, s.cfg.Lanes)
	for i := 0; i < s.cfg.Lanes; i++ {
		name := fmt.Sprintf("cpu-%d", i)
		s.assignments[i] = Assignment{Lane: name, Connections: connRanges[i], Nodes: nodeRanges[i], Tasks: taskRanges[i]}
		lanes = append(lanes, NewCPULane(name,
			connections[connRanges[i].Start:connRanges[i].End],
			nodes[nodeRanges[i].Start:nodeRanges[i].End],
			work.Tasks[taskRanges[i].Start:taskRanges[i].End],
		))
	}
	if s.cfg.Accelerator != nil {
		lanes = append(lanes, s.cfg.Accelerator)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lanes = lanes
	s.commands = make([]chan command, len(lanes))
	s.done = make(chan completion, len(lanes))
	s.wg.Add(len(lanes))
	for i, lane := range lanes {
		s.commands[i] = make(chan command)
		go s.runLane(i, lane, s.commands[i])
	}
	s.state = StateReady
	s.logger.Debug("scheduler initialized", "lanes", len(lanes), "nodes", len(nodes), "connections", len(connections), "tasks", len(work.Tasks))
	return nil
}

func (s *Scheduler) runLane(idx int, lane Lane, commands <-chan command) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-commands:
			err := lane.RunPhase(s.ctx, cmd.phase, cmd.startTime, cmd.endTime)
			if s.ctx.Err() != nil {
				return
			}
			s.done <- completion{lane: idx, err: err}
		}
	}
}

// Step runs the three phases over [startTime, endTime]. A lane error fails
// the step and leaves the scheduler in StateFailed.
func (s *Scheduler) Step(startTime, endTime float64) error {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
		s.mu.Unlock()
		return ErrNotInitialized
	case StateKilled:
		s.mu.Unlock()
		return ErrKilled
	case StateFailed:
		s.mu.Unlock()
		return ErrFailed
	case StateRunning:
		s.mu.Unlock()
		return ErrStepInProgress
	}
	s.state = StateRunning
	ctx := s.ctx
	s.mu.Unlock()

	var began time.Time
	if s.cfg.CollectTimings {
		began = time.Now()
	}

	for _, phase := range Phases {
		if err := s.runPhase(ctx, phase, startTime, endTime); err != nil {
			s.mu.Lock()
			if s.state == StateRunning {
				s.state = StateFailed
			}
			s.mu.Unlock()
			if errors.Is(err, ErrKilled) {
				return err
			}
			return fmt.Errorf("step [%g, %g] %s phase: %w", startTime, endTime, phase, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StateReady
	}
	if s.cfg.CollectTimings {
		s.observe(time.Since(began))
	}
	return nil
}

// runPhase releases every lane into phase and waits for all of them.
func (s *Scheduler) runPhase(ctx context.Context, phase Phase, startTime, endTime float64) error {
	cmd := command{phase: phase, startTime: startTime, endTime: endTime}
	for _, ch := range s.commands {
		select {
		case ch <- cmd:
		case <-ctx.Done():
			return ErrKilled
		}
	}
	var first error
	for range s.commands {
		select {
		case c := <-s.done:
			if c.err != nil && first == nil {
				first = c.err
			}
		case <-ctx.Done():
			return ErrKilled
		}
	}
	return first
}

// observe folds d into the running average. Callers hold s.mu.
func (s *Scheduler) observe(d time.Duration) {
	n := float64(s.timing.Steps)
	s.avgSeconds = (s.avgSeconds*n + d.Seconds()) / (n + 1)
	s.timing.Steps++
	s.timing.Last = d
	s.timing.Average = time.Duration(s.avgSeconds * float64(time.Second))
}

func (s *Scheduler) Timings() Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timing
}

// Kill stops every lane and waits for them to exit. It is safe to call
// more than once and from any goroutine, including while Step is blocked.
func (s *Scheduler) Kill() {
	s.killOnce.Do(func() {
		s.mu.Lock()
		initialized := s.state != StateUninitialized
		s.state = StateKilled
		cancel := s.cancel
		lanes := s.lanes
		s.mu.Unlock()

		if !initialized {
			return
		}
		cancel()
		s.wg.Wait()
		for _, lane := range lanes {
			lane.Shutdown()
		}
		if t := s.Timings(); t.Enabled && t.Steps > 0 {
			s.logger.Info("scheduler timings", "steps", t.Steps, "avg_step", t.Average, "approx_run", t.ApproxRun())
		}
		s.logger.Debug("scheduler killed")
	})
}

// without returns all minus claimed, matching by identity. Every claimed
// item must be present in all.
func without[T comparable](all, claimed []T) ([]T, error) {
	offered := make(map[T]int, len(all))
	for _, item := range all {
		offered[item]++
	}
	taken := make(map[T]int, len(claimed))
	for _, item := range claimed {
		if taken[item] >= offered[item] {
			return nil, errors.New("claimed an item that was not offered or claimed it twice")
		}
		taken[item]++
	}
	out := make([]T, 0, len(all)-len(claimed))
	for _, item := range all {
		if taken[item] > 0 {
			taken[item]--
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

var _ Lane = (*CPULane)(nil)
