// Package accel provides an in-process accelerator lane. It claims eligible
// nodes, and the connections between them, and runs them on a dedicated
// goroutine that owns them for the life of the run.
package accel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"nefsim/internal/flatten"
	"nefsim/internal/logging"
	"nefsim/internal/model"
	"nefsim/internal/schedule"
)

var ErrNotStarted = errors.New("accelerator not started")

// Eligible is implemented by nodes that may run on an accelerator.
type Eligible interface {
	AcceleratorEligible() bool
}

type request struct {
	phase     schedule.Phase
	startTime float64
	endTime   float64
	reply     chan error
}

type Device struct {
	name   string
	logger *slog.Logger

	mu          sync.Mutex
	nodes       []model.Node
	connections []*model.Projection
	requests    chan request
	stop        chan struct{}
	stopOnce    sync.Once
	phases      int
}

func New(name string, logger *slog.Logger) *Device {
	return &Device{name: name, logger: logging.OrDefault(logger)}
}

func (d *Device) Name() string { return d.name }

// Claim accepts every eligible node and every connection whose two ends
// both belong to accepted nodes. An array whose members are all eligible is
// accepted whole and advanced as one node; its internal projections are
// accepted but left to the array, which propagates them when it advances.
func (d *Device) Claim(nodes []model.Node, connections []*model.Projection) ([]model.Node, []*model.Projection) {
	d.mu.Lock()
	defer d.mu.Unlock()

	owned := make(map[model.Node]bool)
	internal := make(map[*model.Projection]bool)
	d.nodes = d.nodes[:0]
	for _, n := range nodes {
		if !eligible(n) {
			continue
		}
		d.nodes = append(d.nodes, n)
		owned[n] = true
		if c, ok := n.(model.Container); ok {
			for _, member := range flatten.Nodes(c.Nodes(), flatten.Options{ExpandArrays: true}) {
				owned[member] = true
			}
			for _, p := range flatten.Connections(c.Nodes(), c.Projections()) {
				internal[p] = true
			}
		}
	}
	var accepted []*model.Projection
	d.connections = d.connections[:0]
	for _, p := range connections {
		if !owned[p.Origin().Node()] || !owned[p.Termination().Node()] {
			continue
		}
		accepted = append(accepted, p)
		if !internal[p] {
			d.connections = append(d.connections, p)
		}
	}
	return append([]model.Node(nil), d.nodes...), accepted
}

func eligible(n model.Node) bool {
	if e, ok := n.(Eligible); ok {
		return e.AcceleratorEligible()
	}
	c, ok := n.(model.Container)
	if !ok || c.ContainerKind() != model.KindArray {
		return false
	}
	members := c.Nodes()
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if !eligible(m) {
			return false
		}
	}
	return true
}

// Initialize starts the device goroutine.
func (d *Device) Initialize(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.requests != nil {
		return fmt.Errorf("accelerator %s already started", d.name)
	}
	d.requests = make(chan request)
	d.stop = make(chan struct{})
	go d.loop(d.requests, d.stop)
	d.logger.Debug("accelerator started", "accelerator", d.name, "nodes", len(d.nodes), "connections", len(d.connections))
	return nil
}

func (d *Device) loop(requests <-chan request, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case req := <-requests:
			req.reply <- d.execute(req)
		}
	}
}

func (d *Device) execute(req request) error {
	d.mu.Lock()
	d.phases++
	nodes, connections := d.nodes, d.connections
	d.mu.Unlock()

	switch req.phase {
	case schedule.PhaseConnections:
		for _, p := range connections {
			if err := p.Propagate(); err != nil {
				return fmt.Errorf("accelerator %s: %w", d.name, err)
			}
		}
	case schedule.PhaseNodes:
		for _, n := range nodes {
			if err := n.Advance(req.startTime, req.endTime); err != nil {
				return fmt.Errorf("accelerator %s node %s: %w", d.name, n.Name(), err)
			}
		}
	}
	return nil
}

// RunPhase forwards the phase to the device goroutine and waits for it.
func (d *Device) RunPhase(ctx context.Context, phase schedule.Phase, startTime, endTime float64) error {
	d.mu.Lock()
	requests, stop := d.requests, d.stop
	d.mu.Unlock()
	if requests == nil {
		return ErrNotStarted
	}

	req := request{phase: phase, startTime: startTime, endTime: endTime, reply: make(chan error, 1)}
	select {
	case requests <- req:
	case <-stop:
		return ErrNotStarted
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Phases returns how many phases the device has executed.
func (d *Device) Phases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phases
}

func (d *Device) Shutdown() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		stop := d.stop
		d.mu.Unlock()
		if stop != nil {
			close(stop)
		}
		d.logger.Debug("accelerator stopped", "accelerator", d.name)
	})
}

var _ schedule.Accelerator = (*Device)(nil)
