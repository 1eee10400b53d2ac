// Package scenario holds the named demo networks the command line can run.
package scenario

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"nefsim/internal/model"
)

var (
	ErrScenarioExists   = errors.New("scenario already registered")
	ErrScenarioNotFound = errors.New("scenario not found")
)

// Options tune how a scenario builds its network. Zero fields take defaults.
type Options struct {
	Seed       int64
	Neurons    int
	Spiking    bool
	Accelerate bool
}

func (o Options) withDefaults() Options {
	if o.Neurons == 0 {
		o.Neurons = 50
	}
	return o
}

// ProbeSpec names a state worth recording.
type ProbeSpec struct {
	Node  string
	State string
}

// Scenario is a built network plus the probes it suggests.
type Scenario struct {
	Name        string
	Description string
	Network     *model.Network
	Probes      []ProbeSpec
}

type Builder func(opts Options) (*Scenario, error)

type registeredScenario struct {
	description string
	build       Builder
}

var scenarioRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredScenario
}{
	m: make(map[string]registeredScenario),
}

func init() {
	initializeBuiltInScenarios()
}

func initializeBuiltInScenarios() {
	mustRegister("communication-channel", "sine input relayed through two ensembles", buildCommunicationChannel)
	mustRegister("squaring", "ensemble decoding the square of a sine input", buildSquaring)
	mustRegister("integrator", "step input integrated by a linear system and represented by an ensemble", buildIntegrator)
	mustRegister("array", "network array of one-dimensional ensembles", buildArray)
	mustRegister("opaque", "opaque sub-network feeding an outer ensemble", buildOpaque)
}

func Register(name, description string, build Builder) error {
	if name == "" {
		return errors.New("scenario name is required")
	}
	if build == nil {
		return errors.New("scenario builder is required")
	}

	scenarioRegistry.mu.Lock()
	defer scenarioRegistry.mu.Unlock()
	if _, exists := scenarioRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrScenarioExists, name)
	}
	scenarioRegistry.m[name] = registeredScenario{description: description, build: build}
	return nil
}

func mustRegister(name, description string, build Builder) {
	if err := Register(name, description, build); err != nil {
		panic(err)
	}
}

// Build resolves name and builds its network.
func Build(name string, opts Options) (*Scenario, error) {
	scenarioRegistry.mu.RLock()
	entry, ok := scenarioRegistry.m[name]
	scenarioRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	sc, err := entry.build(opts.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("build scenario %s: %w", name, err)
	}
	sc.Name = name
	sc.Description = entry.description
	return sc, nil
}

// Describe returns the description of a registered scenario.
func Describe(name string) (string, error) {
	scenarioRegistry.mu.RLock()
	defer scenarioRegistry.mu.RUnlock()
	entry, ok := scenarioRegistry.m[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	return entry.description, nil
}

func List() []string {
	scenarioRegistry.mu.RLock()
	defer scenarioRegistry.mu.RUnlock()
	names := make([]string, 0, len(scenarioRegistry.m))
	for name := range scenarioRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetScenarioRegistryForTests() {
	scenarioRegistry.mu.Lock()
	scenarioRegistry.m = make(map[string]registeredScenario)
	scenarioRegistry.mu.Unlock()
	initializeBuiltInScenarios()
}
