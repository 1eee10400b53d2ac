package scenario

import (
	"fmt"

	"nefsim/internal/dynamics"
	"nefsim/internal/model"
	"nefsim/internal/nef"
)

const inputName = "input"

func ensembleConfig(opts Options, dim int, seedOffset int64) nef.EnsembleConfig {
	return nef.EnsembleConfig{
		Neurons:    opts.Neurons * dim,
		Dimension:  dim,
		Seed:       opts.Seed + seedOffset,
		Spiking:    opts.Spiking,
		Accelerate: opts.Accelerate,
	}
}

type link struct {
	from, origin, to, termination string
}

func connectAll(net *model.Network, links ...link) error {
	for _, l := range links {
		if _, err := net.Connect(l.from, l.origin, l.to, l.termination); err != nil {
			return err
		}
	}
	return nil
}

func addAll(net *model.Network, nodes ...model.Node) error {
	for _, n := range nodes {
		if err := net.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}

func buildCommunicationChannel(opts Options) (*Scenario, error) {
	net := model.NewNetwork("communication-channel")
	in, err := model.NewFunctionInput(inputName, model.Sine(0.8, 1))
	if err != nil {
		return nil, err
	}
	a, err := nef.NewEnsemble("A", ensembleConfig(opts, 1, 0))
	if err != nil {
		return nil, err
	}
	b, err := nef.NewEnsemble("B", ensembleConfig(opts, 1, 1))
	if err != nil {
		return nil, err
	}
	if err := addAll(net, in, a, b); err != nil {
		return nil, err
	}
	if err := connectAll(net,
		link{inputName, model.InputOriginName, "A", nef.InputTerminationName},
		link{"A", nef.IdentityOriginName, "B", nef.InputTerminationName},
	); err != nil {
		return nil, err
	}
	return &Scenario{
		Network: net,
		Probes: []ProbeSpec{
			{Node: inputName, State: model.InputOriginName},
			{Node: "A", State: nef.IdentityOriginName},
			{Node: "B", State: nef.IdentityOriginName},
		},
	}, nil
}

func buildSquaring(opts Options) (*Scenario, error) {
	net := model.NewNetwork("squaring")
	in, err := model.NewFunctionInput(inputName, model.Sine(1, 1))
	if err != nil {
		return nil, err
	}
	a, err := nef.NewEnsemble("A", ensembleConfig(opts, 1, 0))
	if err != nil {
		return nil, err
	}
	if _, err := a.AddFunctionOrigin("square", "square"); err != nil {
		return nil, err
	}
	b, err := nef.NewEnsemble("B", ensembleConfig(opts, 1, 1))
	if err != nil {
		return nil, err
	}
	if err := addAll(net, in, a, b); err != nil {
		return nil, err
	}
	if err := connectAll(net,
		link{inputName, model.InputOriginName, "A", nef.InputTerminationName},
		link{"A", "square", "B", nef.InputTerminationName},
	); err != nil {
		return nil, err
	}
	return &Scenario{
		Network: net,
		Probes: []ProbeSpec{
			{Node: inputName, State: model.InputOriginName},
			{Node: "A", State: "square"},
			{Node: "B", State: nef.IdentityOriginName},
		},
	}, nil
}

func buildIntegrator(opts Options) (*Scenario, error) {
	net := model.NewNetwork("integrator")
	in, err := model.NewFunctionInput(inputName, model.Step(0.2, 0, 1))
	if err != nil {
		return nil, err
	}
	lti, err := dynamics.NewSimpleLTI([]float64{0}, [][]float64{{1}}, [][]float64{{1}}, nil)
	if err != nil {
		return nil, err
	}
	integrator, err := dynamics.NewSystemNode("integrator", lti, dynamics.EulerIntegrator{MaxStep: 0.001})
	if err != nil {
		return nil, err
	}
	cfg := ensembleConfig(opts, 1, 0)
	cfg.Radii = []float64{1.5}
	readout, err := nef.NewEnsemble("readout", cfg)
	if err != nil {
		return nil, err
	}
	if err := addAll(net, in, integrator, readout); err != nil {
		return nil, err
	}
	if err := connectAll(net,
		link{inputName, model.InputOriginName, "integrator", dynamics.SystemInputName},
		link{"integrator", dynamics.SystemOutputName, "readout", nef.InputTerminationName},
	); err != nil {
		return nil, err
	}
	return &Scenario{
		Network: net,
		Probes: []ProbeSpec{
			{Node: "integrator", State: "state"},
			{Node: "readout", State: nef.IdentityOriginName},
		},
	}, nil
}

func buildArray(opts Options) (*Scenario, error) {
	const members = 3
	net := model.NewNetwork("array")
	array := model.NewNetworkArray("array")
	probes := make([]ProbeSpec, 0, members)
	for i := 0; i < members; i++ {
		in, err := model.NewFunctionInput(fmt.Sprintf("%s-%d", inputName, i), model.Sine(0.5, float64(i+1)))
		if err != nil {
			return nil, err
		}
		e, err := nef.NewEnsemble(fmt.Sprintf("array[%d]", i), ensembleConfig(opts, 1, int64(i)))
		if err != nil {
			return nil, err
		}
		if err := net.AddNode(in); err != nil {
			return nil, err
		}
		if err := array.AddNode(e); err != nil {
			return nil, err
		}
		origin, err := in.Origin(model.InputOriginName)
		if err != nil {
			return nil, err
		}
		term, err := e.Termination(nef.InputTerminationName)
		if err != nil {
			return nil, err
		}
		if _, err := net.AddProjection(origin, term); err != nil {
			return nil, err
		}
		probes = append(probes, ProbeSpec{Node: e.Name(), State: nef.IdentityOriginName})
	}
	if err := net.AddNode(array); err != nil {
		return nil, err
	}
	return &Scenario{Network: net, Probes: probes}, nil
}

func buildOpaque(opts Options) (*Scenario, error) {
	net := model.NewNetwork("opaque")
	inner := model.NewOpaqueNetwork("inner")
	in, err := model.NewFunctionInput(inputName, model.Sine(0.7, 2))
	if err != nil {
		return nil, err
	}
	hidden, err := nef.NewEnsemble("hidden", ensembleConfig(opts, 1, 0))
	if err != nil {
		return nil, err
	}
	if err := addAll(inner, in, hidden); err != nil {
		return nil, err
	}
	if err := connectAll(inner, link{inputName, model.InputOriginName, "hidden", nef.InputTerminationName}); err != nil {
		return nil, err
	}
	hiddenX, err := hidden.Origin(nef.IdentityOriginName)
	if err != nil {
		return nil, err
	}
	inner.ExposeOrigin(hiddenX, "out")

	outer, err := nef.NewEnsemble("outer", ensembleConfig(opts, 1, 1))
	if err != nil {
		return nil, err
	}
	if err := addAll(net, inner, outer); err != nil {
		return nil, err
	}
	if err := connectAll(net, link{"inner", "out", "outer", nef.InputTerminationName}); err != nil {
		return nil, err
	}
	return &Scenario{
		Network: net,
		Probes:  []ProbeSpec{{Node: "outer", State: nef.IdentityOriginName}},
	}, nil
}
