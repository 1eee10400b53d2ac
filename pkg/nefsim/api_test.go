package nefsim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nefsim/internal/config"
	"nefsim/internal/logging"
	"nefsim/internal/model"
	"nefsim/internal/scenario"
	"nefsim/internal/sim"
	"nefsim/internal/stats"
	"nefsim/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:  "memory",
		ExportsDir: filepath.Join(t.TempDir(), "exports"),
		Logger:     logging.Nop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientRunPersistsArtifacts(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	var events []sim.EventType
	summary, err := client.Run(ctx, RunRequest{
		Scenario:       "communication-channel",
		EndTime:        0.05,
		StepSize:       0.001,
		Seed:           7,
		Neurons:        20,
		Lanes:          2,
		CollectTimings: true,
		Listener: sim.ListenerFunc(func(e sim.Event) {
			events = append(events, e.Type)
		}),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if summary.Run.Steps != 50 {
		t.Fatalf("steps: got=%d want=50", summary.Run.Steps)
	}
	if len(events) != 52 || events[0] != sim.EventStarted || events[len(events)-1] != sim.EventFinished {
		t.Fatalf("unexpected event sequence length=%d first=%v last=%v", len(events), events[0], events[len(events)-1])
	}
	if !summary.Run.Timing.Enabled || summary.Run.Timing.Steps != 50 {
		t.Fatalf("unexpected timing: %+v", summary.Run.Timing)
	}
	if summary.Run.Nodes == 0 || summary.Run.Connections == 0 {
		t.Fatalf("expected flattened work counts: %+v", summary.Run)
	}
	if len(summary.Probes) == 0 {
		t.Fatal("expected scenario probes")
	}
	for _, series := range summary.Probes {
		if series.RunID != summary.RunID {
			t.Fatalf("probe run id: got=%s want=%s", series.RunID, summary.RunID)
		}
		if len(series.Times) != 50 {
			t.Fatalf("probe samples: got=%d want=50", len(series.Times))
		}
	}
	if len(summary.DecoderErrors) == 0 {
		t.Fatal("expected decoder error reports")
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID {
		t.Fatalf("expected run %s in runs list: %+v", summary.RunID, runs)
	}

	probes, err := client.Probes(ctx, RunRef{Latest: true})
	if err != nil {
		t.Fatalf("probes: %v", err)
	}
	if len(probes) != len(summary.Probes) {
		t.Fatalf("probes: got=%d want=%d", len(probes), len(summary.Probes))
	}

	reports, err := client.DecoderErrors(ctx, RunRef{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("decoder errors: %v", err)
	}
	if len(reports) != len(summary.DecoderErrors) {
		t.Fatalf("decoder errors: got=%d want=%d", len(reports), len(summary.DecoderErrors))
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("export run id: got=%s want=%s", exported.RunID, summary.RunID)
	}
	for _, file := range []string{"run.json", "probes.json", "decoder_errors.json", stats.ProbeCSVName(summary.Probes[0])} {
		if _, err := os.Stat(filepath.Join(exported.Directory, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestClientRunSerialAndParallelAgree(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	run := func(lanes int) []float64 {
		summary, err := client.Run(ctx, RunRequest{
			Scenario: "squaring",
			EndTime:  0.02,
			StepSize: 0.001,
			Seed:     3,
			Neurons:  10,
			Lanes:    lanes,
			Probes:   []ProbeRequest{{Node: "B", State: "X"}},
		})
		if err != nil {
			t.Fatalf("run lanes=%d: %v", lanes, err)
		}
		values := summary.Probes[0].Values
		return values[len(values)-1]
	}

	serial := run(0)
	parallel := run(3)
	if len(serial) != len(parallel) {
		t.Fatalf("dimension mismatch: serial=%v parallel=%v", serial, parallel)
	}
	for i := range serial {
		if serial[i] != parallel[i] {
			t.Fatalf("final value %d: serial=%v parallel=%v", i, serial[i], parallel[i])
		}
	}
}

func TestClientRunWithAccelerator(t *testing.T) {
	client := newTestClient(t)
	summary, err := client.Run(context.Background(), RunRequest{
		Scenario:    "array",
		EndTime:     0.01,
		StepSize:    0.001,
		Neurons:     10,
		Lanes:       2,
		Accelerator: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Run.Accelerator != "accel-0" {
		t.Fatalf("accelerator: got=%q want=accel-0", summary.Run.Accelerator)
	}
	if summary.Run.Steps != 10 {
		t.Fatalf("steps: got=%d want=10", summary.Run.Steps)
	}
}

func TestClientRunNeuronProbe(t *testing.T) {
	client := newTestClient(t)
	member := 0
	summary, err := client.Run(context.Background(), RunRequest{
		Scenario: "communication-channel",
		EndTime:  0.005,
		StepSize: 0.001,
		Neurons:  5,
		Lanes:    1,
		Mode:     "rate",
		Probes:   []ProbeRequest{{Node: "A", State: "rate", Member: &member}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.Probes) != 1 || summary.Probes[0].Member != 0 {
		t.Fatalf("unexpected probes: %+v", summary.Probes)
	}
}

func TestClientRunValidation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, RunRequest{Scenario: "missing"}); !errors.Is(err, scenario.ErrScenarioNotFound) {
		t.Fatalf("expected scenario not found, got %v", err)
	}
	if _, err := client.Run(ctx, RunRequest{Mode: "bogus"}); err == nil {
		t.Fatal("expected mode error")
	}
	if _, err := client.Run(ctx, RunRequest{EndTime: 0.01, Probes: []ProbeRequest{{Node: "nope", State: "X"}}}); !errors.Is(err, sim.ErrNodeNotFound) {
		t.Fatalf("expected node not found, got %v", err)
	}
}

func TestClientRunRefValidation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Probes(ctx, RunRef{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if _, err := client.Probes(ctx, RunRef{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected conflicting selector error")
	}
	if _, err := client.DecoderErrors(ctx, RunRef{Latest: true}); err == nil {
		t.Fatal("expected no runs error")
	}
	if _, err := client.Probes(ctx, RunRef{RunID: "unknown"}); err == nil {
		t.Fatal("expected unknown run error")
	}
}

func TestRequestFromConfig(t *testing.T) {
	cfg := config.Default()
	member := 2
	cfg.Run.Probes = []config.ProbeConfig{{Node: "A", State: "rate", Member: &member}}
	cfg.Scheduler.Accelerator.Enabled = true

	req := RequestFromConfig(cfg)
	if req.Scenario != cfg.Run.Scenario || req.Lanes != cfg.Scheduler.Lanes {
		t.Fatalf("unexpected request: %+v", req)
	}
	if !req.Accelerator || req.AcceleratorID != "accel-0" {
		t.Fatalf("unexpected accelerator: %+v", req)
	}
	if len(req.Probes) != 1 || *req.Probes[0].Member != 2 {
		t.Fatalf("unexpected probes: %+v", req.Probes)
	}
}

func TestClientLatestRunWithinSameSecond(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	if err := client.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	for _, run := range []model.RunRecord{
		{VersionedRecord: storage.Versioned(), ID: "z-older", CreatedAtUTC: storage.Timestamp(base.Add(100 * time.Millisecond))},
		{VersionedRecord: storage.Versioned(), ID: "a-newer", CreatedAtUTC: storage.Timestamp(base.Add(120 * time.Millisecond))},
	} {
		if err := client.store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
		if err := client.store.SaveProbeSeries(ctx, run.ID, []model.ProbeSeries{{RunID: run.ID}}); err != nil {
			t.Fatalf("save probes: %v", err)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a-newer" {
		t.Fatalf("newest run: got=%+v want=a-newer first", runs)
	}

	probes, err := client.Probes(ctx, RunRef{Latest: true})
	if err != nil {
		t.Fatalf("probes: %v", err)
	}
	if len(probes) != 1 || probes[0].RunID != "a-newer" {
		t.Fatalf("latest run probes: got=%+v want run a-newer", probes)
	}
}
