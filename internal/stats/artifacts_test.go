package stats

import (
	"os"
	"path/filepath"
	"testing"

	"nefsim/internal/model"
)

func TestWriteRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()

	series := model.ProbeSeries{
		RunID:   "run-123",
		ProbeID: "p1",
		Target:  "A",
		Member:  -1,
		State:   "X",
		Times:   []float64{0.001, 0.002, 0.003},
		Values:  [][]float64{{0.1, 1}, {0.2, 2}, {0.3, 3}},
	}
	artifacts := RunArtifacts{
		Run:           model.RunRecord{ID: "run-123", Scenario: "communication-channel", Steps: 3},
		Probes:        []model.ProbeSeries{series},
		DecoderErrors: []model.DecoderErrorReport{{RunID: "run-123", Node: "A", Origin: "X", MSE: []float64{0.01, 0.02}}},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	for _, file := range []string{"run.json", "probes.json", "decoder_errors.json", "probe_summary.json", "probe_p1.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	run, ok, err := ReadRun(baseDir, "run-123")
	if err != nil || !ok {
		t.Fatalf("read run: ok=%v err=%v", ok, err)
	}
	if run.Scenario != "communication-channel" || run.Steps != 3 {
		t.Fatalf("unexpected run: %+v", run)
	}

	times, values, err := ReadProbeCSV(filepath.Join(runDir, "probe_p1.csv"))
	if err != nil {
		t.Fatalf("read probe csv: %v", err)
	}
	if len(times) != 3 || times[2] != 0.003 {
		t.Fatalf("unexpected times: %v", times)
	}
	if len(values) != 3 || values[1][1] != 2 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestReadRunMissing(t *testing.T) {
	_, ok, err := ReadRun(t.TempDir(), "nope")
	if err != nil || ok {
		t.Fatalf("missing run: ok=%v err=%v", ok, err)
	}
}
