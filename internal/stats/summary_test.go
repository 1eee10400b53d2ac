package stats

import (
	"math"
	"testing"

	"nefsim/internal/model"
)

func TestSummarize(t *testing.T) {
	summary := Summarize(model.ProbeSeries{
		ProbeID: "p",
		Values:  [][]float64{{1, -1}, {2, -2}, {3}},
	})
	if summary.Samples != 3 {
		t.Fatalf("samples: got=%d want=3", summary.Samples)
	}
	if len(summary.Dimensions) != 2 {
		t.Fatalf("dimensions: got=%d want=2", len(summary.Dimensions))
	}

	first := summary.Dimensions[0]
	if first.Mean != 2 || first.Min != 1 || first.Max != 3 || first.Final != 3 {
		t.Fatalf("unexpected first dimension: %+v", first)
	}
	if want := math.Sqrt(2.0 / 3.0); math.Abs(first.Std-want) > 1e-12 {
		t.Fatalf("std: got=%v want=%v", first.Std, want)
	}

	second := summary.Dimensions[1]
	if second.Mean != -1.5 || second.Final != -2 {
		t.Fatalf("unexpected second dimension: %+v", second)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(model.ProbeSeries{ProbeID: "p"})
	if summary.Samples != 0 || len(summary.Dimensions) != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
