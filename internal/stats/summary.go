package stats

import (
	"math"

	"nefsim/internal/model"
)

// DimensionSummary describes one dimension of a probe series.
type DimensionSummary struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Final float64 `json:"final"`
}

type ProbeSummary struct {
	ProbeID    string             `json:"probe_id"`
	Target     string             `json:"target"`
	Member     int                `json:"member"`
	State      string             `json:"state"`
	Samples    int                `json:"samples"`
	Dimensions []DimensionSummary `json:"dimensions"`
}

// Summarize reduces a probe series to per-dimension statistics. Samples
// shorter than the widest sample contribute only the dimensions they carry.
func Summarize(series model.ProbeSeries) ProbeSummary {
	out := ProbeSummary{
		ProbeID: series.ProbeID,
		Target:  series.Target,
		Member:  series.Member,
		State:   series.State,
		Samples: len(series.Values),
	}
	width := 0
	for _, v := range series.Values {
		width = max(width, len(v))
	}
	for d := 0; d < width; d++ {
		column := make([]float64, 0, len(series.Values))
		for _, v := range series.Values {
			if d < len(v) {
				column = append(column, v[d])
			}
		}
		out.Dimensions = append(out.Dimensions, summarizeColumn(column))
	}
	return out
}

func SummarizeAll(series []model.ProbeSeries) []ProbeSummary {
	out := make([]ProbeSummary, 0, len(series))
	for _, s := range series {
		out = append(out, Summarize(s))
	}
	return out
}

func summarizeColumn(values []float64) DimensionSummary {
	if len(values) == 0 {
		return DimensionSummary{}
	}
	s := DimensionSummary{Min: values[0], Max: values[0], Final: values[len(values)-1]}
	sum := 0.0
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - s.Mean
		variance += diff * diff
	}
	s.Std = math.Sqrt(variance / float64(len(values)))
	return s
}
