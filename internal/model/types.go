package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string        `json:"id"`
	CreatedAtUTC string        `json:"created_at_utc"`
	Scenario     string        `json:"scenario"`
	Seed         int64         `json:"seed"`
	Lanes        int           `json:"lanes"`
	Accelerator  string        `json:"accelerator,omitempty"`
	StartTime    float64       `json:"start_time"`
	EndTime      float64       `json:"end_time"`
	StepSize     float64       `json:"step_size"`
	Steps        int           `json:"steps"`
	Nodes        int           `json:"nodes"`
	Connections  int           `json:"connections"`
	Tasks        int           `json:"tasks"`
	Timing       TimingSummary `json:"timing"`
	Error        string        `json:"error,omitempty"`
}

// TimingSummary is the wall-clock report collected by the scheduler when
// timing collection is enabled. Durations are in milliseconds.
type TimingSummary struct {
	Enabled       bool    `json:"enabled"`
	Steps         int     `json:"steps"`
	AverageStepMS float64 `json:"average_step_ms"`
	ApproxRunMS   float64 `json:"approx_run_ms"`
}

// ProbeSeries is the recorded history of one probe.
type ProbeSeries struct {
	VersionedRecord
	RunID   string      `json:"run_id"`
	ProbeID string      `json:"probe_id"`
	Target  string      `json:"target"`
	Member  int         `json:"member"`
	State   string      `json:"state"`
	Times   []float64   `json:"times"`
	Values  [][]float64 `json:"values"`
}

// DecoderErrorReport is the per-dimension mean squared error of one decoded
// origin, estimated at the end of a run.
type DecoderErrorReport struct {
	VersionedRecord
	RunID  string    `json:"run_id"`
	Node   string    `json:"node"`
	Origin string    `json:"origin"`
	MSE    []float64 `json:"mse"`
}
