package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"nefsim/internal/model"
)

// RunArtifacts is everything persisted for one run, written as a directory of
// JSON files plus one CSV per probe.
type RunArtifacts struct {
	Run           model.RunRecord            `json:"run"`
	Probes        []model.ProbeSeries        `json:"probes"`
	DecoderErrors []model.DecoderErrorReport `json:"decoder_errors"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "probes.json"), artifacts.Probes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "decoder_errors.json"), artifacts.DecoderErrors); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "probe_summary.json"), SummarizeAll(artifacts.Probes)); err != nil {
		return "", err
	}
	for _, series := range artifacts.Probes {
		if err := WriteProbeCSV(filepath.Join(runDir, ProbeCSVName(series)), series); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// ProbeCSVName is the file name used for a probe's CSV export.
func ProbeCSVName(series model.ProbeSeries) string {
	return "probe_" + series.ProbeID + ".csv"
}

// WriteProbeCSV writes one row per sample: time followed by one column per
// state dimension.
func WriteProbeCSV(path string, series model.ProbeSeries) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	width := 0
	for _, v := range series.Values {
		if len(v) > width {
			width = len(v)
		}
	}

	writer := csv.NewWriter(file)
	header := make([]string, 0, width+1)
	header = append(header, "time")
	for d := 0; d < width; d++ {
		header = append(header, "x"+strconv.Itoa(d))
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, t := range series.Times {
		row := make([]string, 0, width+1)
		row = append(row, strconv.FormatFloat(t, 'f', -1, 64))
		if i < len(series.Values) {
			for _, v := range series.Values[i] {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadProbeCSV is the inverse of WriteProbeCSV. Only times and values are
// recovered.
func ReadProbeCSV(path string) ([]float64, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if len(header) < 1 || header[0] != "time" {
		return nil, nil, fmt.Errorf("probe csv header must start with time")
	}

	var (
		times  []float64
		values [][]float64
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, err
		}
		row := make([]float64, 0, len(record)-1)
		for _, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, err
			}
			row = append(row, v)
		}
		times = append(times, t)
		values = append(values, row)
	}
	return times, values, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "run.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
