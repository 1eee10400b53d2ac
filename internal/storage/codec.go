package storage

import (
	"encoding/json"
	"errors"
	"time"

	"nefsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// TimestampLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps also order correctly as text.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp formats t in UTC with TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Versioned returns the record header stamped on everything this package writes.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeProbeSeries(series []model.ProbeSeries) ([]byte, error) {
	return json.Marshal(series)
}

func DecodeProbeSeries(data []byte) ([]model.ProbeSeries, error) {
	var series []model.ProbeSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, err
	}
	for _, s := range series {
		if err := checkVersion(s.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return series, nil
}

func EncodeDecoderErrors(reports []model.DecoderErrorReport) ([]byte, error) {
	return json.Marshal(reports)
}

func DecodeDecoderErrors(data []byte) ([]model.DecoderErrorReport, error) {
	var reports []model.DecoderErrorReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, err
	}
	for _, report := range reports {
		if err := checkVersion(report.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
