package storage

import (
	"context"

	"nefsim/internal/model"
)

// Store defines persistence operations for simulation run artifacts.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveProbeSeries(ctx context.Context, runID string, series []model.ProbeSeries) error
	GetProbeSeries(ctx context.Context, runID string) ([]model.ProbeSeries, bool, error)
	SaveDecoderErrors(ctx context.Context, runID string, reports []model.DecoderErrorReport) error
	GetDecoderErrors(ctx context.Context, runID string) ([]model.DecoderErrorReport, bool, error)
}
