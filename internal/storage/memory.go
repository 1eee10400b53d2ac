package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"nefsim/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	probes      map[string][]model.ProbeSeries
	decoderErrs map[string][]model.DecoderErrorReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.probes = make(map[string][]model.ProbeSeries)
	s.decoderErrs = make(map[string][]model.DecoderErrorReport)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunRecord{}, false, errNotInitialized
	}
	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns runs ordered by creation time, oldest first.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveProbeSeries(_ context.Context, runID string, series []model.ProbeSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.probes[runID] = append([]model.ProbeSeries(nil), series...)
	return nil
}

func (s *MemoryStore) GetProbeSeries(_ context.Context, runID string) ([]model.ProbeSeries, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errNotInitialized
	}
	series, ok := s.probes[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.ProbeSeries(nil), series...), true, nil
}

func (s *MemoryStore) SaveDecoderErrors(_ context.Context, runID string, reports []model.DecoderErrorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.decoderErrs[runID] = append([]model.DecoderErrorReport(nil), reports...)
	return nil
}

func (s *MemoryStore) GetDecoderErrors(_ context.Context, runID string) ([]model.DecoderErrorReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errNotInitialized
	}
	reports, ok := s.decoderErrs[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.DecoderErrorReport(nil), reports...), true, nil
}

// sortRuns orders runs by parsed creation time, then by ID. Timestamps that
// do not parse sort first, in text order.
func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		ti, errI := time.Parse(time.RFC3339Nano, runs[i].CreatedAtUTC)
		tj, errJ := time.Parse(time.RFC3339Nano, runs[j].CreatedAtUTC)
		switch {
		case errI != nil && errJ == nil:
			return true
		case errI == nil && errJ != nil:
			return false
		case errI == nil && errJ == nil && !ti.Equal(tj):
			return ti.Before(tj)
		case errI != nil && errJ != nil && runs[i].CreatedAtUTC != runs[j].CreatedAtUTC:
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}
