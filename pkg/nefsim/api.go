package nefsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"nefsim/internal/accel"
	"nefsim/internal/config"
	"nefsim/internal/logging"
	"nefsim/internal/model"
	"nefsim/internal/nef"
	"nefsim/internal/scenario"
	"nefsim/internal/schedule"
	"nefsim/internal/sim"
	"nefsim/internal/stats"
	"nefsim/internal/storage"
)

const (
	defaultDBPath     = "nefsim.db"
	defaultExportsDir = "exports"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	exportsDir string
	ready      bool
}

// ProbeRequest names a state to record. Member selects one ensemble member
// when non-nil.
type ProbeRequest struct {
	Node   string
	State  string
	Member *int
}

type RunRequest struct {
	Scenario       string
	StartTime      float64
	EndTime        float64
	StepSize       float64
	Seed           int64
	Neurons        int
	Mode           string
	Spiking        bool
	Lanes          int
	CollectTimings bool
	Accelerator    bool
	AcceleratorID  string
	// Probes replace the scenario's suggested probes when non-empty.
	Probes []ProbeRequest
	// Listener observes lifecycle events while the run is stepping.
	Listener sim.Listener
}

type RunSummary struct {
	RunID         string
	Run           model.RunRecord
	Probes        []model.ProbeSeries
	DecoderErrors []model.DecoderErrorReport
}

type RunsRequest struct {
	Limit int
}

type RunRef struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// RequestFromConfig maps the run and scheduler sections of cfg onto a run
// request.
func RequestFromConfig(cfg *config.Config) RunRequest {
	req := RunRequest{
		Scenario:       cfg.Run.Scenario,
		StartTime:      cfg.Run.StartTime,
		EndTime:        cfg.Run.EndTime,
		StepSize:       cfg.Run.StepSize,
		Seed:           cfg.Run.Seed,
		Neurons:        cfg.Run.Neurons,
		Mode:           cfg.Run.Mode,
		Spiking:        cfg.Run.Spiking,
		Lanes:          cfg.Scheduler.Lanes,
		CollectTimings: cfg.Scheduler.CollectTimings,
		Accelerator:    cfg.Scheduler.Accelerator.Enabled,
		AcceleratorID:  cfg.Scheduler.Accelerator.Name,
	}
	for _, p := range cfg.Run.Probes {
		req.Probes = append(req.Probes, ProbeRequest{Node: p.Node, State: p.State, Member: p.Member})
	}
	return req
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logging.OrDefault(opts.Logger),
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.ready {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.ready = true
	return nil
}

// Run builds the requested scenario, simulates it and persists the run
// record, probe series and decoder error estimates. A run whose step fails
// is still persisted with its error recorded, and the error is returned
// alongside the summary.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Scenario == "" {
		req.Scenario = "communication-channel"
	}
	if req.EndTime == 0 {
		req.EndTime = 1
	}
	if req.StepSize <= 0 {
		req.StepSize = 0.001
	}
	if req.AcceleratorID == "" {
		req.AcceleratorID = "accel-0"
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	sc, err := scenario.Build(req.Scenario, scenario.Options{
		Seed:       req.Seed,
		Neurons:    req.Neurons,
		Spiking:    req.Spiking,
		Accelerate: req.Accelerator,
	})
	if err != nil {
		return RunSummary{}, err
	}

	var accelerator schedule.Accelerator
	if req.Accelerator {
		accelerator = accel.New(req.AcceleratorID, c.logger)
	}
	simulator := sim.New(sim.Config{
		Lanes:          req.Lanes,
		CollectTimings: req.CollectTimings,
		Accelerator:    accelerator,
		Logger:         c.logger,
	})
	defer simulator.Close()

	if err := simulator.Initialize(ctx, sc.Network); err != nil {
		return RunSummary{}, err
	}
	if mode != model.ModeDefault {
		if err := simulator.SetMode(mode); err != nil {
			return RunSummary{}, err
		}
	}

	probes := req.Probes
	if len(probes) == 0 {
		for _, p := range sc.Probes {
			probes = append(probes, ProbeRequest{Node: p.Node, State: p.State})
		}
	}
	for _, p := range probes {
		if p.Member != nil {
			_, err = simulator.AddNeuronProbe(p.Node, *p.Member, p.State, true)
		} else {
			_, err = simulator.AddProbe(p.Node, p.State, true)
		}
		if err != nil {
			return RunSummary{}, fmt.Errorf("probe %s.%s: %w", p.Node, p.State, err)
		}
	}

	steps := 0
	removeCounter := simulator.AddListener(sim.ListenerFunc(func(e sim.Event) {
		if e.Type == sim.EventStepTaken {
			steps++
		}
	}))
	defer removeCounter()
	if req.Listener != nil {
		defer simulator.AddListener(req.Listener)()
	}

	runID := uuid.NewString()
	c.logger.Info("run starting", "run_id", runID, "scenario", req.Scenario, "lanes", req.Lanes, "accelerator", req.Accelerator)
	runErr := simulator.Run(ctx, req.StartTime, req.EndTime, req.StepSize)
	if runErr != nil {
		c.logger.Warn("run failed", "run_id", runID, "error", runErr)
	}

	work := simulator.Work()
	timing := simulator.Timings()
	record := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		CreatedAtUTC:    storage.Timestamp(time.Now()),
		Scenario:        req.Scenario,
		Seed:            req.Seed,
		Lanes:           req.Lanes,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		StepSize:        req.StepSize,
		Steps:           steps,
		Nodes:           len(work.Nodes),
		Connections:     len(work.Connections),
		Tasks:           len(work.Tasks),
		Timing: model.TimingSummary{
			Enabled:       timing.Enabled,
			Steps:         timing.Steps,
			AverageStepMS: durationMS(timing.Average),
			ApproxRunMS:   durationMS(timing.ApproxRun()),
		},
	}
	if req.Accelerator {
		record.Accelerator = req.AcceleratorID
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	series := make([]model.ProbeSeries, 0, len(probes))
	for _, probe := range simulator.Probes() {
		s := probe.Series()
		s.VersionedRecord = storage.Versioned()
		s.RunID = runID
		series = append(series, s)
	}
	reports := decoderErrors(simulator, runID)

	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveProbeSeries(ctx, runID, series); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveDecoderErrors(ctx, runID, reports); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{RunID: runID, Run: record, Probes: series, DecoderErrors: reports}
	if runErr != nil {
		return summary, runErr
	}
	c.logger.Info("run finished", "run_id", runID, "steps", steps)
	return summary, nil
}

// decoderErrors estimates the error of every decoded origin on every
// ensemble the simulator can resolve by name.
func decoderErrors(simulator *sim.Simulator, runID string) []model.DecoderErrorReport {
	var reports []model.DecoderErrorReport
	for _, name := range simulator.Nodes() {
		node, err := simulator.Node(name)
		if err != nil {
			continue
		}
		ensemble, ok := node.(*nef.Ensemble)
		if !ok {
			continue
		}
		for _, origin := range ensemble.DecodedOrigins() {
			reports = append(reports, model.DecoderErrorReport{
				VersionedRecord: storage.Versioned(),
				RunID:           runID,
				Node:            name,
				Origin:          origin.Name(),
				MSE:             origin.Error(),
			})
		}
	}
	return reports
}

// Runs lists persisted runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(runs)
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	return runs, nil
}

func (c *Client) Probes(ctx context.Context, req RunRef) ([]model.ProbeSeries, error) {
	runID, err := c.resolveRunID(ctx, req)
	if err != nil {
		return nil, err
	}
	series, ok, err := c.store.GetProbeSeries(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("probe series not found for run id: %s", runID)
	}
	return series, nil
}

func (c *Client) DecoderErrors(ctx context.Context, req RunRef) ([]model.DecoderErrorReport, error) {
	runID, err := c.resolveRunID(ctx, req)
	if err != nil {
		return nil, err
	}
	reports, ok, err := c.store.GetDecoderErrors(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("decoder errors not found for run id: %s", runID)
	}
	return reports, nil
}

// Export writes a run's artifacts as files under OutDir/<run id>.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, RunRef{RunID: req.RunID, Latest: req.Latest})
	if err != nil {
		return ExportSummary{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	series, _, err := c.store.GetProbeSeries(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	reports, _, err := c.store.GetDecoderErrors(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	dir, err := stats.WriteRunArtifacts(req.OutDir, stats.RunArtifacts{Run: run, Probes: series, DecoderErrors: reports})
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir}, nil
}

func (c *Client) resolveRunID(ctx context.Context, req RunRef) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if req.RunID != "" {
		return req.RunID, nil
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[len(runs)-1].ID, nil
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
