package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nefsim/internal/config"
	"nefsim/internal/sim"
	"nefsim/pkg/nefsim"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a scenario and persist its probes",
		Long: `Build a scenario network, step it from start to end and store the run.

Flags override the matching config file values.

Examples:
  nefsimctl run --scenario squaring --end 2 --lanes 4
  nefsimctl run --scenario array --accelerator --json
  nefsimctl run --config nefsim.yaml --export exports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			req := nefsim.RequestFromConfig(cfg)
			out := cmd.OutOrStdout()
			if !jsonOutput(cmd) && isTerminal(out) {
				req.Listener = newProgressListener(out)
			}

			summary, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			exportDir, _ := cmd.Flags().GetString("export")
			if exportDir != "" {
				exported, err := client.Export(cmd.Context(), nefsim.ExportRequest{RunID: summary.RunID, OutDir: exportDir})
				if err != nil {
					return err
				}
				if !jsonOutput(cmd) {
					fmt.Fprintf(out, "exported to %s\n", exported.Directory)
				}
			}

			if jsonOutput(cmd) {
				return writeJSON(out, summary)
			}
			printRunSummary(out, summary)
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "Scenario name (see 'nefsimctl scenarios')")
	cmd.Flags().Float64("start", 0, "Start time in seconds")
	cmd.Flags().Float64("end", 0, "End time in seconds")
	cmd.Flags().Float64("step", 0, "Step size in seconds")
	cmd.Flags().Int64("seed", 0, "Random seed for network construction")
	cmd.Flags().Int("neurons", 0, "Neurons per represented dimension")
	cmd.Flags().String("mode", "", "Simulation mode: default|constant_rate|rate|direct")
	cmd.Flags().Bool("spiking", false, "Emit spikes instead of rates")
	cmd.Flags().Int("lanes", 0, "Scheduler lanes; 0 runs serially")
	cmd.Flags().Bool("accelerator", false, "Add the accelerator lane")
	cmd.Flags().String("export", "", "Write run artifacts under this directory")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("scenario") {
		cfg.Run.Scenario, _ = flags.GetString("scenario")
	}
	if flags.Changed("start") {
		cfg.Run.StartTime, _ = flags.GetFloat64("start")
	}
	if flags.Changed("end") {
		cfg.Run.EndTime, _ = flags.GetFloat64("end")
	}
	if flags.Changed("step") {
		cfg.Run.StepSize, _ = flags.GetFloat64("step")
	}
	if flags.Changed("seed") {
		cfg.Run.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("neurons") {
		cfg.Run.Neurons, _ = flags.GetInt("neurons")
	}
	if flags.Changed("mode") {
		cfg.Run.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("spiking") {
		cfg.Run.Spiking, _ = flags.GetBool("spiking")
	}
	if flags.Changed("lanes") {
		cfg.Scheduler.Lanes, _ = flags.GetInt("lanes")
	}
	if flags.Changed("accelerator") {
		cfg.Scheduler.Accelerator.Enabled, _ = flags.GetBool("accelerator")
	}
}

func printRunSummary(w io.Writer, summary nefsim.RunSummary) {
	run := summary.Run
	fmt.Fprintf(w, "run_id=%s scenario=%s\n", run.ID, run.Scenario)
	fmt.Fprintf(w, "steps=%s nodes=%d connections=%d tasks=%d lanes=%d\n",
		humanize.Comma(int64(run.Steps)), run.Nodes, run.Connections, run.Tasks, run.Lanes)
	if run.Accelerator != "" {
		fmt.Fprintf(w, "accelerator=%s\n", run.Accelerator)
	}
	if run.Timing.Enabled {
		avg := time.Duration(run.Timing.AverageStepMS * float64(time.Millisecond))
		total := time.Duration(run.Timing.ApproxRunMS * float64(time.Millisecond))
		fmt.Fprintf(w, "average_step=%s approx_run=%s\n", avg, total)
	}
	fmt.Fprintf(w, "probes=%d samples=%s\n", len(summary.Probes), humanize.Comma(int64(sampleCount(summary))))
	for _, report := range summary.DecoderErrors {
		fmt.Fprintf(w, "decoder_error node=%s origin=%s mse=%s\n", report.Node, report.Origin, formatFloats(report.MSE))
	}
}

func sampleCount(summary nefsim.RunSummary) int {
	total := 0
	for _, s := range summary.Probes {
		total += len(s.Times)
	}
	return total
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = humanize.FtoaWithDigits(v, 6)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newProgressListener redraws a single progress line every whole percent.
func newProgressListener(w io.Writer) sim.Listener {
	lastPercent := -1
	return sim.ListenerFunc(func(e sim.Event) {
		switch e.Type {
		case sim.EventStarted:
			lastPercent = -1
		case sim.EventStepTaken:
			percent := int(e.Progress * 100)
			if percent == lastPercent {
				return
			}
			lastPercent = percent
			fmt.Fprintf(w, "\rsimulating t=%.4f %3d%%", e.Time, percent)
		case sim.EventFinished:
			fmt.Fprintf(w, "\rsimulating t=%.4f 100%%\n", e.Time)
		}
	})
}
