package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"nefsim/internal/stats"
	"nefsim/pkg/nefsim"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := client.Runs(cmd.Context(), nefsim.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs")
				return nil
			}
			for _, run := range runs {
				status := "ok"
				if run.Error != "" {
					status = "failed"
				}
				fmt.Fprintf(out, "run_id=%s created_at=%s scenario=%s steps=%s lanes=%d status=%s\n",
					run.ID, run.CreatedAtUTC, run.Scenario, humanize.Comma(int64(run.Steps)), run.Lanes, status)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func addRunSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().String("run-id", "", "Run ID")
	cmd.Flags().Bool("latest", false, "Use the most recent run")
}

func runSelector(cmd *cobra.Command) nefsim.RunRef {
	runID, _ := cmd.Flags().GetString("run-id")
	latest, _ := cmd.Flags().GetBool("latest")
	return nefsim.RunRef{RunID: runID, Latest: latest}
}

func newProbesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probes",
		Short: "Summarize the probe series recorded by a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			series, err := client.Probes(cmd.Context(), runSelector(cmd))
			if err != nil {
				return err
			}
			full, _ := cmd.Flags().GetBool("full")
			if jsonOutput(cmd) {
				if full {
					return writeJSON(cmd.OutOrStdout(), series)
				}
				return writeJSON(cmd.OutOrStdout(), stats.SummarizeAll(series))
			}
			out := cmd.OutOrStdout()
			for _, summary := range stats.SummarizeAll(series) {
				fmt.Fprintf(out, "probe=%s target=%s member=%d state=%s samples=%s\n",
					summary.ProbeID, summary.Target, summary.Member, summary.State, humanize.Comma(int64(summary.Samples)))
				for d, dim := range summary.Dimensions {
					fmt.Fprintf(out, "  x%d mean=%s std=%s min=%s max=%s final=%s\n", d,
						humanize.FtoaWithDigits(dim.Mean, 6),
						humanize.FtoaWithDigits(dim.Std, 6),
						humanize.FtoaWithDigits(dim.Min, 6),
						humanize.FtoaWithDigits(dim.Max, 6),
						humanize.FtoaWithDigits(dim.Final, 6))
				}
			}
			return nil
		},
	}
	addRunSelectorFlags(cmd)
	cmd.Flags().Bool("full", false, "Emit every sample with --json")
	return cmd
}

func newDecoderErrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decoder-errors",
		Short: "Show the decoder error estimates stored for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			reports, err := client.DecoderErrors(cmd.Context(), runSelector(cmd))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			for _, report := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "node=%s origin=%s mse=%s\n", report.Node, report.Origin, formatFloats(report.MSE))
			}
			return nil
		},
	}
	addRunSelectorFlags(cmd)
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a stored run's artifacts as JSON and CSV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			sel := runSelector(cmd)
			outDir, _ := cmd.Flags().GetString("out")
			exported, err := client.Export(cmd.Context(), nefsim.ExportRequest{RunID: sel.RunID, Latest: sel.Latest, OutDir: outDir})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), exported)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	addRunSelectorFlags(cmd)
	cmd.Flags().String("out", "", "Output directory (default exports)")
	return cmd
}
