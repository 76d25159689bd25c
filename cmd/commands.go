package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/markov-sim/sim/pipeline"
	"github.com/inference-sim/markov-sim/sim/summary"
)

// runPipeline resolves the config for cmd and executes kind.
func runPipeline(cmd *cobra.Command, o *options, kind pipeline.Kind, args []string) error {
	_, err := execute(cmd, o, kind, args)
	return err
}

func execute(cmd *cobra.Command, o *options, kind pipeline.Kind, args []string) (pipeline.Config, error) {
	cfg, err := o.config(cmd.Flags(), args)
	if err != nil {
		return cfg, err
	}
	logrus.Debugf("Running %s with %+v", kind, cfg)
	return cfg, pipeline.Command{Kind: kind}.Execute(cmd.Context(), cfg, cmd.OutOrStdout())
}

func newGenerateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run trials and write one result file",
		Long:  "Run --samples trials with a seeded dice. Records go to --output, or to stdout when no output is given.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runPipeline(cmd, o, pipeline.KindGenerate, args); err != nil {
				logrus.Fatalf("Generate failed: %v", err)
			}
		},
	}
	addGenerateFlags(cmd, o)
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

func newSummarizeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [files...]",
		Short: "Summarize result files into outcome and chain-length tables",
		Long: "Read each result file, skip the ones that cannot be parsed, and write " +
			"the combined report to --summary, or to stdout when none is given. " +
			"With no files, every file of the configured format (csv by default) in --dir is read.",
		Args: cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runSummarize(cmd, o, args); err != nil {
				logrus.Fatalf("Summarize failed: %v", err)
			}
		},
	}
	cmd.Flags().StringVarP(&o.summaryFile, "summary", "o", "", "Report file (stdout when empty)")
	cmd.Flags().BoolVar(&o.totals, "totals", false, "Also print per-file sample totals as csv")
	cmd.Flags().StringVar(&o.directory, "dir", "data", "Directory to read when no files are given")
	return cmd
}

func runSummarize(cmd *cobra.Command, o *options, args []string) error {
	cfg, err := execute(cmd, o, pipeline.KindSummarize, args)
	if err != nil || !o.totals {
		return err
	}
	headers, _ := summary.ScanHeaders(cfg.Inputs())
	return summary.WriteTotals(cmd.OutOrStdout(), headers)
}

func newGensummCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gensumm",
		Short: "Generate one result file and summarize it",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runPipeline(cmd, o, pipeline.KindGenerateThenSummarize, args); err != nil {
				logrus.Fatalf("Gensumm failed: %v", err)
			}
		},
	}
	addGenerateFlags(cmd, o)
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Output file (a temporary file when empty)")
	cmd.Flags().StringVar(&o.summaryFile, "summary", "", "Report file (stdout when empty)")
	return cmd
}

func newIterateCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iterate",
		Short: "Generate one file per seed into a directory and summarize them all",
		Long: "Run --iterations Generate jobs with seeds 1..N writing <dir>/markov_<i>.<ext>, " +
			"then summarize the files that were written. With --parallel the jobs run on " +
			"a pool of --workers goroutines and a failed job does not stop the others.",
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runPipeline(cmd, o, pipeline.KindIterate, args); err != nil {
				if te, ok := pipeline.IsTaskErrors(err); ok {
					for _, f := range te.Failures {
						logrus.Errorf("Seed %d (%s): %v", f.Seed, f.Output, f.Err)
					}
				}
				logrus.Fatalf("Iterate failed: %v", err)
			}
		},
	}
	cmd.Flags().IntVarP(&o.samples, "samples", "s", 1000, "Number of trials per job")
	cmd.Flags().IntVarP(&o.iterations, "iterations", "i", 10, "Number of jobs (seeds 1..N)")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "Worker pool size for --parallel (0 = number of CPUs)")
	cmd.Flags().BoolVar(&o.parallel, "parallel", false, "Run jobs on a bounded worker pool")
	cmd.Flags().StringVar(&o.directory, "dir", "data", "Output directory for job files")
	cmd.Flags().StringVar(&o.format, "format", "csv", "Result encoding (csv, toml, msgpack)")
	cmd.Flags().StringVar(&o.summaryFile, "summary", "", "Report file (stdout when empty)")
	return cmd
}
