package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/inference-sim/markov-sim/sim/pipeline"
	"github.com/inference-sim/markov-sim/sim/record"
)

// options holds the values bound to CLI flags. A flag only overrides the
// environment and config-file value when it was set on the command line.
type options struct {
	logLevel   string // Log verbosity level
	configPath string // YAML pipeline file

	samples     int    // Trials per Generate run
	seed        int64  // Dice seed
	output      string // Generate output path
	format      string // Result encoding
	summaryFile string // Report path
	totals      bool   // Also print the per-file sample totals

	iterations int    // Generate runs for iterate
	workers    int    // Parallel pool size
	parallel   bool   // Run iterate through the worker pool
	directory  string // Shared iterate output directory
}

// config layers defaults, environment, the optional YAML file and the
// flags that were set. Positional args become the Summarize inputs.
func (o *options) config(flags *pflag.FlagSet, args []string) (pipeline.Config, error) {
	cfg, err := pipeline.ConfigFromEnv(pipeline.DefaultConfig())
	if err != nil {
		return cfg, err
	}
	if o.configPath != "" {
		if cfg, err = pipeline.LoadConfig(o.configPath, cfg); err != nil {
			return cfg, err
		}
		logrus.Infof("Loaded pipeline config from %s", o.configPath)
	}
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "samples":
			cfg.Samples = o.samples
		case "randomize":
			cfg.Seed = o.seed
		case "output":
			cfg.Output = o.output
		case "format":
			cfg.Format = record.Format(o.format)
		case "summary":
			cfg.SummaryFile = o.summaryFile
		case "iterations":
			cfg.Iterations = o.iterations
		case "workers":
			cfg.Workers = o.workers
		case "parallel":
			cfg.Parallel = o.parallel
		case "dir":
			cfg.Directory = o.directory
		}
	})
	if len(args) > 0 {
		cfg.OutputFiles = args
	}
	return cfg, cfg.Validate()
}

// newRootCmd builds the CLI command tree.
func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(o *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "markov-sim",
		Short: "Monte Carlo simulator for dice-game Markov chains",
		Long: "Run seeded craps-style trials, write their roll chains to files, " +
			"and summarize outcome and chain-length histograms across files.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, err := logrus.ParseLevel(o.logLevel)
			if err != nil {
				logrus.Fatalf("Invalid log level: %s", o.logLevel)
			}
			logrus.SetLevel(level)
		},
	}
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&o.configPath, "config", "", "Path to a YAML pipeline config")

	rootCmd.AddCommand(
		newGenerateCmd(o),
		newSummarizeCmd(o),
		newGensummCmd(o),
		newIterateCmd(o),
	)
	return rootCmd
}

// Execute runs the CLI root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func addGenerateFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().IntVarP(&o.samples, "samples", "s", 1000, "Number of trials to run")
	cmd.Flags().Int64VarP(&o.seed, "randomize", "r", 0, "Dice seed (0 draws a non-reproducible seed; default from RANDOMSEED)")
	cmd.Flags().StringVar(&o.format, "format", string(record.FormatCSV), "Result encoding (csv, toml, msgpack)")
}
