package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/markov-sim/sim/job"
	"github.com/inference-sim/markov-sim/sim/record"
)

// Config is the one configuration object shared by every command.
// Commands read only the fields they need and tolerate the others being
// empty (empty Output/SummaryFile mean "write to the default sink").
type Config struct {
	Samples     int           `yaml:"samples"`      // Trials per Generate run
	Seed        int64         `yaml:"randomize"`    // Dice seed; 0 = non-reproducible
	Output      string        `yaml:"output"`       // Generate output path
	OutputFiles []string      `yaml:"output_files"` // Summarize inputs
	SummaryFile string        `yaml:"summary_file"` // Summarize report path
	Format      record.Format `yaml:"format"`       // Result encoding for generated files

	Iterations int    `yaml:"iterations"` // Generate runs for Iterate (seeds 1..Iterations)
	Workers    int    `yaml:"workers"`    // Parallel pool size; 0 = number of CPUs
	Directory  string `yaml:"directory"`  // Shared output directory for Iterate
	Parallel   bool   `yaml:"parallel"`   // Iterate through the worker pool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Samples:    1000,
		Format:     record.FormatCSV,
		Iterations: 10,
		Directory:  "data",
	}
}

// EnvDefaults are configuration defaults read from the environment.
type EnvDefaults struct {
	RandomSeed string `env:"RANDOMSEED"`
	Workers    int    `env:"MARKOV_WORKERS"`
	Format     string `env:"MARKOV_FORMAT"`
}

// ConfigFromEnv overlays environment defaults on base. Variables that are
// unset or empty keep the base value. A RANDOMSEED that is not an integer
// counts as 0.
func ConfigFromEnv(base Config) (Config, error) {
	var e EnvDefaults
	if err := env.Parse(&e); err != nil {
		return base, fmt.Errorf("parse env: %w", err)
	}
	cfg := base
	if e.RandomSeed != "" {
		seed, err := strconv.ParseInt(e.RandomSeed, 10, 64)
		if err != nil {
			seed = 0
		}
		cfg.Seed = seed
	}
	if e.Workers != 0 {
		cfg.Workers = e.Workers
	}
	if e.Format != "" {
		cfg.Format = record.Format(e.Format)
	}
	return cfg, nil
}

// LoadConfig reads a YAML pipeline file over base. Fields absent from the
// file keep their base values. Unknown fields are errors.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading config file: %w", err)
	}
	cfg := base
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return base, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Samples < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", job.ErrInvalidSamples, c.Samples))
	}
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations must be non-negative: %d", c.Iterations))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative: %d", c.Workers))
	}
	if !record.IsValidFormat(string(c.Format)) {
		errs = append(errs, fmt.Errorf("%w: %q", record.ErrUnknownFormat, c.Format))
	}
	return errors.Join(errs...)
}

// workerCount resolves the pool size.
func (c Config) workerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// format resolves the output encoding.
func (c Config) format() record.Format {
	f, err := record.ParseFormat(string(c.Format))
	if err != nil {
		return record.FormatCSV
	}
	return f
}

// jobConfig projects the shared config onto one Generate run.
func (c Config) jobConfig(seed int64, output string) job.Config {
	return job.Config{
		Samples: c.Samples,
		Seed:    seed,
		Output:  output,
		Format:  c.format(),
	}
}

// Inputs returns the Summarize inputs: OutputFiles, or Output when none are
// listed, or else every file in Directory with the configured extension.
func (c Config) Inputs() []string {
	if len(c.OutputFiles) > 0 {
		return c.OutputFiles
	}
	if c.Output != "" {
		return []string{c.Output}
	}
	if c.Directory == "" {
		return nil
	}
	pattern := filepath.Join(c.Directory, "*"+c.format().Ext())
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logrus.Warnf("Bad input pattern %s: %v", pattern, err)
		return nil
	}
	logrus.Infof("No inputs given, summarizing %d files matching %s", len(matches), pattern)
	return matches
}
