// Package job implements the Generate stage: one Dice, N trials, one
// Result Writer, one output sink.
package job

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	sim "github.com/inference-sim/markov-sim/sim"
	"github.com/inference-sim/markov-sim/sim/record"
)

// ErrInvalidSamples is returned when a negative sample count is requested.
var ErrInvalidSamples = errors.New("samples must be non-negative")

// Config describes one Generate run.
type Config struct {
	Samples int           // Number of trials to run
	Seed    int64         // Dice seed; 0 draws a non-reproducible seed
	Output  string        // Path recorded in the header; RunToFile creates it
	Format  record.Format // Result encoding (csv when empty)

	// MaxRolls guards each trial; 0 leaves trials unbounded.
	MaxRolls int
}

// Validate reports configuration errors before any output is created.
func (c Config) Validate() error {
	if c.Samples < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSamples, c.Samples)
	}
	if !record.IsValidFormat(string(c.Format)) {
		return fmt.Errorf("%w: %q", record.ErrUnknownFormat, c.Format)
	}
	if c.MaxRolls < 0 {
		return fmt.Errorf("max rolls must be non-negative: %d", c.MaxRolls)
	}
	return nil
}

// Header returns the job header this run writes.
func (c Config) Header() record.Header {
	return record.Header{File: c.Output, Samples: c.Samples, Randomize: c.Seed}
}

// Result summarizes a completed Generate run.
type Result struct {
	Output        string
	Samples       int
	Seed          int64 // configured seed, as written to the header
	EffectiveSeed int64 // seed the dice actually used
	Counts        map[sim.Outcome]int
}

// WriteEcho writes the console echo of a run: the header comment lines,
// then "Created <path>" when the run wrote a file.
func (r *Result) WriteEcho(w io.Writer) error {
	h := record.Header{File: r.Output, Samples: r.Samples, Randomize: r.Seed}
	if err := record.WriteHeaderLines(w, h); err != nil {
		return err
	}
	if r.Output != "" {
		if _, err := fmt.Fprintf(w, "Created %s\n", r.Output); err != nil {
			return fmt.Errorf("writing echo: %w", err)
		}
	}
	return nil
}

// Run executes cfg.Samples trials and writes header plus records to sink.
// Records appear in trial completion order. sink is not closed.
func Run(cfg Config, sink io.Writer) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dice, err := sim.NewDice(cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("creating dice: %w", err)
	}
	format, _ := record.ParseFormat(string(cfg.Format))
	w, err := record.NewWriter(format, sink)
	if err != nil {
		return nil, err
	}
	return generate(cfg, dice, w)
}

// RunToFile creates cfg.Output (and its parent directory) and runs into it.
// If the file cannot be created, no trial runs. A failure after creation
// leaves the partial file in place; readers discard what they cannot parse.
func RunToFile(cfg Config) (*Result, error) {
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	file, err := os.Create(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	result, runErr := Run(cfg, file)
	if closeErr := file.Close(); closeErr != nil && runErr == nil {
		return nil, fmt.Errorf("closing output file: %w", closeErr)
	}
	return result, runErr
}

func generate(cfg Config, src *sim.Dice, w record.Writer) (*Result, error) {
	logrus.Debugf("Generating %d samples (seed=%d, effective=%d) into %q", cfg.Samples, cfg.Seed, src.Seed(), cfg.Output)

	if err := w.WriteHeader(cfg.Header()); err != nil {
		return nil, err
	}
	result := &Result{
		Output:        cfg.Output,
		Samples:       cfg.Samples,
		Seed:          cfg.Seed,
		EffectiveSeed: src.Seed(),
		Counts:        make(map[sim.Outcome]int, len(sim.Outcomes)),
	}
	for i := 0; i < cfg.Samples; i++ {
		trial, err := sim.RunTrialBounded(src, cfg.MaxRolls)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		if err := w.WriteResult(trial); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		result.Counts[trial.Outcome]++
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return result, nil
}
