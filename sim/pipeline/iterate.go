package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/markov-sim/sim/job"
)

// IterateResult is the outcome of an Iterate command.
type IterateResult struct {
	// Runs holds one entry per unit in submission order; nil for failed units.
	Runs []*job.Result
	// Outputs lists the files that were written successfully.
	Outputs []string
	*SummarizeResult
}

// TaskFailure describes one Generate unit that did not complete.
type TaskFailure struct {
	Seed   int64
	Output string
	Err    error
}

// TaskErrors collects the failed units of a parallel Iterate.
type TaskErrors struct {
	Total    int
	Failures []TaskFailure
}

func (e *TaskErrors) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("seed %d: %v", f.Seed, f.Err)
	}
	return fmt.Sprintf("%d of %d generate tasks failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

func (e *TaskErrors) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// unit is one Generate run of an Iterate: seed i+1 into markov_<i>.<ext>.
type unit struct {
	seed   int64
	output string
}

// runJob runs one unit; tests replace it to observe scheduling.
var runJob = job.RunToFile

func plan(cfg Config) []unit {
	ext := cfg.format().Ext()
	units := make([]unit, cfg.Iterations)
	for i := range units {
		units[i] = unit{
			seed:   int64(i + 1),
			output: filepath.Join(cfg.Directory, fmt.Sprintf("markov_%d%s", i, ext)),
		}
	}
	return units
}

// Iterate dispatches to RunParallel or RunSerial according to cfg.Parallel.
func Iterate(ctx context.Context, cfg Config, stdout io.Writer) (*IterateResult, error) {
	if cfg.Parallel {
		return RunParallel(ctx, cfg, stdout)
	}
	return RunSerial(ctx, cfg, stdout)
}

// RunSerial runs the Generate units one after another, echoing each to
// stdout, then summarizes the files they wrote. The first failing unit
// stops the run and no report is produced.
func RunSerial(ctx context.Context, cfg Config, stdout io.Writer) (*IterateResult, error) {
	units := plan(cfg)
	result := &IterateResult{Runs: make([]*job.Result, len(units))}
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := runJob(cfg.jobConfig(u.seed, u.output))
		if err != nil {
			return nil, fmt.Errorf("generate seed %d: %w", u.seed, err)
		}
		if err := run.WriteEcho(stdout); err != nil {
			return nil, err
		}
		result.Runs[i] = run
		result.Outputs = append(result.Outputs, u.output)
	}
	return summarizeOutputs(cfg, stdout, result)
}

// RunParallel runs the Generate units on a pool of cfg.Workers goroutines.
// Each unit writes its console echo into its own buffer; buffers are
// printed in submission order once every unit has finished. A failed unit
// does not stop the others; the files that were written are summarized
// and the failures come back as *TaskErrors. Cancelling ctx skips units
// that have not started yet.
func RunParallel(ctx context.Context, cfg Config, stdout io.Writer) (*IterateResult, error) {
	units := plan(cfg)
	type outcome struct {
		run  *job.Result
		echo bytes.Buffer
		err  error
	}
	outcomes := make([]outcome, len(units))

	var g errgroup.Group
	g.SetLimit(cfg.workerCount())
	logrus.Debugf("Running %d generate tasks on %d workers", len(units), cfg.workerCount())
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			o := &outcomes[i]
			if err := ctx.Err(); err != nil {
				o.err = err
				return nil
			}
			run, err := runJob(cfg.jobConfig(u.seed, u.output))
			if err != nil {
				o.err = err
				return nil
			}
			o.run = run
			o.err = run.WriteEcho(&o.echo)
			return nil
		})
	}
	_ = g.Wait()

	result := &IterateResult{Runs: make([]*job.Result, len(units))}
	taskErrs := &TaskErrors{Total: len(units)}
	for i := range outcomes {
		o := &outcomes[i]
		if _, err := o.echo.WriteTo(stdout); err != nil {
			return nil, fmt.Errorf("writing task output: %w", err)
		}
		if o.err != nil {
			logrus.Warnf("Generate task for seed %d failed: %v", units[i].seed, o.err)
			taskErrs.Failures = append(taskErrs.Failures, TaskFailure{Seed: units[i].seed, Output: units[i].output, Err: o.err})
			continue
		}
		result.Runs[i] = o.run
		result.Outputs = append(result.Outputs, units[i].output)
	}

	result, err := summarizeOutputs(cfg, stdout, result)
	if err != nil {
		return nil, err
	}
	if len(taskErrs.Failures) > 0 {
		return result, taskErrs
	}
	return result, nil
}

func summarizeOutputs(cfg Config, stdout io.Writer, result *IterateResult) (*IterateResult, error) {
	sr, err := summarize(cfg, stdout, result.Outputs)
	if err != nil {
		return nil, err
	}
	result.SummarizeResult = sr
	return result, nil
}

// IsTaskErrors reports whether err carries per-task failures.
func IsTaskErrors(err error) (*TaskErrors, bool) {
	var te *TaskErrors
	ok := errors.As(err, &te)
	return te, ok
}
