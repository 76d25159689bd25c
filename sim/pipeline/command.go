// Package pipeline composes the Generate and Summarize stages into commands:
// a single Generate, a Summarize over existing files, a Generate followed by
// its Summarize, and Iterate (many Generates sharing a directory, then one
// Summarize), serially or through a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/markov-sim/sim/job"
	"github.com/inference-sim/markov-sim/sim/summary"
)

// Kind selects which command a Command runs.
type Kind int

const (
	KindGenerate Kind = iota
	KindSummarize
	KindGenerateThenSummarize
	KindIterate
)

var kindNames = map[Kind]string{
	KindGenerate:              "generate",
	KindSummarize:             "summarize",
	KindGenerateThenSummarize: "gensumm",
	KindIterate:               "iterate",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a command name to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Command is one unit of pipeline work.
type Command struct {
	Kind Kind
}

// Execute runs the command with cfg, writing console output to stdout.
func (c Command) Execute(ctx context.Context, cfg Config, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var err error
	switch c.Kind {
	case KindGenerate:
		_, err = Generate(cfg, stdout)
	case KindSummarize:
		_, err = Summarize(cfg, stdout)
	case KindGenerateThenSummarize:
		_, err = GenerateThenSummarize(cfg, stdout)
	case KindIterate:
		_, err = Iterate(ctx, cfg, stdout)
	default:
		err = fmt.Errorf("unknown command kind %d", int(c.Kind))
	}
	return err
}

// Generate runs one Generate stage. With no Output the records themselves
// go to stdout; otherwise the file is written and its echo goes to stdout.
func Generate(cfg Config, stdout io.Writer) (*job.Result, error) {
	jc := cfg.jobConfig(cfg.Seed, cfg.Output)
	if cfg.Output == "" {
		result, err := job.Run(jc, stdout)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		return result, nil
	}
	result, err := job.RunToFile(jc)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if err := result.WriteEcho(stdout); err != nil {
		return nil, err
	}
	return result, nil
}

// SummarizeResult is the outcome of a Summarize stage.
type SummarizeResult struct {
	Summary *summary.Summary
	Skipped []*summary.StreamError
}

// Summarize aggregates cfg's input files and writes the report to
// cfg.SummaryFile, or to stdout when none is set. Unreadable inputs are
// skipped; only a failure to write the report is an error.
func Summarize(cfg Config, stdout io.Writer) (*SummarizeResult, error) {
	return summarize(cfg, stdout, cfg.Inputs())
}

func summarize(cfg Config, stdout io.Writer, inputs []string) (*SummarizeResult, error) {
	logrus.Debugf("Summarizing %d streams", len(inputs))
	s, skipped := summary.Aggregate(inputs)
	if err := writeReport(cfg.SummaryFile, stdout, s); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return &SummarizeResult{Summary: s, Skipped: skipped}, nil
}

// GenerateThenSummarize runs Generate and then Summarize over exactly the
// file it wrote. With no Output the records go to a temporary file that is
// removed afterwards.
func GenerateThenSummarize(cfg Config, stdout io.Writer) (*SummarizeResult, error) {
	if cfg.Output == "" {
		tmp, err := os.CreateTemp("", "markov_*"+cfg.format().Ext())
		if err != nil {
			return nil, fmt.Errorf("creating intermediate file: %w", err)
		}
		_ = tmp.Close()
		defer func() { _ = os.Remove(tmp.Name()) }()
		cfg.Output = tmp.Name()
	}
	if _, err := Generate(cfg, stdout); err != nil {
		return nil, err
	}
	return summarize(cfg, stdout, []string{cfg.Output})
}

func writeReport(path string, stdout io.Writer, s *summary.Summary) error {
	if path == "" {
		return summary.WriteReport(stdout, s)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating summary directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary file: %w", err)
	}
	if err := summary.WriteReport(file, s); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing summary file: %w", err)
	}
	logrus.Infof("Summary written to %s", path)
	return nil
}
