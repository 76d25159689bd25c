package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sim "github.com/inference-sim/markov-sim/sim"
	"github.com/inference-sim/markov-sim/sim/internal/testutil"
	"github.com/inference-sim/markov-sim/sim/job"
	"github.com/inference-sim/markov-sim/sim/record"
	"github.com/inference-sim/markov-sim/sim/summary"
)

func iterateConfig(dir string, iterations int) Config {
	cfg := DefaultConfig()
	cfg.Samples = 50
	cfg.Iterations = iterations
	cfg.Directory = dir
	cfg.Workers = 3
	return cfg
}

func TestGenerate_NoOutput_WritesRecordsToStdout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 3
	cfg.Seed = 1

	var out bytes.Buffer
	result, err := Generate(cfg, &out)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Samples)
	assert.True(t, strings.HasPrefix(out.String(), "# file = \"\"\n"))
	assert.Contains(t, out.String(), record.Delimiter+"\noutcome,length,chain\n")
	assert.Equal(t, 3+5, strings.Count(out.String(), "\n"))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestGenerate_NoOutput_StdoutFailure_Wrapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 3
	cfg.Seed = 1

	result, err := Generate(cfg, brokenWriter{})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, strings.HasPrefix(err.Error(), "generate: "), err.Error())
	assert.ErrorContains(t, err, "stdout closed")
}

func TestGenerate_WithOutput_EchoesHeaderAndPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	cfg := DefaultConfig()
	cfg.Samples = 10
	cfg.Seed = 4
	cfg.Output = path

	var out bytes.Buffer
	_, err := Generate(cfg, &out)

	require.NoError(t, err)
	want := "# file = \"" + path + "\"\n# samples = 10\n# randomize = 4\nCreated " + path + "\n"
	assert.Equal(t, want, out.String())
	assert.FileExists(t, path)
}

func TestSummarize_EmptySummaryFile_WritesReportToStdout(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.csv", testutil.CSVStream(t, 3, 2))

	cfg := DefaultConfig()
	cfg.OutputFiles = []string{a}
	var out bytes.Buffer
	result, err := Summarize(cfg, &out)

	require.NoError(t, err)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, testutil.LoadGolden(t, "report_small.md"), out.String())
}

func TestSummarize_FallsBackToOutput(t *testing.T) {
	// GIVEN no OutputFiles but an Output path
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = testutil.WriteFile(t, dir, "a.csv", testutil.CSVStream(t, 1, 1))
	cfg.SummaryFile = filepath.Join(dir, "reports", "summary.md")

	// WHEN summarized
	var out bytes.Buffer
	result, err := Summarize(cfg, &out)

	// THEN Output was read and the report went to SummaryFile
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Total())
	assert.Empty(t, out.String())
	data, err := os.ReadFile(cfg.SummaryFile)
	require.NoError(t, err)
	assert.Equal(t, summary.RenderReport(result.Summary), string(data))
}

func TestSummarize_NoInputs_ReadsDirectoryFilesOfFormat(t *testing.T) {
	// GIVEN a directory with two csv files and one toml file
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "markov_0.csv", testutil.CSVStream(t, 2, 1))
	testutil.WriteFile(t, dir, "markov_1.csv", testutil.CSVStream(t, 1, 1))
	testutil.WriteFile(t, dir, "markov_2.toml", testutil.EncodeStream(t, record.FormatTOML,
		record.Header{File: "markov_2.toml", Samples: 1}, []sim.TrialResult{{Outcome: sim.OutcomeFail, Chain: sim.Chain{2}}}))

	// WHEN summarized with neither OutputFiles nor Output
	cfg := DefaultConfig()
	cfg.Directory = dir
	var out bytes.Buffer
	result, err := Summarize(cfg, &out)

	// THEN only the csv files are counted
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, map[sim.Outcome]int{sim.OutcomeSuccess: 3, sim.OutcomeFail: 2}, result.Summary.OutcomeCounts)
	assert.Equal(t, summary.RenderReport(result.Summary), out.String())
}

func TestSummarize_UnwritableSummaryFile_Fails(t *testing.T) {
	dir := t.TempDir()
	blocker := testutil.WriteFile(t, dir, "blocker", []byte("x"))

	cfg := DefaultConfig()
	cfg.Directory = dir
	cfg.SummaryFile = filepath.Join(blocker, "summary.md")
	_, err := Summarize(cfg, &bytes.Buffer{})

	assert.Error(t, err)
}

func TestGenerateThenSummarize_SummarizesExactlyTheGeneratedFile(t *testing.T) {
	// GIVEN a stale file listed in OutputFiles
	dir := t.TempDir()
	stale := testutil.WriteFile(t, dir, "stale.csv", testutil.CSVStream(t, 500, 0))
	cfg := DefaultConfig()
	cfg.Samples = 40
	cfg.Seed = 2
	cfg.Output = filepath.Join(dir, "fresh.csv")
	cfg.OutputFiles = []string{stale}

	// WHEN generate-then-summarize runs
	var out bytes.Buffer
	result, err := GenerateThenSummarize(cfg, &out)

	// THEN only the freshly generated trials are counted
	require.NoError(t, err)
	assert.Equal(t, 40, result.Summary.Total())
	assert.Contains(t, out.String(), "Created "+cfg.Output)
	assert.Contains(t, out.String(), "## Overview")
}

func TestGenerateThenSummarize_NoOutput_UsesTemporaryFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = 25
	cfg.Seed = 3

	var out bytes.Buffer
	result, err := GenerateThenSummarize(cfg, &out)

	require.NoError(t, err)
	assert.Equal(t, 25, result.Summary.Total())
	assert.Contains(t, out.String(), "## Success Chains")
}

func TestRunSerial_WritesOneFilePerSeed(t *testing.T) {
	// GIVEN iterate over 4 seeds
	dir := t.TempDir()
	cfg := iterateConfig(dir, 4)

	// WHEN run serially
	var out bytes.Buffer
	result, err := RunSerial(context.Background(), cfg, &out)

	// THEN markov_0..markov_3 exist with seeds 1..4 and all trials are summarized
	require.NoError(t, err)
	require.Len(t, result.Runs, 4)
	for i, run := range result.Runs {
		assert.Equal(t, int64(i+1), run.Seed)
		assert.Equal(t, filepath.Join(dir, "markov_"+string(rune('0'+i))+".csv"), run.Output)
		assert.FileExists(t, run.Output)
	}
	assert.Equal(t, 200, result.Summary.Total())
	assert.Empty(t, result.Skipped)
}

func TestRunParallel_MatchesSerialReport(t *testing.T) {
	// GIVEN the same iterate config in two directories
	serialDir, parallelDir := t.TempDir(), t.TempDir()

	// WHEN run serially and in parallel
	var serialOut, parallelOut bytes.Buffer
	serial, err := RunSerial(context.Background(), iterateConfig(serialDir, 8), &serialOut)
	require.NoError(t, err)
	parallel, err := RunParallel(context.Background(), iterateConfig(parallelDir, 8), &parallelOut)
	require.NoError(t, err)

	// THEN the summaries and rendered reports are identical
	assert.Equal(t, serial.Summary, parallel.Summary)
	assert.Equal(t, summary.RenderReport(serial.Summary), summary.RenderReport(parallel.Summary))
	for i := range serial.Runs {
		assert.Equal(t, serial.Runs[i].Counts, parallel.Runs[i].Counts)
	}
}

func TestRunParallel_EchoesInSubmissionOrder(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	_, err := RunParallel(context.Background(), iterateConfig(dir, 6), &out)
	require.NoError(t, err)

	last := -1
	for i := 0; i < 6; i++ {
		idx := strings.Index(out.String(), "Created "+filepath.Join(dir, "markov_"+string(rune('0'+i))+".csv"))
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, last, "echo for unit %d out of order", i)
		last = idx
	}
	assert.Greater(t, strings.Index(out.String(), "## Overview"), last, "report follows all echoes")
}

func TestRunParallel_FailedUnitDoesNotBlankReport(t *testing.T) {
	// GIVEN a directory squatting on the third unit's output path
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "markov_2.csv"), 0o755))
	cfg := iterateConfig(dir, 5)

	// WHEN run in parallel
	var out bytes.Buffer
	result, err := RunParallel(context.Background(), cfg, &out)

	// THEN only that unit fails and the other four are summarized
	require.Error(t, err)
	te, ok := IsTaskErrors(err)
	require.True(t, ok)
	require.Len(t, te.Failures, 1)
	assert.Equal(t, int64(3), te.Failures[0].Seed)
	assert.Equal(t, 5, te.Total)
	require.NotNil(t, result)
	assert.Nil(t, result.Runs[2])
	assert.Len(t, result.Outputs, 4)
	assert.Equal(t, 200, result.Summary.Total())
	assert.Contains(t, out.String(), "## Overview")
}

func TestRunParallel_AtMostWorkersRunAtOnce(t *testing.T) {
	// GIVEN a job runner that records how many units run concurrently
	var active, peak atomic.Int32
	orig := runJob
	t.Cleanup(func() { runJob = orig })
	runJob = func(jc job.Config) (*job.Result, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return orig(jc)
	}
	dir := t.TempDir()
	cfg := iterateConfig(dir, 8)
	cfg.Workers = 2
	cfg.Parallel = true

	// WHEN more units than workers are iterated
	result, err := Iterate(context.Background(), cfg, &bytes.Buffer{})

	// THEN no more than two ran at once and every unit completed
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
	assert.Len(t, result.Outputs, 8)
	for i, run := range result.Runs {
		require.NotNil(t, run, "unit %d", i)
		assert.FileExists(t, filepath.Join(dir, fmt.Sprintf("markov_%d.csv", i)))
	}
	assert.Equal(t, 8*50, result.Summary.Total())
}

func TestRunSerial_FailedUnitStopsRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "markov_1.csv"), 0o755))

	var out bytes.Buffer
	result, err := RunSerial(context.Background(), iterateConfig(dir, 3), &out)

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.NotContains(t, out.String(), "## Overview")
	assert.NoFileExists(t, filepath.Join(dir, "markov_2.csv"))
}

func TestRunParallel_CancelledContext_SkipsUnits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()

	result, err := RunParallel(ctx, iterateConfig(dir, 4), &bytes.Buffer{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, result.Outputs)
	assert.Zero(t, result.Summary.Total())
}

func TestIterate_ZeroIterations_EmptyReport(t *testing.T) {
	// a file left from an earlier run is not picked up
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "markov_0.csv", testutil.CSVStream(t, 2, 2))
	var out bytes.Buffer
	result, err := Iterate(context.Background(), iterateConfig(dir, 0), &out)

	require.NoError(t, err)
	assert.Zero(t, result.Summary.Total())
	assert.Equal(t, summary.RenderReport(summary.New()), out.String())
}

func TestIterate_MsgpackFormat_UsesExtension(t *testing.T) {
	dir := t.TempDir()
	cfg := iterateConfig(dir, 2)
	cfg.Format = record.FormatMsgpack
	cfg.Parallel = true

	result, err := Iterate(context.Background(), cfg, &bytes.Buffer{})

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "markov_0.msgpack"))
	assert.Equal(t, 100, result.Summary.Total())
	assert.Equal(t, result.Runs[0].Counts[sim.OutcomeFail]+result.Runs[1].Counts[sim.OutcomeFail],
		result.Summary.OutcomeCounts[sim.OutcomeFail])
}

func TestCommand_Execute_DispatchesByKind(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		kind Kind
		want string
	}{
		{"generate", KindGenerate, "Created "},
		{"gensumm", KindGenerateThenSummarize, "## Overview"},
		{"iterate", KindIterate, "markov_0.csv"},
		{"summarize", KindSummarize, "## Fail Chains"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := iterateConfig(filepath.Join(dir, tt.name), 1)
			cfg.Output = filepath.Join(dir, tt.name+".csv")

			var out bytes.Buffer
			err := Command{Kind: tt.kind}.Execute(context.Background(), cfg, &out)

			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestCommand_Execute_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Samples = -1
	err := Command{Kind: KindGenerate}.Execute(context.Background(), cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindGenerate, KindSummarize, KindGenerateThenSummarize, KindIterate} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("simulate")
	assert.Error(t, err)
}
