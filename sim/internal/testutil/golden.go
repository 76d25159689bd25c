// Package testutil provides shared test infrastructure for the markov-sim
// pipeline. It consolidates stream builders and golden-file helpers used
// across sim/summary/ and sim/pipeline/ test packages.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	sim "github.com/inference-sim/markov-sim/sim"
	"github.com/inference-sim/markov-sim/sim/record"
)

// LoadGolden reads a golden file from the repository testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGolden(t *testing.T, name string) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden file %s: %v", name, err)
	}
	return string(data)
}

// Results builds trial results with the given counts. Successes are natural
// sevens (length 1); failures are a point of 4 sevened out (length 2).
func Results(successes, fails int) []sim.TrialResult {
	out := make([]sim.TrialResult, 0, successes+fails)
	for i := 0; i < successes; i++ {
		out = append(out, sim.TrialResult{Outcome: sim.OutcomeSuccess, Chain: sim.Chain{7}})
	}
	for i := 0; i < fails; i++ {
		out = append(out, sim.TrialResult{Outcome: sim.OutcomeFail, Chain: sim.Chain{4, 7}})
	}
	return out
}

// EncodeStream encodes header and results in format f.
func EncodeStream(t *testing.T, f record.Format, h record.Header, results []sim.TrialResult) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := record.NewWriter(f, &buf)
	if err != nil {
		t.Fatalf("NewWriter(%s): %v", f, err)
	}
	if err := w.WriteHeader(h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for _, r := range results {
		if err := w.WriteResult(r); err != nil {
			t.Fatalf("WriteResult: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

// CSVStream returns a row-encoded stream with the given outcome counts.
func CSVStream(t *testing.T, successes, fails int) []byte {
	t.Helper()
	h := record.Header{File: "fixture.csv", Samples: successes + fails, Randomize: 1}
	return EncodeStream(t, record.FormatCSV, h, Results(successes, fails))
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}
