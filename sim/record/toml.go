package record

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	sim "github.com/inference-sim/markov-sim/sim"
)

// TOMLWriter writes the nested encoding: one [Configuration] table followed
// by one [[Samples]] entry per trial.
// Keys inside each table are indented by two spaces.
type TOMLWriter struct {
	w      *bufio.Writer
	header bool
}

// NewTOMLWriter returns a nested-encoding writer on w.
func NewTOMLWriter(w io.Writer) *TOMLWriter {
	return &TOMLWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the [Configuration] table.
func (t *TOMLWriter) WriteHeader(h Header) error {
	if t.header {
		return errHeaderState
	}
	t.header = true
	_, err := fmt.Fprintf(t.w, "[Configuration]\n  file = %s\n  samples = %d\n  randomize = %d\n",
		tomlString(h.File), h.Samples, h.Randomize)
	if err != nil {
		return fmt.Errorf("writing toml header: %w", err)
	}
	return nil
}

// WriteResult writes one [[Samples]] entry.
func (t *TOMLWriter) WriteResult(r sim.TrialResult) error {
	if !t.header {
		return errHeaderState
	}
	_, err := fmt.Fprintf(t.w, "[[Samples]]\n  outcome = %s\n  length = %d\n  chain = %s\n",
		tomlString(string(r.Outcome)), len(r.Chain), tomlList(r.Chain))
	if err != nil {
		return fmt.Errorf("writing toml sample: %w", err)
	}
	return nil
}

// Close flushes buffered entries.
func (t *TOMLWriter) Close() error {
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("flushing toml writer: %w", err)
	}
	return nil
}

// tomlString quotes s as a toml basic string. Control characters other than
// the named escapes are written as \uXXXX.
func tomlString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// tomlList renders a chain as a toml integer array, e.g. [6, 10, 12, 7].
func tomlList(chain []int) string {
	parts := make([]string, len(chain))
	for i, roll := range chain {
		parts[i] = strconv.Itoa(roll)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
