package record

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	sim "github.com/inference-sim/markov-sim/sim"
)

// Delimiter is the comment line separating the csv header block from the
// record table.
const Delimiter = "# -----"

// IsDelimiter reports whether line is the header/body delimiter: a comment
// line holding only a run of at least five dashes. Lines that merely contain
// dashes, such as a header value, are not delimiters.
func IsDelimiter(line string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "#")
	if !ok {
		return false
	}
	rest = strings.TrimSpace(rest)
	return len(rest) >= 5 && strings.Trim(rest, "-") == ""
}

// ChainSeparator joins roll values inside the csv chain column.
const ChainSeparator = ";"

// CSV column headers for the record table.
var csvColumns = []string{"outcome", "length", "chain"}

// CSVWriter writes the row encoding:
//
//	# file = "<output_path>"
//	# samples = <int>
//	# randomize = <int>
//	# -----
//	outcome,length,chain
//	Success,2,"7;10"
type CSVWriter struct {
	w      *bufio.Writer
	header bool
}

// NewCSVWriter returns a row-encoding writer on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the comment block, the delimiter and the column row.
func (c *CSVWriter) WriteHeader(h Header) error {
	if c.header {
		return errHeaderState
	}
	c.header = true
	if err := WriteHeaderLines(c.w, h); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.w, "%s\n%s\n", Delimiter, strings.Join(csvColumns, ",")); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	return nil
}

// WriteResult writes one record row.
func (c *CSVWriter) WriteResult(r sim.TrialResult) error {
	if !c.header {
		return errHeaderState
	}
	if _, err := fmt.Fprintf(c.w, "%s,%d,\"%s\"\n", r.Outcome, len(r.Chain), JoinChain(r.Chain)); err != nil {
		return fmt.Errorf("writing csv row: %w", err)
	}
	return nil
}

// Close flushes buffered rows.
func (c *CSVWriter) Close() error {
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flushing csv writer: %w", err)
	}
	return nil
}

// WriteHeaderLines writes only the three "# key = value" comment lines.
// Generate also uses it to echo run metadata to the console.
func WriteHeaderLines(w io.Writer, h Header) error {
	_, err := fmt.Fprintf(w, "# file = \"%s\"\n# samples = %d\n# randomize = %d\n", h.File, h.Samples, h.Randomize)
	if err != nil {
		return fmt.Errorf("writing header lines: %w", err)
	}
	return nil
}

// JoinChain renders a chain as semicolon-separated roll values.
func JoinChain(chain []int) string {
	parts := make([]string, len(chain))
	for i, roll := range chain {
		parts[i] = strconv.Itoa(roll)
	}
	return strings.Join(parts, ChainSeparator)
}

// SplitChain parses a semicolon-separated chain. An empty string is an
// empty chain.
func SplitChain(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ChainSeparator)
	chain := make([]int, len(parts))
	for i, p := range parts {
		roll, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parsing chain roll %d %q: %w", i, p, err)
		}
		chain[i] = roll
	}
	return chain, nil
}
