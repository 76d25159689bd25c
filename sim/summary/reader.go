package summary

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	sim "github.com/inference-sim/markov-sim/sim"
	"github.com/inference-sim/markov-sim/sim/record"
)

// ErrMissingDelimiter reports a stream whose header/body delimiter was never
// found. Such a stream counts as empty.
var ErrMissingDelimiter = errors.New("header delimiter not found")

// StreamError records why one input stream contributed no records.
type StreamError struct {
	Name string
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Name, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Stream is one named input for AggregateStreams.
type Stream struct {
	Name   string
	Format record.Format
	Reader io.Reader
}

// ReadStream parses one result stream into a fresh Summary.
//
// Chain length is always recomputed from the parsed chain. On any error the
// returned Summary is empty: a stream either contributes all its records or
// none of them.
func ReadStream(r io.Reader, format record.Format) (*Summary, error) {
	var (
		s   *Summary
		err error
	)
	switch format {
	case record.FormatCSV, "":
		s, err = readCSV(r)
	case record.FormatTOML:
		s, err = readTOML(r)
	case record.FormatMsgpack:
		s, err = readMsgpack(r)
	default:
		err = fmt.Errorf("%w: %q", record.ErrUnknownFormat, format)
	}
	if err != nil {
		return New(), err
	}
	return s, nil
}

// ReadFile parses the stream stored at path, inferring its format from the
// file extension.
func ReadFile(path string) (*Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return New(), fmt.Errorf("opening stream: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadStream(file, record.FormatFromPath(path))
}

// Aggregate folds every file in paths into one Summary. Files that cannot
// be opened or parsed contribute nothing and are returned as StreamErrors;
// they never abort the aggregation of the others.
func Aggregate(paths []string) (*Summary, []*StreamError) {
	total := New()
	var skipped []*StreamError
	for _, path := range paths {
		s, err := ReadFile(path)
		if err != nil {
			skipped = append(skipped, noteSkipped(path, err))
			continue
		}
		total.Merge(s)
	}
	return total, skipped
}

// AggregateStreams is Aggregate for in-memory streams.
func AggregateStreams(streams []Stream) (*Summary, []*StreamError) {
	total := New()
	var skipped []*StreamError
	for _, st := range streams {
		s, err := ReadStream(st.Reader, st.Format)
		if err != nil {
			skipped = append(skipped, noteSkipped(st.Name, err))
			continue
		}
		total.Merge(s)
	}
	return total, skipped
}

func noteSkipped(name string, err error) *StreamError {
	se := &StreamError{Name: name, Err: err}
	if errors.Is(err, ErrMissingDelimiter) {
		logrus.Infof("Skipping %s: %v", name, err)
	} else {
		logrus.Warnf("Skipping %s: %v", name, err)
	}
	return se
}

// addRecord validates one parsed record and counts it.
func addRecord(s *Summary, outcome string, chain []int) error {
	if !sim.IsValidOutcome(outcome) {
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	if len(chain) == 0 {
		return errors.New("empty chain")
	}
	for _, roll := range chain {
		if roll < 2 || roll > 12 {
			return fmt.Errorf("roll %d out of range [2,12]", roll)
		}
	}
	s.Add(sim.Outcome(outcome), len(chain))
	return nil
}

func readCSV(r io.Reader) (*Summary, error) {
	br := bufio.NewReader(r)
	found := false
	for {
		line, err := br.ReadString('\n')
		if record.IsDelimiter(line) {
			found = true
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
	}
	if !found {
		return nil, ErrMissingDelimiter
	}

	reader := csv.NewReader(br)
	columns, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	outcomeCol, chainCol := -1, -1
	for i, name := range columns {
		switch strings.TrimSpace(name) {
		case "outcome":
			outcomeCol = i
		case "chain":
			chainCol = i
		}
	}
	if outcomeCol < 0 || chainCol < 0 {
		return nil, fmt.Errorf("CSV header %v lacks outcome or chain column", columns)
	}

	s := New()
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", row, err)
		}
		chain, err := record.SplitChain(fields[chainCol])
		if err != nil {
			return nil, fmt.Errorf("CSV row %d: %w", row, err)
		}
		if err := addRecord(s, fields[outcomeCol], chain); err != nil {
			return nil, fmt.Errorf("CSV row %d: %w", row, err)
		}
	}
	return s, nil
}

// tomlDocument is the nested encoding as decoded by the toml parser.
type tomlDocument struct {
	Configuration *record.Header  `toml:"Configuration"`
	Samples       []record.Record `toml:"Samples"`
}

func readTOML(r io.Reader) (*Summary, error) {
	var doc tomlDocument
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing toml: %w", err)
	}
	if doc.Configuration == nil {
		return nil, ErrMissingDelimiter
	}
	s := New()
	for i, rec := range doc.Samples {
		if err := addRecord(s, rec.Outcome, rec.Chain); err != nil {
			return nil, fmt.Errorf("toml sample %d: %w", i, err)
		}
	}
	return s, nil
}

func readMsgpack(r io.Reader) (*Summary, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var h record.Header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingDelimiter
		}
		return nil, fmt.Errorf("decoding msgpack header: %w", err)
	}
	s := New()
	for i := 0; ; i++ {
		// EOF is only clean at a frame boundary; inside a frame it means truncation.
		if _, err := dec.PeekCode(); errors.Is(err, io.EOF) {
			break
		}
		var rec record.Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding msgpack record %d: %w", i, err)
		}
		if err := addRecord(s, rec.Outcome, rec.Chain); err != nil {
			return nil, fmt.Errorf("msgpack record %d: %w", i, err)
		}
	}
	return s, nil
}
