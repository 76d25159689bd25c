package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/inference-sim/markov-sim/sim/record"
)

// ScanHeaders reads the job header of every row-encoded file in paths.
// Unreadable files are returned as StreamErrors and left out.
func ScanHeaders(paths []string) ([]record.Header, []*StreamError) {
	headers := make([]record.Header, 0, len(paths))
	var skipped []*StreamError
	for _, path := range paths {
		h, err := scanFile(path)
		if err != nil {
			skipped = append(skipped, noteSkipped(path, err))
			continue
		}
		headers = append(headers, h)
	}
	return headers, skipped
}

func scanFile(path string) (record.Header, error) {
	file, err := os.Open(path)
	if err != nil {
		return record.Header{}, fmt.Errorf("opening stream: %w", err)
	}
	defer func() { _ = file.Close() }()

	switch record.FormatFromPath(path) {
	case record.FormatTOML:
		var doc tomlDocument
		if _, err := toml.NewDecoder(file).Decode(&doc); err != nil {
			return record.Header{}, fmt.Errorf("parsing toml: %w", err)
		}
		if doc.Configuration == nil {
			return record.Header{}, ErrMissingDelimiter
		}
		return *doc.Configuration, nil
	case record.FormatMsgpack:
		var h record.Header
		if err := msgpack.NewDecoder(file).Decode(&h); err != nil {
			return record.Header{}, fmt.Errorf("decoding msgpack header: %w", err)
		}
		return h, nil
	}
	return record.ScanHeader(file)
}

// WriteTotals writes one csv row per header (file, samples, randomize)
// followed by a TOTAL row summing samples.
func WriteTotals(w io.Writer, headers []record.Header) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"file", "samples", "randomize"}); err != nil {
		return fmt.Errorf("writing totals header: %w", err)
	}
	total := 0
	for _, h := range headers {
		total += h.Samples
		row := []string{h.File, strconv.Itoa(h.Samples), strconv.FormatInt(h.Randomize, 10)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing totals row: %w", err)
		}
	}
	if err := cw.Write([]string{"TOTAL", strconv.Itoa(total), ""}); err != nil {
		return fmt.Errorf("writing totals row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
