// Package record provides the persisted form of trial results and the
// writers that serialize them. Three encodings share one Writer interface:
// csv rows, nested toml documents and msgpack frames.
package record

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	sim "github.com/inference-sim/markov-sim/sim"
)

// Header is the per-run metadata written once before any Record.
type Header struct {
	File      string `msgpack:"file" toml:"file"`
	Samples   int    `msgpack:"samples" toml:"samples"`
	Randomize int64  `msgpack:"randomize" toml:"randomize"`
}

// Record is one serialized trial. Length always equals len(Chain).
type Record struct {
	Outcome string `msgpack:"outcome" toml:"outcome"`
	Length  int    `msgpack:"length" toml:"length"`
	Chain   []int  `msgpack:"chain" toml:"chain"`
}

// FromResult converts a trial result into its persisted form.
func FromResult(r sim.TrialResult) Record {
	chain := make([]int, len(r.Chain))
	copy(chain, r.Chain)
	return Record{
		Outcome: string(r.Outcome),
		Length:  len(chain),
		Chain:   chain,
	}
}

// Format selects a result encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatTOML    Format = "toml"
	FormatMsgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for format names no writer exists for.
var ErrUnknownFormat = errors.New("unknown record format")

// validFormats maps accepted format strings.
var validFormats = map[Format]bool{
	FormatCSV:     true,
	FormatTOML:    true,
	FormatMsgpack: true,
	"":            true, // empty defaults to csv
}

// IsValidFormat returns true if the given format string is a recognized encoding.
func IsValidFormat(name string) bool {
	return validFormats[Format(name)]
}

// ParseFormat validates name and applies the csv default.
func ParseFormat(name string) (Format, error) {
	if !IsValidFormat(name) {
		return "", fmt.Errorf("%w: %q (want csv, toml or msgpack)", ErrUnknownFormat, name)
	}
	if name == "" {
		return FormatCSV, nil
	}
	return Format(name), nil
}

// Ext returns the file extension, dot included, conventionally used for f.
func (f Format) Ext() string {
	switch f {
	case FormatTOML:
		return ".toml"
	case FormatMsgpack:
		return ".msgpack"
	}
	return ".csv"
}

// FormatFromPath infers the encoding from a file extension. Unknown
// extensions are read as csv.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".msgpack", ".mpk":
		return FormatMsgpack
	}
	return FormatCSV
}

// Writer serializes one header followed by trial results.
//
// WriteHeader must be called exactly once, before any WriteResult.
// Data is only guaranteed to reach the sink after Close.
type Writer interface {
	WriteHeader(h Header) error
	WriteResult(r sim.TrialResult) error
	Close() error
}

// NewWriter returns the Writer for format f on sink w.
// Close flushes buffered data but never closes w.
func NewWriter(f Format, w io.Writer) (Writer, error) {
	switch f {
	case FormatCSV, "":
		return NewCSVWriter(w), nil
	case FormatTOML:
		return NewTOMLWriter(w), nil
	case FormatMsgpack:
		return NewMsgpackWriter(w), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// errHeaderState is returned when the header/result call order is violated.
var errHeaderState = errors.New("record writer: header must be written exactly once before results")
