package record

import (
	"bufio"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	sim "github.com/inference-sim/markov-sim/sim"
)

// MsgpackWriter writes a binary stream: one msgpack-encoded Header followed
// by one msgpack-encoded Record per trial, back to back.
type MsgpackWriter struct {
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	header bool
}

// NewMsgpackWriter returns a binary writer on w.
func NewMsgpackWriter(w io.Writer) *MsgpackWriter {
	buf := bufio.NewWriter(w)
	return &MsgpackWriter{buf: buf, enc: msgpack.NewEncoder(buf)}
}

// WriteHeader encodes the Header frame.
func (m *MsgpackWriter) WriteHeader(h Header) error {
	if m.header {
		return errHeaderState
	}
	m.header = true
	if err := m.enc.Encode(&h); err != nil {
		return fmt.Errorf("encoding msgpack header: %w", err)
	}
	return nil
}

// WriteResult encodes one Record frame.
func (m *MsgpackWriter) WriteResult(r sim.TrialResult) error {
	if !m.header {
		return errHeaderState
	}
	rec := FromResult(r)
	if err := m.enc.Encode(&rec); err != nil {
		return fmt.Errorf("encoding msgpack record: %w", err)
	}
	return nil
}

// Close flushes buffered frames.
func (m *MsgpackWriter) Close() error {
	if err := m.buf.Flush(); err != nil {
		return fmt.Errorf("flushing msgpack writer: %w", err)
	}
	return nil
}
