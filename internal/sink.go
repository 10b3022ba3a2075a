package internal

import (
	"encoding/csv"
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Sink is the write end of one partition. Writes from concurrent
// partitioners are serialized so a line is never interleaved.
type Sink struct {
	mu     sync.Mutex
	key    string
	csv    *csv.Writer
	wc     io.WriteCloser
	closed bool
}

func NewSink(key string, wc io.WriteCloser) *Sink {
	return &Sink{
		key: key,
		csv: csv.NewWriter(wc),
		wc:  wc,
	}
}

func (s *Sink) Key() string { return s.key }

// Process appends one record, given as its raw fields, to the partition.
func (s *Sink) Process(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	return s.csv.Write(fields)
}

// Close flushes the buffered lines and releases the underlying writer.
// It is safe to call more than once; only the first call does work.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.csv.Flush()
	return multierr.Combine(s.csv.Error(), s.wc.Close())
}
