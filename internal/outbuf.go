package internal

import (
	"bufio"
	"io"
	"sync"
)

const outputWriteBuffer = 1 << 20

// SharedOutput is the one stream every aggregator writes to.
type SharedOutput struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewSharedOutput(w io.Writer) *SharedOutput {
	return &SharedOutput{w: bufio.NewWriterSize(w, outputWriteBuffer)}
}

func (o *SharedOutput) writeLines(lines []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, l := range lines {
		if _, err := o.w.WriteString(l); err != nil {
			return err
		}
		if err := o.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return o.w.Flush()
}

// OutputBuffer collects lines for one aggregator and hands them to the
// shared output in batches, taking its lock once per batch. Not safe
// for concurrent use; give each task its own.
type OutputBuffer struct {
	out   *SharedOutput
	lines []string
}

func NewOutputBuffer(out *SharedOutput, capacity int) *OutputBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &OutputBuffer{out: out, lines: make([]string, 0, capacity)}
}

func (b *OutputBuffer) WriteLine(line string) error {
	if len(b.lines) == cap(b.lines) {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	b.lines = append(b.lines, line)
	return nil
}

// Flush writes out everything buffered so far.
func (b *OutputBuffer) Flush() error {
	if len(b.lines) == 0 {
		return nil
	}
	err := b.out.writeLines(b.lines)
	for i := range b.lines {
		b.lines[i] = ""
	}
	b.lines = b.lines[:0]
	return err
}

// Close drains the buffer. Run it on every exit path of the owning task.
func (b *OutputBuffer) Close() error {
	return b.Flush()
}
