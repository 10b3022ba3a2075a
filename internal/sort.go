package internal

import (
	"context"
	"fmt"
	"io"
)

// Sorter runs an external sort over a partition. The output is ordered
// byte-wise on the whole line: LC_ALL=C keeps locale collation out of
// it, so all lines of one ip end up next to each other.
type Sorter struct {
	command    []string
	bufferSize int64
	tempDir    string
}

func NewSorter(command []string, bufferSize int64, tempDir string) *Sorter {
	return &Sorter{command: command, bufferSize: bufferSize, tempDir: tempDir}
}

func (s *Sorter) args() []string {
	argv := append([]string(nil), s.command...)
	if s.bufferSize > 0 {
		argv = append(argv, "-S", fmt.Sprintf("%db", s.bufferSize))
	}
	if s.tempDir != "" {
		argv = append(argv, "-T", s.tempDir)
	}
	return argv
}

// Sort feeds in to the sort process and returns its output. Closing the
// result waits for the process and then closes in.
func (s *Sorter) Sort(ctx context.Context, in io.ReadCloser) (io.ReadCloser, error) {
	r, err := startReader(ctx, s.args(), in, in, "LC_ALL=C")
	if err != nil {
		_ = in.Close()
		return nil, err
	}
	return r, nil
}
