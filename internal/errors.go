package internal

import "github.com/pkg/errors"

// Error kinds. Every one of them is fatal to the run; callers classify
// with errors.Is.
var (
	ErrUnparsableRecord      = errors.New("unparsable record")
	ErrUnmatchedPartitionKey = errors.New("ip does not match partition key pattern")
	ErrUnparsableIP          = errors.New("unparsable ip")
	ErrExternalProcess       = errors.New("external process failed")
	ErrFileSystem            = errors.New("file system error")
)
