package internal

import (
	"compress/bzip2"
	"context"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

const (
	InputExec   = "exec"
	InputNative = "native"
)

// InputOpener opens input files, decompressing them according to their
// extension.
type InputOpener struct {
	fs       afero.Fs
	mode     string
	commands map[string][]string
}

func NewInputOpener(fs afero.Fs, mode string, commands map[string][]string) (*InputOpener, error) {
	if mode != InputExec && mode != InputNative {
		return nil, errors.Errorf("unknown input mode %q", mode)
	}
	return &InputOpener{fs: fs, mode: mode, commands: commands}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Open returns the decompressed content of path. Files whose extension
// has no decompressor are read as they are.
func (o *InputOpener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := o.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "open %s: %v", path, err)
	}
	ext := filepath.Ext(path)

	if o.mode == InputExec {
		argv, ok := o.commands[ext]
		if !ok {
			return f, nil
		}
		r, err := startReader(ctx, argv, f, f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return r, nil
	}

	switch ext {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(ErrUnparsableRecord, "%s: %v", path, err)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(ErrUnparsableRecord, "%s: %v", path, err)
		}
		rc := zr.IOReadCloser()
		return &readCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	case ".bz2":
		return &readCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	}
	return f, nil
}
