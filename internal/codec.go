package internal

import (
	"context"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

const (
	CodecExec   = "exec"
	CodecNative = "native"
)

const partitionExt = ".csv.gz"

// Codec writes and reads compressed partition files.
type Codec interface {
	// Create returns a writer whose Close blocks until the file is
	// complete on disk.
	Create(path string) (io.WriteCloser, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Ext() string
}

// NewCodec resolves a codec by its configured name.
func NewCodec(name string, fs afero.Fs, compress, decompress []string) (Codec, error) {
	switch name {
	case CodecExec:
		return NewExecCodec(fs, compress, decompress), nil
	case CodecNative:
		return NewNativeCodec(fs), nil
	}
	return nil, errors.Errorf("unknown partition codec %q", name)
}

type execCodec struct {
	fs         afero.Fs
	compress   []string
	decompress []string
}

// NewExecCodec pipes partitions through external compressor processes.
func NewExecCodec(fs afero.Fs, compress, decompress []string) Codec {
	return &execCodec{fs: fs, compress: compress, decompress: decompress}
}

func (c *execCodec) Create(path string) (io.WriteCloser, error) {
	f, err := c.fs.Create(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "create %s: %v", path, err)
	}
	w, err := startWriter(c.compress, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func (c *execCodec) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "open %s: %v", path, err)
	}
	r, err := startReader(ctx, c.decompress, f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (c *execCodec) Ext() string { return partitionExt }

type nativeCodec struct {
	fs afero.Fs
}

// NewNativeCodec compresses partitions in process.
func NewNativeCodec(fs afero.Fs) Codec {
	return &nativeCodec{fs: fs}
}

type gzipFileWriter struct {
	*gzip.Writer
	f afero.File
}

func (w *gzipFileWriter) Close() error {
	err := w.Writer.Close()
	if cerr := w.f.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(ErrFileSystem, cerr.Error()))
	}
	return err
}

type gzipFileReader struct {
	*gzip.Reader
	f afero.File
}

func (r *gzipFileReader) Close() error {
	return multierr.Combine(r.Reader.Close(), r.f.Close())
}

func (c *nativeCodec) Create(path string) (io.WriteCloser, error) {
	f, err := c.fs.Create(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "create %s: %v", path, err)
	}
	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &gzipFileWriter{Writer: zw, f: f}, nil
}

func (c *nativeCodec) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "open %s: %v", path, err)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(ErrUnparsableRecord, "%s: %v", path, err)
	}
	return &gzipFileReader{Reader: zr, f: f}, nil
}

func (c *nativeCodec) Ext() string { return partitionExt }
