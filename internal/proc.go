package internal

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// procWriter streams into the stdin of a running process. Close hands
// the process EOF and waits for it to exit, so whatever it writes is
// complete once Close returns.
type procWriter struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   io.Closer
}

func startWriter(argv []string, out io.WriteCloser) (*procWriter, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrapf(ErrExternalProcess, "%s: %v", cmd, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrExternalProcess, "start %s: %v", cmd, err)
	}
	return &procWriter{cmd: cmd, stdin: stdin, out: out}, nil
}

func (p *procWriter) Write(b []byte) (int, error) {
	n, err := p.stdin.Write(b)
	if err != nil {
		return n, errors.Wrapf(ErrExternalProcess, "write to %s: %v", p.cmd, err)
	}
	return n, nil
}

func (p *procWriter) Close() error {
	err := p.stdin.Close()
	if werr := p.cmd.Wait(); werr != nil {
		err = multierr.Append(err, errors.Wrapf(ErrExternalProcess, "%s: %v", p.cmd, werr))
	}
	if cerr := p.out.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(ErrFileSystem, cerr.Error()))
	}
	return err
}

// procReader exposes the stdout of a running process. Close waits for
// the process; if the stream was not read to the end the process is
// killed first, since it may be blocked writing to us.
type procReader struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	cancel   context.CancelFunc
	upstream io.Closer
	eof      bool
}

func startReader(ctx context.Context, argv []string, stdin io.Reader, upstream io.Closer, env ...string) (*procReader, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stderr = os.Stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrapf(ErrExternalProcess, "%s: %v", cmd, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrapf(ErrExternalProcess, "start %s: %v", cmd, err)
	}
	return &procReader{cmd: cmd, stdout: stdout, cancel: cancel, upstream: upstream}, nil
}

func (p *procReader) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if err == io.EOF {
		p.eof = true
	}
	return n, err
}

func (p *procReader) Close() error {
	if !p.eof {
		p.cancel()
	}
	werr := p.cmd.Wait()
	p.cancel()

	var err error
	if werr != nil && p.eof {
		err = errors.Wrapf(ErrExternalProcess, "%s: %v", p.cmd, werr)
	}
	if p.upstream != nil {
		err = multierr.Append(err, p.upstream.Close())
	}
	return err
}
