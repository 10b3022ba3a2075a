package internal

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type jobFixture struct {
	fs     afero.Fs
	dir    string
	inputs []string
}

func newJobFixture(t *testing.T) *jobFixture {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	f := &jobFixture{fs: fs, dir: dir}

	f.add(t, "a.csv", []byte(strings.Join([]string{
		"1.2.3.4,2016-02-02,3,ssh",
		"8.8.8.8,2016-02-02,1,telnet",
		"192.168.0.1,2016-02-02,5,ssh",
		"2001:db8::1,2016-03-01,2,ssh",
		"12.34.56.78,2016-02-02,1,ssh",
	}, "\n")+"\n"))
	f.add(t, "b.csv.gz", gzipBytes(t, strings.Join([]string{
		"1.2.3.4,2016-12-02,1,telnet",
		"1.2.3.4,2016-02-02,4,ssh",
		"127.0.0.1,2016-02-02,9,ssh",
		"12.34.56.78,2016-02-03,1,ssh",
	}, "\n")+"\n"))
	return f
}

func (f *jobFixture) add(t *testing.T, name string, data []byte) {
	path := filepath.Join(f.dir, name)
	require.NoError(t, afero.WriteFile(f.fs, path, data, 0o644))
	f.inputs = append(f.inputs, path)
}

var wantFixtureOutput = map[string]map[string]map[string]uint64{
	"1.2.3.4":     {"ssh": {"2016-02-02": 7}, "telnet": {"2016-12-02": 1}},
	"8.8.8.8":     {"telnet": {"2016-02-02": 1}},
	"2001:db8::1": {"ssh": {"2016-03-01": 2}},
	"12.34.56.78": {"ssh": {"2016-02-02": 1, "2016-02-03": 1}},
}

func decodeOutput(t *testing.T, out string) map[string]map[string]map[string]uint64 {
	got := make(map[string]map[string]map[string]uint64)
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		ip, kinds := decodeLine(t, line)
		_, dup := got[ip]
		require.False(t, dup, "ip %s emitted twice", ip)
		got[ip] = kinds
	}
	return got
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Concurrency = 3
	cfg.PartitionCodec = CodecNative
	cfg.InputMode = InputNative
	cfg.SortBufferSize = ""
	return cfg
}

func TestJobRun(t *testing.T) {
	requireCommands(t, "sort")

	for _, key := range []string{KeyPrefix, KeyHash} {
		f := newJobFixture(t)
		cfg := testConfig(t)
		cfg.PartitionKey = key
		cfg.HashPartitions = 3

		var out bytes.Buffer
		j, err := NewJob(NewJobConfig{Config: cfg, Inputs: f.inputs, Output: &out, Fs: f.fs, Logger: zerolog.Nop()})
		require.NoError(t, err)
		require.NoError(t, j.Run(context.Background()))

		require.Equal(t, wantFixtureOutput, decodeOutput(t, out.String()))
		require.EqualValues(t, 2, j.Stats().Inputs.Load())
		require.EqualValues(t, 9, j.Stats().Routed.Load())
		require.EqualValues(t, 2, j.Stats().Dropped.Load())
		require.EqualValues(t, 4, j.Stats().Emitted.Load())

		// the temporary workspace is gone
		exists, err := afero.DirExists(f.fs, j.Workspace().Dir())
		require.NoError(t, err)
		require.False(t, exists)
	}
}

func TestJobRunExec(t *testing.T) {
	requireCommands(t, "sort", "gzip")

	f := newJobFixture(t)
	cfg := DefaultConfig()
	cfg.SortBufferSize = ""
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")

	var out bytes.Buffer
	j, err := NewJob(NewJobConfig{Config: cfg, Inputs: f.inputs, Output: &out, Fs: f.fs, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, wantFixtureOutput, decodeOutput(t, out.String()))

	// partitions are removed, the directory itself is ours to keep
	keys, err := j.Partitions()
	require.NoError(t, err)
	require.Empty(t, keys)
	exists, err := afero.DirExists(f.fs, cfg.WorkDir)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestJobSplitThenMerge(t *testing.T) {
	requireCommands(t, "sort")

	f := newJobFixture(t)
	cfg := testConfig(t)
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.KeepPartitions = true

	splitter, err := NewJob(NewJobConfig{Config: cfg, Inputs: f.inputs, Fs: f.fs, Logger: zerolog.Nop()})
	require.NoError(t, err)
	keys, err := splitter.Split(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"1", "12", "19", "20", "8"}, keys)
	require.EqualValues(t, 5, splitter.Stats().Partitions.Load())

	var out bytes.Buffer
	merger, err := NewJob(NewJobConfig{Config: cfg, Output: &out, Fs: f.fs, Logger: zerolog.Nop()})
	require.NoError(t, err)
	found, err := merger.Partitions()
	require.NoError(t, err)
	require.Equal(t, keys, found)
	require.NoError(t, merger.Merge(context.Background(), found))
	require.Equal(t, wantFixtureOutput, decodeOutput(t, out.String()))

	// kept for another merge
	found, err = merger.Partitions()
	require.NoError(t, err)
	require.Equal(t, keys, found)
}

func TestJobNoInputs(t *testing.T) {
	var out bytes.Buffer
	cfg := testConfig(t)
	j, err := NewJob(NewJobConfig{Config: cfg, Output: &out, Fs: afero.NewMemMapFs(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, j.Run(context.Background()))
	require.Zero(t, out.Len())
}

func TestJobFailsFast(t *testing.T) {
	f := newJobFixture(t)
	f.add(t, "c.csv", []byte("1.2.3.4,2016-02-02,3\n"))

	var out bytes.Buffer
	j, err := NewJob(NewJobConfig{Config: testConfig(t), Inputs: f.inputs, Output: &out, Fs: f.fs, Logger: zerolog.Nop()})
	require.NoError(t, err)
	err = j.Run(context.Background())
	require.ErrorIs(t, err, ErrUnparsableRecord)
	require.Zero(t, out.Len())

	require.NoError(t, f.fs.RemoveAll(j.Workspace().Dir()))
}

func TestJobMissingInput(t *testing.T) {
	var out bytes.Buffer
	fs := afero.NewMemMapFs()
	j, err := NewJob(NewJobConfig{Config: testConfig(t), Inputs: []string{"/nope.csv"}, Output: &out, Fs: fs, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.ErrorIs(t, j.Run(context.Background()), ErrFileSystem)
}

func TestNewJobRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Concurrency = 0
	_, err := NewJob(NewJobConfig{Config: cfg, Fs: afero.NewMemMapFs(), Logger: zerolog.Nop()})
	require.Error(t, err)
}
