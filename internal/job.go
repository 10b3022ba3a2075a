package internal

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type NewJobConfig struct {
	Config Config
	Inputs []string
	Output io.Writer
	Fs     afero.Fs
	Logger zerolog.Logger
}

// Job aggregates the inputs in two stages: split every input into
// partitions keyed by ip, then sort and aggregate every partition.
// Both stages run on a pool of Config.Concurrency tasks.
type Job struct {
	cfg    Config
	inputs []string
	out    *SharedOutput
	logger zerolog.Logger
	stats  *Stats

	keyFn      KeyFunc
	codec      Codec
	opener     *InputOpener
	sorter     *Sorter
	ws         *Workspace
	readBuffer int
}

func NewJob(conf NewJobConfig) (*Job, error) {
	cfg := conf.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fs := conf.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	out := conf.Output
	if out == nil {
		out = os.Stdout
	}

	keyFn, err := NewKeyFunc(cfg.PartitionKey, cfg.HashPartitions)
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(cfg.PartitionCodec, fs, cfg.CompressCommand, cfg.DecompressCommand)
	if err != nil {
		return nil, err
	}
	opener, err := NewInputOpener(fs, cfg.InputMode, cfg.InputCommands)
	if err != nil {
		return nil, err
	}
	readBuffer, err := cfg.ReadBufferBytes()
	if err != nil {
		return nil, err
	}
	sortBuffer, err := cfg.SortBufferBytes()
	if err != nil {
		return nil, err
	}
	ws, err := NewWorkspace(fs, cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	sortTemp := cfg.SortTempDir
	if sortTemp == "" {
		sortTemp = ws.Dir()
	}

	return &Job{
		cfg:        cfg,
		inputs:     conf.Inputs,
		out:        NewSharedOutput(out),
		logger:     conf.Logger.With().Str("name", "job").Logger(),
		stats:      &Stats{},
		keyFn:      keyFn,
		codec:      codec,
		opener:     opener,
		sorter:     NewSorter(cfg.SortCommand, sortBuffer, sortTemp),
		ws:         ws,
		readBuffer: readBuffer,
	}, nil
}

func (j *Job) Stats() *Stats { return j.stats }

func (j *Job) Workspace() *Workspace { return j.ws }

// Run executes both stages. On failure the partition files stay on
// disk and whatever was already written to the output is incomplete.
func (j *Job) Run(ctx context.Context) error {
	log := j.logger
	start := time.Now()

	keys, err := j.Split(ctx)
	if err != nil {
		return err
	}
	if err := j.Merge(ctx, keys); err != nil {
		return err
	}
	if j.cfg.KeepPartitions {
		log.Info().Str("workdir", j.ws.Dir()).Msg("keeping partitions")
	} else if err := j.ws.Cleanup(); err != nil {
		log.Err(err).Msg("failed to clean up workspace")
		return err
	}

	log.Info().Object("stats", j.stats).Dur("took", time.Since(start)).Msg("finished job")
	return nil
}

// Split partitions every input and returns the keys of the partitions
// written. All sinks are closed before it returns, on success or not.
func (j *Job) Split(ctx context.Context) ([]string, error) {
	log := j.logger.With().Str("stage", "split").Logger()
	log.Info().Int("inputs", len(j.inputs)).Str("workdir", j.ws.Dir()).Msg("starting split")
	start := time.Now()

	pool := NewSinkPool(func(key string) (*Sink, error) {
		wc, err := j.codec.Create(j.ws.PartitionPath(key, j.codec.Ext()))
		if err != nil {
			log.Err(err).Str("key", key).Msg("failed to create partition")
			return nil, err
		}
		j.stats.Partitions.Inc()
		log.Debug().Str("key", key).Msg("created partition")
		return NewSink(key, wc), nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for _, input := range j.inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return j.splitOne(gctx, pool, input)
		})
	}

	err := g.Wait()
	if cerr := pool.Close(); cerr != nil {
		log.Err(cerr).Msg("failed to close partitions")
		err = multierr.Append(err, cerr)
	}
	if err != nil {
		log.Err(err).Msg("failed split")
		return nil, err
	}

	keys := pool.Keys()
	log.Info().Int("partitions", len(keys)).Dur("took", time.Since(start)).Msg("finished split")
	return keys, nil
}

func (j *Job) splitOne(ctx context.Context, pool *SinkPool, path string) (err error) {
	log := j.logger.With().Str("input", path).Logger()
	log.Debug().Msg("partitioning input")

	in, err := j.opener.Open(ctx, path)
	if err != nil {
		log.Err(err).Msg("failed to open input")
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			log.Err(cerr).Msg("failed to close input")
			err = multierr.Append(err, cerr)
		}
	}()

	if err := Partition(ctx, bufio.NewReaderSize(in, j.readBuffer), pool, j.keyFn, j.stats); err != nil {
		log.Err(err).Msg("failed to partition input")
		return errors.Wrapf(err, "input %s", path)
	}
	j.stats.Inputs.Inc()
	return nil
}

// Partitions lists the partition files already in the workspace, for
// merging the output of an earlier split.
func (j *Job) Partitions() ([]string, error) {
	return j.ws.Partitions(j.codec.Ext())
}

// Merge sorts and aggregates the given partitions, one task each.
func (j *Job) Merge(ctx context.Context, keys []string) error {
	log := j.logger.With().Str("stage", "merge").Logger()
	log.Info().Int("partitions", len(keys)).Msg("starting merge")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return j.mergeOne(gctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		log.Err(err).Msg("failed merge")
		return err
	}

	log.Info().Int64("emitted", j.stats.Emitted.Load()).Dur("took", time.Since(start)).Msg("finished merge")
	return nil
}

func (j *Job) mergeOne(ctx context.Context, key string) (err error) {
	log := j.logger.With().Str("key", key).Logger()
	path := j.ws.PartitionPath(key, j.codec.Ext())

	part, err := j.codec.Open(ctx, path)
	if err != nil {
		log.Err(err).Msg("failed to open partition")
		return err
	}
	sorted, err := j.sorter.Sort(ctx, part)
	if err != nil {
		log.Err(err).Msg("failed to start sort")
		return err
	}

	buf := NewOutputBuffer(j.out, j.cfg.OutputBufferLines)
	defer func() {
		if ferr := buf.Close(); ferr != nil {
			log.Err(ferr).Msg("failed to flush output")
			err = multierr.Append(err, ferr)
		}
	}()

	if err := Aggregate(ctx, sorted, buf, j.stats); err != nil {
		log.Err(err).Msg("failed to aggregate partition")
		return multierr.Append(errors.Wrapf(err, "partition %q", key), sorted.Close())
	}
	if err := sorted.Close(); err != nil {
		log.Err(err).Msg("failed to sort partition")
		return err
	}

	if !j.cfg.KeepPartitions {
		if err := j.ws.Remove(key, j.codec.Ext()); err != nil {
			log.Err(err).Msg("failed to remove partition")
			return err
		}
	}
	log.Debug().Msg("merged partition")
	return nil
}
