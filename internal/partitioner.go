package internal

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
)

// how often a long-running loop looks at its context
const ctxCheckInterval = 4096

// Partition routes every record read from r to the sink of its key.
// Any record that cannot be parsed or keyed fails the whole call. A bare
// quote inside an unquoted field is kept as data; the sink re-quotes it.
func Partition(ctx context.Context, r io.Reader, pool *SinkPool, keyFn KeyFunc, stats *Stats) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	reader.LazyQuotes = true

	var routed int64
	defer func() { stats.Routed.Add(routed) }()

	for n := 1; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(ErrUnparsableRecord, "%v", err)
		}

		rec, err := ParseRecord(fields)
		if err != nil {
			return errors.Wrapf(err, "record %d", n)
		}
		key, err := keyFn(rec.IP)
		if err != nil {
			return errors.Wrapf(err, "record %d", n)
		}
		sink, err := pool.GetOrCreate(key)
		if err != nil {
			return err
		}
		if err := sink.Process(fields); err != nil {
			return errors.Wrapf(err, "partition %q", key)
		}
		routed++
	}
}
