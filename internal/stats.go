package internal

import (
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Stats counts what a run did. Safe for concurrent use.
type Stats struct {
	Inputs     atomic.Int64
	Routed     atomic.Int64
	Partitions atomic.Int64
	Dropped    atomic.Int64
	Emitted    atomic.Int64
}

func (s *Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("inputs", s.Inputs.Load()).
		Int64("routed", s.Routed.Load()).
		Int64("partitions", s.Partitions.Load()).
		Int64("dropped", s.Dropped.Load()).
		Int64("emitted", s.Emitted.Load())
}
