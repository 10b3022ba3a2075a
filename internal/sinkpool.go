package internal

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// SinkFactory constructs the sink for a partition key.
type SinkFactory func(key string) (*Sink, error)

// SinkPool maps partition keys to their sinks, creating each sink on
// first use. Exactly one sink is ever constructed per key.
type SinkPool struct {
	mu      sync.RWMutex
	sinks   map[string]*Sink
	newSink SinkFactory
	closed  bool
}

func NewSinkPool(factory SinkFactory) *SinkPool {
	return &SinkPool{
		sinks:   make(map[string]*Sink),
		newSink: factory,
	}
}

// GetOrCreate returns the sink for key. Lookups of existing keys only
// take the read lock; a miss retakes the write lock and checks again
// before constructing, since another caller may have won the race.
func (p *SinkPool) GetOrCreate(key string) (*Sink, error) {
	p.mu.RLock()
	s, ok := p.sinks[key]
	closed := p.closed
	p.mu.RUnlock()
	if ok {
		return s, nil
	}
	if closed {
		return nil, errors.Errorf("sink pool closed, cannot create %q", key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sinks[key]; ok {
		return s, nil
	}
	if p.closed {
		return nil, errors.Errorf("sink pool closed, cannot create %q", key)
	}
	s, err := p.newSink(key)
	if err != nil {
		return nil, err
	}
	p.sinks[key] = s
	return s, nil
}

// Keys returns the keys of every sink created so far, sorted.
func (p *SinkPool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.sinks))
	for k := range p.sinks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes every sink, even after one of them fails, and reports
// all failures.
func (p *SinkPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var err error
	for _, s := range p.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}
