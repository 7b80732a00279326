package storage

import (
	"context"

	"github.com/memorymate/companion/pkg/metrics"
)

// InstrumentedStore decorates a Store with per-operation counters.
type InstrumentedStore struct {
	next Store
	m    *metrics.Metrics
}

// NewInstrumentedStore wraps next so every operation is counted.
func NewInstrumentedStore(next Store, m *metrics.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, m: m}
}

func (s *InstrumentedStore) Has(ctx context.Context, key string) (bool, error) {
	s.m.IncrementStorageOperation("has")
	return s.next.Has(ctx, key)
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.m.IncrementStorageOperation("get")
	return s.next.Get(ctx, key)
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte) error {
	s.m.IncrementStorageOperation("set")
	return s.next.Set(ctx, key, value)
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	s.m.IncrementStorageOperation("delete")
	return s.next.Delete(ctx, key)
}
