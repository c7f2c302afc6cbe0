package jobstore

import (
	"context"
	"sort"
	"sync"
)

// Store is an in-memory batch state store. The zero value is ready to use.
type Store struct {
	states sync.Map // Key: batch ID, Value: Status
	errors sync.Map // Key: batch ID, Value: error
}

// New creates a new, empty store.
func New() *Store {
	return &Store{}
}

// SetStatus updates the status of a batch.
func (s *Store) SetStatus(ctx context.Context, id int, status Status) {
	s.states.Store(id, status)
}

// Status returns the status of a batch. Unknown batches are Waiting.
func (s *Store) Status(ctx context.Context, id int) Status {
	status, ok := s.states.Load(id)
	if !ok {
		return Waiting
	}
	return status.(Status)
}

// SetError records the failure of a batch.
func (s *Store) SetError(ctx context.Context, id int, err error) {
	s.errors.Store(id, err)
}

// Error returns the recorded failure of a batch, or nil.
func (s *Store) Error(ctx context.Context, id int) error {
	err, ok := s.errors.Load(id)
	if !ok {
		return nil
	}
	return err.(error)
}

// Snapshot returns every recorded status.
func (s *Store) Snapshot(ctx context.Context) map[int]Status {
	out := make(map[int]Status)
	s.states.Range(func(k, v any) bool {
		out[k.(int)] = v.(Status)
		return true
	})
	return out
}

// Count returns how many of ids are in each status.
func (s *Store) Count(ctx context.Context, ids []int) map[Status]int {
	out := make(map[Status]int)
	for _, id := range ids {
		out[s.Status(ctx, id)]++
	}
	return out
}

// IDs returns the recorded batch IDs in ascending order.
func (s *Store) IDs(ctx context.Context) []int {
	var ids []int
	s.states.Range(func(k, _ any) bool {
		ids = append(ids, k.(int))
		return true
	})
	sort.Ints(ids)
	return ids
}
