package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Unknown batches are waiting.
	assert.Equal(t, Waiting, s.Status(ctx, 7))

	s.SetStatus(ctx, 7, Running)
	assert.Equal(t, Running, s.Status(ctx, 7))
	assert.False(t, s.Status(ctx, 7).Terminal())

	s.SetStatus(ctx, 7, Complete)
	assert.True(t, s.Status(ctx, 7).Terminal())
}

func TestSetAndGetError(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.NoError(t, s.Error(ctx, 1))

	boom := errors.New("boom")
	s.SetError(ctx, 1, boom)
	assert.ErrorIs(t, s.Error(ctx, 1), boom)
}

func TestSnapshotAndCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.SetStatus(ctx, 2, Failed)
	s.SetStatus(ctx, 0, Complete)
	s.SetStatus(ctx, 1, Complete)

	assert.Equal(t, map[int]Status{0: Complete, 1: Complete, 2: Failed}, s.Snapshot(ctx))
	assert.Equal(t, []int{0, 1, 2}, s.IDs(ctx))
	assert.Equal(t, map[Status]int{Complete: 2, Failed: 1, Waiting: 1}, s.Count(ctx, []int{0, 1, 2, 3}))
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{Waiting, "waiting"},
		{Running, "running"},
		{Complete, "complete"},
		{Failed, "failed"},
		{Killed, "killed"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	numGoroutines := 100

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			s.SetStatus(ctx, id, Running)
			if id%2 == 0 {
				s.SetError(ctx, id, fmt.Errorf("error %d", id))
				s.SetStatus(ctx, id, Failed)
				return
			}
			s.SetStatus(ctx, id, Complete)
		}(i)
	}
	wg.Wait()

	counts := s.Count(ctx, s.IDs(ctx))
	require.Equal(t, numGoroutines/2, counts[Failed])
	assert.Equal(t, numGoroutines/2, counts[Complete])
	assert.EqualError(t, s.Error(ctx, 4), "error 4")
}
