package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	tests := []struct {
		n, width, want int
	}{
		{17, 8, 3},
		{16, 8, 2},
		{1, 8, 1},
		{0, 8, 0},
		{5, 0, 5},
		{8, 8, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Count(tt.n, tt.width), "n=%d width=%d", tt.n, tt.width)
	}
}

func TestRun(t *testing.T) {
	t.Run("17 items at width 8", func(t *testing.T) {
		var (
			mu      sync.Mutex
			seen    = make(map[int]int)
			batchOf = make(map[int]int)
		)

		var current atomic.Int32
		var maxInFlight atomic.Int32

		batches, err := Run(context.Background(), 17, 8, func(_ context.Context, i int) {
			n := current.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			defer current.Add(-1)

			mu.Lock()
			seen[i]++
			batchOf[i] = i / 8
			mu.Unlock()
		})
		require.NoError(t, err)
		assert.Equal(t, 3, batches)
		assert.Len(t, seen, 17)
		for i := range 17 {
			assert.Equal(t, 1, seen[i], "item %d processed once", i)
		}
		assert.LessOrEqual(t, maxInFlight.Load(), int32(8))
	})

	t.Run("batches do not overlap", func(t *testing.T) {
		var (
			mu       sync.Mutex
			finished = make(map[int]bool)
			overlap  bool
		)

		_, err := Run(context.Background(), 10, 3, func(_ context.Context, i int) {
			mu.Lock()
			defer mu.Unlock()
			start, _ := Bounds(i/3, 10, 3)
			for j := 0; j < start; j++ {
				if !finished[j] {
					overlap = true
				}
			}
			finished[i] = true
		})
		require.NoError(t, err)
		assert.False(t, overlap, "a batch started before the previous one finished")
	})

	t.Run("cancellation stops scheduling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32

		batches, err := Run(ctx, 20, 4, func(_ context.Context, _ int) {
			if calls.Add(1) == 4 {
				cancel()
			}
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, batches)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("no items", func(t *testing.T) {
		batches, err := Run(context.Background(), 0, 8, func(context.Context, int) {
			t.Fatal("unexpected call")
		})
		require.NoError(t, err)
		assert.Zero(t, batches)
	})
}

func TestBounds(t *testing.T) {
	start, end := Bounds(2, 17, 8)
	assert.Equal(t, 16, start)
	assert.Equal(t, 17, end)
}
