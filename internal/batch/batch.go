// Package batch runs indexed work in sequential fixed-width batches.
//
// Items [0, n) are split into ceil(n/width) batches of at most width items.
// Items within a batch run concurrently; batch k+1 starts only after every
// item of batch k has returned.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Count returns the number of batches needed for n items at width.
func Count(n, width int) int {
	if n <= 0 {
		return 0
	}
	if width <= 0 {
		width = 1
	}
	return (n + width - 1) / width
}

// Bounds returns the half-open item range [start, end) of batch k.
func Bounds(k, n, width int) (int, int) {
	if width <= 0 {
		width = 1
	}
	start := k * width
	end := start + width
	if end > n {
		end = n
	}
	return start, end
}

// Func processes item i. Failures are the callee's to record.
type Func func(ctx context.Context, i int)

// Run calls fn once for every index in [0, n) and returns the number of
// batches that were started. If ctx is cancelled, no further batches are
// scheduled and ctx.Err() is returned after the running batch drains.
func Run(ctx context.Context, n, width int, fn Func) (int, error) {
	if width <= 0 {
		width = 1
	}

	batches := Count(n, width)
	for k := range batches {
		if err := ctx.Err(); err != nil {
			return k, err
		}

		start, end := Bounds(k, n, width)

		var g errgroup.Group
		g.SetLimit(width)
		for i := start; i < end; i++ {
			g.Go(func() error {
				fn(ctx, i)
				return nil
			})
		}
		_ = g.Wait()
	}

	return batches, nil
}
