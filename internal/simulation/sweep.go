package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"modrouting-sim/internal/routing"
)

// SweepResult counts first-hop lookups over every ordered node pair.
type SweepResult struct {
	Pairs   int
	Routed  int
	NoRoute int
	// Mismatches are routed pairs whose first hop is not in range of the
	// source under the snapshot's own range.
	Mismatches int
}

func (r SweepResult) String() string {
	return fmt.Sprintf("pairs %d, routed %d, no route %d, mismatches %d", r.Pairs, r.Routed, r.NoRoute, r.Mismatches)
}

// RouteSweep resolves FirstHop for every ordered pair of distinct nodes using
// up to workers concurrent readers. Mismatches are judged against the
// snapshot current when the sweep starts, so run it between rebuilds.
func RouteSweep(ctx context.Context, table *routing.Table, workers int) (SweepResult, error) {
	view, err := table.View()
	if err != nil {
		return SweepResult{}, err
	}
	n := view.Len()
	if workers <= 0 {
		workers = 1
	}

	var (
		mu  sync.Mutex
		res SweepResult
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		src := view.Addr(i)
		g.Go(func() error {
			var row SweepResult
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				row.Pairs++
				relay, err := table.FirstHop(src, view.Addr(j))
				switch {
				case errors.Is(err, routing.ErrNoRoute):
					row.NoRoute++
					continue
				case err != nil:
					return fmt.Errorf("first hop %s -> %s: %w", src, view.Addr(j), err)
				}
				row.Routed++
				k, ok := table.Registry().Lookup(relay)
				if !ok || view.Hop(i, k) != 1 {
					row.Mismatches++
				}
			}
			mu.Lock()
			res.Pairs += row.Pairs
			res.Routed += row.Routed
			res.NoRoute += row.NoRoute
			res.Mismatches += row.Mismatches
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	return res, nil
}
