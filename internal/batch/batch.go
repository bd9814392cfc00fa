// Package batch splits record slices into contiguous spans and processes
// them with bounded parallelism.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Span is a half-open [Start, End) range of record positions.
type Span struct {
	Start int
	End   int
}

// Spans splits n items into at most parts contiguous spans of near-equal size.
func Spans(n, parts int) []Span {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	out := make([]Span, 0, parts)
	for start := 0; start < n; start += size {
		out = append(out, Span{Start: start, End: min(start+size, n)})
	}
	return out
}

// Run calls fn once per span with at most parts spans in flight, and
// returns after every call has finished. Returning from Run is the
// barrier: no span is still being processed. The first error cancels the
// context passed to the remaining calls and is returned.
func Run(ctx context.Context, n, parts int, fn func(ctx context.Context, s Span) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	if parts < 1 {
		parts = 1
	}
	g.SetLimit(parts)
	for _, s := range Spans(n, parts) {
		g.Go(func() error {
			return fn(gCtx, s)
		})
	}
	return g.Wait()
}
