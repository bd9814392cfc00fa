package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpans(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		parts int
		want  []Span
	}{
		{"empty", 0, 4, nil},
		{"single part", 5, 1, []Span{{0, 5}}},
		{"even", 8, 4, []Span{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"uneven", 10, 4, []Span{{0, 3}, {3, 6}, {6, 9}, {9, 10}}},
		{"more parts than items", 2, 8, []Span{{0, 1}, {1, 2}}},
		{"zero parts", 3, 0, []Span{{0, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Spans(tt.n, tt.parts))
		})
	}
}

func TestRun_CoversEveryItemOnce(t *testing.T) {
	seen := make([]int32, 103)
	err := Run(context.Background(), len(seen), 4, func(_ context.Context, s Span) error {
		for i := s.Start; i < s.End; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
		return nil
	})
	require.NoError(t, err)
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "item %d", i)
	}
}

func TestRun_ReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), 10, 3, func(_ context.Context, s Span) error {
		if s.Start == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
