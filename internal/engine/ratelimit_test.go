package engine

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBWLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst capped to rate below 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(1024)
		assert.Equal(t, 1024, lim.Burst())
	})

	t.Run("burst is 1MB at higher rates", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(10 * 1024 * 1024)
		assert.Equal(t, 1<<20, lim.Burst())
	})
}

func TestRateLimitedReader(t *testing.T) {
	t.Parallel()

	t.Run("reads all data", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("x"), 4096)
		src := bytes.NewReader(data)
		lim := NewBWLimiter(1 << 20)
		rl := newRateLimitedReader(context.Background(), src, lim)

		got, err := io.ReadAll(rl)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("enforces rate limit", func(t *testing.T) {
		t.Parallel()
		// 10 KB at 5 KB/s: the burst absorbs the first 5 KB.
		dataSize := 10 * 1024
		rateLimit := int64(5 * 1024)
		data := bytes.Repeat([]byte("a"), dataSize)
		src := bytes.NewReader(data)
		lim := NewBWLimiter(rateLimit)

		start := time.Now()
		rl := newRateLimitedReader(context.Background(), src, lim)
		got, err := io.ReadAll(rl)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Len(t, got, dataSize)
		assert.Greater(t, elapsed, 500*time.Millisecond,
			"rate limiter should slow reads to ~5KB/s")
	})

	t.Run("reads larger than the burst", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("c"), 8192)
		lim := NewBWLimiter(1 << 20)
		lim.SetBurst(1024)
		rl := newRateLimitedReader(context.Background(), bytes.NewReader(data), lim)

		buf := make([]byte, len(data))
		n, err := rl.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()
		data := bytes.Repeat([]byte("b"), 1<<20) // 1 MB
		src := bytes.NewReader(data)
		lim := NewBWLimiter(1024)

		ctx, cancel := context.WithCancel(context.Background())
		rl := newRateLimitedReader(ctx, src, lim)

		cancel()
		buf := make([]byte, 4096)
		for range 100 {
			_, err := rl.Read(buf)
			if err != nil {
				return // context error is expected
			}
		}
		t.Fatal("expected context cancellation error")
	})
}
