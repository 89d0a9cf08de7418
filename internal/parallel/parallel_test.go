package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, DefaultConfig())

	assert.Equal(t, int64(n), counter)
}

func TestForBatch(t *testing.T) {
	batch, channels := 4, 8
	var mu sync.Mutex
	seen := make(map[[2]int]int)

	ForBatch(batch, channels, func(b, c int) {
		mu.Lock()
		seen[[2]int{b, c}]++
		mu.Unlock()
	}, DefaultConfig())

	assert.Len(t, seen, batch*channels)
	for k, v := range seen {
		assert.Equal(t, 1, v, "cell %v visited %d times", k, v)
	}
}

func TestForRange_CoversDisjointRanges(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 2}
	n := 17
	hits := make([]int32, n)

	var ranges int32
	ForRange(n, func(start, end int) {
		atomic.AddInt32(&ranges, 1)
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
	assert.Equal(t, int32(3), ranges)
}

func TestForRange_SequentialSingleRange(t *testing.T) {
	var calls int
	ForRange(100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
	}, Sequential())
	assert.Equal(t, 1, calls)
}

func TestForRange_Empty(t *testing.T) {
	ForRange(0, func(_, _ int) {
		t.Fatal("called for empty range")
	}, DefaultConfig())
}

func TestFor_SmallChunkStaysSequential(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 8, MinChunkSize: 64}

	var calls int
	ForRange(63, func(_, _ int) { calls++ }, cfg)
	assert.Equal(t, 1, calls)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, Sequential())
		}
	})
}
